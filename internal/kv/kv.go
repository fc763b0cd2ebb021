// Package kv provides the persisted key-value store the credential
// manager runs on top of. Values are opaque strings; components parse
// and serialize at their own boundary.
package kv

import "fmt"

// Storage keys used across the manager. A single process owns the
// whole key space.
const (
	KeyAccounts       = "warp_accounts"
	KeyActiveAccount  = "warp_active_account"
	KeySettings       = "warp_settings"
	KeyUserSettings   = "warp_user_settings"
	KeyNotifications  = "warp_notifications"
	KeyBackup         = "warp_backup"
	KeyLastAutoBackup = "warp_last_auto_backup"
	KeyAIConfig       = "warp_ai_config"
	KeySchemaVersion  = "warp_db_version"
)

// SchemaVersion stamps the persisted key space.
const SchemaVersion = "1.0"

// Store is the persistence capability consumed by every component.
// Read reports ok=false when the key has never been written.
type Store interface {
	Read(key string) (value string, ok bool, err error)
	Write(key, value string) error
}

// StorageError wraps an adapter failure. It fails the single operation
// in progress, never the process.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Initialize stamps the schema version and seeds the base documents on
// a fresh store so readers never see missing keys.
func Initialize(s Store) error {
	version, ok, err := s.Read(KeySchemaVersion)
	if err != nil {
		return err
	}
	if ok && version == SchemaVersion {
		return nil
	}

	if !ok {
		seeds := map[string]string{
			KeyAccounts:      "{}",
			KeyActiveAccount: "",
			KeySettings:      `{"autoRefresh":true,"banDetection":true,"healthCheck":true}`,
		}
		for key, value := range seeds {
			if _, exists, err := s.Read(key); err != nil {
				return err
			} else if !exists {
				if err := s.Write(key, value); err != nil {
					return err
				}
			}
		}
	}

	return s.Write(KeySchemaVersion, SchemaVersion)
}
