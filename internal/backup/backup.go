// Package backup snapshots and restores the full persisted state set
// as one versioned document.
package backup

import (
	"encoding/json"
	"log"
	"strconv"
	"time"

	"github.com/RayYiHang/warp-surge/internal/account"
	"github.com/RayYiHang/warp-surge/internal/kv"
)

// AutoBackupInterval is the rolling cadence of automatic backups.
const AutoBackupInterval = 24 * time.Hour

// Document is one versioned snapshot of the persisted key space.
type Document struct {
	Version       string          `json:"version"`
	Timestamp     int64           `json:"timestamp"`
	Accounts      json.RawMessage `json:"accounts"`
	ActiveAccount string          `json:"activeAccount"`
	Settings      json.RawMessage `json:"settings,omitempty"`
	UserSettings  json.RawMessage `json:"userSettings,omitempty"`
}

// Stats summarizes the persisted state for the admin surface.
type Stats struct {
	TotalAccounts   int    `json:"totalAccounts"`
	HealthyAccounts int    `json:"healthyAccounts"`
	BannedAccounts  int    `json:"bannedAccounts"`
	ActiveAccount   string `json:"activeAccount"`
	HasBackup       bool   `json:"hasBackup"`
}

// Service owns snapshot, restore, wipe, and the rolling auto-backup.
type Service struct {
	storage  kv.Store
	accounts *account.Store
	now      func() time.Time
}

func NewService(storage kv.Store, accounts *account.Store) *Service {
	return &Service{storage: storage, accounts: accounts, now: time.Now}
}

func (s *Service) readRaw(key, fallback string) (string, error) {
	raw, ok, err := s.storage.Read(key)
	if err != nil {
		return "", err
	}
	if !ok || raw == "" {
		return fallback, nil
	}
	return raw, nil
}

// Snapshot reads the full state set, stamps version and time, persists
// the result as the latest backup, and returns it.
func (s *Service) Snapshot() (*Document, error) {
	accounts, err := s.readRaw(kv.KeyAccounts, "{}")
	if err != nil {
		return nil, err
	}
	active, _, err := s.storage.Read(kv.KeyActiveAccount)
	if err != nil {
		return nil, err
	}
	settingsDoc, err := s.readRaw(kv.KeySettings, "{}")
	if err != nil {
		return nil, err
	}
	userSettings, err := s.readRaw(kv.KeyUserSettings, "")
	if err != nil {
		return nil, err
	}

	doc := &Document{
		Version:       kv.SchemaVersion,
		Timestamp:     s.now().UnixMilli(),
		Accounts:      json.RawMessage(accounts),
		ActiveAccount: active,
		Settings:      json.RawMessage(settingsDoc),
	}
	if userSettings != "" {
		doc.UserSettings = json.RawMessage(userSettings)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	if err := s.storage.Write(kv.KeyBackup, string(data)); err != nil {
		return nil, err
	}

	log.Println("💾 Backup created")
	return doc, nil
}

// Restore replaces the accounts map wholesale and, only for fields
// present in the document, the active pointer, settings, and user
// settings. Absent fields leave the live values untouched.
func (s *Service) Restore(data []byte) error {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return &account.ValidationError{Reason: "malformed backup document"}
	}
	if doc.Version == "" || doc.Accounts == nil {
		return &account.ValidationError{Reason: "backup missing version or accounts"}
	}

	if err := s.storage.Write(kv.KeyAccounts, string(doc.Accounts)); err != nil {
		return err
	}
	if doc.ActiveAccount != "" {
		if err := s.storage.Write(kv.KeyActiveAccount, doc.ActiveAccount); err != nil {
			return err
		}
	}
	if doc.Settings != nil {
		if err := s.storage.Write(kv.KeySettings, string(doc.Settings)); err != nil {
			return err
		}
	}
	if doc.UserSettings != nil {
		if err := s.storage.Write(kv.KeyUserSettings, string(doc.UserSettings)); err != nil {
			return err
		}
	}

	log.Println("💾 Backup restored")
	return nil
}

// ClearAll resets accounts, the active pointer, user settings, and
// notifications. Settings are deliberately preserved; wiping them is a
// separate operator action.
func (s *Service) ClearAll() error {
	resets := []struct{ key, value string }{
		{kv.KeyAccounts, "{}"},
		{kv.KeyActiveAccount, ""},
		{kv.KeyUserSettings, ""},
		{kv.KeyNotifications, "[]"},
	}
	for _, reset := range resets {
		if err := s.storage.Write(reset.key, reset.value); err != nil {
			return err
		}
	}
	log.Println("🗑️ All data cleared")
	return nil
}

// AutoBackup creates a snapshot when more than 24h have passed since
// the last automatic one.
func (s *Service) AutoBackup() error {
	last, _, err := s.storage.Read(kv.KeyLastAutoBackup)
	if err != nil {
		return err
	}

	now := s.now().UnixMilli()
	if last != "" {
		lastMs, err := strconv.ParseInt(last, 10, 64)
		if err == nil && now-lastMs < AutoBackupInterval.Milliseconds() {
			return nil
		}
	}

	if _, err := s.Snapshot(); err != nil {
		return err
	}
	return s.storage.Write(kv.KeyLastAutoBackup, strconv.FormatInt(now, 10))
}

// StorageStats summarizes the persisted state.
func (s *Service) StorageStats() (*Stats, error) {
	accounts, err := s.accounts.All()
	if err != nil {
		return nil, err
	}
	active, _, err := s.storage.Read(kv.KeyActiveAccount)
	if err != nil {
		return nil, err
	}
	_, hasBackup, err := s.storage.Read(kv.KeyBackup)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		TotalAccounts: len(accounts),
		ActiveAccount: active,
		HasBackup:     hasBackup,
	}
	for _, record := range accounts {
		if record.HealthStatus == account.HealthBanned {
			stats.BannedAccounts++
		}
	}
	stats.HealthyAccounts = stats.TotalAccounts - stats.BannedAccounts
	return stats, nil
}
