// Package settings manages the flat manager settings document with
// defaulted keys and arbitrary pass-through extras.
package settings

import (
	"encoding/json"

	"github.com/RayYiHang/warp-surge/internal/kv"
)

// Settings is the manager configuration toggled from the admin surface.
type Settings struct {
	AutoRefresh  bool `json:"autoRefresh"`
	BanDetection bool `json:"banDetection"`
	HealthCheck  bool `json:"healthCheck"`
	AutoSwitch   bool `json:"autoSwitch"`

	Extra map[string]json.RawMessage `json:"-"`
}

var knownSettingKeys = map[string]struct{}{
	"autoRefresh":  {},
	"banDetection": {},
	"healthCheck":  {},
	"autoSwitch":   {},
}

// Defaults mirror the original toggle semantics: everything on except
// autoSwitch.
func Defaults() Settings {
	return Settings{AutoRefresh: true, BanDetection: true, HealthCheck: true}
}

func (s *Settings) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	// A key is only false when explicitly stored as false.
	out := Defaults()
	boolKey := func(key string, fallback bool) bool {
		value, ok := raw[key]
		if !ok {
			return fallback
		}
		var b bool
		if err := json.Unmarshal(value, &b); err != nil {
			return fallback
		}
		return b
	}
	out.AutoRefresh = boolKey("autoRefresh", true)
	out.BanDetection = boolKey("banDetection", true)
	out.HealthCheck = boolKey("healthCheck", true)
	out.AutoSwitch = boolKey("autoSwitch", false)

	for key := range knownSettingKeys {
		delete(raw, key)
	}
	if len(raw) > 0 {
		out.Extra = raw
	}

	*s = out
	return nil
}

func (s Settings) MarshalJSON() ([]byte, error) {
	type alias Settings
	data, err := json.Marshal(alias(s))
	if err != nil {
		return nil, err
	}
	if len(s.Extra) == 0 {
		return data, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for key, value := range s.Extra {
		if _, known := knownSettingKeys[key]; known {
			continue
		}
		merged[key] = value
	}
	return json.Marshal(merged)
}

// Service reads and updates the persisted settings document.
type Service struct {
	storage kv.Store
}

func NewService(storage kv.Store) *Service {
	return &Service{storage: storage}
}

// Get returns the stored settings merged over defaults. A missing or
// corrupt document yields defaults.
func (s *Service) Get() (Settings, error) {
	raw, ok, err := s.storage.Read(kv.KeySettings)
	if err != nil {
		return Defaults(), err
	}
	if !ok || raw == "" {
		return Defaults(), nil
	}

	var settings Settings
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return Defaults(), nil
	}
	return settings, nil
}

// Update merges the given raw JSON patch over the stored document and
// persists the result.
func (s *Service) Update(patch map[string]json.RawMessage) (Settings, error) {
	current := map[string]json.RawMessage{}
	if raw, ok, err := s.storage.Read(kv.KeySettings); err != nil {
		return Defaults(), err
	} else if ok && raw != "" {
		// Best effort: a corrupt document is replaced by the patch.
		json.Unmarshal([]byte(raw), &current)
	}

	for key, value := range patch {
		current[key] = value
	}

	data, err := json.Marshal(current)
	if err != nil {
		return Defaults(), err
	}
	if err := s.storage.Write(kv.KeySettings, string(data)); err != nil {
		return Defaults(), err
	}

	var merged Settings
	if err := json.Unmarshal(data, &merged); err != nil {
		return Defaults(), err
	}
	return merged, nil
}
