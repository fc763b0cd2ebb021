// Package account owns credential records and the active-identity
// pointer, persisted as a single JSON document in the key-value store.
package account

import "encoding/json"

// Health is the lifecycle state of a credential.
type Health string

const (
	HealthHealthy   Health = "healthy"
	HealthUnhealthy Health = "unhealthy"
	HealthBanned    Health = "banned"
)

// TokenState holds the OAuth token block for one identity.
// ExpirationTime is epoch milliseconds.
type TokenState struct {
	AccessToken    string `json:"accessToken"`
	RefreshToken   string `json:"refreshToken"`
	ExpirationTime int64  `json:"expirationTime"`
}

// Record is one credential record, keyed by an email-shaped identity.
// Fields the manager does not know about survive a round trip through
// Extra.
type Record struct {
	Email           string     `json:"email"`
	TokenState      TokenState `json:"stsTokenManager"`
	HealthStatus    Health     `json:"healthStatus,omitempty"`
	LastUpdated     int64      `json:"lastUpdated,omitempty"`
	LastHealthCheck int64      `json:"lastHealthCheck,omitempty"`
	APIKey          string     `json:"apiKey,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

var knownRecordFields = map[string]struct{}{
	"email":           {},
	"stsTokenManager": {},
	"healthStatus":    {},
	"lastUpdated":     {},
	"lastHealthCheck": {},
	"apiKey":          {},
}

func (r *Record) UnmarshalJSON(data []byte) error {
	type alias Record
	var core alias
	if err := json.Unmarshal(data, &core); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for field := range knownRecordFields {
		delete(raw, field)
	}
	if len(raw) > 0 {
		core.Extra = raw
	}

	*r = Record(core)
	return nil
}

func (r Record) MarshalJSON() ([]byte, error) {
	type alias Record
	data, err := json.Marshal(alias(r))
	if err != nil {
		return nil, err
	}
	if len(r.Extra) == 0 {
		return data, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for field, value := range r.Extra {
		if _, known := knownRecordFields[field]; known {
			continue
		}
		merged[field] = value
	}
	return json.Marshal(merged)
}

// Summary is the list view of a record.
type Summary struct {
	Email        string `json:"email"`
	IsActive     bool   `json:"isActive"`
	HealthStatus Health `json:"healthStatus"`
	LastUpdated  int64  `json:"lastUpdated"`
}
