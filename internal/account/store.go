package account

import (
	"encoding/json"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/RayYiHang/warp-surge/internal/kv"
)

// Store provides CRUD and active-selection over the persisted
// credential map. A single mutex serializes every read-modify-write
// cycle; the key-value adapter has no cross-key transactions, so the
// store is the one writer of the accounts document.
type Store struct {
	storage kv.Store
	mu      sync.Mutex
	now     func() time.Time
}

func NewStore(storage kv.Store) *Store {
	return &Store{storage: storage, now: time.Now}
}

func (s *Store) load() (map[string]*Record, error) {
	raw, ok, err := s.storage.Read(kv.KeyAccounts)
	if err != nil {
		return nil, err
	}
	if !ok || raw == "" {
		return map[string]*Record{}, nil
	}

	accounts := map[string]*Record{}
	if err := json.Unmarshal([]byte(raw), &accounts); err != nil {
		log.Printf("⚠️ Corrupt accounts document, starting empty: %v", err)
		return map[string]*Record{}, nil
	}
	return accounts, nil
}

func (s *Store) save(accounts map[string]*Record) error {
	data, err := json.Marshal(accounts)
	if err != nil {
		return err
	}
	return s.storage.Write(kv.KeyAccounts, string(data))
}

// List returns summaries of every record decorated with the active
// pointer, ordered by identity. Unpaginated; cardinality stays small.
func (s *Store) List() ([]Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, err := s.load()
	if err != nil {
		return nil, err
	}
	active, _, err := s.storage.Read(kv.KeyActiveAccount)
	if err != nil {
		return nil, err
	}

	summaries := make([]Summary, 0, len(accounts))
	for email, record := range accounts {
		health := record.HealthStatus
		if health == "" {
			health = HealthHealthy
		}
		summaries = append(summaries, Summary{
			Email:        email,
			IsActive:     email == active,
			HealthStatus: health,
			LastUpdated:  record.LastUpdated,
		})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Email < summaries[j].Email })
	return summaries, nil
}

// All returns a snapshot of the full credential map.
func (s *Store) All() (map[string]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Get returns the record for email, or a NotFoundError.
func (s *Store) Get(email string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, err := s.load()
	if err != nil {
		return nil, err
	}
	record, ok := accounts[email]
	if !ok {
		return nil, &NotFoundError{Email: email}
	}
	return record, nil
}

// ActiveEmail returns the active pointer, empty when none is selected.
func (s *Store) ActiveEmail() (string, error) {
	active, _, err := s.storage.Read(kv.KeyActiveAccount)
	return active, err
}

// GetActive resolves the active pointer. Returns nil when the pointer
// is empty or dangling.
func (s *Store) GetActive() (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	active, _, err := s.storage.Read(kv.KeyActiveAccount)
	if err != nil {
		return nil, err
	}
	if active == "" {
		return nil, nil
	}

	accounts, err := s.load()
	if err != nil {
		return nil, err
	}
	return accounts[active], nil
}

// Add stores a new record. The first record in the map becomes the
// active identity.
func (s *Store) Add(record *Record) error {
	if record == nil || record.Email == "" {
		return &ValidationError{Reason: "missing email"}
	}
	if record.TokenState.RefreshToken == "" {
		return &ValidationError{Reason: "missing stsTokenManager.refreshToken"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, err := s.load()
	if err != nil {
		return err
	}

	record.HealthStatus = HealthHealthy
	record.LastUpdated = s.now().UnixMilli()
	accounts[record.Email] = record

	if err := s.save(accounts); err != nil {
		return err
	}

	if len(accounts) == 1 {
		if err := s.storage.Write(kv.KeyActiveAccount, record.Email); err != nil {
			return err
		}
		log.Printf("👤 First account %s auto-selected as active", record.Email)
	}
	return nil
}

// Delete removes a record. Deleting the active identity clears the
// pointer in the same logical operation.
func (s *Store) Delete(email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := accounts[email]; !ok {
		return &NotFoundError{Email: email}
	}
	delete(accounts, email)

	if err := s.save(accounts); err != nil {
		return err
	}

	active, _, err := s.storage.Read(kv.KeyActiveAccount)
	if err != nil {
		return err
	}
	if active == email {
		if err := s.storage.Write(kv.KeyActiveAccount, ""); err != nil {
			return err
		}
	}
	return nil
}

// SetActive points traffic at email.
func (s *Store) SetActive(email string) error {
	if email == "" {
		return &ValidationError{Reason: "empty email"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := accounts[email]; !ok {
		return &NotFoundError{Email: email}
	}
	return s.storage.Write(kv.KeyActiveAccount, email)
}

// MarkHealth updates the health state and lastHealthCheck timestamp.
// Banning the active identity clears the active pointer; a banned
// account must never remain selected for traffic.
func (s *Store) MarkHealth(email string, health Health) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, err := s.load()
	if err != nil {
		return err
	}
	record, ok := accounts[email]
	if !ok {
		return &NotFoundError{Email: email}
	}

	record.HealthStatus = health
	record.LastHealthCheck = s.now().UnixMilli()
	if err := s.save(accounts); err != nil {
		return err
	}

	if health == HealthBanned {
		active, _, err := s.storage.Read(kv.KeyActiveAccount)
		if err != nil {
			return err
		}
		if active == email {
			if err := s.storage.Write(kv.KeyActiveAccount, ""); err != nil {
				return err
			}
		}
		log.Printf("🚫 Account %s marked as banned", email)
	}
	return nil
}

// UpdateTokenState writes a refreshed token block back to the record
// and bumps lastUpdated.
func (s *Store) UpdateTokenState(email string, state TokenState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, err := s.load()
	if err != nil {
		return err
	}
	record, ok := accounts[email]
	if !ok {
		return &NotFoundError{Email: email}
	}

	record.TokenState = state
	record.LastUpdated = s.now().UnixMilli()
	return s.save(accounts)
}
