// Package refresh performs token staleness checks, the refresh
// exchange against the secure token endpoint, and the periodic sweep
// that keeps every account fresh.
package refresh

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/RayYiHang/warp-surge/internal/account"
)

const (
	// DefaultEndpoint is the fixed OAuth-style token exchange endpoint.
	DefaultEndpoint = "https://securetoken.googleapis.com/v1/token"

	// DefaultThreshold refreshes tokens five minutes before expiry.
	DefaultThreshold = 5 * time.Minute

	// DefaultTimeout bounds one exchange request.
	DefaultTimeout = 15 * time.Second

	userAgent = "WarpAccountManager/1.0"
)

// RefreshError reports a failed token exchange: transport failure,
// malformed payload, or a payload without an access token. It is
// recorded, never fatal to the caller.
type RefreshError struct {
	Email  string
	Reason string
	Err    error
}

func (e *RefreshError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("refresh %s: %s: %v", e.Email, e.Reason, e.Err)
	}
	return fmt.Sprintf("refresh %s: %s", e.Email, e.Reason)
}

func (e *RefreshError) Unwrap() error { return e.Err }

// IsStale reports whether a token block is within threshold of its
// recorded expiry. Missing expiry or refresh data is treated as stale;
// failing toward a refresh is always safe.
func IsStale(state account.TokenState, now time.Time, threshold time.Duration) bool {
	if state.RefreshToken == "" || state.ExpirationTime <= 0 {
		return true
	}
	return now.UnixMilli() >= state.ExpirationTime-threshold.Milliseconds()
}

// Refresher exchanges refresh tokens for fresh access tokens and writes
// the result back through the account store. Refreshes for the same
// identity are mutually exclusive; distinct identities run concurrently.
type Refresher struct {
	accounts  *account.Store
	endpoint  string
	apiKey    string
	threshold time.Duration
	client    *http.Client
	now       func() time.Time
	locks     sync.Map // email -> *sync.Mutex
}

func NewRefresher(accounts *account.Store, endpoint, apiKey string) *Refresher {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Refresher{
		accounts:  accounts,
		endpoint:  endpoint,
		apiKey:    apiKey,
		threshold: DefaultThreshold,
		client:    &http.Client{Timeout: DefaultTimeout},
		now:       time.Now,
	}
}

// Threshold returns the staleness threshold in use.
func (r *Refresher) Threshold() time.Duration { return r.threshold }

// SetThreshold overrides the staleness threshold. Non-positive values
// are ignored.
func (r *Refresher) SetThreshold(threshold time.Duration) {
	if threshold > 0 {
		r.threshold = threshold
	}
}

func (r *Refresher) lock(email string) *sync.Mutex {
	mu, _ := r.locks.LoadOrStore(email, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Refresh performs one exchange for email if its token is stale.
// Returns refreshed=false on the no-op fresh path.
func (r *Refresher) Refresh(ctx context.Context, email string) (refreshed bool, err error) {
	return r.refresh(ctx, email, false)
}

// ForceRefresh performs one exchange regardless of staleness.
func (r *Refresher) ForceRefresh(ctx context.Context, email string) error {
	_, err := r.refresh(ctx, email, true)
	return err
}

func (r *Refresher) refresh(ctx context.Context, email string, force bool) (bool, error) {
	mu := r.lock(email)
	mu.Lock()
	defer mu.Unlock()

	record, err := r.accounts.Get(email)
	if err != nil {
		return false, err
	}

	if !force && !IsStale(record.TokenState, r.now(), r.threshold) {
		return false, nil
	}

	state, err := r.exchange(ctx, record)
	if err != nil {
		return false, err
	}
	if err := r.accounts.UpdateTokenState(email, state); err != nil {
		return false, err
	}

	log.Printf("✅ Refreshed token for: %s (expires: %s)",
		email, time.UnixMilli(state.ExpirationTime).Format(time.RFC3339))
	return true, nil
}

type tokenResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    json.Number `json:"expires_in"`
}

func (r *Refresher) exchange(ctx context.Context, record *account.Record) (account.TokenState, error) {
	var zero account.TokenState

	apiKey := record.APIKey
	if apiKey == "" {
		apiKey = r.apiKey
	}

	body, err := json.Marshal(map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": record.TokenState.RefreshToken,
	})
	if err != nil {
		return zero, &RefreshError{Email: record.Email, Reason: "encode request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+"?key="+apiKey, bytes.NewReader(body))
	if err != nil {
		return zero, &RefreshError{Email: record.Email, Reason: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return zero, &RefreshError{Email: record.Email, Reason: "token endpoint unreachable", Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return zero, &RefreshError{Email: record.Email, Reason: "read response", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return zero, &RefreshError{
			Email:  record.Email,
			Reason: fmt.Sprintf("token endpoint returned %d", resp.StatusCode),
		}
	}

	var token tokenResponse
	if err := json.Unmarshal(payload, &token); err != nil {
		return zero, &RefreshError{Email: record.Email, Reason: "malformed token payload", Err: err}
	}
	if token.AccessToken == "" {
		return zero, &RefreshError{Email: record.Email, Reason: "payload missing access token"}
	}
	expiresIn, err := token.ExpiresIn.Int64()
	if err != nil || expiresIn <= 0 {
		return zero, &RefreshError{Email: record.Email, Reason: "payload missing expiry"}
	}

	state := account.TokenState{
		AccessToken:    token.AccessToken,
		RefreshToken:   token.RefreshToken,
		ExpirationTime: r.now().UnixMilli() + expiresIn*1000,
	}
	// Keep the stored refresh token when the endpoint does not rotate it.
	if state.RefreshToken == "" {
		state.RefreshToken = record.TokenState.RefreshToken
	}
	return state, nil
}
