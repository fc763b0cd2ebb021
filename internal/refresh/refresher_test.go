package refresh

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/RayYiHang/warp-surge/internal/account"
	"github.com/RayYiHang/warp-surge/internal/kv"
)

func TestIsStale_BoundaryInclusive(t *testing.T) {
	threshold := 5 * time.Minute
	expiry := int64(1700000000000)
	state := account.TokenState{RefreshToken: "R1", ExpirationTime: expiry}

	tests := []struct {
		name  string
		nowMs int64
		want  bool
	}{
		{name: "well before threshold", nowMs: expiry - threshold.Milliseconds() - time.Hour.Milliseconds(), want: false},
		{name: "one ms before threshold", nowMs: expiry - threshold.Milliseconds() - 1, want: false},
		{name: "exactly at threshold", nowMs: expiry - threshold.Milliseconds(), want: true},
		{name: "past threshold", nowMs: expiry - threshold.Milliseconds() + 1, want: true},
		{name: "past expiry", nowMs: expiry + 1, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsStale(state, time.UnixMilli(tt.nowMs), threshold)
			if got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestIsStale_FailSafeOnMissingData(t *testing.T) {
	now := time.Now()
	if !IsStale(account.TokenState{ExpirationTime: now.Add(time.Hour).UnixMilli()}, now, time.Minute) {
		t.Fatal("missing refresh token must be stale")
	}
	if !IsStale(account.TokenState{RefreshToken: "R1"}, now, time.Minute) {
		t.Fatal("missing expiry must be stale")
	}
}

func newExchangeServer(t *testing.T, status int, payload map[string]interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Query().Get("key") == "" {
			t.Error("missing key query parameter")
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("malformed exchange body: %v", err)
		}
		if body["grant_type"] != "refresh_token" {
			t.Errorf("unexpected grant type: %s", body["grant_type"])
		}

		w.WriteHeader(status)
		if payload != nil {
			json.NewEncoder(w).Encode(payload)
		}
	}))
}

func newTestRefresher(t *testing.T, endpoint string) (*Refresher, *account.Store) {
	t.Helper()
	accounts := account.NewStore(kv.NewMemoryStore())
	return NewRefresher(accounts, endpoint, "test-key"), accounts
}

func TestRefresh_NoOpWhenFresh(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	refresher, accounts := newTestRefresher(t, server.URL)
	accounts.Add(&account.Record{
		Email: "a@x.com",
		TokenState: account.TokenState{
			AccessToken:    "T1",
			RefreshToken:   "R1",
			ExpirationTime: time.Now().Add(time.Hour).UnixMilli(),
		},
	})

	refreshed, err := refresher.Refresh(context.Background(), "a@x.com")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed || called {
		t.Fatal("fresh token must not trigger an exchange")
	}
}

func TestForceRefresh_UpdatesTokenState(t *testing.T) {
	server := newExchangeServer(t, http.StatusOK, map[string]interface{}{
		"access_token":  "T2",
		"refresh_token": "R2",
		"expires_in":    3600,
	})
	defer server.Close()

	refresher, accounts := newTestRefresher(t, server.URL)
	now := time.UnixMilli(1700000000000)
	refresher.now = func() time.Time { return now }

	accounts.Add(&account.Record{
		Email: "a@x.com",
		TokenState: account.TokenState{
			AccessToken:    "T1",
			RefreshToken:   "R1",
			ExpirationTime: now.UnixMilli() + 60000,
		},
	})

	if !IsStale(account.TokenState{RefreshToken: "R1", ExpirationTime: now.UnixMilli() + 60000}, now, refresher.Threshold()) {
		t.Fatal("expected token within threshold to be stale")
	}

	if err := refresher.ForceRefresh(context.Background(), "a@x.com"); err != nil {
		t.Fatalf("force refresh: %v", err)
	}

	record, _ := accounts.Get("a@x.com")
	if record.TokenState.AccessToken != "T2" || record.TokenState.RefreshToken != "R2" {
		t.Fatalf("token not rotated: %+v", record.TokenState)
	}
	if record.TokenState.ExpirationTime != now.UnixMilli()+3600*1000 {
		t.Fatalf("expected expiry %d, got %d", now.UnixMilli()+3600*1000, record.TokenState.ExpirationTime)
	}
	if record.HealthStatus != account.HealthHealthy {
		t.Fatalf("health changed on successful refresh: %s", record.HealthStatus)
	}
}

func TestForceRefresh_KeepsRefreshTokenWhenNotRotated(t *testing.T) {
	server := newExchangeServer(t, http.StatusOK, map[string]interface{}{
		"access_token": "T2",
		"expires_in":   "3600", // string form, as the endpoint sometimes returns
	})
	defer server.Close()

	refresher, accounts := newTestRefresher(t, server.URL)
	accounts.Add(&account.Record{
		Email:      "a@x.com",
		TokenState: account.TokenState{AccessToken: "T1", RefreshToken: "R1", ExpirationTime: 1},
	})

	if err := refresher.ForceRefresh(context.Background(), "a@x.com"); err != nil {
		t.Fatalf("force refresh: %v", err)
	}

	record, _ := accounts.Get("a@x.com")
	if record.TokenState.RefreshToken != "R1" {
		t.Fatalf("stored refresh token lost: %q", record.TokenState.RefreshToken)
	}
	if record.TokenState.AccessToken != "T2" {
		t.Fatalf("access token not updated: %q", record.TokenState.AccessToken)
	}
}

func TestForceRefresh_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		payload map[string]interface{}
	}{
		{name: "endpoint error", status: http.StatusInternalServerError},
		{name: "missing access token", status: http.StatusOK, payload: map[string]interface{}{"expires_in": 3600}},
		{name: "missing expiry", status: http.StatusOK, payload: map[string]interface{}{"access_token": "T2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newExchangeServer(t, tt.status, tt.payload)
			defer server.Close()

			refresher, accounts := newTestRefresher(t, server.URL)
			accounts.Add(&account.Record{
				Email:      "a@x.com",
				TokenState: account.TokenState{AccessToken: "T1", RefreshToken: "R1", ExpirationTime: 1},
			})

			err := refresher.ForceRefresh(context.Background(), "a@x.com")
			var refreshErr *RefreshError
			if !errors.As(err, &refreshErr) {
				t.Fatalf("expected RefreshError, got %v", err)
			}

			record, _ := accounts.Get("a@x.com")
			if record.TokenState.AccessToken != "T1" {
				t.Fatalf("access token changed on failed refresh: %q", record.TokenState.AccessToken)
			}
		})
	}
}

func TestForceRefresh_TransportFailure(t *testing.T) {
	refresher, accounts := newTestRefresher(t, "http://127.0.0.1:1")
	accounts.Add(&account.Record{
		Email:      "a@x.com",
		TokenState: account.TokenState{AccessToken: "T1", RefreshToken: "R1", ExpirationTime: 1},
	})

	err := refresher.ForceRefresh(context.Background(), "a@x.com")
	var refreshErr *RefreshError
	if !errors.As(err, &refreshErr) {
		t.Fatalf("expected RefreshError, got %v", err)
	}

	record, _ := accounts.Get("a@x.com")
	if record.TokenState.AccessToken != "T1" {
		t.Fatal("access token changed on transport failure")
	}
}

func TestForceRefresh_PerAccountAPIKeyOverride(t *testing.T) {
	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("key")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "T2", "refresh_token": "R2", "expires_in": 3600,
		})
	}))
	defer server.Close()

	refresher, accounts := newTestRefresher(t, server.URL)
	accounts.Add(&account.Record{
		Email:      "a@x.com",
		APIKey:     "per-account-key",
		TokenState: account.TokenState{RefreshToken: "R1", ExpirationTime: 1},
	})

	if err := refresher.ForceRefresh(context.Background(), "a@x.com"); err != nil {
		t.Fatalf("force refresh: %v", err)
	}
	if gotKey != "per-account-key" {
		t.Fatalf("expected per-account key, got %q", gotKey)
	}
}
