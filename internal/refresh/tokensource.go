package refresh

import (
	"context"
	"errors"
	"time"

	"github.com/RayYiHang/warp-surge/internal/account"
	"golang.org/x/oauth2"
)

// ActiveTokenSource exposes the active identity's credentials as an
// oauth2.TokenSource for the request-interception hook. A stale token
// is refreshed synchronously before being handed out.
type ActiveTokenSource struct {
	accounts  *account.Store
	refresher *Refresher
}

var _ oauth2.TokenSource = (*ActiveTokenSource)(nil)

func NewActiveTokenSource(accounts *account.Store, refresher *Refresher) *ActiveTokenSource {
	return &ActiveTokenSource{accounts: accounts, refresher: refresher}
}

func (ts *ActiveTokenSource) Token() (*oauth2.Token, error) {
	record, err := ts.accounts.GetActive()
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, errors.New("no active account")
	}

	if IsStale(record.TokenState, time.Now(), ts.refresher.Threshold()) {
		// Best effort: an expired-but-present token is still injected
		// when the exchange fails, matching the interception path's
		// never-block contract.
		if _, err := ts.refresher.Refresh(context.Background(), record.Email); err == nil {
			if fresh, err := ts.accounts.Get(record.Email); err == nil {
				record = fresh
			}
		}
	}

	if record.TokenState.AccessToken == "" {
		return nil, errors.New("active account has no access token")
	}
	return &oauth2.Token{
		AccessToken: record.TokenState.AccessToken,
		TokenType:   "Bearer",
		Expiry:      time.UnixMilli(record.TokenState.ExpirationTime),
	}, nil
}
