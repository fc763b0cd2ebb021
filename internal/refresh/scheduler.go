package refresh

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/RayYiHang/warp-surge/internal/account"
	"github.com/RayYiHang/warp-surge/internal/notify"
)

// DefaultInterval is the sweep cadence.
const DefaultInterval = 5 * time.Minute

// Metrics observes refresh outcomes; satisfied by the metrics collector.
type Metrics interface {
	RecordRefreshSuccess()
	RecordRefreshFailure()
}

// Scheduler runs the recurring sweep over all accounts. Sweeps dispatch
// stale refreshes fire-and-forget; ForceRefreshAll awaits every outcome.
type Scheduler struct {
	refresher *Refresher
	accounts  *account.Store
	logbook   *notify.Log
	interval  time.Duration
	metrics   Metrics

	mu      sync.Mutex
	running bool
	stop    chan struct{}
}

func NewScheduler(refresher *Refresher, accounts *account.Store, logbook *notify.Log, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		refresher: refresher,
		accounts:  accounts,
		logbook:   logbook,
		interval:  interval,
	}
}

// SetMetrics attaches a metrics recorder. Optional.
func (s *Scheduler) SetMetrics(m Metrics) { s.metrics = m }

// Start moves the scheduler to Running, performs one immediate sweep,
// and arms the recurring timer. Starting twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		log.Println("🔄 Refresh scheduler already running")
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	stop := s.stop
	s.mu.Unlock()

	log.Printf("🔄 Refresh scheduler started (interval: %s)", s.interval)

	go func() {
		s.Sweep(context.Background())

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep(context.Background())
			case <-stop:
				return
			}
		}
	}()
}

// Stop cancels the timer. In-flight refreshes complete and write back
// normally. Stopping while stopped is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.stop)
	log.Println("🔄 Refresh scheduler stopped")
}

// Running reports the scheduler state.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Sweep snapshots the account map and dispatches a refresh for every
// stale, non-banned account without waiting for completion.
func (s *Scheduler) Sweep(ctx context.Context) {
	accounts, err := s.accounts.All()
	if err != nil {
		log.Printf("⚠️ Sweep skipped, accounts unreadable: %v", err)
		return
	}

	stale := 0
	now := time.Now()
	for email, record := range accounts {
		if record.HealthStatus == account.HealthBanned {
			continue
		}
		if !IsStale(record.TokenState, now, s.refresher.Threshold()) {
			continue
		}
		stale++
		go s.RefreshAccount(ctx, email)
	}

	if stale == 0 {
		log.Printf("🔄 Sweep: all %d account tokens still valid", len(accounts))
	} else {
		log.Printf("🔄 Sweep: refreshing %d of %d accounts", stale, len(accounts))
	}
}

// ForceRefreshAll bypasses staleness for every non-banned account and
// awaits all outcomes before returning.
func (s *Scheduler) ForceRefreshAll(ctx context.Context) error {
	accounts, err := s.accounts.All()
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for email, record := range accounts {
		if record.HealthStatus == account.HealthBanned {
			continue
		}
		wg.Add(1)
		go func(email string) {
			defer wg.Done()
			s.forceRefreshAccount(ctx, email)
		}(email)
	}
	wg.Wait()

	log.Println("🔄 Forced refresh complete")
	return nil
}

// RefreshAccount refreshes one account if stale and records the
// outcome: a token_refresh notification always, an unhealthy mark on
// failure. Safe for out-of-band callers such as the response inspector.
func (s *Scheduler) RefreshAccount(ctx context.Context, email string) {
	refreshed, err := s.refresher.Refresh(ctx, email)
	if err == nil && !refreshed {
		s.record(email, true, "token still valid")
		return
	}
	s.recordOutcome(email, err)
}

func (s *Scheduler) forceRefreshAccount(ctx context.Context, email string) {
	s.recordOutcome(email, s.refresher.ForceRefresh(ctx, email))
}

func (s *Scheduler) recordOutcome(email string, err error) {
	if err == nil {
		s.record(email, true, "token refreshed")
		if s.metrics != nil {
			s.metrics.RecordRefreshSuccess()
		}
		return
	}

	log.Printf("❌ Refresh failed for %s: %v", email, err)
	s.record(email, false, err.Error())
	if s.metrics != nil {
		s.metrics.RecordRefreshFailure()
	}
	if err := s.accounts.MarkHealth(email, account.HealthUnhealthy); err != nil {
		log.Printf("⚠️ Failed to mark %s unhealthy: %v", email, err)
	}
}

func (s *Scheduler) record(email string, success bool, message string) {
	if err := s.logbook.TokenRefresh(email, success, message); err != nil {
		log.Printf("⚠️ Failed to record refresh outcome for %s: %v", email, err)
	}
}
