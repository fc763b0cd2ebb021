// Package notify keeps the bounded, append-only record of health and
// refresh events consumed by the stats endpoints.
package notify

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/RayYiHang/warp-surge/internal/kv"
)

// Notification types.
const (
	TypeTokenRefresh   = "token_refresh"
	TypeAccountBanned  = "account_banned"
	TypeRateLimit      = "rate_limit"
	TypeConfirmedBan   = "confirmed_ban"
	TypePotentialIssue = "potential_issue"
	TypeGraphQLPermErr = "graphql_permission_error"
)

// DefaultCap bounds the persisted log. The source kept two independent
// caps (100 general, 50 refresh); they are unified here.
const DefaultCap = 100

// Notification is one health or refresh event.
type Notification struct {
	Type       string `json:"type"`
	Email      string `json:"email"`
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode,omitempty"`
	Success    *bool  `json:"success,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

// RefreshStats aggregates token_refresh outcomes over a trailing window.
type RefreshStats struct {
	Total       int    `json:"totalRefreshes"`
	Success     int    `json:"successfulRefreshes"`
	Failure     int    `json:"failedRefreshes"`
	SuccessRate string `json:"successRate"`
}

// Recorder observes appended notifications; satisfied by the metrics
// collector.
type Recorder interface {
	RecordNotification(notificationType string)
}

// Log is the bounded persisted notification sequence.
type Log struct {
	storage  kv.Store
	cap      int
	mu       sync.Mutex
	now      func() time.Time
	recorder Recorder
}

func NewLog(storage kv.Store, capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCap
	}
	return &Log{storage: storage, cap: capacity, now: time.Now}
}

// SetRecorder attaches a metrics recorder. Optional.
func (l *Log) SetRecorder(r Recorder) { l.recorder = r }

func (l *Log) load() []Notification {
	raw, ok, err := l.storage.Read(kv.KeyNotifications)
	if err != nil || !ok || raw == "" {
		return nil
	}
	var notifications []Notification
	if err := json.Unmarshal([]byte(raw), &notifications); err != nil {
		log.Printf("⚠️ Corrupt notification log, starting empty: %v", err)
		return nil
	}
	return notifications
}

func (l *Log) save(notifications []Notification) error {
	data, err := json.Marshal(notifications)
	if err != nil {
		return err
	}
	return l.storage.Write(kv.KeyNotifications, string(data))
}

// Append pushes a notification and trims the log to its cap, keeping
// the most recent entries.
func (l *Log) Append(n Notification) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n.Timestamp == 0 {
		n.Timestamp = l.now().UnixMilli()
	}

	notifications := append(l.load(), n)
	if len(notifications) > l.cap {
		notifications = notifications[len(notifications)-l.cap:]
	}
	if err := l.save(notifications); err != nil {
		return err
	}

	if l.recorder != nil {
		l.recorder.RecordNotification(n.Type)
	}
	return nil
}

// TokenRefresh appends a token_refresh outcome.
func (l *Log) TokenRefresh(email string, success bool, message string) error {
	return l.Append(Notification{
		Type:    TypeTokenRefresh,
		Email:   email,
		Message: message,
		Success: &success,
	})
}

// Recent returns up to limit notifications, newest first.
func (l *Log) Recent(limit int) []Notification {
	l.mu.Lock()
	notifications := l.load()
	l.mu.Unlock()

	if limit <= 0 || limit > len(notifications) {
		limit = len(notifications)
	}

	recent := make([]Notification, 0, limit)
	for i := len(notifications) - 1; i >= 0 && len(recent) < limit; i-- {
		recent = append(recent, notifications[i])
	}
	return recent
}

// Stats aggregates token_refresh notifications within the trailing
// window from now.
func (l *Log) Stats(window time.Duration) RefreshStats {
	l.mu.Lock()
	notifications := l.load()
	now := l.now().UnixMilli()
	l.mu.Unlock()

	stats := RefreshStats{SuccessRate: "N/A"}
	cutoff := now - window.Milliseconds()
	for _, n := range notifications {
		if n.Type != TypeTokenRefresh || n.Timestamp < cutoff {
			continue
		}
		stats.Total++
		if n.Success != nil && *n.Success {
			stats.Success++
		} else {
			stats.Failure++
		}
	}
	if stats.Total > 0 {
		stats.SuccessRate = fmt.Sprintf("%.1f%%", float64(stats.Success)/float64(stats.Total)*100)
	}
	return stats
}
