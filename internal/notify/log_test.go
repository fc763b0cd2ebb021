package notify

import (
	"fmt"
	"testing"
	"time"

	"github.com/RayYiHang/warp-surge/internal/kv"
)

func TestAppend_NeverExceedsCap(t *testing.T) {
	logbook := NewLog(kv.NewMemoryStore(), 10)

	for i := 0; i < 25; i++ {
		err := logbook.Append(Notification{
			Type:    TypePotentialIssue,
			Email:   "a@x.com",
			Message: fmt.Sprintf("event %d", i),
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	all := logbook.Recent(100)
	if len(all) != 10 {
		t.Fatalf("expected cap of 10, got %d entries", len(all))
	}
	// Trim keeps the most recent entries.
	if all[0].Message != "event 24" {
		t.Fatalf("newest entry wrong: %s", all[0].Message)
	}
	if all[9].Message != "event 15" {
		t.Fatalf("oldest surviving entry wrong: %s", all[9].Message)
	}
}

func TestRecent_NewestFirst(t *testing.T) {
	logbook := NewLog(kv.NewMemoryStore(), 100)
	base := time.UnixMilli(1700000000000)
	for i := 0; i < 5; i++ {
		stamp := base.Add(time.Duration(i) * time.Second)
		logbook.now = func() time.Time { return stamp }
		logbook.Append(Notification{Type: TypeRateLimit, Message: fmt.Sprintf("event %d", i)})
	}

	recent := logbook.Recent(3)
	if len(recent) != 3 {
		t.Fatalf("expected 3, got %d", len(recent))
	}
	for i, want := range []string{"event 4", "event 3", "event 2"} {
		if recent[i].Message != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, recent[i].Message)
		}
		if i > 0 && recent[i].Timestamp > recent[i-1].Timestamp {
			t.Fatal("not in reverse chronological order")
		}
	}
}

func TestStats_WindowAndRate(t *testing.T) {
	logbook := NewLog(kv.NewMemoryStore(), 100)
	now := time.UnixMilli(1700000000000)
	logbook.now = func() time.Time { return now }

	success, failure := true, false
	inWindow := now.UnixMilli() - time.Hour.Milliseconds()
	outOfWindow := now.UnixMilli() - (25 * time.Hour).Milliseconds()

	logbook.Append(Notification{Type: TypeTokenRefresh, Success: &success, Timestamp: inWindow})
	logbook.Append(Notification{Type: TypeTokenRefresh, Success: &success, Timestamp: inWindow})
	logbook.Append(Notification{Type: TypeTokenRefresh, Success: &failure, Timestamp: inWindow})
	logbook.Append(Notification{Type: TypeTokenRefresh, Success: &success, Timestamp: outOfWindow})
	logbook.Append(Notification{Type: TypeRateLimit, Timestamp: inWindow})

	stats := logbook.Stats(24 * time.Hour)
	if stats.Total != 3 || stats.Success != 2 || stats.Failure != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.SuccessRate != "66.7%" {
		t.Fatalf("unexpected success rate: %s", stats.SuccessRate)
	}
}

func TestStats_EmptyWindow(t *testing.T) {
	logbook := NewLog(kv.NewMemoryStore(), 100)
	stats := logbook.Stats(24 * time.Hour)
	if stats.Total != 0 || stats.SuccessRate != "N/A" {
		t.Fatalf("expected empty stats with N/A rate, got %+v", stats)
	}
}

type countingRecorder struct {
	counts map[string]int
}

func (c *countingRecorder) RecordNotification(notificationType string) {
	c.counts[notificationType]++
}

func TestAppend_NotifiesRecorder(t *testing.T) {
	logbook := NewLog(kv.NewMemoryStore(), 100)
	recorder := &countingRecorder{counts: map[string]int{}}
	logbook.SetRecorder(recorder)

	logbook.TokenRefresh("a@x.com", true, "token refreshed")
	logbook.Append(Notification{Type: TypeConfirmedBan})

	if recorder.counts[TypeTokenRefresh] != 1 || recorder.counts[TypeConfirmedBan] != 1 {
		t.Fatalf("recorder not notified: %v", recorder.counts)
	}
}
