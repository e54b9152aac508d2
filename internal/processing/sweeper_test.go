package processing

import (
	"context"
	"errors"
	"testing"
	"time"
)

type staleRecorder struct {
	cutoffs []time.Time
	reasons []string
	ids     []string
	err     error
}

func (s *staleRecorder) FailStale(ctx context.Context, olderThan time.Time, reason string) ([]string, error) {
	s.cutoffs = append(s.cutoffs, olderThan)
	s.reasons = append(s.reasons, reason)
	return s.ids, s.err
}

func TestSweeper_Sweep(t *testing.T) {
	store := &staleRecorder{ids: []string{"a", "b"}}
	sweeper := NewSweeper(store, 30*time.Minute, time.Minute)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	sweeper.now = func() time.Time { return now }

	ids := sweeper.Sweep(context.Background())
	if len(ids) != 2 {
		t.Fatalf("Expected 2 ids, got %v", ids)
	}
	if want := now.Add(-30 * time.Minute); !store.cutoffs[0].Equal(want) {
		t.Fatalf("Expected cutoff %v, got %v", want, store.cutoffs[0])
	}
	if store.reasons[0] != StaleReason {
		t.Fatalf("Unexpected reason %q", store.reasons[0])
	}

	store.err = errors.New("db down")
	if ids := sweeper.Sweep(context.Background()); ids != nil {
		t.Fatalf("Expected nil on error, got %v", ids)
	}
}

func TestSweeper_StartStopsOnCancel(t *testing.T) {
	store := &staleRecorder{}
	sweeper := NewSweeper(store, time.Minute, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Sweeper did not stop")
	}
	if len(store.cutoffs) != 1 {
		t.Fatalf("Expected one sweep on startup, got %d", len(store.cutoffs))
	}
}
