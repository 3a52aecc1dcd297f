package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hyperengineering/caseload/internal/store"
	"github.com/hyperengineering/caseload/internal/types"
)

type mockPurgeStore struct {
	mu       sync.Mutex
	cutoffs  []time.Time
	purged   int64
	purgeErr error
}

func (m *mockPurgeStore) PurgeDeleted(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cutoffs = append(m.cutoffs, before)
	return m.purged, m.purgeErr
}

func (m *mockPurgeStore) getCalls() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time(nil), m.cutoffs...)
}

func TestPurgeWorker_RunsOnInterval(t *testing.T) {
	s := &mockPurgeStore{purged: 2}
	w := NewPurgeWorker(s, 50*time.Millisecond, time.Hour)

	stop := runWorker(w.Run)
	time.Sleep(130 * time.Millisecond)
	stop()

	if calls := s.getCalls(); len(calls) < 2 {
		t.Errorf("Expected at least 2 purge calls, got %d", len(calls))
	}
}

func TestPurgeWorker_DoesNotRunImmediately(t *testing.T) {
	s := &mockPurgeStore{}
	w := NewPurgeWorker(s, time.Hour, time.Hour)

	stop := runWorker(w.Run)
	time.Sleep(30 * time.Millisecond)
	stop()

	if calls := s.getCalls(); len(calls) != 0 {
		t.Errorf("Expected 0 purge calls (does not run immediately), got %d", len(calls))
	}
}

func TestPurgeWorker_GracefulShutdown(t *testing.T) {
	w := NewPurgeWorker(&mockPurgeStore{}, time.Hour, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Error("Worker did not stop within 1 second")
	}
}

func TestPurgeWorker_HandlesStoreError(t *testing.T) {
	s := &mockPurgeStore{purgeErr: errors.New("database error")}
	w := NewPurgeWorker(s, 50*time.Millisecond, time.Hour)

	stop := runWorker(w.Run)
	// Wait for at least 2 ticks (should continue despite errors)
	time.Sleep(120 * time.Millisecond)
	stop()

	if calls := s.getCalls(); len(calls) < 2 {
		t.Errorf("Expected at least 2 purge calls (continues on error), got %d", len(calls))
	}
}

func TestPurgeWorker_CutoffIsNowMinusRetention(t *testing.T) {
	s := &mockPurgeStore{purged: 4}
	w := NewPurgeWorker(s, time.Hour, 72*time.Hour)
	fixed := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return fixed }

	if got := w.RunOnce(context.Background()); got != 4 {
		t.Errorf("RunOnce = %d, want 4", got)
	}
	calls := s.getCalls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	if want := fixed.Add(-72 * time.Hour); !calls[0].Equal(want) {
		t.Errorf("cutoff = %v, want %v", calls[0], want)
	}
}

func TestPurgeWorker_RealStore(t *testing.T) {
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	ctx := context.Background()

	gone, err := s.CreateClient(ctx, types.ClientFields{ChildFirstName: "Gone"})
	if err != nil {
		t.Fatal(err)
	}
	kept, err := s.CreateClient(ctx, types.ClientFields{ChildFirstName: "Kept"})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteClient(ctx, gone.ID); err != nil {
		t.Fatal(err)
	}

	// Zero retention purges everything already deleted.
	w := NewPurgeWorker(s, time.Hour, 0)
	w.now = func() time.Time { return time.Now().Add(time.Second) }
	if got := w.RunOnce(ctx); got != 1 {
		t.Errorf("purged = %d, want 1", got)
	}

	stats, err := s.GetStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.ClientCount != 1 || stats.DeletedCount != 0 {
		t.Errorf("stats = %+v, want 1 live 0 deleted", stats)
	}
	if _, err := s.GetClient(ctx, kept.ID); err != nil {
		t.Errorf("kept client: %v", err)
	}
}
