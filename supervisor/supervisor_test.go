package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/marketlake/lake/errs"
	"github.com/marketlake/lake/layout"
)

func waitForStatus(t *testing.T, s *Supervisor, key string, want Status, timeout time.Duration) TaskState {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if st, ok := s.Get(key); ok && st.Status == want {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s did not reach status %s in time", key, want)
	return TaskState{}
}

func TestEnqueueRunsJobToCompletion(t *testing.T) {
	s := New(2, zerolog.Nop(), nil)
	id := layout.Identity{Exchange: "BINANCE", Market: "SPOT", Symbol: "BTCUSDT"}
	key := Key(id, "raw")

	done := make(chan struct{})
	err := s.Enqueue(key, "download", id, "raw", func(ctx context.Context, progress func(string)) error {
		progress("Fetched 10 rows; cursor=x")
		close(done)
		return nil
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	<-done
	st := waitForStatus(t, s, key, StatusCompleted, time.Second)
	if st.Kind != "download" {
		t.Fatalf("expected kind download, got %s", st.Kind)
	}
}

func TestEnqueueRejectsDuplicateKeyWhileRunning(t *testing.T) {
	s := New(1, zerolog.Nop(), nil)
	id := layout.Identity{Exchange: "BINANCE", Market: "SPOT", Symbol: "BTCUSDT"}
	key := Key(id, "raw")

	block := make(chan struct{})
	started := make(chan struct{})
	err := s.Enqueue(key, "download", id, "raw", func(ctx context.Context, progress func(string)) error {
		close(started)
		<-block
		return nil
	})
	if err != nil {
		t.Fatalf("first Enqueue: %v", err)
	}
	<-started

	err = s.Enqueue(key, "download", id, "raw", func(ctx context.Context, progress func(string)) error { return nil })
	if !errors.Is(err, errs.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	close(block)
}

func TestCancelStopsJobAndMarksFailed(t *testing.T) {
	s := New(1, zerolog.Nop(), nil)
	id := layout.Identity{Exchange: "BINANCE", Market: "SPOT", Symbol: "ETHUSDT"}
	key := Key(id, "raw")

	started := make(chan struct{})
	err := s.Enqueue(key, "download", id, "raw", func(ctx context.Context, progress func(string)) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	<-started

	if err := s.Cancel(key); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	st := waitForStatus(t, s, key, StatusFailed, time.Second)
	if st.Message != "cancelled" {
		t.Fatalf("expected message 'cancelled', got %q", st.Message)
	}
}

func TestCancelUnknownKeyReturnsNotFound(t *testing.T) {
	s := New(1, zerolog.Nop(), nil)
	if err := s.Cancel("nope"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStatusSnapshotIsIndependentOfLiveState(t *testing.T) {
	s := New(1, zerolog.Nop(), nil)
	id := layout.Identity{Exchange: "BINANCE", Market: "SPOT", Symbol: "BTCUSDT"}
	key := Key(id, "raw")

	done := make(chan struct{})
	if err := s.Enqueue(key, "download", id, "raw", func(ctx context.Context, progress func(string)) error {
		close(done)
		return nil
	}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	<-done
	waitForStatus(t, s, key, StatusCompleted, time.Second)

	snap := s.Status()
	st, ok := snap[key]
	if !ok {
		t.Fatalf("expected snapshot to contain %s", key)
	}
	if st.Status != StatusCompleted {
		t.Fatalf("expected completed in snapshot, got %s", st.Status)
	}

	st.Message = "mutated"
	snap[key] = st
	if live, _ := s.Get(key); live.Message == "mutated" {
		t.Fatalf("mutating the snapshot changed the live task state")
	}
}

func TestEnqueueAllowsRetryAfterCompletion(t *testing.T) {
	s := New(1, zerolog.Nop(), nil)
	id := layout.Identity{Exchange: "BINANCE", Market: "SPOT", Symbol: "BTCUSDT"}
	key := Key(id, "raw")

	first := make(chan struct{})
	if err := s.Enqueue(key, "download", id, "raw", func(ctx context.Context, progress func(string)) error {
		close(first)
		return nil
	}); err != nil {
		t.Fatalf("first Enqueue: %v", err)
	}
	<-first
	waitForStatus(t, s, key, StatusCompleted, time.Second)

	second := make(chan struct{})
	err := s.Enqueue(key, "download", id, "raw", func(ctx context.Context, progress func(string)) error {
		close(second)
		return nil
	})
	if err != nil {
		t.Fatalf("second Enqueue after completion should succeed, got %v", err)
	}
	<-second
}
