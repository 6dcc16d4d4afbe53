// Package supervisor runs ingest jobs on a bounded worker pool and tracks
// their lifecycle so a caller can poll status or request cancellation
// without holding a reference to the goroutine doing the work.
package supervisor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/alitto/pond"
	"github.com/rs/zerolog"

	"github.com/marketlake/lake/errs"
	"github.com/marketlake/lake/layout"
	"github.com/marketlake/lake/observability"
)

// Status is the lifecycle state of one task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// TaskState is a point-in-time snapshot of one enqueued task.
type TaskState struct {
	Key       string
	Kind      string
	Identity  layout.Identity
	DataType  string
	Status    Status
	Message   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Job is the unit of work a task runs. progress reports a human-readable
// status line; the job should check ctx and return promptly after it is
// cancelled.
type Job func(ctx context.Context, progress func(string)) error

type task struct {
	state  TaskState
	cancel context.CancelFunc
}

// Supervisor runs jobs on a fixed-size pond.WorkerPool and keeps an
// in-memory registry of one task per key, enforcing at most one
// pending-or-running task per key at a time.
type Supervisor struct {
	pool    *pond.WorkerPool
	log     zerolog.Logger
	metrics *observability.Metrics

	mu    sync.Mutex
	tasks map[string]*task
}

// New builds a Supervisor with a fixed pool of workers workers. m may be nil,
// in which case task metrics are not recorded.
func New(workers int, log zerolog.Logger, m *observability.Metrics) *Supervisor {
	if workers <= 0 {
		workers = 4
	}
	return &Supervisor{
		pool:    pond.New(workers, 0, pond.MinWorkers(workers)),
		log:     log.With().Str("component", "supervisor").Logger(),
		metrics: m,
		tasks:   make(map[string]*task),
	}
}

// Key builds the canonical at-most-one-running task key for an identity
// and data type: lower("exchange:market:symbol:data_type").
func Key(id layout.Identity, dataType string) string {
	return strings.ToLower(fmt.Sprintf("%s:%s:%s:%s", id.Exchange, id.Market, id.Symbol, dataType))
}

// Enqueue submits job under key. It returns errs.ErrAlreadyRunning if a
// pending or running task is already registered under the same key.
func (s *Supervisor) Enqueue(key, kind string, id layout.Identity, dataType string, job Job) error {
	s.mu.Lock()
	if existing, ok := s.tasks[key]; ok {
		if existing.state.Status == StatusPending || existing.state.Status == StatusRunning {
			s.mu.Unlock()
			return errs.Wrap(errs.ErrAlreadyRunning, "task %s", key)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now().UTC()
	t := &task{
		state: TaskState{
			Key: key, Kind: kind, Identity: id, DataType: dataType,
			Status: StatusPending, CreatedAt: now, UpdatedAt: now,
		},
		cancel: cancel,
	}
	s.tasks[key] = t
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.SupervisorQueueDepth.WithLabelValues(string(StatusPending)).Inc()
	}

	s.pool.Submit(func() {
		s.setStatus(key, StatusRunning, "")

		progress := func(msg string) { s.setMessage(key, msg) }
		err := job(ctx, progress)

		switch {
		case ctx.Err() != nil:
			s.setStatus(key, StatusFailed, "cancelled")
		case err != nil:
			s.setStatus(key, StatusFailed, err.Error())
			s.log.Error().Str("key", key).Err(err).Msg("task failed")
		default:
			s.setStatus(key, StatusCompleted, "")
		}

		if s.metrics != nil {
			final, _ := s.Get(key)
			s.metrics.SupervisorTasksTotal.WithLabelValues(string(final.Status)).Inc()
			s.metrics.SupervisorQueueDepth.WithLabelValues(string(StatusRunning)).Dec()
		}
	})

	return nil
}

// Cancel signals the task at key to stop at its next safe point. The task
// transitions to failed with message "cancelled" once the job observes the
// cancellation; Cancel itself does not block waiting for that.
func (s *Supervisor) Cancel(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[key]
	if !ok {
		return errs.Wrap(errs.ErrNotFound, "task %s", key)
	}
	if t.state.Status != StatusPending && t.state.Status != StatusRunning {
		return errs.Wrap(errs.ErrNotFound, "task %s is not active", key)
	}
	t.cancel()
	return nil
}

// Status returns a snapshot of every task the supervisor has ever seen,
// keyed by task key.
func (s *Supervisor) Status() map[string]TaskState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]TaskState, len(s.tasks))
	for k, t := range s.tasks {
		out[k] = t.state
	}
	return out
}

// Get returns the snapshot for a single key.
func (s *Supervisor) Get(key string) (TaskState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[key]
	if !ok {
		return TaskState{}, false
	}
	return t.state, true
}

// Stop shuts the pool down and waits for every queued and running task to
// run to completion; it does not cancel them. Intended for graceful process
// shutdown.
func (s *Supervisor) Stop() {
	s.pool.StopAndWait()
}

func (s *Supervisor) setStatus(key string, status Status, message string) {
	s.mu.Lock()
	t, ok := s.tasks[key]
	if !ok {
		s.mu.Unlock()
		return
	}
	prev := t.state.Status
	t.state.Status = status
	t.state.Message = message
	t.state.UpdatedAt = time.Now().UTC()
	s.mu.Unlock()

	if s.metrics != nil && status == StatusRunning && prev == StatusPending {
		s.metrics.SupervisorQueueDepth.WithLabelValues(string(StatusPending)).Dec()
		s.metrics.SupervisorQueueDepth.WithLabelValues(string(StatusRunning)).Inc()
	}
}

func (s *Supervisor) setMessage(key, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[key]
	if !ok {
		return
	}
	t.state.Message = message
	t.state.UpdatedAt = time.Now().UTC()
}
