// Package indexer implements C7: the per-location debounced container
// indexer that diffs incoming inventory snapshots against C6 and drives
// C2 through C6.
package indexer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kitsune-search/containerindex/internal/metadata"
	"github.com/kitsune-search/containerindex/internal/serialize"
)

// Job is one pending indexing request: a snapshot of a location's
// container(s) and the items currently observed inside them.
type Job struct {
	World         string
	Coords        []metadata.BlockCoord
	ContainerType string
	Items         []serialize.SerializedItem
}

// locationState tracks the debounce timer and in-flight execution state
// for a single location key.
type locationState struct {
	timer   *time.Timer
	job     Job
	running bool
	queued  *Job // set when a new call arrives while running
}

// Scheduler coalesces schedule_index calls per location, grounded on the
// teacher's watcher.Debouncer timer-reset shape (internal/watcher/debouncer.go)
// but generalized from a shared batching channel to at-most-one-concurrent-job
// semantics per location key (§4.7).
type Scheduler struct {
	logger   *slog.Logger
	window   time.Duration
	run      func(ctx context.Context, job Job)

	mu    sync.Mutex
	state map[string]*locationState

	stopped bool
}

// NewScheduler constructs a Scheduler that invokes run once quiescence is
// reached for each location key.
func NewScheduler(window time.Duration, run func(ctx context.Context, job Job), logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		logger: logger,
		window: window,
		run:    run,
		state:  make(map[string]*locationState),
	}
}

// ScheduleIndex cancels any pending job for locationKey and schedules job
// to run after the debounce window (§4.7, invariant P6).
func (s *Scheduler) ScheduleIndex(locationKey string, job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	st, ok := s.state[locationKey]
	if !ok {
		st = &locationState{}
		s.state[locationKey] = st
	}

	if st.timer != nil {
		st.timer.Stop()
	}
	st.job = job

	st.timer = time.AfterFunc(s.window, func() {
		s.fire(locationKey)
	})
}

// fire runs when a debounce window elapses. If a job for this key is
// already executing, the new job is queued to run immediately after the
// current one finishes instead of running concurrently.
func (s *Scheduler) fire(locationKey string) {
	s.mu.Lock()
	st, ok := s.state[locationKey]
	if !ok {
		s.mu.Unlock()
		return
	}
	if st.running {
		queued := st.job
		st.queued = &queued
		s.mu.Unlock()
		return
	}
	st.running = true
	job := st.job
	s.mu.Unlock()

	s.runAndDrain(locationKey, job)
}

func (s *Scheduler) runAndDrain(locationKey string, job Job) {
	for {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("indexing job panicked", slog.Any("recover", r), slog.String("location", locationKey))
				}
			}()
			s.run(context.Background(), job)
		}()

		s.mu.Lock()
		st, ok := s.state[locationKey]
		if !ok || st.queued == nil {
			if ok {
				st.running = false
			}
			s.mu.Unlock()
			return
		}
		job = *st.queued
		st.queued = nil
		s.mu.Unlock()
	}
}

// Shutdown stops all pending timers. Jobs already running are allowed to
// finish; queued follow-ups are dropped.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for _, st := range s.state {
		if st.timer != nil {
			st.timer.Stop()
		}
		st.queued = nil
	}
}
