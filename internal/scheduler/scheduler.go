// Package scheduler runs named jobs on fixed intervals.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/observability"
)

// ErrUnknownJob is returned by RunNow for a name that was never scheduled.
var ErrUnknownJob = errors.New("unknown job")

// Job is one unit of periodic work.
type Job func(ctx context.Context) error

// Ticker delivers ticks until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates a Ticker firing every d.
type TickerFactory func(d time.Duration) Ticker

type realTicker struct {
	*time.Ticker
}

func (t realTicker) C() <-chan time.Time { return t.Ticker.C }

// NewTicker wraps time.NewTicker.
func NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

type job struct {
	name     string
	interval time.Duration
	run      Job
	mu       sync.Mutex // a tick never overlaps a RunNow
}

// Scheduler owns the periodic loops of the engine.
type Scheduler struct {
	mu        sync.Mutex
	jobs      map[string]*job
	order     []string
	newTicker TickerFactory
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New creates a scheduler on real tickers.
func New() *Scheduler {
	return &Scheduler{
		jobs:      make(map[string]*job),
		newTicker: NewTicker,
	}
}

// WithTickerFactory replaces the ticker source, for tests.
func (s *Scheduler) WithTickerFactory(factory TickerFactory) *Scheduler {
	s.mu.Lock()
	s.newTicker = factory
	s.mu.Unlock()
	return s
}

// Every schedules run every interval. Jobs must be added before Start.
func (s *Scheduler) Every(name string, interval time.Duration, run Job) error {
	if name == "" {
		return errors.New("job name cannot be empty")
	}
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}
	if run == nil {
		return fmt.Errorf("job %s: function cannot be nil", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return fmt.Errorf("job %s: scheduler already started", name)
	}
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already scheduled", name)
	}

	s.jobs[name] = &job{name: name, interval: interval, run: run}
	s.order = append(s.order, name)
	return nil
}

// Start launches one loop per job. The loops end when ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for _, name := range s.order {
		j := s.jobs[name]
		ticker := s.newTicker(j.interval)

		s.wg.Add(1)
		go s.loop(ctx, j, ticker)
	}

	observability.FromContext(ctx).Info("scheduler started", observability.Int("jobs", len(s.order)))
}

func (s *Scheduler) loop(ctx context.Context, j *job, ticker Ticker) {
	defer s.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			s.execute(ctx, j)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, j *job) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	start := time.Now()
	err := j.run(ctx)
	if err != nil {
		observability.FromContext(ctx).Warn("scheduled job failed",
			observability.String("job", j.name),
			observability.Duration("elapsed", time.Since(start)),
			observability.Error(err))
		return err
	}

	observability.FromContext(ctx).Debug("scheduled job completed",
		observability.String("job", j.name),
		observability.Duration("elapsed", time.Since(start)))
	return nil
}

// Stop ends every loop and waits for running jobs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
}

// RunNow runs a job immediately and returns its error.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %s: %w", name, ErrUnknownJob)
	}
	return s.execute(ctx, j)
}
