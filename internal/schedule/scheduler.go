// Package schedule runs the engine's periodic jobs (quote refresh, game
// settlement) on a single goroutine so they never run concurrently with
// each other.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	ErrAlreadyStarted  = errors.New("schedule: scheduler already started")
	ErrInvalidInterval = errors.New("schedule: interval must be positive")
)

// Job is one periodic task. now is the clock time of the tick.
type Job func(ctx context.Context, now time.Time)

type entry struct {
	name     string
	interval time.Duration
	fn       Job
}

type firing struct {
	entry *entry
	at    time.Time
}

// Scheduler runs registered jobs at fixed intervals. Each job runs once
// immediately on Start, then on every tick.
type Scheduler struct {
	clock Clock

	mu      sync.Mutex
	jobs    []*entry
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New creates a scheduler. A nil clock uses RealClock.
func New(clock Clock) *Scheduler {
	if clock == nil {
		clock = RealClock{}
	}
	return &Scheduler{clock: clock}
}

// Every registers fn to run every interval. Jobs must be registered before
// Start.
func (s *Scheduler) Every(name string, interval time.Duration, fn Job) error {
	if interval <= 0 {
		return fmt.Errorf("%w: %s: %s", ErrInvalidInterval, name, interval)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	s.jobs = append(s.jobs, &entry{name: name, interval: interval, fn: fn})
	return nil
}

// Start launches the scheduler. It returns once every ticker is armed.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	fire := make(chan firing)

	for _, e := range s.jobs {
		tk := s.clock.NewTicker(e.interval)
		s.wg.Add(1)
		go func(e *entry, tk Ticker) {
			defer s.wg.Done()
			defer tk.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case at := <-tk.C():
					select {
					case fire <- firing{entry: e, at: at}:
					case <-ctx.Done():
						return
					}
				}
			}
		}(e, tk)
	}

	jobs := append([]*entry(nil), s.jobs...)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for _, e := range jobs {
			if ctx.Err() != nil {
				return
			}
			s.run(ctx, e, s.clock.Now())
		}
		for {
			select {
			case <-ctx.Done():
				return
			case f := <-fire:
				s.run(ctx, f.entry, f.at)
			}
		}
	}()

	slog.Info("scheduler started", "jobs", len(jobs))
	return nil
}

// Stop cancels all jobs and waits for the running one to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	slog.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context, e *entry, at time.Time) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("scheduled job panicked", "job", e.name, "panic", r)
		}
	}()
	e.fn(ctx, at)
}
