// Package scheduler re-runs the alarm check and the delivery workers
// at a fixed poll interval, or once in one-shot mode. It owns no
// state; everything lives in the store.
package scheduler

import (
	"context"
	"errors"
	"log"
	"time"
)

// Runner is one pipeline stage the scheduler drives.
type Runner interface {
	Name() string
	RunOnce(ctx context.Context) error
}

// Scheduler drives a set of runners.
type Scheduler struct {
	runners []Runner
	poll    time.Duration
	logger  *log.Logger
}

// New constructs a scheduler. A zero poll means one-shot only.
func New(runners []Runner, poll time.Duration, logger *log.Logger) (*Scheduler, error) {
	if len(runners) == 0 {
		return nil, errors.New("scheduler: no runners")
	}
	for _, runner := range runners {
		if runner == nil {
			return nil, errors.New("scheduler: nil runner")
		}
	}
	return &Scheduler{runners: runners, poll: poll, logger: logger}, nil
}

// RunOnce runs every pipeline stage once, in order. Stage errors are
// logged and do not stop the remaining stages; the first error is
// returned for the one-shot exit code.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if s == nil {
		return errors.New("scheduler: nil receiver")
	}
	var first error
	for _, runner := range s.runners {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := runner.RunOnce(ctx); err != nil {
			if s.logger != nil {
				s.logger.Printf("scheduler: %s error: %v", runner.Name(), err)
			}
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// Start runs the polling loop until ctx is cancelled. The first pass
// happens immediately.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil || s.poll <= 0 {
		return
	}
	_ = s.RunOnce(ctx)
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.RunOnce(ctx)
		}
	}
}
