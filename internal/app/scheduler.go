package service

import (
	"context"
	"sync"
	"time"

	"github.com/okian/civicwatch/pkg/logger"
)

// Runner runs one pipeline cycle.
type Runner interface {
	RunPipeline(ctx context.Context, sourceIDs ...string) (*PipelineRun, error)
}

// Scheduler runs cycles on an interval and remembers the latest one. Cycles
// never overlap: a manual trigger waits for a scheduled cycle and vice versa.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	logger   logger.Logger

	runMu sync.Mutex

	mu   sync.RWMutex
	last *PipelineRun
}

// NewScheduler returns a scheduler running r every interval. A non-positive
// interval means a single cycle per Run call.
func NewScheduler(r Runner, interval time.Duration, l logger.Logger) *Scheduler {
	if l == nil {
		l = logger.Nop()
	}
	return &Scheduler{runner: r, interval: interval, logger: l}
}

// Run performs a cycle immediately and then one per interval until ctx ends.
func (s *Scheduler) Run(ctx context.Context) {
	s.cycle(ctx)
	if s.interval <= 0 {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "scheduler stopped")
			return
		case <-ticker.C:
			s.cycle(ctx)
		}
	}
}

func (s *Scheduler) cycle(ctx context.Context) {
	if _, err := s.Trigger(ctx); err != nil {
		s.logger.Error(ctx, "pipeline run failed", logger.Error(err))
	}
}

// Trigger runs one cycle now, over all sources or the named ones.
func (s *Scheduler) Trigger(ctx context.Context, sourceIDs ...string) (*PipelineRun, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	run, err := s.runner.RunPipeline(ctx, sourceIDs...)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.last = run
	s.mu.Unlock()
	return run, nil
}

// Last returns the most recent completed run.
func (s *Scheduler) Last() (*PipelineRun, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.last != nil
}
