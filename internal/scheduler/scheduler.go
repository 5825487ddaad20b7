// Package scheduler triggers the pipeline on a fixed interval.
package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/aparm539/nwHacks2026/internal/pipeline"
)

// Runner runs one pipeline pass.
type Runner interface {
	Run(ctx context.Context, opts pipeline.Options) *pipeline.Result
}

// Scheduler runs the pipeline once on start and then on every tick.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	opts     pipeline.Options
}

// New creates a Scheduler. A non-positive interval defaults to 15 minutes.
func New(runner Runner, interval time.Duration, opts pipeline.Options) *Scheduler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Scheduler{runner: runner, interval: interval, opts: opts}
}

// Run blocks until ctx is cancelled. Passes never overlap.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Printf("Scheduler started, interval %s", s.interval)
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("Scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	r := s.runner.Run(ctx, s.opts)
	for _, step := range r.Steps {
		if step.Err != nil {
			log.Printf("Scheduled %s failed: %v", step.Name, step.Err)
			continue
		}
		log.Printf("Scheduled %s: %s", step.Name, step.Summary)
	}
}
