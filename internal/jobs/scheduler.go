// Package jobs runs the periodic maintenance work of the service on
// fixed-interval tickers: idle and abandon sweeps, outbox flushes, analytics
// repair and idempotency purging. It also hosts the in-process rebuild queue
// that submissions use to refresh a day's rollups.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Job is one named unit of periodic work. Run reports how many items it
// processed.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) (int, error)
}

// Scheduler runs each Job on its own ticker until the context is cancelled.
type Scheduler struct {
	jobs []Job
	wg   sync.WaitGroup
}

// NewScheduler returns a Scheduler for jobs. Jobs with a non-positive
// interval or nil Run are disabled.
func NewScheduler(jobs ...Job) *Scheduler {
	s := &Scheduler{}
	for _, j := range jobs {
		if j.Interval <= 0 || j.Run == nil {
			log.Info().Str("job", j.Name).Msg("job disabled")
			continue
		}
		s.jobs = append(s.jobs, j)
	}
	return s
}

// Jobs returns the enabled jobs.
func (s *Scheduler) Jobs() []Job { return s.jobs }

// Start launches one goroutine per job. It returns immediately; use Wait to
// block until all loops exit after ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, j)
	}
}

// Wait blocks until every job loop has returned.
func (s *Scheduler) Wait() { s.wg.Wait() }

func (s *Scheduler) loop(ctx context.Context, j Job) {
	defer s.wg.Done()
	t := time.NewTicker(j.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			RunOnce(ctx, j)
		}
	}
}

// RunOnce executes j a single time and logs the outcome. A panic inside the
// job is logged and swallowed so the ticker keeps running.
func RunOnce(ctx context.Context, j Job) (n int, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("job", j.Name).Interface("panic", r).Msg("job panicked")
		}
	}()
	n, err = j.Run(ctx)
	ev := log.Info()
	if err != nil {
		ev = log.Error().Err(err)
	}
	ev.Str("job", j.Name).
		Int("processed", n).
		Dur("duration", time.Since(start)).
		Msg("job tick")
	return n, err
}
