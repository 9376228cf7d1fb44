package jobs

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// DayRebuilder recomputes one survey day of rollups.
type DayRebuilder interface {
	RebuildDay(ctx context.Context, surveyID, dateKey string) error
}

type rebuildJob struct {
	surveyID string
	dateKey  string
}

func (j rebuildJob) key() string { return j.surveyID + "/" + j.dateKey }

// RebuildQueue is a bounded, deduplicating queue of (survey, day) rebuilds
// drained by a single worker. It implements services.RebuildScheduler.
//
// A job already waiting is not queued twice. When the buffer is full the
// job is dropped with a warning and left to the scheduled repair job.
type RebuildQueue struct {
	r  DayRebuilder
	ch chan rebuildJob

	mu      sync.Mutex
	pending map[string]struct{}
	dropped int
}

// NewRebuildQueue returns a queue with room for size waiting jobs.
func NewRebuildQueue(r DayRebuilder, size int) *RebuildQueue {
	if size <= 0 {
		size = 1024
	}
	return &RebuildQueue{
		r:       r,
		ch:      make(chan rebuildJob, size),
		pending: make(map[string]struct{}),
	}
}

// Schedule enqueues a rebuild without blocking.
func (q *RebuildQueue) Schedule(surveyID, dateKey string) {
	j := rebuildJob{surveyID: surveyID, dateKey: dateKey}
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.pending[j.key()]; ok {
		return
	}
	select {
	case q.ch <- j:
		q.pending[j.key()] = struct{}{}
	default:
		q.dropped++
		log.Warn().Str("survey_id", surveyID).Str("date", dateKey).Msg("rebuild queue full; deferring to repair job")
	}
}

// Pending returns the number of waiting jobs.
func (q *RebuildQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Dropped returns how many jobs were rejected because the queue was full.
func (q *RebuildQueue) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Run drains the queue until ctx is cancelled.
func (q *RebuildQueue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-q.ch:
			q.process(ctx, j)
		}
	}
}

func (q *RebuildQueue) process(ctx context.Context, j rebuildJob) {
	// A submission arriving mid-rebuild queues another pass over the day.
	q.mu.Lock()
	delete(q.pending, j.key())
	q.mu.Unlock()

	if err := q.r.RebuildDay(ctx, j.surveyID, j.dateKey); err != nil {
		log.Error().Err(err).Str("survey_id", j.surveyID).Str("date", j.dateKey).Msg("analytics rebuild failed")
	}
}
