package jobs

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-survey-backend/internal/repo"
	"github.com/tbourn/go-survey-backend/internal/services"
)

// Sweeper moves stale sessions forward.
type Sweeper interface {
	SweepIdle(ctx context.Context) (int, error)
	SweepAbandoned(ctx context.Context) (int, error)
}

// Flusher drains the analytics outbox.
type Flusher interface {
	Flush(ctx context.Context) (services.FlushReport, error)
}

// Repairer rebuilds recent analytics days.
type Repairer interface {
	RepairRecent(ctx context.Context, days int) (*services.RebuildReport, error)
}

// Intervals configures how often each maintenance job ticks. Zero disables
// a job.
type Intervals struct {
	IdleSweep        time.Duration
	AbandonSweep     time.Duration
	OutboxFlush      time.Duration
	AnalyticsRepair  time.Duration
	IdempotencyPurge time.Duration
}

// repairDays covers today and yesterday so late submissions near midnight
// land in the right day.
const repairDays = 2

// Maintenance returns the standard job set.
func Maintenance(sw Sweeper, fl Flusher, rp Repairer, db *gorm.DB, iv Intervals) []Job {
	return []Job{
		{Name: "idle_sweep", Interval: iv.IdleSweep, Run: sw.SweepIdle},
		{Name: "abandon_sweep", Interval: iv.AbandonSweep, Run: sw.SweepAbandoned},
		{Name: "outbox_flush", Interval: iv.OutboxFlush, Run: func(ctx context.Context) (int, error) {
			rep, err := fl.Flush(ctx)
			return rep.Sent + rep.Retried + rep.DeadLettered, err
		}},
		{Name: "analytics_repair", Interval: iv.AnalyticsRepair, Run: func(ctx context.Context) (int, error) {
			rep, err := rp.RepairRecent(ctx, repairDays)
			if rep == nil {
				return 0, err
			}
			return rep.Rebuilt, err
		}},
		{Name: "idempotency_purge", Interval: iv.IdempotencyPurge, Run: func(ctx context.Context) (int, error) {
			n, err := repo.PurgeExpiredIdempotency(ctx, db, time.Now().UTC())
			return int(n), err
		}},
	}
}
