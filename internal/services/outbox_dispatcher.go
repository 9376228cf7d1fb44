// Package services – OutboxDispatcher
//
// This file drains the analytics outbox with at-least-once delivery. Each
// flush sends up to BatchSize due entries to the Sink. Failures back off
// exponentially (2^attempts seconds, capped at MaxBackoff) and after
// MaxAttempts the entry is dead-lettered: marked failed, logged at error
// level, counted, and listed for admins until requeued.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-survey-backend/internal/domain"
	"github.com/tbourn/go-survey-backend/internal/repo"
)

// Sink delivers one outbox entry to the external analytics system.
type Sink interface {
	Publish(ctx context.Context, e domain.AnalyticsOutbox) error
}

// OutboxDispatcher flushes due outbox entries to a Sink.
type OutboxDispatcher struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Sink receives each due entry.
	Sink Sink
	// Now is the service clock.
	Now Clock

	BatchSize   int
	MaxAttempts int
	MaxBackoff  time.Duration
}

// NewOutboxDispatcher constructs a dispatcher with default limits.
func NewOutboxDispatcher(db *gorm.DB, sink Sink) *OutboxDispatcher {
	return &OutboxDispatcher{DB: db, Sink: sink, BatchSize: 100, MaxAttempts: 8, MaxBackoff: 30 * time.Minute}
}

// FlushReport counts the outcomes of one flush.
type FlushReport struct {
	Sent         int `json:"sent"`
	Retried      int `json:"retried"`
	DeadLettered int `json:"deadLettered"`
}

// Backoff returns the delay before the next attempt after attempts failures:
// 2^attempts seconds, capped at max.
func Backoff(attempts int, max time.Duration) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts >= 31 {
		return max
	}
	d := time.Duration(1<<uint(attempts)) * time.Second
	if max > 0 && d > max {
		return max
	}
	return d
}

// Flush sends one bounded batch of due entries.
func (d *OutboxDispatcher) Flush(ctx context.Context) (FlushReport, error) {
	tr := otel.Tracer("services/OutboxDispatcher")
	ctx, span := tr.Start(ctx, "Flush")
	defer span.End()

	var rep FlushReport
	now := d.Now.now()
	limit := d.BatchSize
	if limit <= 0 {
		limit = 100
	}
	maxAttempts := d.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 8
	}

	due, err := repo.ListDueOutbox(ctx, d.DB, now, limit)
	if err != nil {
		return rep, fmt.Errorf("list due outbox: %w", err)
	}
	for _, e := range due {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		sendErr := d.Sink.Publish(ctx, e)
		if sendErr == nil {
			if err := repo.MarkOutboxSent(ctx, d.DB, e.ID, now); err != nil {
				return rep, fmt.Errorf("mark outbox sent: %w", err)
			}
			outboxDeliveries.WithLabelValues("sent").Inc()
			rep.Sent++
			continue
		}

		attempts := e.AttemptCount + 1
		status := domain.OutboxPending
		next := now.Add(Backoff(attempts, d.MaxBackoff))
		if attempts >= maxAttempts {
			status = domain.OutboxFailed
			next = now
		}
		if err := repo.MarkOutboxAttemptFailed(ctx, d.DB, e.ID, attempts, status, next, sendErr.Error(), now); err != nil {
			return rep, fmt.Errorf("record outbox failure: %w", err)
		}
		if status == domain.OutboxFailed {
			outboxDeliveries.WithLabelValues("failed").Inc()
			outboxDeadLetters.Inc()
			rep.DeadLettered++
			log.Error().
				Str("outbox_id", e.ID).
				Str("event_type", e.EventType).
				Int("attempts", attempts).
				Str("last_error", sendErr.Error()).
				Msg("outbox entry dead-lettered")
			continue
		}
		outboxDeliveries.WithLabelValues("retry").Inc()
		rep.Retried++
		log.Warn().Err(sendErr).Str("outbox_id", e.ID).Int("attempts", attempts).Time("next_attempt_at", next).Msg("outbox delivery failed")
	}

	span.SetAttributes(
		attribute.Int("outbox.sent", rep.Sent),
		attribute.Int("outbox.retried", rep.Retried),
		attribute.Int("outbox.dead_lettered", rep.DeadLettered),
	)
	return rep, nil
}

// ListFailed returns a page of dead-lettered entries. Admin only.
func (d *OutboxDispatcher) ListFailed(ctx context.Context, actor *domain.User, page, pageSize int) ([]domain.AnalyticsOutbox, int64, error) {
	tr := otel.Tracer("services/OutboxDispatcher")
	ctx, span := tr.Start(ctx, "ListFailed")
	defer span.End()

	if err := requireAdmin(actor); err != nil {
		return nil, 0, err
	}
	page, pageSize = normalizePage(page, pageSize)
	total, err := repo.CountOutboxByStatus(ctx, d.DB, domain.OutboxFailed)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.AnalyticsOutbox{}, 0, nil
	}
	items, err := repo.ListOutboxByStatus(ctx, d.DB, domain.OutboxFailed, (page-1)*pageSize, pageSize)
	return items, total, err
}

// Requeue resets a dead-lettered entry to pending with a fresh attempt
// budget. Admin only; NOT_FOUND unless the entry is currently failed.
func (d *OutboxDispatcher) Requeue(ctx context.Context, actor *domain.User, id string) error {
	tr := otel.Tracer("services/OutboxDispatcher")
	ctx, span := tr.Start(ctx, "Requeue", trace.WithAttributes(attribute.String("outbox.id", id)))
	defer span.End()

	if err := requireAdmin(actor); err != nil {
		return err
	}
	now := d.Now.now()
	return d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.RequeueOutbox(ctx, tx, id, now); err != nil {
			return notFound(err, "failed outbox entry")
		}
		return recordAudit(ctx, tx, userAudit(actor, ActionOutboxRequeued, "outbox", id, "", nil), now)
	})
}
