package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-survey-backend/internal/domain"
)

// EnqueueOutbox inserts a pending event due immediately. Call it inside the
// transaction of the mutation that produced the event.
func EnqueueOutbox(ctx context.Context, db *gorm.DB, eventType, surveyID string, payload []byte, now time.Time) (*domain.AnalyticsOutbox, error) {
	e := &domain.AnalyticsOutbox{
		ID:            uuid.NewString(),
		EventType:     eventType,
		SurveyID:      surveyID,
		Payload:       datatypes.JSON(payload),
		Status:        domain.OutboxPending,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := db.WithContext(ctx).Create(e).Error; err != nil {
		return nil, err
	}
	return e, nil
}

// ListDueOutbox returns up to limit pending events whose next attempt is due.
func ListDueOutbox(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.AnalyticsOutbox, error) {
	var out []domain.AnalyticsOutbox
	err := db.WithContext(ctx).
		Where("status = ? AND next_attempt_at <= ?", domain.OutboxPending, now).
		Order("next_attempt_at ASC").Order("created_at ASC").Order("id ASC").
		Limit(limit).Find(&out).Error
	return out, err
}

// MarkOutboxSent records a successful delivery.
func MarkOutboxSent(ctx context.Context, db *gorm.DB, id string, now time.Time) error {
	return db.WithContext(ctx).Model(&domain.AnalyticsOutbox{}).
		Where("id = ? AND status = ?", id, domain.OutboxPending).
		Updates(map[string]any{"status": domain.OutboxSent, "sent_at": now, "last_error": "", "updated_at": now}).Error
}

// MarkOutboxAttemptFailed records a failed attempt. status is pending with a
// future nextAttempt, or failed when the ceiling was reached.
func MarkOutboxAttemptFailed(ctx context.Context, db *gorm.DB, id string, attempts int, status domain.OutboxStatus, nextAttempt time.Time, lastErr string, now time.Time) error {
	return db.WithContext(ctx).Model(&domain.AnalyticsOutbox{}).
		Where("id = ? AND status = ?", id, domain.OutboxPending).
		Updates(map[string]any{
			"attempt_count":   attempts,
			"status":          status,
			"next_attempt_at": nextAttempt,
			"last_error":      lastErr,
			"updated_at":      now,
		}).Error
}

// ListOutboxByStatus returns a page of entries in status, newest first.
func ListOutboxByStatus(ctx context.Context, db *gorm.DB, status domain.OutboxStatus, offset, limit int) ([]domain.AnalyticsOutbox, error) {
	var out []domain.AnalyticsOutbox
	err := db.WithContext(ctx).Where("status = ?", status).
		Order("updated_at DESC").Order("id ASC").
		Offset(offset).Limit(limit).Find(&out).Error
	return out, err
}

// CountOutboxByStatus counts entries in status.
func CountOutboxByStatus(ctx context.Context, db *gorm.DB, status domain.OutboxStatus) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.AnalyticsOutbox{}).Where("status = ?", status).Count(&n).Error
	return n, err
}

// RequeueOutbox resets a failed entry to pending with a fresh attempt budget.
// Returns ErrNotFound when no failed entry matched.
func RequeueOutbox(ctx context.Context, db *gorm.DB, id string, now time.Time) error {
	res := db.WithContext(ctx).Model(&domain.AnalyticsOutbox{}).
		Where("id = ? AND status = ?", id, domain.OutboxFailed).
		Updates(map[string]any{
			"status":          domain.OutboxPending,
			"attempt_count":   0,
			"next_attempt_at": now,
			"updated_at":      now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
