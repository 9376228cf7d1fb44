package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-survey-backend/internal/domain"
)

// AppendTransition inserts a session transition row.
func AppendTransition(ctx context.Context, db *gorm.DB, t *domain.SessionTransition) error {
	return db.WithContext(ctx).Create(t).Error
}

// ListTransitions returns a session's transitions in order.
func ListTransitions(ctx context.Context, db *gorm.DB, sessionID string) ([]domain.SessionTransition, error) {
	var out []domain.SessionTransition
	err := db.WithContext(ctx).Where("session_id = ?", sessionID).
		Order("created_at ASC").Order("id ASC").Find(&out).Error
	return out, err
}

// AppendAudit inserts an audit row.
func AppendAudit(ctx context.Context, db *gorm.DB, a *domain.AuditLog) error {
	return db.WithContext(ctx).Create(a).Error
}

// ListAudit returns a page of a survey's audit rows, newest first.
func ListAudit(ctx context.Context, db *gorm.DB, surveyID string, offset, limit int) ([]domain.AuditLog, error) {
	var out []domain.AuditLog
	err := db.WithContext(ctx).Where("survey_id = ?", surveyID).
		Order("created_at DESC").Order("id DESC").
		Offset(offset).Limit(limit).Find(&out).Error
	return out, err
}

// CountAudit counts a survey's audit rows.
func CountAudit(ctx context.Context, db *gorm.DB, surveyID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.AuditLog{}).Where("survey_id = ?", surveyID).Count(&n).Error
	return n, err
}
