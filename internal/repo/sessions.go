package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-survey-backend/internal/domain"
)

// CreateSession inserts a session row.
func CreateSession(ctx context.Context, db *gorm.DB, s *domain.SurveySession) error {
	return db.WithContext(ctx).Create(s).Error
}

// GetSessionByPublicID fetches a session by its public identifier.
func GetSessionByPublicID(ctx context.Context, db *gorm.DB, publicID string) (*domain.SurveySession, error) {
	var s domain.SurveySession
	if err := db.WithContext(ctx).Where("public_id = ?", publicID).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSession fetches a session by internal id.
func GetSession(ctx context.Context, db *gorm.DB, id string) (*domain.SurveySession, error) {
	var s domain.SurveySession
	if err := db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// FindOpenSession returns the newest non-completed session for
// (invite, respondent), or ErrNotFound.
func FindOpenSession(ctx context.Context, db *gorm.DB, inviteID, respondentKey string) (*domain.SurveySession, error) {
	var s domain.SurveySession
	err := db.WithContext(ctx).
		Where("invite_id = ? AND respondent_key = ? AND status <> ?", inviteID, respondentKey, domain.SessionCompleted).
		Order("started_at DESC").
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SaveSessionDraft persists the answer map, status and activity timestamp.
func SaveSessionDraft(ctx context.Context, db *gorm.DB, s *domain.SurveySession) error {
	return db.WithContext(ctx).Model(&domain.SurveySession{}).Where("id = ?", s.ID).
		Updates(map[string]any{
			"answers":          s.Answers,
			"status":           s.Status,
			"last_activity_at": s.LastActivityAt,
			"updated_at":       s.LastActivityAt,
		}).Error
}

// CompleteSession marks a non-completed session completed.
// Returns false when it was already completed.
func CompleteSession(ctx context.Context, db *gorm.DB, id string, answers domain.Answers, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Model(&domain.SurveySession{}).
		Where("id = ? AND status <> ?", id, domain.SessionCompleted).
		Updates(map[string]any{
			"answers":          answers,
			"status":           domain.SessionCompleted,
			"completed_at":     at,
			"last_activity_at": at,
			"updated_at":       at,
		})
	return res.RowsAffected > 0, res.Error
}

// TransitionIfStale moves a session to status `to` only while it is still in
// one of `from` and its last activity is before cutoff. It reports whether
// the row changed.
func TransitionIfStale(ctx context.Context, db *gorm.DB, id string, from []domain.SessionStatus, to domain.SessionStatus, cutoff, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Model(&domain.SurveySession{}).
		Where("id = ? AND status IN ? AND last_activity_at < ?", id, from, cutoff).
		Updates(map[string]any{"status": to, "updated_at": now})
	return res.RowsAffected > 0, res.Error
}

// ListStaleSessions returns up to limit sessions in one of statuses whose last
// activity is before cutoff, oldest first.
func ListStaleSessions(ctx context.Context, db *gorm.DB, statuses []domain.SessionStatus, cutoff time.Time, limit int) ([]domain.SurveySession, error) {
	var out []domain.SurveySession
	err := db.WithContext(ctx).
		Where("status IN ? AND last_activity_at < ?", statuses, cutoff).
		Order("last_activity_at ASC").Order("id ASC").
		Limit(limit).Find(&out).Error
	return out, err
}

// ListSurveySessionsByStatus returns a page of a survey's sessions in one of
// statuses, least recently active first.
func ListSurveySessionsByStatus(ctx context.Context, db *gorm.DB, surveyID string, statuses []domain.SessionStatus, offset, limit int) ([]domain.SurveySession, error) {
	var out []domain.SurveySession
	err := db.WithContext(ctx).
		Where("survey_id = ? AND status IN ?", surveyID, statuses).
		Order("last_activity_at ASC").Order("id ASC").
		Offset(offset).Limit(limit).Find(&out).Error
	return out, err
}

// CountSurveySessionsByStatus counts a survey's sessions in one of statuses.
func CountSurveySessionsByStatus(ctx context.Context, db *gorm.DB, surveyID string, statuses []domain.SessionStatus) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.SurveySession{}).
		Where("survey_id = ? AND status IN ?", surveyID, statuses).Count(&n).Error
	return n, err
}
