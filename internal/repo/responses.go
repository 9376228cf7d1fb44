package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-survey-backend/internal/domain"
)

// CreateResponse inserts the immutable response row. A second response for
// the same session yields ErrDuplicate.
func CreateResponse(ctx context.Context, db *gorm.DB, r *domain.SurveyResponse) error {
	return mapDuplicate(db.WithContext(ctx).Create(r).Error)
}

// GetResponseBySession fetches the response recorded for a session.
func GetResponseBySession(ctx context.Context, db *gorm.DB, sessionID string) (*domain.SurveyResponse, error) {
	var r domain.SurveyResponse
	if err := db.WithContext(ctx).Where("session_id = ?", sessionID).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// ListResponsesBetween returns a survey's responses submitted in [start, end).
func ListResponsesBetween(ctx context.Context, db *gorm.DB, surveyID string, start, end time.Time) ([]domain.SurveyResponse, error) {
	var out []domain.SurveyResponse
	err := db.WithContext(ctx).
		Where("survey_id = ? AND submitted_at >= ? AND submitted_at < ?", surveyID, start, end).
		Order("submitted_at ASC").Order("id ASC").
		Find(&out).Error
	return out, err
}

// SurveysWithResponsesSince returns the distinct surveys with at least one
// response submitted at or after since.
func SurveysWithResponsesSince(ctx context.Context, db *gorm.DB, since time.Time) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).Model(&domain.SurveyResponse{}).
		Where("submitted_at >= ?", since).
		Distinct("survey_id").Order("survey_id").
		Pluck("survey_id", &ids).Error
	return ids, err
}
