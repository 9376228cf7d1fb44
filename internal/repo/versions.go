package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-survey-backend/internal/domain"
)

// CreateVersion inserts a new version row.
func CreateVersion(ctx context.Context, db *gorm.DB, v *domain.SurveyVersion) error {
	return mapDuplicate(db.WithContext(ctx).Create(v).Error)
}

// GetVersion fetches a version of a survey or returns ErrNotFound.
func GetVersion(ctx context.Context, db *gorm.DB, surveyID, id string) (*domain.SurveyVersion, error) {
	var v domain.SurveyVersion
	if err := db.WithContext(ctx).Where("id = ? AND survey_id = ?", id, surveyID).First(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

// GetVersionByID fetches a version by id alone.
func GetVersionByID(ctx context.Context, db *gorm.DB, id string) (*domain.SurveyVersion, error) {
	var v domain.SurveyVersion
	if err := db.WithContext(ctx).Where("id = ?", id).First(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

// GetVersionsByIDs loads versions keyed by id. Missing ids are omitted.
func GetVersionsByIDs(ctx context.Context, db *gorm.DB, ids []string) (map[string]domain.SurveyVersion, error) {
	out := make(map[string]domain.SurveyVersion, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []domain.SurveyVersion
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, v := range rows {
		out[v.ID] = v
	}
	return out, nil
}

// LatestVersion returns the highest-numbered version of a survey, or
// ErrNotFound when it has none.
func LatestVersion(ctx context.Context, db *gorm.DB, surveyID string) (*domain.SurveyVersion, error) {
	var v domain.SurveyVersion
	err := db.WithContext(ctx).Where("survey_id = ?", surveyID).Order("number DESC").First(&v).Error
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ListVersions returns all versions of a survey, newest first.
func ListVersions(ctx context.Context, db *gorm.DB, surveyID string) ([]domain.SurveyVersion, error) {
	var out []domain.SurveyVersion
	err := db.WithContext(ctx).Where("survey_id = ?", surveyID).Order("number DESC").Find(&out).Error
	return out, err
}

// ReplaceDraft overwrites the fields and settings of an unpublished version.
// Returns ErrNotFound when the version is missing or already published.
func ReplaceDraft(ctx context.Context, db *gorm.DB, v *domain.SurveyVersion) error {
	res := db.WithContext(ctx).Model(&domain.SurveyVersion{}).
		Where("id = ? AND status = ?", v.ID, domain.VersionDraft).
		Updates(map[string]any{
			"fields":     v.Fields,
			"settings":   v.Settings,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkVersionPublished freezes a draft version.
// Returns ErrNotFound if it is not a draft.
func MarkVersionPublished(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	res := db.WithContext(ctx).Model(&domain.SurveyVersion{}).
		Where("id = ? AND status = ?", id, domain.VersionDraft).
		Updates(map[string]any{"status": domain.VersionPublished, "published_at": at, "updated_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
