package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-survey-backend/internal/domain"
)

// SurveyFilter narrows survey listings. An empty OwnerID lists every survey.
type SurveyFilter struct {
	OwnerID string
	Status  domain.SurveyStatus
}

func (f SurveyFilter) apply(q *gorm.DB) *gorm.DB {
	if f.OwnerID != "" {
		q = q.Where("owner_id = ?", f.OwnerID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	return q
}

// CreateSurvey inserts s. Returns ErrDuplicate when the slug is taken.
func CreateSurvey(ctx context.Context, db *gorm.DB, s *domain.Survey) error {
	return mapDuplicate(db.WithContext(ctx).Create(s).Error)
}

// GetSurvey fetches a survey by id or returns ErrNotFound.
func GetSurvey(ctx context.Context, db *gorm.DB, id string) (*domain.Survey, error) {
	var s domain.Survey
	if err := db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// SlugExists reports whether another survey already uses slug.
func SlugExists(ctx context.Context, db *gorm.DB, slug, exceptID string) (bool, error) {
	var n int64
	q := db.WithContext(ctx).Model(&domain.Survey{}).Where("slug = ?", slug)
	if exceptID != "" {
		q = q.Where("id <> ?", exceptID)
	}
	err := q.Count(&n).Error
	return n > 0, err
}

// ListSurveysPage returns a page of surveys ordered by most recently updated.
func ListSurveysPage(ctx context.Context, db *gorm.DB, f SurveyFilter, offset, limit int) ([]domain.Survey, error) {
	var out []domain.Survey
	err := f.apply(db.WithContext(ctx).Model(&domain.Survey{})).
		Order("updated_at DESC").Order("id ASC").
		Offset(offset).Limit(limit).
		Find(&out).Error
	return out, err
}

// CountSurveys counts surveys matching f.
func CountSurveys(ctx context.Context, db *gorm.DB, f SurveyFilter) (int64, error) {
	var n int64
	err := f.apply(db.WithContext(ctx).Model(&domain.Survey{})).Count(&n).Error
	return n, err
}

// UpdateSurvey applies column updates to a survey and bumps updated_at.
// Returns ErrNotFound if no row matched.
func UpdateSurvey(ctx context.Context, db *gorm.DB, id string, cols map[string]any) error {
	cols["updated_at"] = time.Now().UTC()
	res := db.WithContext(ctx).Model(&domain.Survey{}).Where("id = ?", id).Updates(cols)
	if res.Error != nil {
		return mapDuplicate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListActiveSurveyIDs returns ids of surveys that are not archived.
func ListActiveSurveyIDs(ctx context.Context, db *gorm.DB) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).Model(&domain.Survey{}).
		Where("status <> ?", domain.SurveyArchived).
		Order("id").Pluck("id", &ids).Error
	return ids, err
}

// SurveysStats reports how many surveys match f and the newest UpdatedAt
// among them. The pair changes whenever a matching survey is created,
// edited or removed, so it serves as a list ETag. latest is nil when nothing
// matches.
func SurveysStats(ctx context.Context, db *gorm.DB, f SurveyFilter) (count int64, latest *time.Time, err error) {
	base := f.apply(db.WithContext(ctx).Model(&domain.Survey{})).Session(&gorm.Session{})
	if err = base.Count(&count).Error; err != nil || count == 0 {
		return 0, nil, err
	}
	// MAX() over a DATETIME column comes back as TEXT from SQLite, so order
	// and take the first value instead.
	var stamps []time.Time
	if err = base.Order("updated_at DESC").Limit(1).Pluck("updated_at", &stamps).Error; err != nil {
		return 0, nil, err
	}
	if len(stamps) == 0 {
		return count, nil, nil
	}
	return count, &stamps[0], nil
}
