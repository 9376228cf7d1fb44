package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-survey-backend/internal/domain"
	"github.com/tbourn/go-survey-backend/internal/repo"
)

// Clock returns the current time. Services default to UTC wall time.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}

// manageableSurvey loads surveyID and enforces ownership: admins reach every
// survey, members only those they own.
func manageableSurvey(ctx context.Context, db *gorm.DB, actor *domain.User, surveyID string) (*domain.Survey, error) {
	if actor == nil {
		return nil, ErrUnauthorized
	}
	sv, err := repo.GetSurvey(ctx, db, surveyID)
	if err != nil {
		return nil, notFound(err, "survey")
	}
	if !CanManage(actor, sv) {
		return nil, ErrForbidden
	}
	return sv, nil
}

// CanManage reports whether actor may read or mutate sv.
func CanManage(actor *domain.User, sv *domain.Survey) bool {
	if actor == nil || sv == nil {
		return false
	}
	return actor.Role == domain.RoleAdmin || sv.OwnerID == actor.ID
}

func requireUser(actor *domain.User) error {
	if actor == nil {
		return ErrUnauthorized
	}
	return nil
}

func requireAdmin(actor *domain.User) error {
	if actor == nil {
		return ErrUnauthorized
	}
	if actor.Role != domain.RoleAdmin {
		return ErrForbidden
	}
	return nil
}

// normalizePage applies the default page size and clamps bad input.
func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}
