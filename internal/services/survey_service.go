// Package services – SurveyService
//
// This file implements survey authoring: creation with slug normalization,
// metadata updates and archiving, draft versions that are edited in place
// until published, and publishing, which freezes a version and makes it the
// survey's current version. Every mutation writes an audit row in its own
// transaction.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-survey-backend/internal/domain"
	"github.com/tbourn/go-survey-backend/internal/repo"
	"github.com/tbourn/go-survey-backend/internal/validation"
)

const titleMaxLen = 255

// SurveyService manages surveys and their versions.
type SurveyService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Now is the service clock.
	Now Clock
}

// NewSurveyService constructs a SurveyService.
func NewSurveyService(db *gorm.DB) *SurveyService {
	return &SurveyService{DB: db}
}

// CreateSurveyInput is the request to create a survey. Slug is derived from
// Title when empty.
type CreateSurveyInput struct {
	Title       string `json:"title"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
}

// UpdateSurveyInput carries optional changes; nil fields are left alone.
// Status accepts "archived", or "draft"/"published" to unarchive.
type UpdateSurveyInput struct {
	Title       *string              `json:"title,omitempty"`
	Slug        *string              `json:"slug,omitempty"`
	Description *string              `json:"description,omitempty"`
	Status      *domain.SurveyStatus `json:"status,omitempty"`
}

// VersionDraftInput is the field set and settings of a draft.
type VersionDraftInput struct {
	Fields   []domain.Field         `json:"fields"`
	Settings domain.VersionSettings `json:"settings"`
}

// VersionSummary is a version without its field set.
type VersionSummary struct {
	ID          string               `json:"id"`
	Number      int                  `json:"number"`
	Status      domain.VersionStatus `json:"status"`
	FieldCount  int                  `json:"fieldCount"`
	PublishedAt *time.Time           `json:"publishedAt,omitempty"`
	UpdatedAt   time.Time            `json:"updatedAt"`
}

// SurveyDetail is a survey with its current version and version history.
type SurveyDetail struct {
	Survey         domain.Survey         `json:"survey"`
	CurrentVersion *domain.SurveyVersion `json:"currentVersion,omitempty"`
	Draft          *domain.SurveyVersion `json:"draft,omitempty"`
	Versions       []VersionSummary      `json:"versions"`
}

// normalizeTitle trims and collapses whitespace.
func normalizeTitle(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func checkTitle(title string) error {
	if title == "" {
		return newErr(CodeInvalidInput, "title is required")
	}
	if utf8.RuneCountInString(title) > titleMaxLen {
		return newErr(CodeInvalidInput, "title exceeds %d characters", titleMaxLen)
	}
	return nil
}

// CreateSurvey creates a draft survey owned by actor.
func (s *SurveyService) CreateSurvey(ctx context.Context, actor *domain.User, in CreateSurveyInput) (*domain.Survey, error) {
	tr := otel.Tracer("services/SurveyService")
	ctx, span := tr.Start(ctx, "CreateSurvey")
	defer span.End()

	if err := requireUser(actor); err != nil {
		return nil, err
	}
	title := normalizeTitle(in.Title)
	if err := checkTitle(title); err != nil {
		return nil, err
	}
	var (
		slug string
		err  error
	)
	if strings.TrimSpace(in.Slug) != "" {
		slug, err = NormalizeSlug(in.Slug)
	} else {
		slug, err = slugFromTitle(title)
	}
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("survey.slug", slug))

	now := s.Now.now()
	sv := &domain.Survey{
		ID:          uuid.NewString(),
		OwnerID:     actor.ID,
		Slug:        slug,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Status:      domain.SurveyDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		taken, err := repo.SlugExists(ctx, tx, slug, "")
		if err != nil {
			return err
		}
		if taken {
			return ErrSlugTaken
		}
		if err := repo.CreateSurvey(ctx, tx, sv); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return ErrSlugTaken
			}
			return fmt.Errorf("create survey: %w", err)
		}
		return recordAudit(ctx, tx, userAudit(actor, ActionSurveyCreated, "survey", sv.ID, sv.ID,
			map[string]any{"slug": slug}), now)
	})
	if err != nil {
		return nil, err
	}
	return sv, nil
}

// UpdateSurvey applies metadata changes and archive/unarchive.
func (s *SurveyService) UpdateSurvey(ctx context.Context, actor *domain.User, surveyID string, in UpdateSurveyInput) (*domain.Survey, error) {
	tr := otel.Tracer("services/SurveyService")
	ctx, span := tr.Start(ctx, "UpdateSurvey", trace.WithAttributes(attribute.String("survey.id", surveyID)))
	defer span.End()

	now := s.Now.now()
	var out *domain.Survey
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sv, err := manageableSurvey(ctx, tx, actor, surveyID)
		if err != nil {
			return err
		}
		cols := map[string]any{}
		changed := []string{}

		if in.Title != nil {
			title := normalizeTitle(*in.Title)
			if err := checkTitle(title); err != nil {
				return err
			}
			cols["title"] = title
			changed = append(changed, "title")
		}
		if in.Description != nil {
			cols["description"] = strings.TrimSpace(*in.Description)
			changed = append(changed, "description")
		}
		if in.Slug != nil {
			slug, err := NormalizeSlug(*in.Slug)
			if err != nil {
				return err
			}
			if slug != sv.Slug {
				taken, err := repo.SlugExists(ctx, tx, slug, sv.ID)
				if err != nil {
					return err
				}
				if taken {
					return ErrSlugTaken
				}
				cols["slug"] = slug
				changed = append(changed, "slug")
			}
		}
		if in.Status != nil {
			status, err := nextSurveyStatus(sv, *in.Status)
			if err != nil {
				return err
			}
			if status != sv.Status {
				cols["status"] = status
				changed = append(changed, "status")
			}
		}

		if len(cols) > 0 {
			if err := repo.UpdateSurvey(ctx, tx, sv.ID, cols); err != nil {
				if errors.Is(err, repo.ErrDuplicate) {
					return ErrSlugTaken
				}
				return fmt.Errorf("update survey: %w", err)
			}
			if err := recordAudit(ctx, tx, userAudit(actor, ActionSurveyUpdated, "survey", sv.ID, sv.ID,
				map[string]any{"changed": changed}), now); err != nil {
				return err
			}
		}
		out, err = repo.GetSurvey(ctx, tx, sv.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// nextSurveyStatus validates a requested status change. Publishing happens
// through PublishVersion; here a survey can be archived, or unarchived back
// to published or draft depending on whether it has a current version.
func nextSurveyStatus(sv *domain.Survey, want domain.SurveyStatus) (domain.SurveyStatus, error) {
	switch want {
	case domain.SurveyArchived:
		return domain.SurveyArchived, nil
	case domain.SurveyPublished, domain.SurveyDraft:
		if sv.Status != domain.SurveyArchived {
			if want != sv.Status {
				return "", newErr(CodeInvalidInput, "use publish to change a survey from %s to %s", sv.Status, want)
			}
			return sv.Status, nil
		}
		if sv.CurrentVersionID != nil {
			return domain.SurveyPublished, nil
		}
		return domain.SurveyDraft, nil
	}
	return "", newErr(CodeInvalidInput, "unknown status %q", want)
}

// CreateVersionDraft saves fields and settings as the survey's draft. An
// unpublished latest version is replaced in place; otherwise a new version
// number is allocated.
func (s *SurveyService) CreateVersionDraft(ctx context.Context, actor *domain.User, surveyID string, in VersionDraftInput) (*domain.SurveyVersion, error) {
	tr := otel.Tracer("services/SurveyService")
	ctx, span := tr.Start(ctx, "CreateVersionDraft", trace.WithAttributes(
		attribute.String("survey.id", surveyID),
		attribute.Int("fields", len(in.Fields)),
	))
	defer span.End()

	if err := validation.ValidateFieldSet(in.Fields); err != nil {
		return nil, fromValidation(err)
	}
	fields := validation.SortedFields(in.Fields)

	now := s.Now.now()
	var out *domain.SurveyVersion
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sv, err := manageableSurvey(ctx, tx, actor, surveyID)
		if err != nil {
			return err
		}
		if sv.Status == domain.SurveyArchived {
			return newErr(CodeInvalidInput, "survey is archived")
		}

		latest, err := repo.LatestVersion(ctx, tx, sv.ID)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return err
		}

		v := &domain.SurveyVersion{
			SurveyID:  sv.ID,
			Status:    domain.VersionDraft,
			Fields:    datatypes.JSONSlice[domain.Field](fields),
			Settings:  datatypes.NewJSONType(in.Settings),
			CreatedBy: actor.ID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		switch {
		case latest != nil && !latest.IsPublished():
			v.ID, v.Number, v.CreatedBy, v.CreatedAt = latest.ID, latest.Number, latest.CreatedBy, latest.CreatedAt
			if err := repo.ReplaceDraft(ctx, tx, v); err != nil {
				return fmt.Errorf("replace draft: %w", err)
			}
		default:
			v.ID = uuid.NewString()
			v.Number = 1
			if latest != nil {
				v.Number = latest.Number + 1
			}
			if err := repo.CreateVersion(ctx, tx, v); err != nil {
				return fmt.Errorf("create version: %w", err)
			}
		}
		if err := recordAudit(ctx, tx, userAudit(actor, ActionVersionSaved, "version", v.ID, sv.ID,
			map[string]any{"number": v.Number, "fields": len(fields)}), now); err != nil {
			return err
		}
		out, err = repo.GetVersionByID(ctx, tx, v.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PublishVersion freezes a draft and makes it the survey's current version.
// Publishing the already current version is a no-op.
func (s *SurveyService) PublishVersion(ctx context.Context, actor *domain.User, surveyID, versionID string) (*domain.SurveyVersion, error) {
	tr := otel.Tracer("services/SurveyService")
	ctx, span := tr.Start(ctx, "PublishVersion", trace.WithAttributes(
		attribute.String("survey.id", surveyID),
		attribute.String("version.id", versionID),
	))
	defer span.End()

	now := s.Now.now()
	var out *domain.SurveyVersion
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sv, err := manageableSurvey(ctx, tx, actor, surveyID)
		if err != nil {
			return err
		}
		if sv.Status == domain.SurveyArchived {
			return newErr(CodeInvalidInput, "survey is archived")
		}
		v, err := repo.GetVersion(ctx, tx, sv.ID, versionID)
		if err != nil {
			return notFound(err, "version")
		}
		if v.IsPublished() {
			if sv.CurrentVersionID != nil && *sv.CurrentVersionID == v.ID {
				out = v
				return nil
			}
			return newErr(CodeInvalidInput, "version %d is already published", v.Number)
		}
		if len(v.Fields) == 0 {
			return newErr(CodeInvalidFieldSet, "a published version needs at least one field")
		}
		if err := validation.ValidateFieldSet(v.Fields); err != nil {
			return fromValidation(err)
		}

		if err := repo.MarkVersionPublished(ctx, tx, v.ID, now); err != nil {
			return notFound(err, "draft version")
		}
		if err := repo.UpdateSurvey(ctx, tx, sv.ID, map[string]any{
			"current_version_id": v.ID,
			"status":             domain.SurveyPublished,
		}); err != nil {
			return fmt.Errorf("set current version: %w", err)
		}
		if err := recordAudit(ctx, tx, userAudit(actor, ActionVersionPublished, "version", v.ID, sv.ID,
			map[string]any{"number": v.Number}), now); err != nil {
			return err
		}
		if err := enqueue(ctx, tx, Event{
			Type:       EventVersionPublished,
			SurveyID:   sv.ID,
			VersionID:  v.ID,
			OccurredAt: now,
		}); err != nil {
			return err
		}
		out, err = repo.GetVersionByID(ctx, tx, v.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListSurveys returns a page of surveys visible to actor: all for admins,
// owned ones for members.
func (s *SurveyService) ListSurveys(ctx context.Context, actor *domain.User, status domain.SurveyStatus, page, pageSize int) ([]domain.Survey, int64, error) {
	tr := otel.Tracer("services/SurveyService")
	ctx, span := tr.Start(ctx, "ListSurveys")
	defer span.End()

	f, err := s.filterFor(actor, status)
	if err != nil {
		return nil, 0, err
	}
	page, pageSize = normalizePage(page, pageSize)
	total, err := repo.CountSurveys(ctx, s.DB, f)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Survey{}, 0, nil
	}
	items, err := repo.ListSurveysPage(ctx, s.DB, f, (page-1)*pageSize, pageSize)
	return items, total, err
}

// Stats returns the count and latest update of actor's visible surveys, for
// conditional listing responses.
func (s *SurveyService) Stats(ctx context.Context, actor *domain.User, status domain.SurveyStatus) (int64, *time.Time, error) {
	f, err := s.filterFor(actor, status)
	if err != nil {
		return 0, nil, err
	}
	return repo.SurveysStats(ctx, s.DB, f)
}

func (s *SurveyService) filterFor(actor *domain.User, status domain.SurveyStatus) (repo.SurveyFilter, error) {
	if err := requireUser(actor); err != nil {
		return repo.SurveyFilter{}, err
	}
	switch status {
	case "", domain.SurveyDraft, domain.SurveyPublished, domain.SurveyArchived:
	default:
		return repo.SurveyFilter{}, newErr(CodeInvalidInput, "unknown status %q", status)
	}
	f := repo.SurveyFilter{Status: status}
	if actor.Role != domain.RoleAdmin {
		f.OwnerID = actor.ID
	}
	return f, nil
}

// GetSurveyDetail returns a survey with its current version, its open
// draft, and a summary of every version.
func (s *SurveyService) GetSurveyDetail(ctx context.Context, actor *domain.User, surveyID string) (*SurveyDetail, error) {
	tr := otel.Tracer("services/SurveyService")
	ctx, span := tr.Start(ctx, "GetSurveyDetail", trace.WithAttributes(attribute.String("survey.id", surveyID)))
	defer span.End()

	sv, err := manageableSurvey(ctx, s.DB, actor, surveyID)
	if err != nil {
		return nil, err
	}
	versions, err := repo.ListVersions(ctx, s.DB, sv.ID)
	if err != nil {
		return nil, err
	}
	out := &SurveyDetail{Survey: *sv, Versions: make([]VersionSummary, 0, len(versions))}
	for i := range versions {
		v := &versions[i]
		out.Versions = append(out.Versions, VersionSummary{
			ID:          v.ID,
			Number:      v.Number,
			Status:      v.Status,
			FieldCount:  len(v.Fields),
			PublishedAt: v.PublishedAt,
			UpdatedAt:   v.UpdatedAt,
		})
		if sv.CurrentVersionID != nil && *sv.CurrentVersionID == v.ID {
			out.CurrentVersion = v
		}
		if !v.IsPublished() && out.Draft == nil {
			out.Draft = v
		}
	}
	return out, nil
}
