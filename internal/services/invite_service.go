// Package services – InviteService
//
// This file implements the invite lifecycle: issuing tokens (only a hash is
// stored), listing invites with their computed usability, revocation, and
// anonymous token resolution. ComputeUsableState is a pure function of the
// stored row and the clock; persisting a reclassification is left to the
// mutating transaction that discovers it.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-survey-backend/internal/domain"
	"github.com/tbourn/go-survey-backend/internal/repo"
)

// ComputeUsableState classifies an invite at now. Revoked, expired and
// exhausted are sticky; an active invite past its expiry resolves to expired,
// and one at its completion cap to exhausted.
func ComputeUsableState(inv *domain.Invite, now time.Time) domain.InviteStatus {
	if inv.Status.Terminal() {
		return inv.Status
	}
	if inv.ExpiresAt != nil && inv.ExpiresAt.Before(now) {
		return domain.InviteExpired
	}
	if inv.CompletionCount >= inv.MaxCompletions {
		return domain.InviteExhausted
	}
	return domain.InviteActive
}

// IsUsable reports whether the invite admits new activity at now.
func IsUsable(inv *domain.Invite, now time.Time) bool {
	return ComputeUsableState(inv, now) == domain.InviteActive
}

// inviteError maps a non-active state to its error.
func inviteError(state domain.InviteStatus) error {
	switch state {
	case domain.InviteExpired:
		return ErrInviteExpired
	case domain.InviteExhausted:
		return ErrInviteExhausted
	}
	return ErrInviteUnavailable
}

// persistStale writes a lazily discovered terminal state so it is never
// observed stale twice. It is a no-op for rows that are no longer active.
func persistStale(ctx context.Context, tx *gorm.DB, inv *domain.Invite, state domain.InviteStatus, now time.Time) error {
	if inv.Status != domain.InviteActive || state == domain.InviteActive {
		return nil
	}
	changed, err := repo.SetInviteStatus(ctx, tx, inv.ID, state, now)
	if err != nil {
		return fmt.Errorf("reclassify invite: %w", err)
	}
	if !changed {
		return nil
	}
	inv.Status = state
	return recordAudit(ctx, tx, auditEntry{
		ActorType:  domain.ActorSystem,
		Action:     ActionInviteStale,
		EntityType: "invite",
		EntityID:   inv.ID,
		SurveyID:   inv.SurveyID,
		Metadata:   map[string]any{"status": state},
	}, now)
}

// InviteService manages invite issuance, revocation, and resolution.
type InviteService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Now is the service clock.
	Now Clock
	// PublicBaseURL prefixes the /s/<token> respondent link.
	PublicBaseURL string
}

// NewInviteService constructs an InviteService.
func NewInviteService(db *gorm.DB, publicBaseURL string) *InviteService {
	return &InviteService{DB: db, PublicBaseURL: publicBaseURL}
}

// CreateInviteInput is the admin request to issue an invite.
type CreateInviteInput struct {
	Label          string     `json:"label"`
	MaxCompletions int        `json:"maxCompletions"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
}

// CreatedInvite carries the plaintext token, which is never retrievable again.
type CreatedInvite struct {
	Invite domain.Invite `json:"invite"`
	Token  string        `json:"token"`
	URL    string        `json:"url"`
}

// InviteView pairs a stored invite with its state at read time.
type InviteView struct {
	domain.Invite
	State  domain.InviteStatus `json:"state"`
	Usable bool                `json:"usable"`
}

// ResolvedInvite is the anonymous view of a presented token.
type ResolvedInvite struct {
	State   domain.InviteStatus  `json:"state"`
	Usable  bool                 `json:"usable"`
	Survey  domain.Survey        `json:"survey"`
	Version domain.SurveyVersion `json:"version"`
	Invite  domain.Invite        `json:"invite"`
}

// CreateInvite issues an invite for the survey's current published version.
// MaxCompletions defaults to 1.
func (s *InviteService) CreateInvite(ctx context.Context, actor *domain.User, surveyID string, in CreateInviteInput) (*CreatedInvite, error) {
	tr := otel.Tracer("services/InviteService")
	ctx, span := tr.Start(ctx, "CreateInvite", trace.WithAttributes(attribute.String("survey.id", surveyID)))
	defer span.End()

	now := s.Now.now()
	if in.MaxCompletions == 0 {
		in.MaxCompletions = 1
	}
	if in.MaxCompletions < 1 {
		return nil, newErr(CodeInvalidInput, "maxCompletions must be at least 1")
	}
	if in.ExpiresAt != nil && !in.ExpiresAt.After(now) {
		return nil, newErr(CodeInvalidInput, "expiresAt must be in the future")
	}
	label := strings.TrimSpace(in.Label)
	if len(label) > 255 {
		return nil, newErr(CodeInvalidInput, "label is too long")
	}

	token, hash, err := NewInviteToken()
	if err != nil {
		return nil, fmt.Errorf("generate invite token: %w", err)
	}

	var out *CreatedInvite
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sv, err := manageableSurvey(ctx, tx, actor, surveyID)
		if err != nil {
			return err
		}
		if sv.Status == domain.SurveyArchived {
			return newErr(CodeInvalidInput, "survey is archived")
		}
		if sv.CurrentVersionID == nil {
			return newErr(CodeInvalidInput, "survey has no published version")
		}
		inv := domain.Invite{
			ID:             uuid.NewString(),
			SurveyID:       sv.ID,
			VersionID:      *sv.CurrentVersionID,
			TokenHash:      hash,
			Label:          label,
			Status:         domain.InviteActive,
			MaxCompletions: in.MaxCompletions,
			ExpiresAt:      in.ExpiresAt,
			CreatedBy:      actor.ID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := repo.CreateInvite(ctx, tx, &inv); err != nil {
			return fmt.Errorf("create invite: %w", err)
		}
		if err := recordAudit(ctx, tx, userAudit(actor, ActionInviteCreated, "invite", inv.ID, sv.ID,
			map[string]any{"maxCompletions": inv.MaxCompletions, "versionId": inv.VersionID}), now); err != nil {
			return err
		}
		out = &CreatedInvite{Invite: inv, Token: token, URL: InviteURL(s.PublicBaseURL, token)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RevokeInvite revokes an active invite. Revoking a terminal invite is a
// no-op that returns it unchanged.
func (s *InviteService) RevokeInvite(ctx context.Context, actor *domain.User, inviteID string) (*domain.Invite, error) {
	tr := otel.Tracer("services/InviteService")
	ctx, span := tr.Start(ctx, "RevokeInvite", trace.WithAttributes(attribute.String("invite.id", inviteID)))
	defer span.End()

	now := s.Now.now()
	var out *domain.Invite
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := repo.GetInvite(ctx, tx, inviteID)
		if err != nil {
			return notFound(err, "invite")
		}
		if _, err := manageableSurvey(ctx, tx, actor, inv.SurveyID); err != nil {
			return err
		}
		changed, err := repo.SetInviteStatus(ctx, tx, inv.ID, domain.InviteRevoked, now)
		if err != nil {
			return fmt.Errorf("revoke invite: %w", err)
		}
		if changed {
			if err := recordAudit(ctx, tx, userAudit(actor, ActionInviteRevoked, "invite", inv.ID, inv.SurveyID, nil), now); err != nil {
				return err
			}
		}
		out, err = repo.GetInvite(ctx, tx, inviteID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListInvites returns a page of a survey's invites with their computed state.
func (s *InviteService) ListInvites(ctx context.Context, actor *domain.User, surveyID string, page, pageSize int) ([]InviteView, int64, error) {
	tr := otel.Tracer("services/InviteService")
	ctx, span := tr.Start(ctx, "ListInvites", trace.WithAttributes(attribute.String("survey.id", surveyID)))
	defer span.End()

	sv, err := manageableSurvey(ctx, s.DB, actor, surveyID)
	if err != nil {
		return nil, 0, err
	}
	page, pageSize = normalizePage(page, pageSize)
	total, err := repo.CountInvites(ctx, s.DB, sv.ID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []InviteView{}, 0, nil
	}
	rows, err := repo.ListInvites(ctx, s.DB, sv.ID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, 0, err
	}
	now := s.Now.now()
	out := make([]InviteView, 0, len(rows))
	for i := range rows {
		state := ComputeUsableState(&rows[i], now)
		out = append(out, InviteView{Invite: rows[i], State: state, Usable: state == domain.InviteActive && sv.Status != domain.SurveyArchived})
	}
	return out, total, nil
}

// ResolveInvite looks up a presented token. It never writes; staleness is
// reported through State and persisted by the next mutating call.
func (s *InviteService) ResolveInvite(ctx context.Context, token string) (*ResolvedInvite, error) {
	tr := otel.Tracer("services/InviteService")
	ctx, span := tr.Start(ctx, "ResolveInvite")
	defer span.End()

	inv, sv, ver, err := loadInvite(ctx, s.DB, token)
	if err != nil {
		return nil, err
	}
	state := ComputeUsableState(inv, s.Now.now())
	span.SetAttributes(attribute.String("invite.state", string(state)))
	return &ResolvedInvite{
		State:   state,
		Usable:  state == domain.InviteActive && sv.Status != domain.SurveyArchived,
		Survey:  *sv,
		Version: *ver,
		Invite:  *inv,
	}, nil
}

// loadInvite resolves a plaintext token to its invite, survey, and version.
// Unknown tokens are NOT_FOUND.
func loadInvite(ctx context.Context, db *gorm.DB, token string) (*domain.Invite, *domain.Survey, *domain.SurveyVersion, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil, nil, newErr(CodeNotFound, "invite not found")
	}
	inv, err := repo.GetInviteByTokenHash(ctx, db, HashToken(token))
	if err != nil {
		return nil, nil, nil, notFound(err, "invite")
	}
	sv, err := repo.GetSurvey(ctx, db, inv.SurveyID)
	if err != nil {
		return nil, nil, nil, notFound(err, "survey")
	}
	ver, err := repo.GetVersionByID(ctx, db, inv.VersionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil, nil, fmt.Errorf("invite %s references missing version: %w", inv.ID, err)
		}
		return nil, nil, nil, err
	}
	return inv, sv, ver, nil
}
