package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-survey-backend/internal/domain"
	"github.com/tbourn/go-survey-backend/internal/repo"
)

// Audit actions written by the services.
const (
	ActionSurveyCreated    = "survey.created"
	ActionSurveyUpdated    = "survey.updated"
	ActionVersionSaved     = "version.draft_saved"
	ActionVersionPublished = "version.published"
	ActionInviteCreated    = "invite.created"
	ActionInviteRevoked    = "invite.revoked"
	ActionInviteStale      = "invite.reclassified"
	ActionOutboxRequeued   = "outbox.requeued"
	ActionAnalyticsRebuilt = "analytics.rebuilt"
)

// Session transition reasons.
const (
	reasonStart   = "start"
	reasonResume  = "resume"
	reasonAnswer  = "answer"
	reasonSubmit  = "submit"
	reasonIdle    = "idle_timeout"
	reasonAbandon = "abandon_timeout"
)

// auditEntry describes one administrative or lifecycle action.
type auditEntry struct {
	ActorType  domain.ActorType
	ActorID    string
	Action     string
	EntityType string
	EntityID   string
	SurveyID   string
	Metadata   map[string]any
}

// recordAudit appends e using db, which is normally the caller's transaction.
func recordAudit(ctx context.Context, db *gorm.DB, e auditEntry, now time.Time) error {
	var meta datatypes.JSON
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal audit metadata: %w", err)
		}
		meta = b
	}
	return repo.AppendAudit(ctx, db, &domain.AuditLog{
		ID:         uuid.NewString(),
		ActorType:  e.ActorType,
		ActorID:    e.ActorID,
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		SurveyID:   e.SurveyID,
		Metadata:   meta,
		CreatedAt:  now,
	})
}

// userAudit is the audit entry skeleton for an authenticated actor.
func userAudit(actor *domain.User, action, entityType, entityID, surveyID string, meta map[string]any) auditEntry {
	return auditEntry{
		ActorType:  domain.ActorUser,
		ActorID:    actor.ID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		SurveyID:   surveyID,
		Metadata:   meta,
	}
}

// recordTransition appends a session transition row and counts it.
func recordTransition(ctx context.Context, db *gorm.DB, s *domain.SurveySession, from, to domain.SessionStatus, reason string, actor domain.ActorType, now time.Time) error {
	err := repo.AppendTransition(ctx, db, &domain.SessionTransition{
		ID:         uuid.NewString(),
		SessionID:  s.ID,
		SurveyID:   s.SurveyID,
		FromStatus: from,
		ToStatus:   to,
		Reason:     reason,
		ActorType:  actor,
		CreatedAt:  now,
	})
	if err != nil {
		return fmt.Errorf("append transition: %w", err)
	}
	sessionTransitions.WithLabelValues(string(to)).Inc()
	return nil
}

// AuditService exposes the audit trail for forensic review.
type AuditService struct {
	DB *gorm.DB
}

// ListAudit returns a page of audit rows for a survey, newest first.
// Admin only.
func (s *AuditService) ListAudit(ctx context.Context, actor *domain.User, surveyID string, page, pageSize int) ([]domain.AuditLog, int64, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, 0, err
	}
	if _, err := manageableSurvey(ctx, s.DB, actor, surveyID); err != nil {
		return nil, 0, err
	}
	page, pageSize = normalizePage(page, pageSize)
	total, err := repo.CountAudit(ctx, s.DB, surveyID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.AuditLog{}, 0, nil
	}
	items, err := repo.ListAudit(ctx, s.DB, surveyID, (page-1)*pageSize, pageSize)
	return items, total, err
}
