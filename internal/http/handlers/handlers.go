// Package handlers implements the HTTP endpoints of the survey API.
//
// Handlers are transport-thin: they bind and sanity-check input, call the
// application services through the narrow interfaces declared here, and
// translate results (or classified service errors) into JSON responses.
//
// Two audiences are served:
//   - respondents, anonymous and identified only by invite token and session
//     public id (respondent_handler.go)
//   - authenticated survey owners and admins (survey, invite, analytics and
//     admin handlers), whose user is placed in the Gin context by the auth
//     middleware
package handlers

import (
	"context"
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-survey-backend/internal/domain"
	"github.com/tbourn/go-survey-backend/internal/http/middleware"
	"github.com/tbourn/go-survey-backend/internal/services"
	"github.com/tbourn/go-survey-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// SurveyService defines survey authoring operations.
type SurveyService interface {
	CreateSurvey(ctx context.Context, actor *domain.User, in services.CreateSurveyInput) (*domain.Survey, error)
	UpdateSurvey(ctx context.Context, actor *domain.User, surveyID string, in services.UpdateSurveyInput) (*domain.Survey, error)
	CreateVersionDraft(ctx context.Context, actor *domain.User, surveyID string, in services.VersionDraftInput) (*domain.SurveyVersion, error)
	PublishVersion(ctx context.Context, actor *domain.User, surveyID, versionID string) (*domain.SurveyVersion, error)
	ListSurveys(ctx context.Context, actor *domain.User, status domain.SurveyStatus, page, pageSize int) ([]domain.Survey, int64, error)
	Stats(ctx context.Context, actor *domain.User, status domain.SurveyStatus) (int64, *time.Time, error)
	GetSurveyDetail(ctx context.Context, actor *domain.User, surveyID string) (*services.SurveyDetail, error)
}

// InviteService defines invite issuance, revocation and resolution.
type InviteService interface {
	CreateInvite(ctx context.Context, actor *domain.User, surveyID string, in services.CreateInviteInput) (*services.CreatedInvite, error)
	RevokeInvite(ctx context.Context, actor *domain.User, inviteID string) (*domain.Invite, error)
	ListInvites(ctx context.Context, actor *domain.User, surveyID string, page, pageSize int) ([]services.InviteView, int64, error)
	ResolveInvite(ctx context.Context, token string) (*services.ResolvedInvite, error)
}

// SessionService defines the respondent session state machine.
type SessionService interface {
	StartOrResume(ctx context.Context, token, respondentKey, priorPublicID string) (*services.SessionView, error)
	SaveAnswer(ctx context.Context, publicID, fieldID string, value domain.AnswerValue) (*services.SaveResult, error)
	Submit(ctx context.Context, publicID string) (*services.SubmitResult, error)
	Receipt(ctx context.Context, publicID string) (*services.SubmitResult, error)
	Snapshot(ctx context.Context, publicID string) (*services.SessionSnapshot, error)
	ListIdleSessions(ctx context.Context, actor *domain.User, surveyID string, statuses []domain.SessionStatus, page, pageSize int) ([]domain.SurveySession, int64, error)
}

// AnalyticsService defines rollup reads, export and admin rebuilds.
type AnalyticsService interface {
	GetFunnel(ctx context.Context, actor *domain.User, surveyID, from, to string) (*services.Funnel, error)
	GetScoringSummary(ctx context.Context, actor *domain.User, surveyID, from, to string) (*services.ScoringSummary, error)
	GetTrendSeries(ctx context.Context, actor *domain.User, surveyID, from, to string) ([]services.TrendPoint, error)
	GetFieldBreakdown(ctx context.Context, actor *domain.User, surveyID, from, to string) ([]services.FieldStat, error)
	GetDropoffByStep(ctx context.Context, actor *domain.User, surveyID, from, to string) ([]services.StepStat, error)
	GetAnswerBreakdown(ctx context.Context, actor *domain.User, surveyID, fieldID, from, to string) (*services.AnswerBreakdown, error)
	GetTextInsights(ctx context.Context, actor *domain.User, surveyID, fieldID, from, to string) (*services.TextInsights, error)
	WriteCSVExport(ctx context.Context, actor *domain.User, surveyID, from, to string, w io.Writer) error
	RebuildWindowAs(ctx context.Context, actor *domain.User, surveyIDs []string, from, to string) (*services.RebuildReport, error)
}

// AuditService exposes the audit trail.
type AuditService interface {
	ListAudit(ctx context.Context, actor *domain.User, surveyID string, page, pageSize int) ([]domain.AuditLog, int64, error)
}

// OutboxService exposes dead-lettered outbox entries.
type OutboxService interface {
	ListFailed(ctx context.Context, actor *domain.User, page, pageSize int) ([]domain.AnalyticsOutbox, int64, error)
	Requeue(ctx context.Context, actor *domain.User, id string) error
}

// IdempotencyStore persists the outcome of keyed requests.
type IdempotencyStore interface {
	// Lookup returns the resource id recorded for (actor, scope, key).
	Lookup(ctx context.Context, actor, scope, key string) (resourceID string, found bool, err error)
	// Remember records resourceID for (actor, scope, key).
	Remember(ctx context.Context, actor, scope, key, resourceID string, status int) error
}

//
// Handler wiring
//

// Services bundles the dependencies of Handlers.
type Services struct {
	Surveys     SurveyService
	Invites     InviteService
	Sessions    SessionService
	Analytics   AnalyticsService
	Audit       AuditService
	Outbox      OutboxService
	Idempotency IdempotencyStore
}

// Handlers groups every HTTP endpoint of the API.
type Handlers struct {
	surveys   SurveyService
	invites   InviteService
	sessions  SessionService
	analytics AnalyticsService
	audit     AuditService
	outbox    OutboxService
	idem      IdempotencyStore
}

// New constructs Handlers bound to s.
func New(s Services) *Handlers {
	return &Handlers{
		surveys:   s.Surveys,
		invites:   s.Invites,
		sessions:  s.Sessions,
		analytics: s.Analytics,
		audit:     s.Audit,
		outbox:    s.Outbox,
		idem:      s.Idempotency,
	}
}

// currentUser returns the authenticated user, or nil on respondent routes.
// Services reject a nil actor with UNAUTHORIZED.
func currentUser(c *gin.Context) *domain.User { return middleware.UserFrom(c) }

//
// DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

//
// Helpers
//

// clampPagination reads the page and page_size query params.
func clampPagination(c *gin.Context) (page, pageSize int) {
	return utils.PageParams(c.Query("page"), c.Query("page_size"))
}

// pageOf builds Pagination for a result page.
func pageOf(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}
