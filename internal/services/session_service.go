// Package services – SessionService
//
// This file implements the respondent session state machine:
//
//	start      -> in_progress
//	resume     idle|abandoned -> in_progress (reactivated)
//	save       idle|abandoned -> in_progress (reactivated), activity refreshed
//	submit     in_progress|idle|abandoned -> completed (terminal)
//	idle sweep in_progress -> idle
//	abandon    in_progress|idle -> abandoned
//
// Each transition appends a SessionTransition row and bumps the day's live
// funnel counter in the same transaction as the state change. Sweeps only
// move sessions forward; reactivation happens solely through respondent
// activity.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-survey-backend/internal/analytics"
	"github.com/tbourn/go-survey-backend/internal/domain"
	"github.com/tbourn/go-survey-backend/internal/repo"
	"github.com/tbourn/go-survey-backend/internal/validation"
)

// RebuildScheduler accepts (survey, day) pairs whose rollups are stale.
// Schedule must not block.
type RebuildScheduler interface {
	Schedule(surveyID, dateKey string)
}

// SessionService runs the respondent session lifecycle.
type SessionService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Now is the service clock.
	Now Clock

	// Rebuilds receives the affected day after each submission. Optional.
	Rebuilds RebuildScheduler
	// Telemetry receives best-effort product events. Optional.
	Telemetry Telemetry

	// IdleAfter is the inactivity after which in_progress becomes idle.
	IdleAfter time.Duration
	// AbandonAfter is the inactivity after which a session is abandoned.
	AbandonAfter time.Duration
	// BatchSize caps the sessions moved by one sweep invocation.
	BatchSize int
}

// NewSessionService constructs a SessionService with default thresholds.
func NewSessionService(db *gorm.DB) *SessionService {
	return &SessionService{
		DB:           db,
		Telemetry:    LogTelemetry{},
		IdleAfter:    15 * time.Minute,
		AbandonAfter: 24 * time.Hour,
		BatchSize:    200,
	}
}

// SessionView is the respondent's handle on a started or resumed session.
type SessionView struct {
	SessionPublicID string               `json:"sessionPublicId"`
	Status          domain.SessionStatus `json:"status"`
	Resumed         bool                 `json:"resumed"`
	Progress        validation.Progress  `json:"progress"`
	Answers         domain.Answers       `json:"answers"`
}

// SaveResult reports the session after an answer was saved.
type SaveResult struct {
	ProgressPercent int                  `json:"progressPercent"`
	Progress        validation.Progress  `json:"progress"`
	Status          domain.SessionStatus `json:"status"`
}

// SubmitResult is returned by a successful submission. ScorePercent is set
// only when the version shows the score on completion.
type SubmitResult struct {
	ResponseID      string    `json:"responseId"`
	CompletedAt     time.Time `json:"completedAt"`
	ScorePercent    *float64  `json:"scorePercent,omitempty"`
	ThankYouMessage string    `json:"thankYouMessage,omitempty"`
}

// SessionSnapshot is the full respondent-visible state of a session.
type SessionSnapshot struct {
	SessionPublicID string                 `json:"sessionPublicId"`
	SurveyID        string                 `json:"surveyId"`
	VersionID       string                 `json:"versionId"`
	Status          domain.SessionStatus   `json:"status"`
	Answers         domain.Answers         `json:"answers"`
	Progress        validation.Progress    `json:"progress"`
	Fields          []domain.Field         `json:"fields"`
	Settings        domain.VersionSettings `json:"settings"`
	StartedAt       time.Time              `json:"startedAt"`
	LastActivityAt  time.Time              `json:"lastActivityAt"`
	CompletedAt     *time.Time             `json:"completedAt,omitempty"`
}

// bump increments one live funnel counter for the UTC day of at.
func bump(ctx context.Context, tx *gorm.DB, surveyID string, m domain.DailyMetric, at time.Time) error {
	if err := repo.BumpDailyMetric(ctx, tx, surveyID, analytics.DateKey(at), m, 1); err != nil {
		return fmt.Errorf("bump %s: %w", m, err)
	}
	return nil
}

// reactivate moves a dormant session back to in_progress.
func reactivate(ctx context.Context, tx *gorm.DB, sess *domain.SurveySession, reason string, now time.Time) error {
	from := sess.Status
	sess.Status = domain.SessionInProgress
	if err := recordTransition(ctx, tx, sess, from, domain.SessionInProgress, reason, domain.ActorRespondent, now); err != nil {
		return err
	}
	return bump(ctx, tx, sess.SurveyID, domain.MetricReactivated, now)
}

// StartOrResume opens a session for (token, respondentKey), resuming the
// respondent's open session when one exists. priorPublicID is preferred when
// it names an open session of the same invite and respondent.
//
// The invite must be usable: an invite found stale is reclassified and
// committed before INVITE_UNAVAILABLE is returned.
func (s *SessionService) StartOrResume(ctx context.Context, token, respondentKey, priorPublicID string) (*SessionView, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "StartOrResume")
	defer span.End()

	if !ValidRespondentKey(respondentKey) {
		return nil, ErrInvalidRespondentKey
	}

	now := s.Now.now()
	var (
		view     *SessionView
		deferred error
		started  bool
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, sv, ver, err := loadInvite(ctx, tx, token)
		if err != nil {
			return err
		}
		span.SetAttributes(attribute.String("survey.id", sv.ID), attribute.String("invite.id", inv.ID))

		state := ComputeUsableState(inv, now)
		if state != domain.InviteActive {
			if err := persistStale(ctx, tx, inv, state, now); err != nil {
				return err
			}
			deferred = ErrInviteUnavailable
			return nil
		}
		if sv.Status == domain.SurveyArchived {
			return ErrInviteUnavailable
		}

		sess, err := s.findResumable(ctx, tx, inv.ID, respondentKey, priorPublicID)
		if err != nil {
			return err
		}

		if sess != nil {
			if sess.Status.Dormant() {
				if err := reactivate(ctx, tx, sess, reasonResume, now); err != nil {
					return err
				}
			}
			sess.LastActivityAt = now
			if err := repo.SaveSessionDraft(ctx, tx, sess); err != nil {
				return fmt.Errorf("resume session: %w", err)
			}
			view = newSessionView(sess, ver, true)
			return nil
		}

		publicID, err := newPublicID()
		if err != nil {
			return fmt.Errorf("generate session id: %w", err)
		}
		sess = &domain.SurveySession{
			ID:             uuid.NewString(),
			PublicID:       publicID,
			SurveyID:       sv.ID,
			VersionID:      ver.ID,
			InviteID:       inv.ID,
			RespondentKey:  respondentKey,
			Status:         domain.SessionInProgress,
			Answers:        domain.Answers{},
			StartedAt:      now,
			LastActivityAt: now,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := repo.CreateSession(ctx, tx, sess); err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		if err := recordTransition(ctx, tx, sess, "", domain.SessionInProgress, reasonStart, domain.ActorRespondent, now); err != nil {
			return err
		}
		if err := bump(ctx, tx, sv.ID, domain.MetricStarted, now); err != nil {
			return err
		}
		if err := enqueue(ctx, tx, Event{
			Type:       EventSessionStarted,
			SurveyID:   sv.ID,
			VersionID:  ver.ID,
			InviteID:   inv.ID,
			SessionID:  sess.PublicID,
			OccurredAt: now,
		}); err != nil {
			return err
		}
		started = true
		view = newSessionView(sess, ver, false)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if deferred != nil {
		return nil, deferred
	}
	if started {
		capture(ctx, s.Telemetry, EventSessionStarted, map[string]any{"session": view.SessionPublicID})
	}
	return view, nil
}

// findResumable returns the respondent's open session, or nil.
func (s *SessionService) findResumable(ctx context.Context, tx *gorm.DB, inviteID, respondentKey, priorPublicID string) (*domain.SurveySession, error) {
	if priorPublicID != "" {
		prior, err := repo.GetSessionByPublicID(ctx, tx, priorPublicID)
		switch {
		case err == nil:
			if prior.InviteID == inviteID && prior.RespondentKey == respondentKey && prior.Status != domain.SessionCompleted {
				return prior, nil
			}
		case !errors.Is(err, repo.ErrNotFound):
			return nil, err
		}
	}
	open, err := repo.FindOpenSession(ctx, tx, inviteID, respondentKey)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	return open, err
}

func newSessionView(sess *domain.SurveySession, ver *domain.SurveyVersion, resumed bool) *SessionView {
	return &SessionView{
		SessionPublicID: sess.PublicID,
		Status:          sess.Status,
		Resumed:         resumed,
		Progress:        validation.ComputeProgress(ver.Fields, sess.Answers),
		Answers:         sess.Answers.Clone(),
	}
}

// SaveAnswer validates and stores one field's value in the session draft.
// An absent value clears the field. Dormant sessions are reactivated.
func (s *SessionService) SaveAnswer(ctx context.Context, publicID, fieldID string, value domain.AnswerValue) (*SaveResult, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "SaveAnswer", trace.WithAttributes(attribute.String("field.id", fieldID)))
	defer span.End()

	now := s.Now.now()
	var out *SaveResult
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sess, err := repo.GetSessionByPublicID(ctx, tx, publicID)
		if err != nil {
			return notFound(err, "session")
		}
		if sess.Status == domain.SessionCompleted {
			return ErrSessionCompleted
		}
		ver, err := repo.GetVersionByID(ctx, tx, sess.VersionID)
		if err != nil {
			return fmt.Errorf("load version: %w", err)
		}
		f, ok := ver.FieldByID(fieldID)
		if !ok {
			return newErr(CodeInvalidFieldID, "field %q is not part of this survey", fieldID)
		}

		answers := sess.Answers.Clone()
		if answers == nil {
			answers = domain.Answers{}
		}
		if value.IsAbsent() {
			delete(answers, f.ID)
		} else {
			if err := validation.ValidateAnswer(f, value); err != nil {
				return fromValidation(err)
			}
			answers[f.ID] = value
		}
		sess.Answers = answers

		if sess.Status.Dormant() {
			if err := reactivate(ctx, tx, sess, reasonAnswer, now); err != nil {
				return err
			}
		}
		sess.LastActivityAt = now
		if err := repo.SaveSessionDraft(ctx, tx, sess); err != nil {
			return fmt.Errorf("save draft: %w", err)
		}

		p := validation.ComputeProgress(ver.Fields, answers)
		out = &SaveResult{ProgressPercent: p.Percent, Progress: p, Status: sess.Status}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Submit validates the whole draft, freezes grading into a response, and
// completes the session. The invite is re-checked: a stale invite is
// reclassified and committed before INVITE_EXPIRED or INVITE_EXHAUSTED is
// returned.
func (s *SessionService) Submit(ctx context.Context, publicID string) (*SubmitResult, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "Submit")
	defer span.End()

	now := s.Now.now()
	var (
		out      *SubmitResult
		deferred error
		surveyID string
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sess, err := repo.GetSessionByPublicID(ctx, tx, publicID)
		if err != nil {
			return notFound(err, "session")
		}
		if sess.Status == domain.SessionCompleted {
			return ErrSessionCompleted
		}
		surveyID = sess.SurveyID
		span.SetAttributes(attribute.String("survey.id", sess.SurveyID))

		inv, err := repo.GetInvite(ctx, tx, sess.InviteID)
		if err != nil {
			return fmt.Errorf("load invite: %w", err)
		}
		if state := ComputeUsableState(inv, now); state != domain.InviteActive {
			if err := persistStale(ctx, tx, inv, state, now); err != nil {
				return err
			}
			deferred = inviteError(state)
			return nil
		}

		ver, err := repo.GetVersionByID(ctx, tx, sess.VersionID)
		if err != nil {
			return fmt.Errorf("load version: %w", err)
		}
		if err := validation.ValidateAll(ver.Fields, sess.Answers); err != nil {
			return fromValidation(err)
		}
		grading := validation.GradeSubmission(ver.Fields, sess.Answers)

		resp := &domain.SurveyResponse{
			ID:          uuid.NewString(),
			SessionID:   sess.ID,
			SurveyID:    sess.SurveyID,
			VersionID:   sess.VersionID,
			InviteID:    sess.InviteID,
			Answers:     sess.Answers.Clone(),
			Grading:     grading,
			SubmittedAt: now,
			DurationMs:  now.Sub(sess.StartedAt).Milliseconds(),
			CreatedAt:   now,
		}
		if err := repo.CreateResponse(ctx, tx, resp); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return ErrSessionCompleted
			}
			return fmt.Errorf("create response: %w", err)
		}

		ok, err := repo.CompleteSession(ctx, tx, sess.ID, resp.Answers, now)
		if err != nil {
			return fmt.Errorf("complete session: %w", err)
		}
		if !ok {
			return ErrSessionCompleted
		}
		if err := recordTransition(ctx, tx, sess, sess.Status, domain.SessionCompleted, reasonSubmit, domain.ActorRespondent, now); err != nil {
			return err
		}
		if err := bump(ctx, tx, sess.SurveyID, domain.MetricCompleted, now); err != nil {
			return err
		}

		ok, err = repo.IncrementInviteCompletion(ctx, tx, inv.ID, now)
		if err != nil {
			return fmt.Errorf("count completion: %w", err)
		}
		if !ok {
			// A concurrent submission consumed the last completion.
			return ErrInviteExhausted
		}

		score := grading.ScorePercent
		if err := enqueue(ctx, tx, Event{
			Type:         EventResponseSubmitted,
			SurveyID:     sess.SurveyID,
			VersionID:    sess.VersionID,
			InviteID:     sess.InviteID,
			SessionID:    sess.PublicID,
			ResponseID:   resp.ID,
			ScorePercent: &score,
			OccurredAt:   now,
		}); err != nil {
			return err
		}

		out = submitResult(resp, ver.Settings.Data())
		return nil
	})
	if err != nil {
		return nil, err
	}
	if deferred != nil {
		return nil, deferred
	}

	if s.Rebuilds != nil {
		s.Rebuilds.Schedule(surveyID, analytics.DateKey(now))
	}
	capture(ctx, s.Telemetry, EventResponseSubmitted, map[string]any{"survey": surveyID, "response": out.ResponseID})
	return out, nil
}

// submitResult is the respondent-visible outcome of resp under settings.
func submitResult(resp *domain.SurveyResponse, settings domain.VersionSettings) *SubmitResult {
	out := &SubmitResult{ResponseID: resp.ID, CompletedAt: resp.SubmittedAt, ThankYouMessage: settings.ThankYouMessage}
	if settings.ShowScoreOnCompletion && resp.Grading.GradableCount > 0 {
		score := resp.Grading.ScorePercent
		out.ScorePercent = &score
	}
	return out
}

// Receipt returns the SubmitResult of an already completed session. It backs
// idempotent replays of a submission.
func (s *SessionService) Receipt(ctx context.Context, publicID string) (*SubmitResult, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "Receipt")
	defer span.End()

	sess, err := repo.GetSessionByPublicID(ctx, s.DB, publicID)
	if err != nil {
		return nil, notFound(err, "session")
	}
	resp, err := repo.GetResponseBySession(ctx, s.DB, sess.ID)
	if err != nil {
		return nil, notFound(err, "response")
	}
	ver, err := repo.GetVersionByID(ctx, s.DB, resp.VersionID)
	if err != nil {
		return nil, fmt.Errorf("load version: %w", err)
	}
	return submitResult(resp, ver.Settings.Data()), nil
}

// Snapshot returns the session's current state, or nil when publicID is
// unknown.
func (s *SessionService) Snapshot(ctx context.Context, publicID string) (*SessionSnapshot, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "Snapshot")
	defer span.End()

	sess, err := repo.GetSessionByPublicID(ctx, s.DB, publicID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	ver, err := repo.GetVersionByID(ctx, s.DB, sess.VersionID)
	if err != nil {
		return nil, fmt.Errorf("load version: %w", err)
	}
	answers := sess.Answers.Clone()
	if answers == nil {
		answers = domain.Answers{}
	}
	return &SessionSnapshot{
		SessionPublicID: sess.PublicID,
		SurveyID:        sess.SurveyID,
		VersionID:       sess.VersionID,
		Status:          sess.Status,
		Answers:         answers,
		Progress:        validation.ComputeProgress(ver.Fields, answers),
		Fields:          validation.SortedFields(ver.Fields),
		Settings:        ver.Settings.Data(),
		StartedAt:       sess.StartedAt,
		LastActivityAt:  sess.LastActivityAt,
		CompletedAt:     sess.CompletedAt,
	}, nil
}

// sweep describes one forward-only batch transition.
type sweep struct {
	name   string
	from   []domain.SessionStatus
	to     domain.SessionStatus
	after  time.Duration
	reason string
	metric domain.DailyMetric
}

// SweepIdle moves in_progress sessions inactive for IdleAfter to idle.
// It returns the number of sessions moved.
func (s *SessionService) SweepIdle(ctx context.Context) (int, error) {
	return s.runSweep(ctx, sweep{
		name:   "idle",
		from:   []domain.SessionStatus{domain.SessionInProgress},
		to:     domain.SessionIdle,
		after:  s.IdleAfter,
		reason: reasonIdle,
		metric: domain.MetricIdle,
	})
}

// SweepAbandoned moves in_progress and idle sessions inactive for
// AbandonAfter to abandoned. It returns the number of sessions moved.
func (s *SessionService) SweepAbandoned(ctx context.Context) (int, error) {
	return s.runSweep(ctx, sweep{
		name:   "abandon",
		from:   []domain.SessionStatus{domain.SessionInProgress, domain.SessionIdle},
		to:     domain.SessionAbandoned,
		after:  s.AbandonAfter,
		reason: reasonAbandon,
		metric: domain.MetricAbandoned,
	})
}

// runSweep processes one bounded batch. Each session moves in its own
// transaction guarded on status and activity, so a session a respondent
// touched since the listing is skipped rather than regressed.
func (s *SessionService) runSweep(ctx context.Context, sw sweep) (int, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "Sweep", trace.WithAttributes(attribute.String("sweep", sw.name)))
	defer span.End()

	if sw.after <= 0 {
		return 0, nil
	}
	now := s.Now.now()
	cutoff := now.Add(-sw.after)
	limit := s.BatchSize
	if limit <= 0 {
		limit = 200
	}

	stale, err := repo.ListStaleSessions(ctx, s.DB, sw.from, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("list stale sessions: %w", err)
	}

	moved := 0
	for i := range stale {
		sess := &stale[i]
		changed := false
		err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			cur, err := repo.GetSession(ctx, tx, sess.ID)
			if err != nil {
				return err
			}
			ok, err := repo.TransitionIfStale(ctx, tx, cur.ID, sw.from, sw.to, cutoff, now)
			if err != nil || !ok {
				return err
			}
			if err := recordTransition(ctx, tx, cur, cur.Status, sw.to, sw.reason, domain.ActorSystem, now); err != nil {
				return err
			}
			changed = true
			return bump(ctx, tx, cur.SurveyID, sw.metric, now)
		})
		if err != nil {
			log.Error().Err(err).Str("sweep", sw.name).Str("session_id", sess.ID).Msg("sweep transition failed")
			continue
		}
		if changed {
			moved++
		}
	}
	sweepProcessed.WithLabelValues(sw.name).Add(float64(moved))
	span.SetAttributes(attribute.Int("sweep.moved", moved))
	return moved, nil
}

// ListIdleSessions returns a page of a survey's dormant sessions. statuses
// defaults to idle; any of idle and abandoned may be requested.
func (s *SessionService) ListIdleSessions(ctx context.Context, actor *domain.User, surveyID string, statuses []domain.SessionStatus, page, pageSize int) ([]domain.SurveySession, int64, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "ListIdleSessions", trace.WithAttributes(attribute.String("survey.id", surveyID)))
	defer span.End()

	if _, err := manageableSurvey(ctx, s.DB, actor, surveyID); err != nil {
		return nil, 0, err
	}
	if len(statuses) == 0 {
		statuses = []domain.SessionStatus{domain.SessionIdle}
	}
	for _, st := range statuses {
		if !st.Dormant() {
			return nil, 0, newErr(CodeInvalidInput, "status %q is not idle or abandoned", st)
		}
	}
	page, pageSize = normalizePage(page, pageSize)
	total, err := repo.CountSurveySessionsByStatus(ctx, s.DB, surveyID, statuses)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.SurveySession{}, 0, nil
	}
	items, err := repo.ListSurveySessionsByStatus(ctx, s.DB, surveyID, statuses, (page-1)*pageSize, pageSize)
	return items, total, err
}
