// Respondent HTTP handlers.
//
// This file exposes the anonymous endpoints a respondent uses to fill in a
// survey:
//   - GET  /invites/{token}                       (resolve an invite link)
//   - POST /invites/{token}/sessions              (start or resume a session)
//   - GET  /sessions/{publicId}                   (session snapshot)
//   - PUT  /sessions/{publicId}/answers/{fieldId} (save one answer)
//   - POST /sessions/{publicId}/submit            (submit)
//
// Idempotency:
// If the client supplies an Idempotency-Key header on submit and a previous
// successful submission exists for the same key and session, the handler
// returns the recorded receipt and sets `Idempotency-Replayed: true`.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-survey-backend/internal/domain"
	"github.com/tbourn/go-survey-backend/internal/http/middleware"
)

// StartSessionRequest is the JSON payload for starting or resuming a session.
type StartSessionRequest struct {
	// RespondentKey is a client-held opaque identifier (12 to 128 chars).
	RespondentKey string `json:"respondentKey" example:"k3y-6f1c2e7a9b0d"`
	// PriorSessionID optionally names a session the client saw before.
	PriorSessionID string `json:"priorSessionId,omitempty"`
}

// SaveAnswerRequest is the JSON payload for saving one answer. Value is a
// string, number, array of strings, or null (which clears the answer).
type SaveAnswerRequest struct {
	Value domain.AnswerValue `json:"value" swaggertype:"object"`
}

// ResolveInvite godoc
// @ID          resolveInvite
// @Summary     Resolve an invite link
// @Description Returns the invite's current state and the survey version it serves. Never mutates state.
// @Tags        Respondent
// @Produce     json
//
// @Param       token  path  string  true  "Invite token"
//
// @Success     200  {object}  services.ResolvedInvite
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown token"
// @Router      /invites/{token} [get]
func (h *Handlers) ResolveInvite(c *gin.Context) {
	ri, err := h.invites.ResolveInvite(c.Request.Context(), c.Param("token"))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, ri)
}

// StartSession godoc
// @ID          startSession
// @Summary     Start or resume a session
// @Description Resumes the respondent's open session on this invite, or starts a new one. Returns 201 for a new session and 200 for a resumed one.
// @Tags        Respondent
// @Accept      json
// @Produce     json
//
// @Param       token  path  string                        true  "Invite token"
// @Param       body   body  handlers.StartSessionRequest  true  "Respondent identity"
//
// @Success     200  {object}  services.SessionView  "Resumed"
// @Success     201  {object}  services.SessionView  "Started"
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid respondent key"
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown token"
// @Failure     410  {object}  handlers.ErrorResponse  "Invite expired, exhausted or unavailable"
// @Router      /invites/{token}/sessions [post]
func (h *Handlers) StartSession(c *gin.Context) {
	var req StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	v, err := h.sessions.StartOrResume(c.Request.Context(), c.Param("token"), req.RespondentKey, strings.TrimSpace(req.PriorSessionID))
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusCreated
	if v.Resumed {
		status = http.StatusOK
	}
	ok(c, status, v)
}

// GetSession godoc
// @ID          getSession
// @Summary     Get a session snapshot
// @Tags        Respondent
// @Produce     json
//
// @Param       publicId  path  string  true  "Session public id"
//
// @Success     200  {object}  services.SessionSnapshot
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Router      /sessions/{publicId} [get]
func (h *Handlers) GetSession(c *gin.Context) {
	snap, err := h.sessions.Snapshot(c.Request.Context(), c.Param("publicId"))
	if err != nil {
		writeError(c, err)
		return
	}
	if snap == nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
		return
	}
	okNoStore(c, http.StatusOK, snap)
}

// SaveAnswer godoc
// @ID          saveAnswer
// @Summary     Save an answer
// @Description Validates and stores one answer. A null value clears it. Saving reactivates an idle or abandoned session.
// @Tags        Respondent
// @Accept      json
// @Produce     json
//
// @Param       publicId  path  string                      true  "Session public id"
// @Param       fieldId   path  string                      true  "Field id"
// @Param       body      body  handlers.SaveAnswerRequest  true  "Answer value"
//
// @Success     200  {object}  services.SaveResult
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Session completed"
// @Failure     422  {object}  handlers.ErrorResponse  "Invalid answer or unknown field"
// @Router      /sessions/{publicId}/answers/{fieldId} [put]
func (h *Handlers) SaveAnswer(c *gin.Context) {
	var req SaveAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if errors.Is(err, domain.ErrUnsupportedAnswer) {
			fail(c, http.StatusUnprocessableEntity, "invalid_answer", err.Error())
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	res, err := h.sessions.SaveAnswer(c.Request.Context(), c.Param("publicId"), c.Param("fieldId"), req.Value)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// SubmitSession godoc
// @ID          submitSession
// @Summary     Submit a session
// @Description Validates every answer, freezes grading and completes the session.
// @Description Supports idempotency via the Idempotency-Key header (same key returns the same receipt).
// @Tags        Respondent
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false  "Idempotency key for safe retries"
// @Param       publicId         path    string  true   "Session public id"
//
// @Success     200  {object}  services.SubmitResult
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Session completed"
// @Failure     410  {object}  handlers.ErrorResponse  "Invite expired or exhausted"
// @Failure     422  {object}  handlers.ErrorResponse  "Missing required field or invalid answer"
// @Router      /sessions/{publicId}/submit [post]
func (h *Handlers) SubmitSession(c *gin.Context) {
	ctx := c.Request.Context()
	publicID := c.Param("publicId")
	idemKey, hasKey := middleware.GetIdempotencyKey(c)
	actor, scope := middleware.IdempotencyScope(c)

	// Idempotency (replay path).
	if hasKey && h.idem != nil {
		if rid, found, err := h.idem.Lookup(ctx, actor, scope, idemKey); err == nil && found {
			if prev, err := h.sessions.Receipt(ctx, publicID); err == nil && prev.ResponseID == rid {
				c.Header("Idempotency-Replayed", "true")
				ok(c, http.StatusOK, prev)
				return
			}
		}
	}

	res, err := h.sessions.Submit(ctx, publicID)
	if err != nil {
		writeError(c, err)
		return
	}

	// Idempotency (store path) - best effort.
	if hasKey && h.idem != nil {
		if err := h.idem.Remember(ctx, actor, scope, idemKey, res.ResponseID, http.StatusOK); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("store idempotency record")
		}
	}
	ok(c, http.StatusOK, res)
}
