// Admin HTTP handlers.
//
//   - GET  /surveys/{id}/sessions/idle     (dormant sessions of a survey)
//   - GET  /surveys/{id}/audit             (audit trail, admin only)
//   - GET  /admin/outbox/failed            (dead-lettered outbox entries)
//   - POST /admin/outbox/{id}/requeue      (retry a dead-lettered entry)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-survey-backend/internal/domain"
	"github.com/tbourn/go-survey-backend/internal/utils"
)

// ListSessionsResponse wraps a page of sessions.
type ListSessionsResponse struct {
	Sessions   []domain.SurveySession `json:"sessions"`
	Pagination Pagination             `json:"pagination"`
}

// ListAuditResponse wraps a page of audit rows.
type ListAuditResponse struct {
	Entries    []domain.AuditLog `json:"entries"`
	Pagination Pagination        `json:"pagination"`
}

// ListOutboxResponse wraps a page of outbox entries.
type ListOutboxResponse struct {
	Entries    []domain.AnalyticsOutbox `json:"entries"`
	Pagination Pagination               `json:"pagination"`
}

// IdleSessions godoc
// @ID          listIdleSessions
// @Summary     List dormant sessions
// @Tags        Surveys
// @Produce     json
// @Security    BearerAuth
//
// @Param       id         path   string  true   "Survey ID (UUID)"  format(uuid)
// @Param       status     query  string  false  "Comma-separated statuses (idle, abandoned)"  default(idle)
// @Param       page       query  int     false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false  "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListSessionsResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid status"
// @Router      /surveys/{id}/sessions/idle [get]
func (h *Handlers) IdleSessions(c *gin.Context) {
	page, pageSize := clampPagination(c)
	var statuses []domain.SessionStatus
	for _, s := range utils.SplitList(c.Query("status")) {
		statuses = append(statuses, domain.SessionStatus(s))
	}
	items, total, err := h.sessions.ListIdleSessions(c.Request.Context(), currentUser(c), c.Param("id"), statuses, page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, ListSessionsResponse{Sessions: items, Pagination: pageOf(page, pageSize, total)})
}

// Audit godoc
// @ID          listAudit
// @Summary     Survey audit trail
// @Description Newest first. Admin only.
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
//
// @Param       id         path   string  true   "Survey ID (UUID)"  format(uuid)
// @Param       page       query  int     false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false  "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListAuditResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Forbidden"
// @Router      /surveys/{id}/audit [get]
func (h *Handlers) Audit(c *gin.Context) {
	page, pageSize := clampPagination(c)
	items, total, err := h.audit.ListAudit(c.Request.Context(), currentUser(c), c.Param("id"), page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, ListAuditResponse{Entries: items, Pagination: pageOf(page, pageSize, total)})
}

// FailedOutbox godoc
// @ID          listFailedOutbox
// @Summary     List dead-lettered outbox entries
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
//
// @Param       page       query  int  false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int  false  "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListOutboxResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Forbidden"
// @Router      /admin/outbox/failed [get]
func (h *Handlers) FailedOutbox(c *gin.Context) {
	page, pageSize := clampPagination(c)
	items, total, err := h.outbox.ListFailed(c.Request.Context(), currentUser(c), page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, ListOutboxResponse{Entries: items, Pagination: pageOf(page, pageSize, total)})
}

// RequeueOutbox godoc
// @ID          requeueOutbox
// @Summary     Requeue a dead-lettered outbox entry
// @Description Resets the entry to pending with a fresh attempt budget.
// @Tags        Admin
// @Security    BearerAuth
//
// @Param       id  path  string  true  "Outbox entry ID (UUID)"  format(uuid)
//
// @Success     204  {string}  string  "No Content"
// @Failure     403  {object}  handlers.ErrorResponse  "Forbidden"
// @Failure     404  {object}  handlers.ErrorResponse  "No failed entry with this id"
// @Router      /admin/outbox/{id}/requeue [post]
func (h *Handlers) RequeueOutbox(c *gin.Context) {
	if err := h.outbox.Requeue(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	noContent(c)
}
