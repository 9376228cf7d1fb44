// Invite HTTP handlers.
//
// This file exposes admin endpoints for invite links:
//   - POST /surveys/{id}/invites       (issue; the plaintext token is returned once)
//   - GET  /surveys/{id}/invites       (list with computed state)
//   - POST /admin/invites/{id}/revoke  (revoke)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-survey-backend/internal/services"
)

// ListInvitesResponse wraps a page of invites and pagination information.
type ListInvitesResponse struct {
	Invites    []services.InviteView `json:"invites"`
	Pagination Pagination            `json:"pagination"`
}

// CreateInvite godoc
// @ID          createInvite
// @Summary     Issue an invite
// @Description Issues an invite bound to the survey's current published version. The token and URL are returned only in this response.
// @Tags        Invites
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       id    path  string                      true  "Survey ID (UUID)"  format(uuid)
// @Param       body  body  services.CreateInviteInput  true  "Invite payload"
//
// @Success     201  {object}  services.CreatedInvite
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Survey not found"
// @Router      /surveys/{id}/invites [post]
func (h *Handlers) CreateInvite(c *gin.Context) {
	var req services.CreateInviteInput
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	ci, err := h.invites.CreateInvite(c.Request.Context(), currentUser(c), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	okNoStore(c, http.StatusCreated, ci)
}

// ListInvites godoc
// @ID          listInvites
// @Summary     List invites (paginated)
// @Tags        Invites
// @Produce     json
// @Security    BearerAuth
//
// @Param       id         path   string  true   "Survey ID (UUID)"  format(uuid)
// @Param       page       query  int     false  "Page number"       minimum(1) default(1)
// @Param       page_size  query  int     false  "Items per page"    minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListInvitesResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Survey not found"
// @Router      /surveys/{id}/invites [get]
func (h *Handlers) ListInvites(c *gin.Context) {
	page, pageSize := clampPagination(c)
	items, total, err := h.invites.ListInvites(c.Request.Context(), currentUser(c), c.Param("id"), page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, ListInvitesResponse{Invites: items, Pagination: pageOf(page, pageSize, total)})
}

// RevokeInvite godoc
// @ID          revokeInvite
// @Summary     Revoke an invite
// @Description Revokes an active invite. Revoking a non-active invite is a no-op.
// @Tags        Invites
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  string  true  "Invite ID (UUID)"  format(uuid)
//
// @Success     200  {object}  domain.Invite
// @Failure     403  {object}  handlers.ErrorResponse  "Forbidden"
// @Failure     404  {object}  handlers.ErrorResponse  "Invite not found"
// @Router      /admin/invites/{id}/revoke [post]
func (h *Handlers) RevokeInvite(c *gin.Context) {
	inv, err := h.invites.RevokeInvite(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, inv)
}
