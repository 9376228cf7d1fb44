// Survey HTTP handlers.
//
// This file exposes REST endpoints for survey authoring:
//   - POST   /surveys                                  (create)
//   - GET    /surveys                                  (list, paginated, ETag support)
//   - GET    /surveys/{id}                             (detail with versions)
//   - PATCH  /surveys/{id}                             (edit, archive, restore)
//   - POST   /surveys/{id}/versions                    (save draft)
//   - POST   /surveys/{id}/versions/{versionId}/publish (publish draft)
package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-survey-backend/internal/domain"
	"github.com/tbourn/go-survey-backend/internal/services"
)

// ListSurveysResponse wraps a page of surveys and pagination information.
type ListSurveysResponse struct {
	Surveys    []domain.Survey `json:"surveys"`
	Pagination Pagination      `json:"pagination"`
}

// CreateSurvey godoc
// @ID          createSurvey
// @Summary     Create a survey
// @Description Creates a survey owned by the caller. The slug is normalized (lowercase, a-z0-9 and '-').
// @Tags        Surveys
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  services.CreateSurveyInput  true  "Survey payload"
//
// @Success     201  {object}  domain.Survey
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request / invalid slug"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     409  {object}  handlers.ErrorResponse  "Slug taken"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /surveys [post]
func (h *Handlers) CreateSurvey(c *gin.Context) {
	var req services.CreateSurveyInput
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	sv, err := h.surveys.CreateSurvey(c.Request.Context(), currentUser(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusCreated, sv)
}

// ListSurveys godoc
// @ID          listSurveys
// @Summary     List surveys (paginated)
// @Description Returns a page of surveys the caller can manage. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Surveys
// @Produce     json
// @Security    BearerAuth
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       status         query   string  false "Filter by status"  Enums(draft, published, archived)
// @Param       page           query   int     false "Page number"       minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"    minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListSurveysResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /surveys [get]
func (h *Handlers) ListSurveys(c *gin.Context) {
	ctx := c.Request.Context()
	actor := currentUser(c)
	status := domain.SurveyStatus(c.Query("status"))
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if count, maxTS, err := h.surveys.Stats(ctx, actor, status); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.UnixNano()
		}
		etag := fmt.Sprintf(`W/"surveys:%s:%s:%d:%d:%d:%d"`, actor.ID, status, page, pageSize, count, ts)
		if notModified(c, etag) {
			return
		}
	}

	items, total, err := h.surveys.ListSurveys(ctx, actor, status, page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, ListSurveysResponse{Surveys: items, Pagination: pageOf(page, pageSize, total)})
}

// GetSurvey godoc
// @ID          getSurvey
// @Summary     Get a survey
// @Description Returns the survey with its current published version, open draft and version history.
// @Tags        Surveys
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  string  true  "Survey ID (UUID)"  format(uuid)
//
// @Success     200  {object}  services.SurveyDetail
// @Failure     403  {object}  handlers.ErrorResponse  "Forbidden"
// @Failure     404  {object}  handlers.ErrorResponse  "Survey not found"
// @Router      /surveys/{id} [get]
func (h *Handlers) GetSurvey(c *gin.Context) {
	d, err := h.surveys.GetSurveyDetail(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, d)
}

// UpdateSurvey godoc
// @ID          updateSurvey
// @Summary     Update a survey
// @Description Applies the provided fields. status=archived archives; draft or published restores.
// @Tags        Surveys
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       id    path  string                      true  "Survey ID (UUID)"  format(uuid)
// @Param       body  body  services.UpdateSurveyInput  true  "Changes"
//
// @Success     200  {object}  domain.Survey
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Survey not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Slug taken"
// @Router      /surveys/{id} [patch]
func (h *Handlers) UpdateSurvey(c *gin.Context) {
	var req services.UpdateSurveyInput
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	sv, err := h.surveys.UpdateSurvey(c.Request.Context(), currentUser(c), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, sv)
}

// CreateVersion godoc
// @ID          createVersion
// @Summary     Save a version draft
// @Description Validates the field set and stores it as the open draft. An unpublished draft is replaced in place.
// @Tags        Surveys
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       id    path  string                      true  "Survey ID (UUID)"  format(uuid)
// @Param       body  body  services.VersionDraftInput  true  "Fields and settings"
//
// @Success     201  {object}  domain.SurveyVersion
// @Failure     404  {object}  handlers.ErrorResponse  "Survey not found"
// @Failure     422  {object}  handlers.ErrorResponse  "Invalid field set"
// @Router      /surveys/{id}/versions [post]
func (h *Handlers) CreateVersion(c *gin.Context) {
	var req services.VersionDraftInput
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	v, err := h.surveys.CreateVersionDraft(c.Request.Context(), currentUser(c), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusCreated, v)
}

// PublishVersion godoc
// @ID          publishVersion
// @Summary     Publish a version
// @Description Freezes the draft and makes it the survey's current version for new invites.
// @Tags        Surveys
// @Produce     json
// @Security    BearerAuth
//
// @Param       id         path  string  true  "Survey ID (UUID)"   format(uuid)
// @Param       versionId  path  string  true  "Version ID (UUID)"  format(uuid)
//
// @Success     200  {object}  domain.SurveyVersion
// @Failure     404  {object}  handlers.ErrorResponse  "Version not found"
// @Failure     422  {object}  handlers.ErrorResponse  "Invalid field set"
// @Router      /surveys/{id}/versions/{versionId}/publish [post]
func (h *Handlers) PublishVersion(c *gin.Context) {
	v, err := h.surveys.PublishVersion(c.Request.Context(), currentUser(c), c.Param("id"), c.Param("versionId"))
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, v)
}
