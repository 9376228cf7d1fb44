// Analytics HTTP handlers.
//
// Every read is served from materialized daily rollups over the window given
// by the `from` and `to` query parameters (YYYY-MM-DD, inclusive, UTC). With
// neither bound the window is the last 30 days; with one bound it is that
// single day.
//
//   - GET /surveys/{id}/analytics/funnel
//   - GET /surveys/{id}/analytics/scoring
//   - GET /surveys/{id}/analytics/trend
//   - GET /surveys/{id}/analytics/fields
//   - GET /surveys/{id}/analytics/fields/{fieldId}/answers
//   - GET /surveys/{id}/analytics/fields/{fieldId}/text
//   - GET /surveys/{id}/analytics/dropoff
//   - GET /surveys/{id}/analytics/export.csv
//   - POST /admin/analytics/rebuild
package handlers

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-survey-backend/internal/services"
)

// TrendResponse wraps a daily trend series.
type TrendResponse struct {
	Points []services.TrendPoint `json:"points"`
}

// FieldsResponse wraps per-field answer statistics.
type FieldsResponse struct {
	Fields []services.FieldStat `json:"fields"`
}

// DropoffResponse wraps per-step retention.
type DropoffResponse struct {
	Steps []services.StepStat `json:"steps"`
}

// RebuildRequest is the JSON payload for an admin analytics rebuild.
type RebuildRequest struct {
	// SurveyIDs limits the rebuild; empty means every survey with activity.
	SurveyIDs []string `json:"surveyIds"`
	From      string   `json:"from" example:"2026-03-01"`
	To        string   `json:"to"   example:"2026-03-10"`
}

func window(c *gin.Context) (from, to string) { return c.Query("from"), c.Query("to") }

// Funnel godoc
// @ID          analyticsFunnel
// @Summary     Conversion funnel
// @Tags        Analytics
// @Produce     json
// @Security    BearerAuth
//
// @Param       id    path   string  true   "Survey ID (UUID)"  format(uuid)
// @Param       from  query  string  false  "First day (YYYY-MM-DD)"
// @Param       to    query  string  false  "Last day (YYYY-MM-DD)"
//
// @Success     200  {object}  services.Funnel
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid date range"
// @Failure     404  {object}  handlers.ErrorResponse  "Survey not found"
// @Failure     413  {object}  handlers.ErrorResponse  "Window too large"
// @Router      /surveys/{id}/analytics/funnel [get]
func (h *Handlers) Funnel(c *gin.Context) {
	from, to := window(c)
	out, err := h.analytics.GetFunnel(c.Request.Context(), currentUser(c), c.Param("id"), from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

// Scoring godoc
// @ID          analyticsScoring
// @Summary     Scoring summary
// @Tags        Analytics
// @Produce     json
// @Security    BearerAuth
//
// @Param       id    path   string  true   "Survey ID (UUID)"  format(uuid)
// @Param       from  query  string  false  "First day (YYYY-MM-DD)"
// @Param       to    query  string  false  "Last day (YYYY-MM-DD)"
//
// @Success     200  {object}  services.ScoringSummary
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid date range"
// @Failure     404  {object}  handlers.ErrorResponse  "Survey not found"
// @Router      /surveys/{id}/analytics/scoring [get]
func (h *Handlers) Scoring(c *gin.Context) {
	from, to := window(c)
	out, err := h.analytics.GetScoringSummary(c.Request.Context(), currentUser(c), c.Param("id"), from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

// Trend godoc
// @ID          analyticsTrend
// @Summary     Daily trend series
// @Description One point per day of the window, zero-filled.
// @Tags        Analytics
// @Produce     json
// @Security    BearerAuth
//
// @Param       id    path   string  true   "Survey ID (UUID)"  format(uuid)
// @Param       from  query  string  false  "First day (YYYY-MM-DD)"
// @Param       to    query  string  false  "Last day (YYYY-MM-DD)"
//
// @Success     200  {object}  handlers.TrendResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid date range"
// @Router      /surveys/{id}/analytics/trend [get]
func (h *Handlers) Trend(c *gin.Context) {
	from, to := window(c)
	out, err := h.analytics.GetTrendSeries(c.Request.Context(), currentUser(c), c.Param("id"), from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, TrendResponse{Points: out})
}

// Fields godoc
// @ID          analyticsFields
// @Summary     Per-field answer statistics
// @Tags        Analytics
// @Produce     json
// @Security    BearerAuth
//
// @Param       id    path   string  true   "Survey ID (UUID)"  format(uuid)
// @Param       from  query  string  false  "First day (YYYY-MM-DD)"
// @Param       to    query  string  false  "Last day (YYYY-MM-DD)"
//
// @Success     200  {object}  handlers.FieldsResponse
// @Router      /surveys/{id}/analytics/fields [get]
func (h *Handlers) Fields(c *gin.Context) {
	from, to := window(c)
	out, err := h.analytics.GetFieldBreakdown(c.Request.Context(), currentUser(c), c.Param("id"), from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, FieldsResponse{Fields: out})
}

// Answers godoc
// @ID          analyticsAnswers
// @Summary     Answer distribution for one field
// @Tags        Analytics
// @Produce     json
// @Security    BearerAuth
//
// @Param       id       path   string  true   "Survey ID (UUID)"  format(uuid)
// @Param       fieldId  path   string  true   "Field id"
// @Param       from     query  string  false  "First day (YYYY-MM-DD)"
// @Param       to       query  string  false  "Last day (YYYY-MM-DD)"
//
// @Success     200  {object}  services.AnswerBreakdown
// @Failure     422  {object}  handlers.ErrorResponse  "Unknown field"
// @Router      /surveys/{id}/analytics/fields/{fieldId}/answers [get]
func (h *Handlers) Answers(c *gin.Context) {
	from, to := window(c)
	out, err := h.analytics.GetAnswerBreakdown(c.Request.Context(), currentUser(c), c.Param("id"), c.Param("fieldId"), from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

// TextInsights godoc
// @ID          analyticsText
// @Summary     Text insights for one free-text field
// @Tags        Analytics
// @Produce     json
// @Security    BearerAuth
//
// @Param       id       path   string  true   "Survey ID (UUID)"  format(uuid)
// @Param       fieldId  path   string  true   "Field id"
// @Param       from     query  string  false  "First day (YYYY-MM-DD)"
// @Param       to       query  string  false  "Last day (YYYY-MM-DD)"
//
// @Success     200  {object}  services.TextInsights
// @Failure     422  {object}  handlers.ErrorResponse  "Unknown field"
// @Router      /surveys/{id}/analytics/fields/{fieldId}/text [get]
func (h *Handlers) TextInsights(c *gin.Context) {
	from, to := window(c)
	out, err := h.analytics.GetTextInsights(c.Request.Context(), currentUser(c), c.Param("id"), c.Param("fieldId"), from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

// Dropoff godoc
// @ID          analyticsDropoff
// @Summary     Drop-off by step
// @Tags        Analytics
// @Produce     json
// @Security    BearerAuth
//
// @Param       id    path   string  true   "Survey ID (UUID)"  format(uuid)
// @Param       from  query  string  false  "First day (YYYY-MM-DD)"
// @Param       to    query  string  false  "Last day (YYYY-MM-DD)"
//
// @Success     200  {object}  handlers.DropoffResponse
// @Router      /surveys/{id}/analytics/dropoff [get]
func (h *Handlers) Dropoff(c *gin.Context) {
	from, to := window(c)
	out, err := h.analytics.GetDropoffByStep(c.Request.Context(), currentUser(c), c.Param("id"), from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, DropoffResponse{Steps: out})
}

// ExportCSV godoc
// @ID          analyticsExport
// @Summary     Export daily rollups as CSV
// @Description One row per (day, field); days without field rows carry empty field columns.
// @Tags        Analytics
// @Produce     text/csv
// @Security    BearerAuth
//
// @Param       id    path   string  true   "Survey ID (UUID)"  format(uuid)
// @Param       from  query  string  false  "First day (YYYY-MM-DD)"
// @Param       to    query  string  false  "Last day (YYYY-MM-DD)"
//
// @Success     200  {string}  string  "CSV document"
// @Failure     422  {object}  handlers.ErrorResponse  "Export too large"
// @Router      /surveys/{id}/analytics/export.csv [get]
func (h *Handlers) ExportCSV(c *gin.Context) {
	from, to := window(c)
	id := c.Param("id")
	var buf bytes.Buffer
	if err := h.analytics.WriteCSVExport(c.Request.Context(), currentUser(c), id, from, to, &buf); err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="survey-%s-analytics.csv"`, id))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// RebuildAnalytics godoc
// @ID          rebuildAnalytics
// @Summary     Rebuild analytics for a window
// @Description Recomputes every daily rollup in the window from raw responses and sessions. Admin only.
// @Tags        Admin
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  handlers.RebuildRequest  true  "Rebuild window"
//
// @Success     200  {object}  services.RebuildReport
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid date range"
// @Failure     403  {object}  handlers.ErrorResponse  "Forbidden"
// @Failure     413  {object}  handlers.ErrorResponse  "Window too large"
// @Router      /admin/analytics/rebuild [post]
func (h *Handlers) RebuildAnalytics(c *gin.Context) {
	var req RebuildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	rep, err := h.analytics.RebuildWindowAs(c.Request.Context(), currentUser(c), req.SurveyIDs, req.From, req.To)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, rep)
}
