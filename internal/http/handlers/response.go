package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-survey-backend/internal/http/middleware"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	// Echo of X-Request-ID for correlating with server logs
	RequestID string `json:"request_id,omitempty" example:"7d0f7c62-0f8b-4f8e-9d7a-2d7a4b0c9e11"`
	// Machine-readable, lowercase snake_case
	Code string `json:"code" example:"invite_expired"`
	// Human-readable; safe to show to respondents
	Message string `json:"message" example:"INVITE_EXPIRED: invite has expired"`
}

// fail aborts with the error envelope. 5xx responses are also logged, since
// their message is generic and the log line is the only record of the cause.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("request failed")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: middleware.RequestIDFrom(c),
		Code:      code,
		Message:   msg,
	})
}

// Fail lets the router answer NoRoute/NoMethod with the same envelope.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// okNoStore is ok for bodies that carry secrets or respondent answers.
func okNoStore(c *gin.Context, status int, body any) {
	c.Header("Cache-Control", "no-store")
	c.JSON(status, body)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// notModified sets etag and, when If-None-Match lists it (or "*"), answers
// 304 and reports true.
func notModified(c *gin.Context, etag string) bool {
	c.Header("ETag", etag)
	inm := c.GetHeader("If-None-Match")
	if inm == "" {
		return false
	}
	for _, cand := range strings.Split(inm, ",") {
		if cand = strings.TrimSpace(cand); cand == etag || cand == "*" {
			c.Status(http.StatusNotModified)
			return true
		}
	}
	return false
}
