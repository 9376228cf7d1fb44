// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants and the translation of
// service failures into HTTP responses (via `writeError`). Codes give clients a
// stable, machine-readable error taxonomy that supplements human-readable
// messages.
//
// Conventions:
//   - Codes are lowercase snake_case.
//   - Generic codes (bad_request, unauthorized, conflict) mirror HTTP status
//     semantics and are used for transport-level failures (bad JSON, bad
//     query parameters, unknown routes).
//   - Domain codes are the service error kinds lowercased, e.g.
//     INVITE_EXPIRED becomes invite_expired, so clients can branch on the
//     exact business rule that rejected the request.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "session_completed",
//	  "message": "SESSION_COMPLETED: session is already completed"
//	}
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-survey-backend/internal/http/middleware"
	"github.com/tbourn/go-survey-backend/internal/services"
)

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	ErrCodeMethodNotAllowed = "method_not_allowed"
)

// statusFor maps a service error code to its HTTP status.
func statusFor(code services.Code) int {
	switch code {
	case services.CodeUnauthorized:
		return http.StatusUnauthorized
	case services.CodeForbidden:
		return http.StatusForbidden
	case services.CodeNotFound:
		return http.StatusNotFound
	case services.CodeInvalidAnswer, services.CodeInvalidFieldID,
		services.CodeInvalidFieldSet, services.CodeMissingRequiredField,
		services.CodeExportTooLarge:
		return http.StatusUnprocessableEntity
	case services.CodeInvalidInput, services.CodeInvalidSlug,
		services.CodeInvalidRespondentKey, services.CodeInvalidDateRange:
		return http.StatusBadRequest
	case services.CodeSessionCompleted, services.CodeSlugTaken:
		return http.StatusConflict
	case services.CodeInviteExpired, services.CodeInviteExhausted, services.CodeInviteUnavailable:
		return http.StatusGone
	case services.CodeWindowTooLarge:
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusInternalServerError
}

// writeError translates err into the standard error envelope. Unclassified
// errors become 500 internal_error with a generic message; the cause is
// logged, never returned.
func writeError(c *gin.Context, err error) {
	code := services.CodeOf(err)
	status := statusFor(code)
	if status == http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().Err(err).Str("path", c.FullPath()).Msg("unhandled service error")
		fail(c, status, ErrCodeInternal, "internal server error")
		return
	}
	fail(c, status, strings.ToLower(string(code)), err.Error())
}
