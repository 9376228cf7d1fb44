// Package services implements the survey platform's business logic: the
// respondent session state machine, invite lifecycle, survey authoring,
// analytics materialization and reads, the outbox dispatcher, and the audit
// recorder.
//
// This file centralizes the service error taxonomy. Every predictable failure
// is an *AppError carrying a stable Code; handlers translate codes to HTTP
// statuses. Callers compare with errors.Is against the exported sentinels,
// which match on Code alone so a message-specific error still matches.
package services

import (
	"errors"
	"fmt"

	"github.com/tbourn/go-survey-backend/internal/analytics"
	"github.com/tbourn/go-survey-backend/internal/repo"
	"github.com/tbourn/go-survey-backend/internal/validation"
)

// Code is a stable, machine-readable error kind.
type Code string

const (
	CodeUnauthorized         Code = "UNAUTHORIZED"
	CodeForbidden            Code = "FORBIDDEN"
	CodeNotFound             Code = "NOT_FOUND"
	CodeInvalidInput         Code = "INVALID_INPUT"
	CodeInvalidSlug          Code = "INVALID_SLUG"
	CodeInvalidFieldID       Code = "INVALID_FIELD_ID"
	CodeInvalidFieldSet      Code = "INVALID_FIELD_SET"
	CodeInvalidAnswer        Code = "INVALID_ANSWER"
	CodeInvalidRespondentKey Code = "INVALID_RESPONDENT_KEY"
	CodeInvalidDateRange     Code = "INVALID_DATE_RANGE"
	CodeMissingRequiredField Code = "MISSING_REQUIRED_FIELD"
	CodeSessionCompleted     Code = "SESSION_COMPLETED"
	CodeInviteExpired        Code = "INVITE_EXPIRED"
	CodeInviteExhausted      Code = "INVITE_EXHAUSTED"
	CodeInviteUnavailable    Code = "INVITE_UNAVAILABLE"
	CodeSlugTaken            Code = "SLUG_TAKEN"
	CodeWindowTooLarge       Code = "ANALYTICS_WINDOW_TOO_LARGE"
	CodeExportTooLarge       Code = "ANALYTICS_EXPORT_TOO_LARGE"
)

// AppError is a classified service failure.
type AppError struct {
	Code    Code
	Message string
}

func (e *AppError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any *AppError with the same Code.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// newErr builds an *AppError with a formatted message.
func newErr(code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Sentinels for errors.Is comparisons.
var (
	ErrUnauthorized         = &AppError{Code: CodeUnauthorized, Message: "authentication required"}
	ErrForbidden            = &AppError{Code: CodeForbidden, Message: "insufficient permissions"}
	ErrNotFound             = &AppError{Code: CodeNotFound, Message: "not found"}
	ErrInvalidInput         = &AppError{Code: CodeInvalidInput, Message: "invalid input"}
	ErrInvalidSlug          = &AppError{Code: CodeInvalidSlug, Message: "slug must be 3 to 64 characters of a-z, 0-9 or '-'"}
	ErrInvalidFieldID       = &AppError{Code: CodeInvalidFieldID, Message: "unknown field"}
	ErrInvalidRespondentKey = &AppError{Code: CodeInvalidRespondentKey, Message: "respondent key must be 12 to 128 characters of A-Z, a-z, 0-9, '_' or '-'"}
	ErrInvalidDateRange     = &AppError{Code: CodeInvalidDateRange, Message: "invalid date range"}
	ErrSessionCompleted     = &AppError{Code: CodeSessionCompleted, Message: "session is already completed"}
	ErrInviteExpired        = &AppError{Code: CodeInviteExpired, Message: "invite has expired"}
	ErrInviteExhausted      = &AppError{Code: CodeInviteExhausted, Message: "invite has no completions left"}
	ErrInviteUnavailable    = &AppError{Code: CodeInviteUnavailable, Message: "invite is not available"}
	ErrSlugTaken            = &AppError{Code: CodeSlugTaken, Message: "slug is already taken"}
	ErrWindowTooLarge       = &AppError{Code: CodeWindowTooLarge, Message: "analytics window is too large"}
	ErrExportTooLarge       = &AppError{Code: CodeExportTooLarge, Message: "export exceeds the row limit"}
)

// CodeOf returns the Code carried by err, or "" when err is not classified.
func CodeOf(err error) Code {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// fromValidation lifts a validation failure into the service taxonomy.
func fromValidation(err error) error {
	var ve *validation.Error
	if !errors.As(err, &ve) {
		return err
	}
	return &AppError{Code: Code(ve.Code), Message: ve.Error()}
}

// fromWindow maps date-window parse failures.
func fromWindow(err error) error {
	switch {
	case errors.Is(err, analytics.ErrWindowTooLarge):
		return newErr(CodeWindowTooLarge, "%v", err)
	case errors.Is(err, analytics.ErrInvalidRange):
		return newErr(CodeInvalidDateRange, "%v", err)
	}
	return err
}

// notFound converts repo.ErrNotFound to a NOT_FOUND AppError naming what.
func notFound(err error, what string) error {
	if errors.Is(err, repo.ErrNotFound) {
		return newErr(CodeNotFound, "%s not found", what)
	}
	return err
}
