// Package validation implements the pure answer-validation and grading rules
// for survey fields, along with field-set checks and progress calculation.
// Nothing in this package touches storage; every function is deterministic
// for a given input so results can be frozen and later reproduced.
package validation

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/tbourn/go-survey-backend/internal/domain"
)

// Code classifies a validation failure.
type Code string

const (
	CodeInvalidAnswer   Code = "INVALID_ANSWER"
	CodeMissingRequired Code = "MISSING_REQUIRED_FIELD"
	CodeInvalidFieldSet Code = "INVALID_FIELD_SET"
	CodeInvalidFieldID  Code = "INVALID_FIELD_ID"
)

// Error describes why a field or answer was rejected.
type Error struct {
	Code    Code
	FieldID string
	Reason  string
}

func (e *Error) Error() string {
	if e.FieldID == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Reason)
	}
	return fmt.Sprintf("%s: field %q: %s", e.Code, e.FieldID, e.Reason)
}

func invalid(f domain.Field, format string, args ...any) error {
	return &Error{Code: CodeInvalidAnswer, FieldID: f.ID, Reason: fmt.Sprintf(format, args...)}
}

// emailRE accepts the simple local@domain.tld shape.
var emailRE = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// patternCache memoizes compiled field patterns; field sets are validated at
// draft-save time so compilation errors here are unexpected.
var patternCache sync.Map // map[string]*regexp.Regexp

func compilePattern(p string) (*regexp.Regexp, error) {
	if v, ok := patternCache.Load(p); ok {
		return v.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(p)
	if err != nil {
		return nil, err
	}
	patternCache.Store(p, re)
	return re, nil
}

// ValidateAnswer checks value against the field's kind and constraints.
// Absent values pass only when the field is optional.
func ValidateAnswer(f domain.Field, v domain.AnswerValue) error {
	if v.IsAbsent() {
		if f.Required {
			return &Error{Code: CodeMissingRequired, FieldID: f.ID, Reason: "answer is required"}
		}
		return nil
	}

	switch f.Kind {
	case domain.KindShortText, domain.KindLongText, domain.KindEmail, domain.KindDate:
		if v.Kind != domain.ValueText {
			return invalid(f, "expected a string")
		}
		if f.Kind == domain.KindEmail && !emailRE.MatchString(strings.TrimSpace(v.Text)) {
			return invalid(f, "expected an email address")
		}
		return checkText(f, v.Text)

	case domain.KindSingleSelect:
		if v.Kind != domain.ValueText {
			return invalid(f, "expected a string")
		}
		// Blank option sets are tolerated for legacy versions.
		if len(f.Options) > 0 && !f.HasOption(v.Text) {
			return invalid(f, "%q is not an option", v.Text)
		}
		return nil

	case domain.KindMultiSelect:
		if v.Kind != domain.ValueChoices {
			return invalid(f, "expected an array of strings")
		}
		if len(f.Options) > 0 {
			for _, c := range v.Choices {
				if !f.HasOption(c) {
					return invalid(f, "%q is not an option", c)
				}
			}
		}
		return nil

	case domain.KindNumber, domain.KindRating:
		if v.Kind != domain.ValueNumber {
			return invalid(f, "expected a number")
		}
		n := v.Number
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return invalid(f, "expected a finite number")
		}
		if f.Kind == domain.KindRating {
			// Ratings bucket onto the fixed 1..5 axis, so fractions are refused.
			if n < 1 || n > 5 || n != math.Trunc(n) {
				return invalid(f, "rating must be a whole number from 1 to 5")
			}
			return nil
		}
		if val := f.Validation; val != nil {
			if val.Min != nil && n < *val.Min {
				return invalid(f, "must be at least %v", *val.Min)
			}
			if val.Max != nil && n > *val.Max {
				return invalid(f, "must be at most %v", *val.Max)
			}
		}
		return nil
	}
	return invalid(f, "unsupported field kind %q", f.Kind)
}

func checkText(f domain.Field, s string) error {
	val := f.Validation
	if val == nil {
		return nil
	}
	n := utf8.RuneCountInString(strings.TrimSpace(s))
	if val.MinLength != nil && n < *val.MinLength {
		return invalid(f, "must be at least %d characters", *val.MinLength)
	}
	if val.MaxLength != nil && n > *val.MaxLength {
		return invalid(f, "must be at most %d characters", *val.MaxLength)
	}
	if val.Pattern != "" {
		re, err := compilePattern(val.Pattern)
		if err != nil {
			return invalid(f, "field pattern is invalid")
		}
		if !re.MatchString(s) {
			return invalid(f, "does not match the required format")
		}
	}
	return nil
}

// ValidateAll checks every field of the set against answers, reporting the
// first failure in field order. Required-field presence is enforced.
func ValidateAll(fields []domain.Field, answers domain.Answers) error {
	for _, f := range SortedFields(fields) {
		if err := ValidateAnswer(f, answers[f.ID]); err != nil {
			return err
		}
	}
	return nil
}
