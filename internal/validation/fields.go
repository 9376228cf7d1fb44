package validation

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/tbourn/go-survey-backend/internal/domain"
)

// fieldIDRE is the accepted shape of a field id.
var fieldIDRE = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]{0,63}$`)

// ValidFieldID reports whether id is a well-formed field identifier.
func ValidFieldID(id string) bool { return fieldIDRE.MatchString(id) }

// SortedFields returns a copy of fields ordered by Order, then ID.
func SortedFields(fields []domain.Field) []domain.Field {
	out := append([]domain.Field(nil), fields...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func fieldErr(f domain.Field, format string, args ...any) error {
	return &Error{Code: CodeInvalidFieldSet, FieldID: f.ID, Reason: fmt.Sprintf(format, args...)}
}

// ValidateFieldSet enforces the structural rules a draft must satisfy before
// it is saved:
//   - ids are well formed and unique
//   - orders are contiguous integers starting at 0
//   - kinds are known and labels non-empty
//   - select kinds carry unique, non-empty option values
//   - validation bounds are consistent and patterns compile
//   - correctness rules are legal for the field kind
func ValidateFieldSet(fields []domain.Field) error {
	ids := make(map[string]struct{}, len(fields))
	orders := make(map[int]struct{}, len(fields))

	for _, f := range fields {
		if !ValidFieldID(f.ID) {
			return &Error{Code: CodeInvalidFieldID, FieldID: f.ID, Reason: "field id must start with a letter and contain only letters, digits, '_' or '-'"}
		}
		if _, dup := ids[f.ID]; dup {
			return &Error{Code: CodeInvalidFieldID, FieldID: f.ID, Reason: "duplicate field id"}
		}
		ids[f.ID] = struct{}{}

		if f.Order < 0 || f.Order >= len(fields) {
			return fieldErr(f, "order %d out of range 0..%d", f.Order, len(fields)-1)
		}
		if _, dup := orders[f.Order]; dup {
			return fieldErr(f, "duplicate order %d", f.Order)
		}
		orders[f.Order] = struct{}{}

		if !f.Kind.Valid() {
			return fieldErr(f, "unknown kind %q", f.Kind)
		}
		if strings.TrimSpace(f.Label) == "" {
			return fieldErr(f, "label is required")
		}
		if err := checkOptions(f); err != nil {
			return err
		}
		if err := checkValidation(f); err != nil {
			return err
		}
		if err := checkCorrectness(f); err != nil {
			return err
		}
	}
	return nil
}

func checkOptions(f domain.Field) error {
	if !f.Kind.IsSelect() {
		if len(f.Options) > 0 {
			return fieldErr(f, "options are only allowed on select fields")
		}
		return nil
	}
	if len(f.Options) == 0 {
		return fieldErr(f, "select fields need at least one option")
	}
	seen := make(map[string]struct{}, len(f.Options))
	for _, o := range f.Options {
		if strings.TrimSpace(o.Value) == "" {
			return fieldErr(f, "option values must not be empty")
		}
		if _, dup := seen[o.Value]; dup {
			return fieldErr(f, "duplicate option value %q", o.Value)
		}
		seen[o.Value] = struct{}{}
	}
	return nil
}

func checkValidation(f domain.Field) error {
	v := f.Validation
	if v == nil {
		return nil
	}
	if f.Kind == domain.KindRating && (v.Min != nil || v.Max != nil) {
		return fieldErr(f, "rating fields are fixed to 1..5")
	}
	if v.MinLength != nil && *v.MinLength < 0 {
		return fieldErr(f, "minLength must be >= 0")
	}
	if v.MinLength != nil && v.MaxLength != nil && *v.MinLength > *v.MaxLength {
		return fieldErr(f, "minLength exceeds maxLength")
	}
	if v.Min != nil && v.Max != nil && *v.Min > *v.Max {
		return fieldErr(f, "min exceeds max")
	}
	if v.Pattern != "" {
		if _, err := compilePattern(v.Pattern); err != nil {
			return fieldErr(f, "pattern does not compile: %v", err)
		}
	}
	return nil
}

// allowedMode maps each gradable kind to the only correctness mode it accepts.
var allowedMode = map[domain.FieldKind]domain.CorrectnessMode{
	domain.KindShortText:    domain.ModeTextExact,
	domain.KindLongText:     domain.ModeTextExact,
	domain.KindSingleSelect: domain.ModeSingleSelectExact,
	domain.KindMultiSelect:  domain.ModeMultiSelectExact,
	domain.KindNumber:       domain.ModeNumericExact,
	domain.KindRating:       domain.ModeNumericExact,
}

func checkCorrectness(f domain.Field) error {
	c := f.Correctness
	if c == nil {
		return nil
	}
	want, ok := allowedMode[f.Kind]
	if !ok {
		return fieldErr(f, "correctness is not supported for %s fields", f.Kind)
	}
	if c.Mode != want {
		return fieldErr(f, "correctness mode must be %s for %s fields", want, f.Kind)
	}
	switch c.Mode {
	case domain.ModeTextExact:
		if strings.TrimSpace(c.ExpectedText) == "" {
			return fieldErr(f, "expectedText is required")
		}
	case domain.ModeSingleSelectExact:
		if !f.HasOption(c.ExpectedText) {
			return fieldErr(f, "expectedText must be one of the options")
		}
	case domain.ModeMultiSelectExact:
		if len(c.ExpectedValues) == 0 {
			return fieldErr(f, "expectedValues is required")
		}
		for _, v := range c.ExpectedValues {
			if !f.HasOption(v) {
				return fieldErr(f, "expected value %q is not an option", v)
			}
		}
	case domain.ModeNumericExact:
		if c.ExpectedNumber == nil {
			return fieldErr(f, "expectedNumber is required")
		}
		if c.Tolerance != nil && *c.Tolerance < 0 {
			return fieldErr(f, "tolerance must be >= 0")
		}
	}
	return nil
}
