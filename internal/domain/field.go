package domain

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// FieldKind is the declared input type of a survey field.
type FieldKind string

const (
	KindShortText    FieldKind = "short_text"
	KindLongText     FieldKind = "long_text"
	KindSingleSelect FieldKind = "single_select"
	KindMultiSelect  FieldKind = "multi_select"
	KindNumber       FieldKind = "number"
	KindEmail        FieldKind = "email"
	KindDate         FieldKind = "date"
	KindRating       FieldKind = "rating_1_5"
)

// Valid reports whether k is one of the supported kinds.
func (k FieldKind) Valid() bool {
	switch k {
	case KindShortText, KindLongText, KindSingleSelect, KindMultiSelect,
		KindNumber, KindEmail, KindDate, KindRating:
		return true
	}
	return false
}

// IsText reports whether answers for k are carried as a single string.
func (k FieldKind) IsText() bool {
	switch k {
	case KindShortText, KindLongText, KindEmail, KindDate, KindSingleSelect:
		return true
	}
	return false
}

// IsFreeText reports whether k collects unbounded prose (text insights apply).
func (k FieldKind) IsFreeText() bool {
	return k == KindShortText || k == KindLongText
}

// IsSelect reports whether k draws its answers from configured options.
func (k FieldKind) IsSelect() bool {
	return k == KindSingleSelect || k == KindMultiSelect
}

// IsNumeric reports whether answers for k are numbers.
func (k FieldKind) IsNumeric() bool {
	return k == KindNumber || k == KindRating
}

// FieldOption is a selectable label/value pair.
type FieldOption struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// FieldValidation holds optional answer constraints.
type FieldValidation struct {
	MinLength *int     `json:"minLength,omitempty"`
	MaxLength *int     `json:"maxLength,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	Pattern   string   `json:"pattern,omitempty"`
}

// CorrectnessMode selects how a graded answer is compared to its expectation.
type CorrectnessMode string

const (
	ModeTextExact         CorrectnessMode = "text_exact"
	ModeSingleSelectExact CorrectnessMode = "single_select_exact"
	ModeMultiSelectExact  CorrectnessMode = "multi_select_exact"
	ModeNumericExact      CorrectnessMode = "numeric_exact"
)

// Correctness is the graded-answer rule attached to a field.
//
// Only the member matching Mode is consulted: ExpectedText for text_exact and
// single_select_exact, ExpectedValues for multi_select_exact, ExpectedNumber
// and Tolerance for numeric_exact.
type Correctness struct {
	Mode           CorrectnessMode `json:"mode"`
	ExpectedText   string          `json:"expectedText,omitempty"`
	ExpectedValues []string        `json:"expectedValues,omitempty"`
	ExpectedNumber *float64        `json:"expectedNumber,omitempty"`
	Tolerance      *float64        `json:"tolerance,omitempty"`
}

// Field is one question of a survey version.
type Field struct {
	ID          string           `json:"id"`
	Kind        FieldKind        `json:"kind"`
	Label       string           `json:"label"`
	Required    bool             `json:"required"`
	Order       int              `json:"order"`
	Options     []FieldOption    `json:"options,omitempty"`
	Validation  *FieldValidation `json:"validation,omitempty"`
	Correctness *Correctness     `json:"correctness,omitempty"`
}

// HasOption reports whether v is one of the field's configured option values.
func (f Field) HasOption(v string) bool {
	for _, o := range f.Options {
		if o.Value == v {
			return true
		}
	}
	return false
}

// ValueKind discriminates the AnswerValue union.
type ValueKind uint8

const (
	ValueNone ValueKind = iota
	ValueText
	ValueChoices
	ValueNumber
)

func (k ValueKind) String() string {
	switch k {
	case ValueText:
		return "text"
	case ValueChoices:
		return "choices"
	case ValueNumber:
		return "number"
	default:
		return "none"
	}
}

// ErrUnsupportedAnswer is returned when a JSON answer is neither a string,
// a number, an array of strings, nor null.
var ErrUnsupportedAnswer = errors.New("answer must be a string, number, array of strings, or null")

// AnswerValue is the typed representation of a respondent answer. On the wire
// it is the bare JSON value (string | number | string[] | null).
type AnswerValue struct {
	Kind    ValueKind
	Text    string
	Choices []string
	Number  float64
}

// TextAnswer builds a text answer.
func TextAnswer(s string) AnswerValue { return AnswerValue{Kind: ValueText, Text: s} }

// ChoicesAnswer builds a multi-choice answer.
func ChoicesAnswer(vs ...string) AnswerValue {
	return AnswerValue{Kind: ValueChoices, Choices: append([]string{}, vs...)}
}

// NumberAnswer builds a numeric answer.
func NumberAnswer(n float64) AnswerValue { return AnswerValue{Kind: ValueNumber, Number: n} }

// IsAbsent reports whether the value counts as "not answered": null, a
// whitespace-only string, or an empty array.
func (v AnswerValue) IsAbsent() bool {
	switch v.Kind {
	case ValueNone:
		return true
	case ValueText:
		return strings.TrimSpace(v.Text) == ""
	case ValueChoices:
		return len(v.Choices) == 0
	case ValueNumber:
		return false
	}
	return true
}

// Equal reports deep equality of two answers.
func (v AnswerValue) Equal(o AnswerValue) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case ValueText:
		return v.Text == o.Text
	case ValueNumber:
		return v.Number == o.Number
	case ValueChoices:
		if len(v.Choices) != len(o.Choices) {
			return false
		}
		for i := range v.Choices {
			if v.Choices[i] != o.Choices[i] {
				return false
			}
		}
	}
	return true
}

// MarshalJSON encodes the bare JSON value.
func (v AnswerValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case ValueText:
		return json.Marshal(v.Text)
	case ValueChoices:
		if v.Choices == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.Choices)
	case ValueNumber:
		if math.IsNaN(v.Number) || math.IsInf(v.Number, 0) {
			return nil, fmt.Errorf("answer: non-finite number")
		}
		return json.Marshal(v.Number)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a bare JSON value into the union.
func (v *AnswerValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*v = AnswerValue{}
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = TextAnswer(s)
		return nil
	case '[':
		var ss []string
		if err := json.Unmarshal(b, &ss); err != nil {
			return ErrUnsupportedAnswer
		}
		if ss == nil {
			ss = []string{}
		}
		*v = AnswerValue{Kind: ValueChoices, Choices: ss}
		return nil
	case 't', 'f', '{':
		return ErrUnsupportedAnswer
	default:
		var n float64
		if err := json.Unmarshal(b, &n); err != nil {
			return ErrUnsupportedAnswer
		}
		*v = NumberAnswer(n)
		return nil
	}
}

// Answers maps field ids to answer values.
type Answers map[string]AnswerValue

// Clone returns a shallow copy safe to mutate at the key level.
func (a Answers) Clone() Answers {
	out := make(Answers, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Value implements driver.Valuer, storing the map as a JSON object.
func (a Answers) Value() (driver.Value, error) {
	if a == nil {
		return "{}", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (a *Answers) Scan(src any) error {
	return scanJSON(src, a)
}

func scanJSON(src any, dst any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("scan json: unsupported type %T", src)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	return json.Unmarshal(b, dst)
}
