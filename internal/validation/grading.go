package validation

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tbourn/go-survey-backend/internal/domain"
)

// Percent returns round(num/den*10000)/100, or 0 when den is 0. Rounding is
// half-up on an exact decimal so results do not drift with float error.
func Percent(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	d := decimal.NewFromInt(num).
		Mul(decimal.NewFromInt(100)).
		DivRound(decimal.NewFromInt(den), 2)
	f, _ := d.Float64()
	return f
}

// GradeSubmission grades answers against every field carrying a correctness
// rule. Unanswered gradable fields count as incorrect.
func GradeSubmission(fields []domain.Field, answers domain.Answers) domain.Grading {
	g := domain.Grading{FieldResults: []domain.FieldResult{}}
	for _, f := range SortedFields(fields) {
		if f.Correctness == nil {
			continue
		}
		v, has := answers[f.ID]
		answered := has && !v.IsAbsent()
		ok := answered && IsCorrect(*f.Correctness, v)

		g.GradableCount++
		if ok {
			g.CorrectCount++
		} else {
			g.IncorrectCount++
		}
		g.FieldResults = append(g.FieldResults, domain.FieldResult{
			FieldID:   f.ID,
			Answered:  answered,
			IsCorrect: ok,
		})
	}
	g.ScorePercent = Percent(int64(g.CorrectCount), int64(g.GradableCount))
	return g
}

// IsCorrect compares a single answer with its correctness rule.
func IsCorrect(rule domain.Correctness, v domain.AnswerValue) bool {
	switch rule.Mode {
	case domain.ModeTextExact:
		if v.Kind != domain.ValueText {
			return false
		}
		return normalizeText(v.Text) == normalizeText(rule.ExpectedText)

	case domain.ModeSingleSelectExact:
		return v.Kind == domain.ValueText && v.Text == rule.ExpectedText

	case domain.ModeMultiSelectExact:
		if v.Kind != domain.ValueChoices {
			return false
		}
		return sameSet(v.Choices, rule.ExpectedValues)

	case domain.ModeNumericExact:
		if v.Kind != domain.ValueNumber || rule.ExpectedNumber == nil {
			return false
		}
		tol := 0.0
		if rule.Tolerance != nil {
			tol = *rule.Tolerance
		}
		return math.Abs(v.Number-*rule.ExpectedNumber) <= tol
	}
	return false
}

func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// sameSet reports whether got and want hold the same distinct values with no
// extras and no repeats.
func sameSet(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	expected := make(map[string]struct{}, len(want))
	for _, w := range want {
		expected[w] = struct{}{}
	}
	seen := make(map[string]struct{}, len(got))
	for _, g := range got {
		if _, ok := expected[g]; !ok {
			return false
		}
		if _, dup := seen[g]; dup {
			return false
		}
		seen[g] = struct{}{}
	}
	return len(seen) == len(expected)
}
