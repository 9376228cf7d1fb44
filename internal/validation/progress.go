package validation

import (
	"math"

	"github.com/tbourn/go-survey-backend/internal/domain"
)

// Progress summarizes how far a draft answer map has come.
type Progress struct {
	Answered         int `json:"answered"`
	Total            int `json:"total"`
	RequiredAnswered int `json:"requiredAnswered"`
	RequiredTotal    int `json:"requiredTotal"`
	Percent          int `json:"percent"`
}

// ComputeProgress measures required-field completion when the set has any
// required field, and overall completion otherwise. An empty field set is 0%.
func ComputeProgress(fields []domain.Field, answers domain.Answers) Progress {
	var p Progress
	p.Total = len(fields)
	for _, f := range fields {
		v, ok := answers[f.ID]
		answered := ok && !v.IsAbsent()
		if answered {
			p.Answered++
		}
		if f.Required {
			p.RequiredTotal++
			if answered {
				p.RequiredAnswered++
			}
		}
	}

	var ratio float64
	switch {
	case p.RequiredTotal > 0:
		ratio = float64(p.RequiredAnswered) / float64(p.RequiredTotal)
	case p.Total > 0:
		ratio = float64(p.Answered) / float64(p.Total)
	}
	p.Percent = int(math.Round(ratio * 100))
	return p
}
