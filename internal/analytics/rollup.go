package analytics

import (
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/tbourn/go-survey-backend/internal/domain"
	"github.com/tbourn/go-survey-backend/internal/validation"
)

// ProvidedBucket is the single bucket used for kinds without small cardinality.
const ProvidedBucket = "provided"

// ResponseInput is one submitted response as seen by the rebuild.
// Fields is the field set of the version the response was collected with.
type ResponseInput struct {
	ID          string
	SubmittedAt time.Time
	Fields      []domain.Field
	Answers     domain.Answers
	Grading     domain.Grading
	DurationMs  int64
}

// DayInput is everything BuildDay needs for one (survey, day).
// Current is the field set of the survey's current version; it supplies
// field metadata and bucket padding.
type DayInput struct {
	SurveyID  string
	DateKey   string
	Current   []domain.Field
	Responses []ResponseInput
}

// Summary is the rebuildable part of SurveyAnalyticsDaily.
type Summary struct {
	ResponseCount   int64
	GradedResponses int64
	ScoreSum        float64
	PerfectScores   int64
	CorrectTotal    int64
	GradableTotal   int64
	DurationMsSum   int64
}

// DayRollup is the complete derived row set for one (survey, day).
type DayRollup struct {
	SurveyID string
	DateKey  string
	Summary  Summary
	Fields   []domain.SurveyFieldAnalyticsDaily
	Buckets  []domain.SurveyAnswerBucketDaily
	Texts    []domain.SurveyTextInsightsDaily
}

type bucketAcc struct {
	label string
	sort  int
	count int64
	num   float64
}

type fieldAcc struct {
	reached  int64
	answered int64
	buckets  map[string]*bucketAcc
	padded   int
	text     *TextAccumulator
}

// firstAnsweredOrder returns the lowest order among r's answered fields, or
// -1 when nothing was answered.
func firstAnsweredOrder(r ResponseInput) int {
	first := -1
	for _, f := range r.Fields {
		v, ok := r.Answers[f.ID]
		if !ok || v.IsAbsent() {
			continue
		}
		if first < 0 || f.Order < first {
			first = f.Order
		}
	}
	return first
}

// BuildDay derives every rollup row for one UTC day from its responses.
//
// A field counts as reached by a response when some answered field of that
// response's version sits at or before the field's order, so every field
// from the first answer onward is reached. Dropoff is reached minus answered.
func BuildDay(in DayInput) DayRollup {
	out := DayRollup{SurveyID: in.SurveyID, DateKey: in.DateKey}

	responses := append([]ResponseInput(nil), in.Responses...)
	sort.SliceStable(responses, func(i, j int) bool {
		if !responses[i].SubmittedAt.Equal(responses[j].SubmittedAt) {
			return responses[i].SubmittedAt.Before(responses[j].SubmittedAt)
		}
		return responses[i].ID < responses[j].ID
	})

	out.Summary = summarize(responses)
	if len(responses) == 0 {
		return out
	}

	meta := make(map[string]domain.Field, len(in.Current))
	for _, f := range in.Current {
		meta[f.ID] = f
	}
	accs := map[string]*fieldAcc{}
	ensure := func(f domain.Field) *fieldAcc {
		if a, ok := accs[f.ID]; ok {
			return a
		}
		if _, ok := meta[f.ID]; !ok {
			meta[f.ID] = f
		}
		a := &fieldAcc{buckets: map[string]*bucketAcc{}}
		a.padded = padBuckets(meta[f.ID], a.buckets)
		if meta[f.ID].Kind.IsFreeText() {
			a.text = NewTextAccumulator()
		}
		accs[f.ID] = a
		return a
	}

	for _, r := range responses {
		first := firstAnsweredOrder(r)
		for _, f := range r.Fields {
			a := ensure(f)
			if first >= 0 && f.Order >= first {
				a.reached++
			}
			v, ok := r.Answers[f.ID]
			if !ok || v.IsAbsent() {
				continue
			}
			a.answered++
			addBuckets(meta[f.ID], v, a.buckets)
			if a.text != nil && v.Kind == domain.ValueText {
				a.text.Add(v.Text)
			}
		}
	}

	ids := make([]string, 0, len(accs))
	for id := range accs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		fi, fj := meta[ids[i]], meta[ids[j]]
		if fi.Order != fj.Order {
			return fi.Order < fj.Order
		}
		return ids[i] < ids[j]
	})

	for _, id := range ids {
		f, a := meta[id], accs[id]
		out.Fields = append(out.Fields, domain.SurveyFieldAnalyticsDaily{
			SurveyID:   in.SurveyID,
			FieldID:    id,
			DateKey:    in.DateKey,
			FieldOrder: f.Order,
			FieldKind:  f.Kind,
			Label:      f.Label,
			Reached:    a.reached,
			Answered:   a.answered,
			Dropoff:    a.reached - a.answered,
		})
		out.Buckets = append(out.Buckets, finalizeBuckets(in.SurveyID, id, in.DateKey, f, a)...)
		if a.text != nil && a.text.Responses() > 0 {
			out.Texts = append(out.Texts, domain.SurveyTextInsightsDaily{
				SurveyID:      in.SurveyID,
				FieldID:       id,
				DateKey:       in.DateKey,
				ResponseCount: a.text.Responses(),
				TopPhrases:    datatypes.JSONSlice[domain.PhraseCount](a.text.TopPhrases(MaxPhrases)),
				Snippets:      datatypes.JSONSlice[domain.SnippetCount](a.text.TopSnippets(MaxSnippets)),
			})
		}
	}
	return out
}

func summarize(responses []ResponseInput) Summary {
	var s Summary
	sum := decimal.Zero
	for _, r := range responses {
		s.ResponseCount++
		s.DurationMsSum += r.DurationMs
		g := r.Grading
		if g.GradableCount == 0 {
			continue
		}
		s.GradedResponses++
		s.CorrectTotal += int64(g.CorrectCount)
		s.GradableTotal += int64(g.GradableCount)
		sum = sum.Add(decimal.NewFromFloat(g.ScorePercent))
		if g.CorrectCount == g.GradableCount {
			s.PerfectScores++
		}
	}
	s.ScoreSum, _ = sum.Float64()
	return s
}

// PadBuckets returns the zero-count buckets every chart axis for f must show:
// one per option for select kinds, 1 through 5 for ratings, none otherwise.
func PadBuckets(f domain.Field) []domain.SurveyAnswerBucketDaily {
	m := map[string]*bucketAcc{}
	padBuckets(f, m)
	out := make([]domain.SurveyAnswerBucketDaily, 0, len(m))
	for k, b := range m {
		out = append(out, domain.SurveyAnswerBucketDaily{FieldID: f.ID, BucketKey: k, Label: b.label, SortIndex: b.sort})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortIndex < out[j].SortIndex })
	return out
}

func padBuckets(f domain.Field, m map[string]*bucketAcc) int {
	switch {
	case f.Kind.IsSelect():
		for i, o := range f.Options {
			label := o.Label
			if label == "" {
				label = o.Value
			}
			m[o.Value] = &bucketAcc{label: label, sort: i}
		}
		return len(f.Options)
	case f.Kind == domain.KindRating:
		for i := 1; i <= 5; i++ {
			k := strconv.Itoa(i)
			m[k] = &bucketAcc{label: k, sort: i - 1}
		}
		return 5
	}
	return 0
}

// BucketKey formats a numeric answer as a bucket key.
func BucketKey(n float64) string { return strconv.FormatFloat(n, 'f', -1, 64) }

func addBuckets(f domain.Field, v domain.AnswerValue, m map[string]*bucketAcc) {
	bump := func(key, label string, num float64) {
		b, ok := m[key]
		if !ok {
			b = &bucketAcc{label: label, sort: -1, num: num}
			m[key] = b
		}
		b.count++
	}
	switch {
	case f.Kind.IsSelect():
		switch v.Kind {
		case domain.ValueText:
			bump(v.Text, v.Text, 0)
		case domain.ValueChoices:
			for _, c := range v.Choices {
				bump(c, c, 0)
			}
		}
	case f.Kind.IsNumeric():
		if v.Kind == domain.ValueNumber {
			k := BucketKey(v.Number)
			bump(k, k, v.Number)
		}
	default:
		bump(ProvidedBucket, "Provided", 0)
	}
}

func finalizeBuckets(surveyID, fieldID, dateKey string, f domain.Field, a *fieldAcc) []domain.SurveyAnswerBucketDaily {
	var extra []string
	for k, b := range a.buckets {
		if b.sort < 0 {
			extra = append(extra, k)
		}
	}
	numeric := f.Kind.IsNumeric()
	sort.Slice(extra, func(i, j int) bool {
		if numeric {
			ni, nj := a.buckets[extra[i]].num, a.buckets[extra[j]].num
			if ni != nj {
				return ni < nj
			}
		}
		return extra[i] < extra[j]
	})
	for i, k := range extra {
		a.buckets[k].sort = a.padded + i
	}

	out := make([]domain.SurveyAnswerBucketDaily, 0, len(a.buckets))
	for k, b := range a.buckets {
		out = append(out, domain.SurveyAnswerBucketDaily{
			SurveyID:  surveyID,
			FieldID:   fieldID,
			DateKey:   dateKey,
			BucketKey: k,
			Label:     b.label,
			SortIndex: b.sort,
			Count:     b.count,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortIndex < out[j].SortIndex })
	return out
}

// Rate is the percentage num/den rounded to two decimals, 0 when den is 0.
func Rate(num, den int64) float64 { return validation.Percent(num, den) }
