// Package services – AnalyticsService
//
// This file orchestrates the analytics materialization engine. Writes come
// from two paths: live funnel counters bumped inside session transactions,
// and RebuildDay, which recomputes every derived rollup of one (survey, day)
// from submitted responses with analytics.BuildDay and replaces the stored
// rows in one transaction. Read queries only ever touch rollup tables and
// reject windows larger than MaxWindowDays.
package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-survey-backend/internal/analytics"
	"github.com/tbourn/go-survey-backend/internal/domain"
	"github.com/tbourn/go-survey-backend/internal/repo"
)

// defaultWindowDays is used when a query names neither bound.
const defaultWindowDays = 30

// AnalyticsService rebuilds and reads survey analytics rollups.
type AnalyticsService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Now is the service clock.
	Now Clock
	// MaxWindowDays bounds the inclusive day count of any read query.
	MaxWindowDays int
	// ExportMaxRows bounds the data rows of a CSV export.
	ExportMaxRows int
}

// NewAnalyticsService constructs an AnalyticsService with default bounds.
func NewAnalyticsService(db *gorm.DB) *AnalyticsService {
	return &AnalyticsService{DB: db, MaxWindowDays: 366, ExportMaxRows: 50000}
}

// ---------------------------------------------------------------------------
// Rebuild
// ---------------------------------------------------------------------------

// RebuildDay recomputes every derived rollup for surveyID on dateKey. Running
// it twice over the same responses leaves identical rows, and rows for keys
// absent from the fresh computation are deleted.
func (s *AnalyticsService) RebuildDay(ctx context.Context, surveyID, dateKey string) error {
	tr := otel.Tracer("services/AnalyticsService")
	ctx, span := tr.Start(ctx, "RebuildDay", trace.WithAttributes(
		attribute.String("survey.id", surveyID),
		attribute.String("date", dateKey),
	))
	defer span.End()

	started := time.Now()
	defer func() { rebuildSeconds.Observe(time.Since(started).Seconds()) }()

	start, end, err := analytics.DayBounds(dateKey)
	if err != nil {
		return ErrInvalidDateRange
	}
	sv, err := repo.GetSurvey(ctx, s.DB, surveyID)
	if err != nil {
		return notFound(err, "survey")
	}

	var current []domain.Field
	if sv.CurrentVersionID != nil {
		cv, err := repo.GetVersionByID(ctx, s.DB, *sv.CurrentVersionID)
		if err != nil {
			return fmt.Errorf("load current version: %w", err)
		}
		current = cv.Fields
	}

	responses, err := repo.ListResponsesBetween(ctx, s.DB, surveyID, start, end)
	if err != nil {
		return fmt.Errorf("list responses: %w", err)
	}
	versionIDs := make([]string, 0, 2)
	seen := map[string]struct{}{}
	for _, r := range responses {
		if _, ok := seen[r.VersionID]; !ok {
			seen[r.VersionID] = struct{}{}
			versionIDs = append(versionIDs, r.VersionID)
		}
	}
	versions, err := repo.GetVersionsByIDs(ctx, s.DB, versionIDs)
	if err != nil {
		return fmt.Errorf("load versions: %w", err)
	}

	in := analytics.DayInput{SurveyID: surveyID, DateKey: dateKey, Current: current}
	for _, r := range responses {
		in.Responses = append(in.Responses, analytics.ResponseInput{
			ID:          r.ID,
			SubmittedAt: r.SubmittedAt,
			Fields:      versions[r.VersionID].Fields,
			Answers:     r.Answers,
			Grading:     r.Grading,
			DurationMs:  r.DurationMs,
		})
	}
	day := analytics.BuildDay(in)
	span.SetAttributes(attribute.Int64("responses", day.Summary.ResponseCount))

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := &domain.SurveyAnalyticsDaily{
			SurveyID:        surveyID,
			DateKey:         dateKey,
			ResponseCount:   day.Summary.ResponseCount,
			GradedResponses: day.Summary.GradedResponses,
			ScoreSum:        day.Summary.ScoreSum,
			PerfectScores:   day.Summary.PerfectScores,
			CorrectTotal:    day.Summary.CorrectTotal,
			GradableTotal:   day.Summary.GradableTotal,
			DurationMsSum:   day.Summary.DurationMsSum,
		}
		if err := repo.UpsertAnalyticsSummary(ctx, tx, row); err != nil {
			return fmt.Errorf("upsert summary: %w", err)
		}
		if err := repo.ReplaceFieldDaily(ctx, tx, surveyID, dateKey, day.Fields); err != nil {
			return fmt.Errorf("replace field rollups: %w", err)
		}
		if err := repo.ReplaceBucketsDaily(ctx, tx, surveyID, dateKey, day.Buckets); err != nil {
			return fmt.Errorf("replace bucket rollups: %w", err)
		}
		if err := repo.ReplaceTextDaily(ctx, tx, surveyID, dateKey, day.Texts); err != nil {
			return fmt.Errorf("replace text rollups: %w", err)
		}
		return nil
	})
}

// RebuildReport summarizes a windowed rebuild.
type RebuildReport struct {
	Surveys int             `json:"surveys"`
	Days    int             `json:"days"`
	Rebuilt int             `json:"rebuilt"`
	Failed  int             `json:"failed"`
	Range   analytics.Range `json:"range"`
}

// RebuildWindow rebuilds every day of r for surveyIDs, or for every
// non-archived survey when surveyIDs is empty. A failing day is logged and
// counted; the remaining days still run.
func (s *AnalyticsService) RebuildWindow(ctx context.Context, surveyIDs []string, r analytics.Range) (*RebuildReport, error) {
	tr := otel.Tracer("services/AnalyticsService")
	ctx, span := tr.Start(ctx, "RebuildWindow", trace.WithAttributes(
		attribute.String("from", r.From),
		attribute.String("to", r.To),
	))
	defer span.End()

	if len(surveyIDs) == 0 {
		ids, err := repo.ListActiveSurveyIDs(ctx, s.DB)
		if err != nil {
			return nil, fmt.Errorf("list surveys: %w", err)
		}
		surveyIDs = ids
	}
	days := r.Days()
	rep := &RebuildReport{Surveys: len(surveyIDs), Days: len(days), Range: r}
	for _, id := range surveyIDs {
		for _, d := range days {
			if err := ctx.Err(); err != nil {
				return rep, err
			}
			if err := s.RebuildDay(ctx, id, d); err != nil {
				rep.Failed++
				log.Error().Err(err).Str("survey_id", id).Str("date", d).Msg("analytics rebuild failed")
				continue
			}
			rep.Rebuilt++
		}
	}
	return rep, nil
}

// RebuildWindowAs is the admin entry point for RebuildWindow. It validates
// the range against MaxWindowDays and records an audit row.
func (s *AnalyticsService) RebuildWindowAs(ctx context.Context, actor *domain.User, surveyIDs []string, from, to string) (*RebuildReport, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	r, err := s.window(from, to)
	if err != nil {
		return nil, err
	}
	rep, err := s.RebuildWindow(ctx, surveyIDs, r)
	if err != nil {
		return nil, err
	}
	if err := recordAudit(ctx, s.DB, auditEntry{
		ActorType:  domain.ActorUser,
		ActorID:    actor.ID,
		Action:     ActionAnalyticsRebuilt,
		EntityType: "analytics",
		EntityID:   r.From + ".." + r.To,
		Metadata:   map[string]any{"surveys": rep.Surveys, "rebuilt": rep.Rebuilt, "failed": rep.Failed},
	}, s.Now.now()); err != nil {
		return nil, err
	}
	return rep, nil
}

// RepairRecent rebuilds the last days days for every survey that received a
// response in that span. It backs the scheduled repair job.
func (s *AnalyticsService) RepairRecent(ctx context.Context, days int) (*RebuildReport, error) {
	r := analytics.LastDays(s.Now.now(), days)
	start, _, _ := analytics.DayBounds(r.From)
	ids, err := repo.SurveysWithResponsesSince(ctx, s.DB, start)
	if err != nil {
		return nil, fmt.Errorf("list active surveys: %w", err)
	}
	if len(ids) == 0 {
		return &RebuildReport{Range: r, Days: r.Len()}, nil
	}
	return s.RebuildWindow(ctx, ids, r)
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

// window parses a query range, defaulting to the last 30 days when both
// bounds are empty and to a single day when only one is given.
func (s *AnalyticsService) window(from, to string) (analytics.Range, error) {
	switch {
	case from == "" && to == "":
		return analytics.LastDays(s.Now.now(), defaultWindowDays), nil
	case from == "":
		from = to
	case to == "":
		to = from
	}
	r, err := analytics.ParseRange(from, to, s.MaxWindowDays)
	if err != nil {
		return analytics.Range{}, fromWindow(err)
	}
	return r, nil
}

// scope authorizes the caller and parses the window.
func (s *AnalyticsService) scope(ctx context.Context, actor *domain.User, surveyID, from, to string) (*domain.Survey, analytics.Range, error) {
	sv, err := manageableSurvey(ctx, s.DB, actor, surveyID)
	if err != nil {
		return nil, analytics.Range{}, err
	}
	r, err := s.window(from, to)
	if err != nil {
		return nil, analytics.Range{}, err
	}
	return sv, r, nil
}

// currentFields returns the field set of the survey's current version.
func (s *AnalyticsService) currentFields(ctx context.Context, sv *domain.Survey) ([]domain.Field, error) {
	if sv.CurrentVersionID == nil {
		return nil, nil
	}
	v, err := repo.GetVersionByID(ctx, s.DB, *sv.CurrentVersionID)
	if err != nil {
		return nil, fmt.Errorf("load current version: %w", err)
	}
	return v.Fields, nil
}

// Funnel is the live funnel over a window.
type Funnel struct {
	Range analytics.Range `json:"range"`
	domain.FunnelCounters
	ConversionRate float64 `json:"conversionRate"`
	AbandonRate    float64 `json:"abandonRate"`
}

// GetFunnel sums the live counters across the window.
func (s *AnalyticsService) GetFunnel(ctx context.Context, actor *domain.User, surveyID, from, to string) (*Funnel, error) {
	tr := otel.Tracer("services/AnalyticsService")
	ctx, span := tr.Start(ctx, "GetFunnel", trace.WithAttributes(attribute.String("survey.id", surveyID)))
	defer span.End()

	_, r, err := s.scope(ctx, actor, surveyID, from, to)
	if err != nil {
		return nil, err
	}
	rows, err := repo.ListMetricsDaily(ctx, s.DB, surveyID, r.From, r.To)
	if err != nil {
		return nil, err
	}
	out := &Funnel{Range: r}
	for _, row := range rows {
		out.FunnelCounters.Merge(row.FunnelCounters)
	}
	out.ConversionRate = analytics.Rate(out.Completed, out.Started)
	out.AbandonRate = analytics.Rate(out.Abandoned, out.Started)
	return out, nil
}

// ScoringSummary aggregates frozen grading across the window.
type ScoringSummary struct {
	Range             analytics.Range `json:"range"`
	ResponseCount     int64           `json:"responseCount"`
	GradedResponses   int64           `json:"gradedResponses"`
	AverageScore      float64         `json:"averageScore"`
	PerfectScores     int64           `json:"perfectScores"`
	PerfectRate       float64         `json:"perfectRate"`
	Accuracy          float64         `json:"accuracy"`
	AverageDurationMs int64           `json:"averageDurationMs"`
}

// GetScoringSummary reads the rebuilt daily summaries.
func (s *AnalyticsService) GetScoringSummary(ctx context.Context, actor *domain.User, surveyID, from, to string) (*ScoringSummary, error) {
	tr := otel.Tracer("services/AnalyticsService")
	ctx, span := tr.Start(ctx, "GetScoringSummary", trace.WithAttributes(attribute.String("survey.id", surveyID)))
	defer span.End()

	_, r, err := s.scope(ctx, actor, surveyID, from, to)
	if err != nil {
		return nil, err
	}
	rows, err := repo.ListAnalyticsDaily(ctx, s.DB, surveyID, r.From, r.To)
	if err != nil {
		return nil, err
	}
	out := &ScoringSummary{Range: r}
	var correct, gradable, duration int64
	scoreSum := decimal.Zero
	for _, row := range rows {
		out.ResponseCount += row.ResponseCount
		out.GradedResponses += row.GradedResponses
		out.PerfectScores += row.PerfectScores
		correct += row.CorrectTotal
		gradable += row.GradableTotal
		duration += row.DurationMsSum
		scoreSum = scoreSum.Add(decimal.NewFromFloat(row.ScoreSum))
	}
	out.AverageScore = average(scoreSum, out.GradedResponses)
	out.PerfectRate = analytics.Rate(out.PerfectScores, out.GradedResponses)
	out.Accuracy = analytics.Rate(correct, gradable)
	if out.ResponseCount > 0 {
		out.AverageDurationMs = duration / out.ResponseCount
	}
	return out, nil
}

// average divides sum by n rounding half-up to two decimals; 0 when n is 0.
func average(sum decimal.Decimal, n int64) float64 {
	if n == 0 {
		return 0
	}
	f, _ := sum.DivRound(decimal.NewFromInt(n), 2).Float64()
	return f
}

// TrendPoint is one day of the trend series.
type TrendPoint struct {
	Date           string  `json:"date"`
	Started        int64   `json:"started"`
	Completed      int64   `json:"completed"`
	Abandoned      int64   `json:"abandoned"`
	Responses      int64   `json:"responses"`
	ConversionRate float64 `json:"conversionRate"`
	AverageScore   float64 `json:"averageScore"`
}

// GetTrendSeries returns one point per day of the window, zero-filled.
func (s *AnalyticsService) GetTrendSeries(ctx context.Context, actor *domain.User, surveyID, from, to string) ([]TrendPoint, error) {
	tr := otel.Tracer("services/AnalyticsService")
	ctx, span := tr.Start(ctx, "GetTrendSeries", trace.WithAttributes(attribute.String("survey.id", surveyID)))
	defer span.End()

	_, r, err := s.scope(ctx, actor, surveyID, from, to)
	if err != nil {
		return nil, err
	}
	rows, err := repo.ListAnalyticsDaily(ctx, s.DB, surveyID, r.From, r.To)
	if err != nil {
		return nil, err
	}
	byDay := make(map[string]domain.SurveyAnalyticsDaily, len(rows))
	for _, row := range rows {
		byDay[row.DateKey] = row
	}
	days := r.Days()
	out := make([]TrendPoint, 0, len(days))
	for _, d := range days {
		row := byDay[d]
		out = append(out, TrendPoint{
			Date:           d,
			Started:        row.Started,
			Completed:      row.Completed,
			Abandoned:      row.Abandoned,
			Responses:      row.ResponseCount,
			ConversionRate: analytics.Rate(row.Completed, row.Started),
			AverageScore:   average(decimal.NewFromFloat(row.ScoreSum), row.GradedResponses),
		})
	}
	return out, nil
}

// BucketCount is one bar of an answer distribution.
type BucketCount struct {
	Key     string  `json:"key"`
	Label   string  `json:"label"`
	Count   int64   `json:"count"`
	Percent float64 `json:"percent"`
}

// AnswerBreakdown is the answer distribution of one field.
type AnswerBreakdown struct {
	Range    analytics.Range  `json:"range"`
	FieldID  string           `json:"fieldId"`
	Label    string           `json:"label"`
	Kind     domain.FieldKind `json:"kind"`
	Answered int64            `json:"answered"`
	Buckets  []BucketCount    `json:"buckets"`
}

// GetAnswerBreakdown merges daily buckets for fieldID. Buckets of the current
// version's options (and ratings 1 to 5) are always present, so an empty
// window still yields a complete axis.
func (s *AnalyticsService) GetAnswerBreakdown(ctx context.Context, actor *domain.User, surveyID, fieldID, from, to string) (*AnswerBreakdown, error) {
	tr := otel.Tracer("services/AnalyticsService")
	ctx, span := tr.Start(ctx, "GetAnswerBreakdown", trace.WithAttributes(
		attribute.String("survey.id", surveyID),
		attribute.String("field.id", fieldID),
	))
	defer span.End()

	sv, r, err := s.scope(ctx, actor, surveyID, from, to)
	if err != nil {
		return nil, err
	}
	current, err := s.currentFields(ctx, sv)
	if err != nil {
		return nil, err
	}
	fieldRows, err := repo.ListFieldDaily(ctx, s.DB, surveyID, r.From, r.To)
	if err != nil {
		return nil, err
	}

	out := &AnswerBreakdown{Range: r, FieldID: fieldID, Buckets: []BucketCount{}}
	known := false
	for _, f := range current {
		if f.ID == fieldID {
			out.Label, out.Kind, known = f.Label, f.Kind, true
		}
	}
	for _, row := range fieldRows {
		if row.FieldID != fieldID {
			continue
		}
		if !known {
			out.Label, out.Kind, known = row.Label, row.FieldKind, true
		}
		out.Answered += row.Answered
	}
	if !known {
		return nil, newErr(CodeInvalidFieldID, "field %q has no analytics", fieldID)
	}

	type acc struct {
		label string
		sort  int
		count int64
	}
	merged := map[string]*acc{}
	for _, f := range current {
		if f.ID != fieldID {
			continue
		}
		for _, b := range analytics.PadBuckets(f) {
			merged[b.BucketKey] = &acc{label: b.Label, sort: b.SortIndex}
		}
	}
	rows, err := repo.ListBucketsDaily(ctx, s.DB, surveyID, fieldID, r.From, r.To)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		a, ok := merged[row.BucketKey]
		if !ok {
			a = &acc{label: row.Label, sort: row.SortIndex}
			merged[row.BucketKey] = a
		}
		a.count += row.Count
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if merged[keys[i]].sort != merged[keys[j]].sort {
			return merged[keys[i]].sort < merged[keys[j]].sort
		}
		return keys[i] < keys[j]
	})
	for _, k := range keys {
		a := merged[k]
		out.Buckets = append(out.Buckets, BucketCount{
			Key:     k,
			Label:   a.label,
			Count:   a.count,
			Percent: analytics.Rate(a.count, out.Answered),
		})
	}
	return out, nil
}

// FieldStat is the reach of one field over a window.
type FieldStat struct {
	FieldID     string           `json:"fieldId"`
	Label       string           `json:"label"`
	Kind        domain.FieldKind `json:"kind"`
	Order       int              `json:"order"`
	Reached     int64            `json:"reached"`
	Answered    int64            `json:"answered"`
	Dropoff     int64            `json:"dropoff"`
	AnswerRate  float64          `json:"answerRate"`
	DropoffRate float64          `json:"dropoffRate"`
}

// fieldStats merges daily field rows with the current version's fields,
// ordered by the current field order.
func (s *AnalyticsService) fieldStats(ctx context.Context, sv *domain.Survey, r analytics.Range) ([]FieldStat, error) {
	current, err := s.currentFields(ctx, sv)
	if err != nil {
		return nil, err
	}
	rows, err := repo.ListFieldDaily(ctx, s.DB, sv.ID, r.From, r.To)
	if err != nil {
		return nil, err
	}
	byID := map[string]*FieldStat{}
	for _, f := range current {
		byID[f.ID] = &FieldStat{FieldID: f.ID, Label: f.Label, Kind: f.Kind, Order: f.Order}
	}
	for _, row := range rows {
		st, ok := byID[row.FieldID]
		if !ok {
			st = &FieldStat{FieldID: row.FieldID, Label: row.Label, Kind: row.FieldKind, Order: row.FieldOrder}
			byID[row.FieldID] = st
		}
		st.Reached += row.Reached
		st.Answered += row.Answered
		st.Dropoff += row.Dropoff
	}
	out := make([]FieldStat, 0, len(byID))
	for _, st := range byID {
		st.AnswerRate = analytics.Rate(st.Answered, st.Reached)
		st.DropoffRate = analytics.Rate(st.Dropoff, st.Reached)
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].FieldID < out[j].FieldID
	})
	return out, nil
}

// GetFieldBreakdown returns per-field reach, answers, and drop-off.
func (s *AnalyticsService) GetFieldBreakdown(ctx context.Context, actor *domain.User, surveyID, from, to string) ([]FieldStat, error) {
	tr := otel.Tracer("services/AnalyticsService")
	ctx, span := tr.Start(ctx, "GetFieldBreakdown", trace.WithAttributes(attribute.String("survey.id", surveyID)))
	defer span.End()

	sv, r, err := s.scope(ctx, actor, surveyID, from, to)
	if err != nil {
		return nil, err
	}
	return s.fieldStats(ctx, sv, r)
}

// StepStat is one step of the drop-off funnel.
type StepStat struct {
	Step         int     `json:"step"`
	FieldID      string  `json:"fieldId"`
	Label        string  `json:"label"`
	Reached      int64   `json:"reached"`
	Answered     int64   `json:"answered"`
	Dropoff      int64   `json:"dropoff"`
	DropoffRate  float64 `json:"dropoffRate"`
	RetainedRate float64 `json:"retainedRate"`
}

// GetDropoffByStep orders fields as steps and reports, per step, how many
// responses reached it and the share of all responses still retained.
func (s *AnalyticsService) GetDropoffByStep(ctx context.Context, actor *domain.User, surveyID, from, to string) ([]StepStat, error) {
	tr := otel.Tracer("services/AnalyticsService")
	ctx, span := tr.Start(ctx, "GetDropoffByStep", trace.WithAttributes(attribute.String("survey.id", surveyID)))
	defer span.End()

	sv, r, err := s.scope(ctx, actor, surveyID, from, to)
	if err != nil {
		return nil, err
	}
	stats, err := s.fieldStats(ctx, sv, r)
	if err != nil {
		return nil, err
	}
	days, err := repo.ListAnalyticsDaily(ctx, s.DB, surveyID, r.From, r.To)
	if err != nil {
		return nil, err
	}
	var responses int64
	for _, d := range days {
		responses += d.ResponseCount
	}
	out := make([]StepStat, 0, len(stats))
	for i, st := range stats {
		out = append(out, StepStat{
			Step:         i + 1,
			FieldID:      st.FieldID,
			Label:        st.Label,
			Reached:      st.Reached,
			Answered:     st.Answered,
			Dropoff:      st.Dropoff,
			DropoffRate:  st.DropoffRate,
			RetainedRate: analytics.Rate(st.Reached, responses),
		})
	}
	return out, nil
}

// TextInsights summarizes a free-text field over a window.
type TextInsights struct {
	Range      analytics.Range       `json:"range"`
	FieldID    string                `json:"fieldId"`
	Responses  int64                 `json:"responses"`
	TopPhrases []domain.PhraseCount  `json:"topPhrases"`
	Snippets   []domain.SnippetCount `json:"snippets"`
}

// GetTextInsights merges daily phrase and snippet summaries for fieldID,
// re-ranking with the same ordering and caps as the rebuild.
func (s *AnalyticsService) GetTextInsights(ctx context.Context, actor *domain.User, surveyID, fieldID, from, to string) (*TextInsights, error) {
	tr := otel.Tracer("services/AnalyticsService")
	ctx, span := tr.Start(ctx, "GetTextInsights", trace.WithAttributes(
		attribute.String("survey.id", surveyID),
		attribute.String("field.id", fieldID),
	))
	defer span.End()

	sv, r, err := s.scope(ctx, actor, surveyID, from, to)
	if err != nil {
		return nil, err
	}
	current, err := s.currentFields(ctx, sv)
	if err != nil {
		return nil, err
	}
	for _, f := range current {
		if f.ID == fieldID && !f.Kind.IsFreeText() {
			return nil, newErr(CodeInvalidFieldID, "field %q is not a free-text field", fieldID)
		}
	}
	rows, err := repo.ListTextDaily(ctx, s.DB, surveyID, fieldID, r.From, r.To)
	if err != nil {
		return nil, err
	}
	acc := analytics.NewTextAccumulator()
	for _, row := range rows {
		acc.AddSummary(row.ResponseCount, row.TopPhrases, row.Snippets)
	}
	return &TextInsights{
		Range:      r,
		FieldID:    fieldID,
		Responses:  acc.Responses(),
		TopPhrases: acc.TopPhrases(analytics.MaxPhrases),
		Snippets:   acc.TopSnippets(analytics.MaxSnippets),
	}, nil
}

// csvHeader is the column set of the analytics export.
var csvHeader = []string{
	"date", "field_id", "field_label", "field_kind", "field_order",
	"reached", "answered", "dropoff", "dropoff_rate",
	"started", "completed", "abandoned", "conversion_rate",
	"responses", "average_score",
}

// WriteCSVExport writes one row per (day, field) joined with that day's
// funnel and summary. Days with counters but no field rows get a single row
// with empty field columns. More than ExportMaxRows data rows fails with
// ANALYTICS_EXPORT_TOO_LARGE before anything is written.
func (s *AnalyticsService) WriteCSVExport(ctx context.Context, actor *domain.User, surveyID, from, to string, w io.Writer) error {
	tr := otel.Tracer("services/AnalyticsService")
	ctx, span := tr.Start(ctx, "WriteCSVExport", trace.WithAttributes(attribute.String("survey.id", surveyID)))
	defer span.End()

	_, r, err := s.scope(ctx, actor, surveyID, from, to)
	if err != nil {
		return err
	}
	n, err := repo.CountFieldDaily(ctx, s.DB, surveyID, r.From, r.To)
	if err != nil {
		return err
	}
	if s.ExportMaxRows > 0 && n > int64(s.ExportMaxRows) {
		return newErr(CodeExportTooLarge, "export would produce %d rows; the limit is %d", n, s.ExportMaxRows)
	}

	days, err := repo.ListAnalyticsDaily(ctx, s.DB, surveyID, r.From, r.To)
	if err != nil {
		return err
	}
	fields, err := repo.ListFieldDaily(ctx, s.DB, surveyID, r.From, r.To)
	if err != nil {
		return err
	}
	byDay := make(map[string]domain.SurveyAnalyticsDaily, len(days))
	for _, d := range days {
		byDay[d.DateKey] = d
	}
	fieldsByDay := map[string][]domain.SurveyFieldAnalyticsDaily{}
	for _, f := range fields {
		fieldsByDay[f.DateKey] = append(fieldsByDay[f.DateKey], f)
	}

	var records [][]string
	for _, d := range r.Days() {
		day, hasDay := byDay[d]
		rows := fieldsByDay[d]
		if !hasDay && len(rows) == 0 {
			continue
		}
		dayCols := []string{
			itoa(day.Started), itoa(day.Completed), itoa(day.Abandoned),
			ftoa(analytics.Rate(day.Completed, day.Started)),
			itoa(day.ResponseCount),
			ftoa(average(decimal.NewFromFloat(day.ScoreSum), day.GradedResponses)),
		}
		if len(rows) == 0 {
			records = append(records, append([]string{d, "", "", "", "", "", "", "", ""}, dayCols...))
			continue
		}
		sort.Slice(rows, func(i, j int) bool {
			if rows[i].FieldOrder != rows[j].FieldOrder {
				return rows[i].FieldOrder < rows[j].FieldOrder
			}
			return rows[i].FieldID < rows[j].FieldID
		})
		for _, f := range rows {
			rec := []string{
				d, f.FieldID, f.Label, string(f.FieldKind), strconv.Itoa(f.FieldOrder),
				itoa(f.Reached), itoa(f.Answered), itoa(f.Dropoff),
				ftoa(analytics.Rate(f.Dropoff, f.Reached)),
			}
			records = append(records, append(rec, dayCols...))
		}
	}
	if s.ExportMaxRows > 0 && len(records) > s.ExportMaxRows {
		return newErr(CodeExportTooLarge, "export would produce %d rows; the limit is %d", len(records), s.ExportMaxRows)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	if err := cw.WriteAll(records); err != nil {
		return err
	}
	span.SetAttributes(attribute.Int("rows", len(records)))
	return cw.Error()
}

func itoa(n int64) string   { return strconv.FormatInt(n, 10) }
func ftoa(f float64) string { return strconv.FormatFloat(f, 'f', 2, 64) }
