package repo

import (
	"context"
	"testing"

	"gorm.io/datatypes"

	"github.com/tbourn/go-survey-backend/internal/domain"
)

func TestBumpDailyMetric_CreatesThenIncrements(t *testing.T) {
	db := newMigratedDB(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := BumpDailyMetric(ctx, db, "s1", "2025-05-01", domain.MetricStarted, 1); err != nil {
			t.Fatalf("bump started: %v", err)
		}
	}
	if err := BumpDailyMetric(ctx, db, "s1", "2025-05-01", domain.MetricReactivated, 1); err != nil {
		t.Fatalf("bump reactivated: %v", err)
	}
	if err := BumpDailyMetric(ctx, db, "s1", "2025-05-01", domain.DailyMetric("bogus"), 1); err == nil {
		t.Fatalf("expected error for unknown metric")
	}

	live, err := GetMetricsDaily(ctx, db, "s1", "2025-05-01")
	if err != nil {
		t.Fatalf("GetMetricsDaily: %v", err)
	}
	if live.Started != 3 || live.Reactivated != 1 || live.Completed != 0 {
		t.Fatalf("unexpected live counters: %+v", live.FunnelCounters)
	}

	mirror, err := ListAnalyticsDaily(ctx, db, "s1", "2025-05-01", "2025-05-01")
	if err != nil || len(mirror) != 1 {
		t.Fatalf("ListAnalyticsDaily = (%v, %v)", mirror, err)
	}
	if mirror[0].FunnelCounters != live.FunnelCounters {
		t.Fatalf("mirror %+v != live %+v", mirror[0].FunnelCounters, live.FunnelCounters)
	}
}

func TestUpsertAnalyticsSummary_PreservesCounters(t *testing.T) {
	db := newMigratedDB(t)
	ctx := context.Background()

	if err := BumpDailyMetric(ctx, db, "s1", "2025-05-01", domain.MetricCompleted, 2); err != nil {
		t.Fatalf("bump: %v", err)
	}
	row := &domain.SurveyAnalyticsDaily{SurveyID: "s1", DateKey: "2025-05-01", ResponseCount: 2, ScoreSum: 150}
	for i := 0; i < 2; i++ {
		if err := UpsertAnalyticsSummary(ctx, db, row); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	rows, err := ListAnalyticsDaily(ctx, db, "s1", "2025-05-01", "2025-05-01")
	if err != nil || len(rows) != 1 {
		t.Fatalf("ListAnalyticsDaily = (%v, %v)", rows, err)
	}
	if rows[0].Completed != 2 || rows[0].ResponseCount != 2 || rows[0].ScoreSum != 150 {
		t.Fatalf("unexpected row: %+v", rows[0])
	}
}

func TestReplaceDaily_UpsertsAndDeletesStale(t *testing.T) {
	db := newMigratedDB(t)
	ctx := context.Background()
	const s, d = "s1", "2025-05-01"

	fields := []domain.SurveyFieldAnalyticsDaily{
		{SurveyID: s, FieldID: "a", DateKey: d, FieldOrder: 0, FieldKind: domain.KindShortText, Label: "A", Reached: 2, Answered: 2},
		{SurveyID: s, FieldID: "b", DateKey: d, FieldOrder: 1, FieldKind: domain.KindRating, Label: "B", Reached: 2, Answered: 1, Dropoff: 1},
	}
	buckets := []domain.SurveyAnswerBucketDaily{
		{SurveyID: s, FieldID: "b", DateKey: d, BucketKey: "1", Label: "1", SortIndex: 0, Count: 1},
		{SurveyID: s, FieldID: "b", DateKey: d, BucketKey: "2", Label: "2", SortIndex: 1},
	}
	texts := []domain.SurveyTextInsightsDaily{
		{SurveyID: s, FieldID: "a", DateKey: d, ResponseCount: 2,
			TopPhrases: datatypes.JSONSlice[domain.PhraseCount]{{Phrase: "slow", Count: 2}},
			Snippets:   datatypes.JSONSlice[domain.SnippetCount]{{Text: "slow", Count: 2}}},
	}
	if err := ReplaceFieldDaily(ctx, db, s, d, fields); err != nil {
		t.Fatalf("ReplaceFieldDaily: %v", err)
	}
	if err := ReplaceBucketsDaily(ctx, db, s, d, buckets); err != nil {
		t.Fatalf("ReplaceBucketsDaily: %v", err)
	}
	if err := ReplaceTextDaily(ctx, db, s, d, texts); err != nil {
		t.Fatalf("ReplaceTextDaily: %v", err)
	}

	// Second pass drops field b, bucket 2 and every text row.
	fields[0].Reached = 3
	if err := ReplaceFieldDaily(ctx, db, s, d, fields[:1]); err != nil {
		t.Fatalf("ReplaceFieldDaily again: %v", err)
	}
	if err := ReplaceBucketsDaily(ctx, db, s, d, buckets[:1]); err != nil {
		t.Fatalf("ReplaceBucketsDaily again: %v", err)
	}
	if err := ReplaceTextDaily(ctx, db, s, d, nil); err != nil {
		t.Fatalf("ReplaceTextDaily again: %v", err)
	}

	gotFields, _ := ListFieldDaily(ctx, db, s, d, d)
	if len(gotFields) != 1 || gotFields[0].FieldID != "a" || gotFields[0].Reached != 3 {
		t.Fatalf("fields after replace: %+v", gotFields)
	}
	gotBuckets, _ := ListBucketsDaily(ctx, db, s, "b", d, d)
	if len(gotBuckets) != 1 || gotBuckets[0].BucketKey != "1" {
		t.Fatalf("buckets after replace: %+v", gotBuckets)
	}
	gotTexts, _ := ListTextDaily(ctx, db, s, "a", d, d)
	if len(gotTexts) != 0 {
		t.Fatalf("texts after replace: %+v", gotTexts)
	}
	if n, _ := CountFieldDaily(ctx, db, s, d, d); n != 1 {
		t.Fatalf("CountFieldDaily = %d; want 1", n)
	}
}
