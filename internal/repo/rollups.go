package repo

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-survey-backend/internal/domain"
)

var metricColumns = map[domain.DailyMetric]string{
	domain.MetricStarted:     "started",
	domain.MetricCompleted:   "completed",
	domain.MetricIdle:        "idle",
	domain.MetricAbandoned:   "abandoned",
	domain.MetricReactivated: "reactivated",
}

var dayKey = []clause.Column{{Name: "survey_id"}, {Name: "date_key"}}

// BumpDailyMetric adds delta to one live counter of (survey, day) in both the
// metrics table and the mirrored analytics row, creating them if missing.
// Run it inside the transaction of the event it counts.
func BumpDailyMetric(ctx context.Context, db *gorm.DB, surveyID, dateKey string, m domain.DailyMetric, delta int64) error {
	col, ok := metricColumns[m]
	if !ok {
		return fmt.Errorf("unknown daily metric %q", m)
	}
	var counters domain.FunnelCounters
	counters.Add(m, delta)

	inc := clause.OnConflict{
		Columns: dayKey,
		DoUpdates: clause.Set{{
			Column: clause.Column{Name: col},
			Value:  gorm.Expr(col+" + ?", delta),
		}},
	}
	live := &domain.SurveyMetricsDaily{SurveyID: surveyID, DateKey: dateKey, FunnelCounters: counters}
	if err := db.WithContext(ctx).Clauses(inc).Create(live).Error; err != nil {
		return err
	}
	mirror := &domain.SurveyAnalyticsDaily{SurveyID: surveyID, DateKey: dateKey, FunnelCounters: counters}
	return db.WithContext(ctx).Clauses(inc).Create(mirror).Error
}

// GetMetricsDaily returns the live counters of one day, or a zero row.
func GetMetricsDaily(ctx context.Context, db *gorm.DB, surveyID, dateKey string) (domain.SurveyMetricsDaily, error) {
	row := domain.SurveyMetricsDaily{SurveyID: surveyID, DateKey: dateKey}
	err := db.WithContext(ctx).Where("survey_id = ? AND date_key = ?", surveyID, dateKey).Limit(1).Find(&row).Error
	return row, err
}

// ListMetricsDaily returns live counter rows in [from, to] ordered by day.
func ListMetricsDaily(ctx context.Context, db *gorm.DB, surveyID, from, to string) ([]domain.SurveyMetricsDaily, error) {
	var out []domain.SurveyMetricsDaily
	err := db.WithContext(ctx).
		Where("survey_id = ? AND date_key >= ? AND date_key <= ?", surveyID, from, to).
		Order("date_key ASC").Find(&out).Error
	return out, err
}

// ListAnalyticsDaily returns analytics summary rows in [from, to].
func ListAnalyticsDaily(ctx context.Context, db *gorm.DB, surveyID, from, to string) ([]domain.SurveyAnalyticsDaily, error) {
	var out []domain.SurveyAnalyticsDaily
	err := db.WithContext(ctx).
		Where("survey_id = ? AND date_key >= ? AND date_key <= ?", surveyID, from, to).
		Order("date_key ASC").Find(&out).Error
	return out, err
}

var summaryColumns = []string{
	"response_count", "graded_responses", "score_sum", "perfect_scores",
	"correct_total", "gradable_total", "duration_ms_sum",
}

// UpsertAnalyticsSummary writes the rebuildable columns of one analytics day
// while leaving the live funnel counters untouched.
func UpsertAnalyticsSummary(ctx context.Context, db *gorm.DB, row *domain.SurveyAnalyticsDaily) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   dayKey,
		DoUpdates: clause.AssignmentColumns(summaryColumns),
	}).Create(row).Error
}

// ReplaceFieldDaily upserts rows for (survey, day) and deletes any stored
// field row whose key is absent from rows.
func ReplaceFieldDaily(ctx context.Context, db *gorm.DB, surveyID, dateKey string, rows []domain.SurveyFieldAnalyticsDaily) error {
	tx := db.WithContext(ctx)
	keep := make([]string, 0, len(rows))
	for i := range rows {
		keep = append(keep, rows[i].FieldID)
	}
	if len(rows) > 0 {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "survey_id"}, {Name: "field_id"}, {Name: "date_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"field_order", "field_kind", "label", "reached", "answered", "dropoff"}),
		}).Create(&rows).Error; err != nil {
			return err
		}
	}
	q := tx.Where("survey_id = ? AND date_key = ?", surveyID, dateKey)
	if len(keep) > 0 {
		q = q.Where("field_id NOT IN ?", keep)
	}
	return q.Delete(&domain.SurveyFieldAnalyticsDaily{}).Error
}

// ReplaceBucketsDaily upserts bucket rows for (survey, day) and deletes stale
// (field, bucket) keys.
func ReplaceBucketsDaily(ctx context.Context, db *gorm.DB, surveyID, dateKey string, rows []domain.SurveyAnswerBucketDaily) error {
	tx := db.WithContext(ctx)
	if len(rows) > 0 {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "survey_id"}, {Name: "field_id"}, {Name: "date_key"}, {Name: "bucket_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"label", "sort_index", "count"}),
		}).Create(&rows).Error; err != nil {
			return err
		}
	}

	fresh := make(map[[2]string]struct{}, len(rows))
	for _, r := range rows {
		fresh[[2]string{r.FieldID, r.BucketKey}] = struct{}{}
	}
	var existing []domain.SurveyAnswerBucketDaily
	if err := tx.Select("field_id", "bucket_key").
		Where("survey_id = ? AND date_key = ?", surveyID, dateKey).
		Find(&existing).Error; err != nil {
		return err
	}
	for _, e := range existing {
		if _, ok := fresh[[2]string{e.FieldID, e.BucketKey}]; ok {
			continue
		}
		if err := tx.Where("survey_id = ? AND date_key = ? AND field_id = ? AND bucket_key = ?",
			surveyID, dateKey, e.FieldID, e.BucketKey).
			Delete(&domain.SurveyAnswerBucketDaily{}).Error; err != nil {
			return err
		}
	}
	return nil
}

// ReplaceTextDaily upserts text insight rows for (survey, day) and deletes
// rows of fields no longer present.
func ReplaceTextDaily(ctx context.Context, db *gorm.DB, surveyID, dateKey string, rows []domain.SurveyTextInsightsDaily) error {
	tx := db.WithContext(ctx)
	keep := make([]string, 0, len(rows))
	for i := range rows {
		keep = append(keep, rows[i].FieldID)
	}
	if len(rows) > 0 {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "survey_id"}, {Name: "field_id"}, {Name: "date_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"response_count", "top_phrases", "snippets"}),
		}).Create(&rows).Error; err != nil {
			return err
		}
	}
	q := tx.Where("survey_id = ? AND date_key = ?", surveyID, dateKey)
	if len(keep) > 0 {
		q = q.Where("field_id NOT IN ?", keep)
	}
	return q.Delete(&domain.SurveyTextInsightsDaily{}).Error
}

// ListFieldDaily returns field rows in [from, to] ordered by day and field order.
func ListFieldDaily(ctx context.Context, db *gorm.DB, surveyID, from, to string) ([]domain.SurveyFieldAnalyticsDaily, error) {
	var out []domain.SurveyFieldAnalyticsDaily
	err := db.WithContext(ctx).
		Where("survey_id = ? AND date_key >= ? AND date_key <= ?", surveyID, from, to).
		Order("date_key ASC").Order("field_order ASC").Order("field_id ASC").
		Find(&out).Error
	return out, err
}

// CountFieldDaily counts field rows in [from, to].
func CountFieldDaily(ctx context.Context, db *gorm.DB, surveyID, from, to string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.SurveyFieldAnalyticsDaily{}).
		Where("survey_id = ? AND date_key >= ? AND date_key <= ?", surveyID, from, to).
		Count(&n).Error
	return n, err
}

// ListBucketsDaily returns one field's bucket rows in [from, to].
func ListBucketsDaily(ctx context.Context, db *gorm.DB, surveyID, fieldID, from, to string) ([]domain.SurveyAnswerBucketDaily, error) {
	var out []domain.SurveyAnswerBucketDaily
	err := db.WithContext(ctx).
		Where("survey_id = ? AND field_id = ? AND date_key >= ? AND date_key <= ?", surveyID, fieldID, from, to).
		Order("date_key ASC").Order("sort_index ASC").
		Find(&out).Error
	return out, err
}

// ListTextDaily returns one field's text insight rows in [from, to].
func ListTextDaily(ctx context.Context, db *gorm.DB, surveyID, fieldID, from, to string) ([]domain.SurveyTextInsightsDaily, error) {
	var out []domain.SurveyTextInsightsDaily
	err := db.WithContext(ctx).
		Where("survey_id = ? AND field_id = ? AND date_key >= ? AND date_key <= ?", surveyID, fieldID, from, to).
		Order("date_key ASC").
		Find(&out).Error
	return out, err
}
