package domain

import "gorm.io/datatypes"

// DailyMetric names one of the live funnel counters.
type DailyMetric string

const (
	MetricStarted     DailyMetric = "started"
	MetricCompleted   DailyMetric = "completed"
	MetricIdle        DailyMetric = "idle"
	MetricAbandoned   DailyMetric = "abandoned"
	MetricReactivated DailyMetric = "reactivated"
)

// Valid reports whether m is a known counter.
func (m DailyMetric) Valid() bool {
	switch m {
	case MetricStarted, MetricCompleted, MetricIdle, MetricAbandoned, MetricReactivated:
		return true
	}
	return false
}

// FunnelCounters are the five live counters shared by the metrics and
// analytics daily rows.
type FunnelCounters struct {
	Started     int64 `json:"started"     gorm:"not null;default:0"`
	Completed   int64 `json:"completed"   gorm:"not null;default:0"`
	Idle        int64 `json:"idle"        gorm:"not null;default:0"`
	Abandoned   int64 `json:"abandoned"   gorm:"not null;default:0"`
	Reactivated int64 `json:"reactivated" gorm:"not null;default:0"`
}

// Add increments the named counter by delta.
func (c *FunnelCounters) Add(m DailyMetric, delta int64) {
	switch m {
	case MetricStarted:
		c.Started += delta
	case MetricCompleted:
		c.Completed += delta
	case MetricIdle:
		c.Idle += delta
	case MetricAbandoned:
		c.Abandoned += delta
	case MetricReactivated:
		c.Reactivated += delta
	}
}

// Merge adds every counter of o into c.
func (c *FunnelCounters) Merge(o FunnelCounters) {
	c.Started += o.Started
	c.Completed += o.Completed
	c.Idle += o.Idle
	c.Abandoned += o.Abandoned
	c.Reactivated += o.Reactivated
}

// SurveyMetricsDaily holds live counters bumped as lifecycle events occur.
type SurveyMetricsDaily struct {
	SurveyID string `json:"survey_id" gorm:"type:char(36);primaryKey"`
	DateKey  string `json:"date_key"  gorm:"type:char(10);primaryKey"`
	FunnelCounters
}

// TableName returns the database table name for SurveyMetricsDaily.
func (SurveyMetricsDaily) TableName() string { return "survey_metrics_daily" }

// SurveyAnalyticsDaily mirrors the live counters and carries the rebuildable
// per-day summary (response and scoring aggregates).
type SurveyAnalyticsDaily struct {
	SurveyID string `json:"survey_id" gorm:"type:char(36);primaryKey"`
	DateKey  string `json:"date_key"  gorm:"type:char(10);primaryKey"`
	FunnelCounters

	ResponseCount   int64   `json:"response_count"    gorm:"not null;default:0"`
	GradedResponses int64   `json:"graded_responses"  gorm:"not null;default:0"`
	ScoreSum        float64 `json:"score_sum"         gorm:"not null;default:0"`
	PerfectScores   int64   `json:"perfect_scores"    gorm:"not null;default:0"`
	CorrectTotal    int64   `json:"correct_total"     gorm:"not null;default:0"`
	GradableTotal   int64   `json:"gradable_total"    gorm:"not null;default:0"`
	DurationMsSum   int64   `json:"duration_ms_sum"   gorm:"not null;default:0"`
}

// TableName returns the database table name for SurveyAnalyticsDaily.
func (SurveyAnalyticsDaily) TableName() string { return "survey_analytics_daily" }

// SurveyFieldAnalyticsDaily holds per-field reach for one day.
type SurveyFieldAnalyticsDaily struct {
	SurveyID   string    `json:"survey_id"   gorm:"type:char(36);primaryKey"`
	FieldID    string    `json:"field_id"    gorm:"type:varchar(64);primaryKey"`
	DateKey    string    `json:"date_key"    gorm:"type:char(10);primaryKey;index"`
	FieldOrder int       `json:"field_order" gorm:"not null"`
	FieldKind  FieldKind `json:"field_kind"  gorm:"type:varchar(16);not null"`
	Label      string    `json:"label"       gorm:"type:varchar(255);not null"`
	Reached    int64     `json:"reached"     gorm:"not null;default:0"`
	Answered   int64     `json:"answered"    gorm:"not null;default:0"`
	Dropoff    int64     `json:"dropoff"     gorm:"not null;default:0"`
}

// TableName returns the database table name for SurveyFieldAnalyticsDaily.
func (SurveyFieldAnalyticsDaily) TableName() string { return "survey_field_analytics_daily" }

// SurveyAnswerBucketDaily counts answers falling into one discrete bucket.
type SurveyAnswerBucketDaily struct {
	SurveyID  string `json:"survey_id"  gorm:"type:char(36);primaryKey"`
	FieldID   string `json:"field_id"   gorm:"type:varchar(64);primaryKey"`
	DateKey   string `json:"date_key"   gorm:"type:char(10);primaryKey;index"`
	BucketKey string `json:"bucket_key" gorm:"type:varchar(255);primaryKey"`
	Label     string `json:"label"      gorm:"type:varchar(255);not null"`
	SortIndex int    `json:"sort_index" gorm:"not null"`
	Count     int64  `json:"count"      gorm:"not null;default:0"`
}

// TableName returns the database table name for SurveyAnswerBucketDaily.
func (SurveyAnswerBucketDaily) TableName() string { return "survey_answer_buckets_daily" }

// PhraseCount is a ranked phrase with its frequency.
type PhraseCount struct {
	Phrase string `json:"phrase"`
	Count  int64  `json:"count"`
}

// SnippetCount is a redacted free-text sample with its frequency.
type SnippetCount struct {
	Text  string `json:"text"`
	Count int64  `json:"count"`
}

// SurveyTextInsightsDaily holds phrase and snippet summaries for a free-text field.
type SurveyTextInsightsDaily struct {
	SurveyID      string                            `json:"survey_id"      gorm:"type:char(36);primaryKey"`
	FieldID       string                            `json:"field_id"       gorm:"type:varchar(64);primaryKey"`
	DateKey       string                            `json:"date_key"       gorm:"type:char(10);primaryKey;index"`
	ResponseCount int64                             `json:"response_count" gorm:"not null;default:0"`
	TopPhrases    datatypes.JSONSlice[PhraseCount]  `json:"top_phrases"    gorm:"type:text;not null"`
	Snippets      datatypes.JSONSlice[SnippetCount] `json:"snippets"       gorm:"type:text;not null"`
}

// TableName returns the database table name for SurveyTextInsightsDaily.
func (SurveyTextInsightsDaily) TableName() string { return "survey_text_insights_daily" }
