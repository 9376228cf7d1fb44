package domain

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// SessionStatus is a respondent session's liveness state.
type SessionStatus string

const (
	SessionInProgress SessionStatus = "in_progress"
	SessionIdle       SessionStatus = "idle"
	SessionAbandoned  SessionStatus = "abandoned"
	SessionCompleted  SessionStatus = "completed"
)

// Dormant reports whether a respondent action would reactivate the session.
func (s SessionStatus) Dormant() bool { return s == SessionIdle || s == SessionAbandoned }

// SurveySession tracks one respondent's progress through an invite.
//
// PublicID is the opaque identifier handed to respondents; ID never leaves
// the server. At most one non-completed row exists per (InviteID,
// RespondentKey); the service re-checks this inside the creating transaction.
type SurveySession struct {
	ID             string        `json:"-"                gorm:"type:char(36);primaryKey"`
	PublicID       string        `json:"public_id"        gorm:"type:varchar(64);not null;uniqueIndex:ux_sessions_public_id"`
	SurveyID       string        `json:"survey_id"        gorm:"type:char(36);not null;index:idx_sessions_survey_status,priority:1"`
	VersionID      string        `json:"version_id"       gorm:"type:char(36);not null"`
	InviteID       string        `json:"invite_id"        gorm:"type:char(36);not null;index:idx_sessions_invite_respondent,priority:1"`
	RespondentKey  string        `json:"-"                gorm:"type:varchar(128);not null;index:idx_sessions_invite_respondent,priority:2"`
	Status         SessionStatus `json:"status"           gorm:"type:varchar(16);not null;index:idx_sessions_survey_status,priority:2;index:idx_sessions_status_activity,priority:1"`
	Answers        Answers       `json:"answers"          gorm:"type:text;not null"`
	StartedAt      time.Time     `json:"started_at"       gorm:"not null"`
	LastActivityAt time.Time     `json:"last_activity_at" gorm:"not null;index:idx_sessions_status_activity,priority:2"`
	CompletedAt    *time.Time    `json:"completed_at"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// TableName returns the database table name for SurveySession.
func (SurveySession) TableName() string { return "survey_sessions" }

// FieldResult is the graded outcome of a single field.
type FieldResult struct {
	FieldID   string `json:"fieldId"`
	Answered  bool   `json:"answered"`
	IsCorrect bool   `json:"isCorrect"`
}

// Grading is the scoring snapshot frozen into a response at submit time.
type Grading struct {
	GradableCount  int           `json:"gradableCount"`
	CorrectCount   int           `json:"correctCount"`
	IncorrectCount int           `json:"incorrectCount"`
	ScorePercent   float64       `json:"scorePercent"`
	FieldResults   []FieldResult `json:"fieldResults"`
}

// SurveyResponse is the immutable record of a submitted session.
type SurveyResponse struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	SessionID   string    `json:"-"            gorm:"type:char(36);not null;uniqueIndex:ux_responses_session"`
	SurveyID    string    `json:"survey_id"    gorm:"type:char(36);not null;index:idx_responses_survey_submitted,priority:1"`
	VersionID   string    `json:"version_id"   gorm:"type:char(36);not null"`
	InviteID    string    `json:"invite_id"    gorm:"type:char(36);not null"`
	Answers     Answers   `json:"answers"      gorm:"type:text;not null"`
	Grading     Grading   `json:"grading"      gorm:"type:text;not null"`
	SubmittedAt time.Time `json:"submitted_at" gorm:"not null;index:idx_responses_survey_submitted,priority:2"`
	DurationMs  int64     `json:"duration_ms"  gorm:"not null"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName returns the database table name for SurveyResponse.
func (SurveyResponse) TableName() string { return "survey_responses" }

// Value implements driver.Valuer.
func (g Grading) Value() (driver.Value, error) {
	b, err := json.Marshal(g)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (g *Grading) Scan(src any) error {
	return scanJSON(src, g)
}
