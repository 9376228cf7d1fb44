package domain

import (
	"time"

	"gorm.io/datatypes"
)

// OutboxStatus is the delivery state of an outbox entry.
type OutboxStatus string

const (
	OutboxPending OutboxStatus = "pending"
	OutboxSent    OutboxStatus = "sent"
	OutboxFailed  OutboxStatus = "failed"
)

// AnalyticsOutbox is an analytics event awaiting delivery to the external sink.
// Entries are written in the same transaction as the mutation that produced
// them and drained by the dispatcher.
type AnalyticsOutbox struct {
	ID            string         `json:"id"              gorm:"type:char(36);primaryKey"`
	EventType     string         `json:"event_type"      gorm:"type:varchar(64);not null"`
	SurveyID      string         `json:"survey_id"       gorm:"type:char(36);not null;default:''"`
	Payload       datatypes.JSON `json:"payload"         gorm:"type:text;not null"`
	Status        OutboxStatus   `json:"status"          gorm:"type:varchar(16);not null;index:idx_outbox_due,priority:1"`
	AttemptCount  int            `json:"attempt_count"   gorm:"not null;default:0"`
	NextAttemptAt time.Time      `json:"next_attempt_at" gorm:"not null;index:idx_outbox_due,priority:2"`
	LastError     string         `json:"last_error"      gorm:"type:text;not null;default:''"`
	SentAt        *time.Time     `json:"sent_at"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// TableName returns the database table name for AnalyticsOutbox.
func (AnalyticsOutbox) TableName() string { return "analytics_outbox" }

// ActorType identifies who caused an audited change.
type ActorType string

const (
	ActorUser       ActorType = "user"
	ActorRespondent ActorType = "respondent"
	ActorSystem     ActorType = "system"
)

// SessionTransition is an append-only record of one session status change.
// FromStatus is empty for the creating transition.
type SessionTransition struct {
	ID         string        `json:"id"          gorm:"type:char(36);primaryKey"`
	SessionID  string        `json:"session_id"  gorm:"type:char(36);not null;index"`
	SurveyID   string        `json:"survey_id"   gorm:"type:char(36);not null;index"`
	FromStatus SessionStatus `json:"from_status" gorm:"type:varchar(16);not null;default:''"`
	ToStatus   SessionStatus `json:"to_status"   gorm:"type:varchar(16);not null"`
	Reason     string        `json:"reason"      gorm:"type:varchar(32);not null"`
	ActorType  ActorType     `json:"actor_type"  gorm:"type:varchar(16);not null"`
	CreatedAt  time.Time     `json:"created_at"  gorm:"not null"`
}

// TableName returns the database table name for SessionTransition.
func (SessionTransition) TableName() string { return "session_transitions" }

// AuditLog is an append-only record of an administrative or lifecycle action.
type AuditLog struct {
	ID         string         `json:"id"          gorm:"type:char(36);primaryKey"`
	ActorType  ActorType      `json:"actor_type"  gorm:"type:varchar(16);not null"`
	ActorID    string         `json:"actor_id"    gorm:"type:varchar(191);not null;default:''"`
	Action     string         `json:"action"      gorm:"type:varchar(64);not null"`
	EntityType string         `json:"entity_type" gorm:"type:varchar(32);not null"`
	EntityID   string         `json:"entity_id"   gorm:"type:varchar(64);not null"`
	SurveyID   string         `json:"survey_id"   gorm:"type:char(36);not null;default:'';index:idx_audit_survey_created,priority:1"`
	Metadata   datatypes.JSON `json:"metadata"    gorm:"type:text"`
	CreatedAt  time.Time      `json:"created_at"  gorm:"not null;index:idx_audit_survey_created,priority:2"`
}

// TableName returns the database table name for AuditLog.
func (AuditLog) TableName() string { return "audit_logs" }
