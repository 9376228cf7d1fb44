package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-survey-backend/internal/repo"
)

// Outbox event types.
const (
	EventSessionStarted    = "survey_session_started"
	EventResponseSubmitted = "survey_response_submitted"
	EventVersionPublished  = "survey_version_published"
)

// Event is the JSON payload carried by every outbox entry.
type Event struct {
	Type         string    `json:"type"`
	SurveyID     string    `json:"surveyId"`
	VersionID    string    `json:"versionId,omitempty"`
	InviteID     string    `json:"inviteId,omitempty"`
	SessionID    string    `json:"sessionId,omitempty"`
	ResponseID   string    `json:"responseId,omitempty"`
	ScorePercent *float64  `json:"scorePercent,omitempty"`
	OccurredAt   time.Time `json:"occurredAt"`
}

// enqueue writes ev to the outbox inside tx.
func enqueue(ctx context.Context, tx *gorm.DB, ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Type, err)
	}
	if _, err := repo.EnqueueOutbox(ctx, tx, ev.Type, ev.SurveyID, b, ev.OccurredAt); err != nil {
		return fmt.Errorf("enqueue %s event: %w", ev.Type, err)
	}
	return nil
}
