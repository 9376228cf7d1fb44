package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/go-survey-backend/internal/domain"
)

func TestOutbox_Lifecycle(t *testing.T) {
	db := newMigratedDB(t)
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	e, err := EnqueueOutbox(ctx, db, "survey_response_submitted", "s1", []byte(`{"a":1}`), now)
	if err != nil {
		t.Fatalf("EnqueueOutbox: %v", err)
	}

	due, err := ListDueOutbox(ctx, db, now, 10)
	if err != nil || len(due) != 1 {
		t.Fatalf("ListDueOutbox = (%v, %v)", due, err)
	}

	next := now.Add(2 * time.Second)
	if err := MarkOutboxAttemptFailed(ctx, db, e.ID, 1, domain.OutboxPending, next, "boom", now); err != nil {
		t.Fatalf("MarkOutboxAttemptFailed: %v", err)
	}
	if due, _ := ListDueOutbox(ctx, db, now, 10); len(due) != 0 {
		t.Fatalf("entry should not be due before backoff, got %d", len(due))
	}
	if due, _ := ListDueOutbox(ctx, db, next, 10); len(due) != 1 || due[0].AttemptCount != 1 || due[0].LastError != "boom" {
		t.Fatalf("entry should be due after backoff: %+v", due)
	}

	if err := MarkOutboxAttemptFailed(ctx, db, e.ID, 8, domain.OutboxFailed, next, "dead", now); err != nil {
		t.Fatalf("dead-letter: %v", err)
	}
	if n, _ := CountOutboxByStatus(ctx, db, domain.OutboxFailed); n != 1 {
		t.Fatalf("failed count = %d; want 1", n)
	}

	if err := RequeueOutbox(ctx, db, e.ID, now); err != nil {
		t.Fatalf("RequeueOutbox: %v", err)
	}
	if err := RequeueOutbox(ctx, db, e.ID, now); err != ErrNotFound {
		t.Fatalf("requeue of pending entry = %v; want ErrNotFound", err)
	}

	if err := MarkOutboxSent(ctx, db, e.ID, now); err != nil {
		t.Fatalf("MarkOutboxSent: %v", err)
	}
	sent, _ := ListOutboxByStatus(ctx, db, domain.OutboxSent, 0, 10)
	if len(sent) != 1 || sent[0].SentAt == nil || sent[0].AttemptCount != 0 {
		t.Fatalf("sent entries: %+v", sent)
	}
}

func TestIsDuplicate(t *testing.T) {
	if IsDuplicate(nil) {
		t.Fatalf("IsDuplicate(nil) = true")
	}
	if !IsDuplicate(ErrDuplicate) {
		t.Fatalf("IsDuplicate(ErrDuplicate) = false")
	}
}
