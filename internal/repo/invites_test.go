package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/go-survey-backend/internal/domain"
)

func TestIncrementInviteCompletion_FlipsToExhaustedAtCap(t *testing.T) {
	db := newMigratedDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	inv := &domain.Invite{ID: "i1", SurveyID: "s1", VersionID: "v1", TokenHash: "h1",
		Status: domain.InviteActive, MaxCompletions: 2, CreatedBy: "u1"}
	if err := CreateInvite(ctx, db, inv); err != nil {
		t.Fatalf("CreateInvite: %v", err)
	}

	ok, err := IncrementInviteCompletion(ctx, db, "i1", now)
	if err != nil || !ok {
		t.Fatalf("first increment = (%v, %v)", ok, err)
	}
	got, _ := GetInvite(ctx, db, "i1")
	if got.CompletionCount != 1 || got.Status != domain.InviteActive {
		t.Fatalf("after first: %+v", got)
	}

	ok, err = IncrementInviteCompletion(ctx, db, "i1", now)
	if err != nil || !ok {
		t.Fatalf("second increment = (%v, %v)", ok, err)
	}
	got, _ = GetInviteByTokenHash(ctx, db, "h1")
	if got.CompletionCount != 2 || got.Status != domain.InviteExhausted {
		t.Fatalf("after second: %+v", got)
	}

	ok, err = IncrementInviteCompletion(ctx, db, "i1", now)
	if err != nil || ok {
		t.Fatalf("third increment should be rejected, got (%v, %v)", ok, err)
	}
	got, _ = GetInvite(ctx, db, "i1")
	if got.CompletionCount > got.MaxCompletions {
		t.Fatalf("completion count exceeded cap: %+v", got)
	}
}

func TestSetInviteStatus_OnlyFromActive(t *testing.T) {
	db := newMigratedDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	inv := &domain.Invite{ID: "i1", SurveyID: "s1", VersionID: "v1", TokenHash: "h1",
		Status: domain.InviteActive, MaxCompletions: 1, CreatedBy: "u1"}
	if err := CreateInvite(ctx, db, inv); err != nil {
		t.Fatalf("CreateInvite: %v", err)
	}

	changed, err := SetInviteStatus(ctx, db, "i1", domain.InviteRevoked, now)
	if err != nil || !changed {
		t.Fatalf("revoke = (%v, %v)", changed, err)
	}
	got, _ := GetInvite(ctx, db, "i1")
	if got.Status != domain.InviteRevoked || got.RevokedAt == nil {
		t.Fatalf("after revoke: %+v", got)
	}

	changed, err = SetInviteStatus(ctx, db, "i1", domain.InviteExpired, now)
	if err != nil || changed {
		t.Fatalf("revoked invite must not change, got (%v, %v)", changed, err)
	}
}
