package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-survey-backend/internal/domain"
)

// CreateInvite inserts an invite.
func CreateInvite(ctx context.Context, db *gorm.DB, inv *domain.Invite) error {
	return mapDuplicate(db.WithContext(ctx).Create(inv).Error)
}

// GetInviteByTokenHash looks an invite up by the hash of its token.
func GetInviteByTokenHash(ctx context.Context, db *gorm.DB, hash string) (*domain.Invite, error) {
	var inv domain.Invite
	if err := db.WithContext(ctx).Where("token_hash = ?", hash).First(&inv).Error; err != nil {
		return nil, err
	}
	return &inv, nil
}

// GetInvite fetches an invite by id.
func GetInvite(ctx context.Context, db *gorm.DB, id string) (*domain.Invite, error) {
	var inv domain.Invite
	if err := db.WithContext(ctx).Where("id = ?", id).First(&inv).Error; err != nil {
		return nil, err
	}
	return &inv, nil
}

// ListInvites returns the invites of a survey, newest first.
func ListInvites(ctx context.Context, db *gorm.DB, surveyID string, offset, limit int) ([]domain.Invite, error) {
	var out []domain.Invite
	err := db.WithContext(ctx).Where("survey_id = ?", surveyID).
		Order("created_at DESC").Order("id ASC").
		Offset(offset).Limit(limit).Find(&out).Error
	return out, err
}

// CountInvites counts the invites of a survey.
func CountInvites(ctx context.Context, db *gorm.DB, surveyID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Invite{}).Where("survey_id = ?", surveyID).Count(&n).Error
	return n, err
}

// SetInviteStatus moves an active invite to a terminal status. It is a no-op
// (zero rows) when the invite is no longer active.
func SetInviteStatus(ctx context.Context, db *gorm.DB, id string, status domain.InviteStatus, now time.Time) (bool, error) {
	cols := map[string]any{"status": status, "updated_at": now}
	if status == domain.InviteRevoked {
		cols["revoked_at"] = now
	}
	res := db.WithContext(ctx).Model(&domain.Invite{}).
		Where("id = ? AND status = ?", id, domain.InviteActive).
		Updates(cols)
	return res.RowsAffected > 0, res.Error
}

// IncrementInviteCompletion adds one completion to an active invite that is
// below its cap, flipping it to exhausted when the cap is reached. It returns
// false when the guard rejected the update.
func IncrementInviteCompletion(ctx context.Context, db *gorm.DB, id string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Model(&domain.Invite{}).
		Where("id = ? AND status = ? AND completion_count < max_completions", id, domain.InviteActive).
		Updates(map[string]any{
			"completion_count": gorm.Expr("completion_count + 1"),
			"status": gorm.Expr("CASE WHEN completion_count + 1 >= max_completions THEN ? ELSE status END",
				domain.InviteExhausted),
			"updated_at": now,
		})
	return res.RowsAffected > 0, res.Error
}
