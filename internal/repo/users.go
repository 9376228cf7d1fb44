package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-survey-backend/internal/domain"
)

// GetUserBySubject loads a user by identity-provider subject.
func GetUserBySubject(ctx context.Context, db *gorm.DB, subject string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("subject = ?", subject).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// CountUsers returns the number of registered users.
func CountUsers(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.User{}).Count(&n).Error
	return n, err
}

// CreateUser inserts a user. Returns ErrDuplicate when the subject exists.
func CreateUser(ctx context.Context, db *gorm.DB, subject, email string, role domain.Role) (*domain.User, error) {
	now := time.Now().UTC()
	u := &domain.User{
		ID:        uuid.NewString(),
		Subject:   subject,
		Email:     email,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		return nil, mapDuplicate(err)
	}
	return u, nil
}

// UpdateUserProfile refreshes the email and role of an existing user.
func UpdateUserProfile(ctx context.Context, db *gorm.DB, id, email string, role domain.Role) error {
	return db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).
		Updates(map[string]any{"email": email, "role": role, "updated_at": time.Now().UTC()}).Error
}
