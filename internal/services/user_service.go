// Package services – UserService
//
// This file resolves authenticated identities to application users. Role
// assignment follows AdminPolicy: with a non-empty email allowlist, admin is
// exactly the allowlisted emails; otherwise the very first user may be
// bootstrapped to admin.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-survey-backend/internal/domain"
	"github.com/tbourn/go-survey-backend/internal/repo"
)

// Identity is the caller as asserted by the identity provider.
type Identity struct {
	Subject string
	Email   string
}

// AdminPolicy decides which users are admins.
type AdminPolicy struct {
	// Emails is the admin allowlist. When non-empty it is authoritative.
	Emails []string
	// BootstrapFirstUser promotes the first user when Emails is empty.
	BootstrapFirstUser bool
}

// RoleFor returns the role for email given how many users already exist.
func (p AdminPolicy) RoleFor(email string, existingUsers int64) domain.Role {
	if len(p.Emails) > 0 {
		for _, e := range p.Emails {
			if strings.EqualFold(strings.TrimSpace(e), strings.TrimSpace(email)) {
				return domain.RoleAdmin
			}
		}
		return domain.RoleMember
	}
	if p.BootstrapFirstUser && existingUsers == 0 {
		return domain.RoleAdmin
	}
	return domain.RoleMember
}

// UserService maps identities to users.
type UserService struct {
	DB     *gorm.DB
	Policy AdminPolicy
}

// NewUserService constructs a UserService.
func NewUserService(db *gorm.DB, p AdminPolicy) *UserService {
	return &UserService{DB: db, Policy: p}
}

// EnsureUser returns the user for id, creating it on first sight. With an
// allowlist configured the role is re-derived on every call so list edits
// take effect without manual promotion.
func (s *UserService) EnsureUser(ctx context.Context, id Identity) (*domain.User, error) {
	tr := otel.Tracer("services/UserService")
	ctx, span := tr.Start(ctx, "EnsureUser", trace.WithAttributes(attribute.String("user.subject", id.Subject)))
	defer span.End()

	subject := strings.TrimSpace(id.Subject)
	if subject == "" {
		return nil, ErrUnauthorized
	}
	email := strings.ToLower(strings.TrimSpace(id.Email))

	var out *domain.User
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := repo.GetUserBySubject(ctx, tx, subject)
		switch {
		case err == nil:
			role := u.Role
			if len(s.Policy.Emails) > 0 {
				role = s.Policy.RoleFor(email, 1)
			}
			if role != u.Role || (email != "" && email != u.Email) {
				if email == "" {
					email = u.Email
				}
				if err := repo.UpdateUserProfile(ctx, tx, u.ID, email, role); err != nil {
					return fmt.Errorf("update user: %w", err)
				}
				u.Email, u.Role = email, role
			}
			out = u
			return nil
		case !errors.Is(err, repo.ErrNotFound):
			return err
		}

		n, err := repo.CountUsers(ctx, tx)
		if err != nil {
			return err
		}
		u, err = repo.CreateUser(ctx, tx, subject, email, s.Policy.RoleFor(email, n))
		if err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		out = u
		return nil
	})
	if errors.Is(err, repo.ErrDuplicate) {
		// Lost a first-sight race; the winner's row is authoritative.
		return repo.GetUserBySubject(ctx, s.DB, subject)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}
