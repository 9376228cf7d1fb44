package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-survey-backend/internal/domain"
)

func TestAdminPolicy_RoleFor(t *testing.T) {
	allow := AdminPolicy{Emails: []string{"Ops@Example.com"}, BootstrapFirstUser: true}
	assert.Equal(t, domain.RoleAdmin, allow.RoleFor("ops@example.com", 10))
	assert.Equal(t, domain.RoleMember, allow.RoleFor("dev@example.com", 0), "allowlist overrides bootstrap")

	boot := AdminPolicy{BootstrapFirstUser: true}
	assert.Equal(t, domain.RoleAdmin, boot.RoleFor("first@example.com", 0))
	assert.Equal(t, domain.RoleMember, boot.RoleFor("second@example.com", 1))

	assert.Equal(t, domain.RoleMember, AdminPolicy{}.RoleFor("anyone@example.com", 0))
}

func TestEnsureUser_IsIdempotent(t *testing.T) {
	db := newServiceDB(t)
	svc := NewUserService(db, AdminPolicy{BootstrapFirstUser: true})
	ctx := context.Background()

	first, err := svc.EnsureUser(ctx, Identity{Subject: "sub-1", Email: "First@Example.com"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, first.Role)
	assert.Equal(t, "first@example.com", first.Email)

	again, err := svc.EnsureUser(ctx, Identity{Subject: "sub-1", Email: "first@example.com"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, domain.RoleAdmin, again.Role)

	second, err := svc.EnsureUser(ctx, Identity{Subject: "sub-2", Email: "second@example.com"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleMember, second.Role)

	_, err = svc.EnsureUser(ctx, Identity{Subject: "  "})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestEnsureUser_AllowlistIsReapplied(t *testing.T) {
	db := newServiceDB(t)
	ctx := context.Background()

	open := NewUserService(db, AdminPolicy{BootstrapFirstUser: true})
	u, err := open.EnsureUser(ctx, Identity{Subject: "sub-1", Email: "lead@example.com"})
	require.NoError(t, err)
	require.Equal(t, domain.RoleAdmin, u.Role)

	restricted := NewUserService(db, AdminPolicy{Emails: []string{"boss@example.com"}})
	u, err = restricted.EnsureUser(ctx, Identity{Subject: "sub-1", Email: "lead@example.com"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleMember, u.Role, "demoted once an allowlist excludes them")

	boss, err := restricted.EnsureUser(ctx, Identity{Subject: "sub-2", Email: "boss@example.com"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, boss.Role)
}
