package db

import (
	"context"
	"errors"
	"testing"

	"github.com/geocoder89/authhub/internal/config"
	"github.com/geocoder89/authhub/internal/domain/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdmins struct {
	ensureFn func(ctx context.Context, email, password string) (user.Account, error)
	calls    int
}

func (f *fakeAdmins) EnsureAdmin(ctx context.Context, email, password string) (user.Account, error) {
	f.calls++
	return f.ensureFn(ctx, email, password)
}

func TestEnsureAdminUser_SkipsWithoutCredentials(t *testing.T) {
	f := &fakeAdmins{}

	for _, cfg := range []config.Config{
		{},
		{AdminEmail: "root@example.com"},
		{AdminPassword: "pw"},
	} {
		_, seeded, err := EnsureAdminUser(context.Background(), f, cfg)
		require.NoError(t, err)
		assert.False(t, seeded)
	}
	assert.Zero(t, f.calls)
}

func TestEnsureAdminUser_Seeds(t *testing.T) {
	f := &fakeAdmins{ensureFn: func(_ context.Context, email, password string) (user.Account, error) {
		assert.Equal(t, "root@example.com", email)
		assert.Equal(t, "rootpass", password)
		return user.Account{ID: "1", Email: email, Roles: []string{"admin", "user"}}, nil
	}}

	acc, seeded, err := EnsureAdminUser(context.Background(), f, config.Config{AdminEmail: "root@example.com", AdminPassword: "rootpass"})
	require.NoError(t, err)
	assert.True(t, seeded)
	assert.Equal(t, "1", acc.ID)
}

func TestEnsureAdminUser_WrapsError(t *testing.T) {
	boom := errors.New("boom")
	f := &fakeAdmins{ensureFn: func(context.Context, string, string) (user.Account, error) {
		return user.Account{}, boom
	}}

	_, _, err := EnsureAdminUser(context.Background(), f, config.Config{AdminEmail: "a@example.com", AdminPassword: "pw"})
	assert.ErrorIs(t, err, boom)
}
