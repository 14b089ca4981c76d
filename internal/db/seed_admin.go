package db

import (
	"context"
	"fmt"

	"github.com/geocoder89/authhub/internal/config"
	"github.com/geocoder89/authhub/internal/domain/user"
)

type AdminEnsurer interface {
	EnsureAdmin(ctx context.Context, email, password string) (user.Account, error)
}

// EnsureAdminUser seeds the admin account from ADMIN_EMAIL / ADMIN_PASSWORD.
// Nothing happens unless both are set. An existing account keeps its password
// and only gains the admin role.
func EnsureAdminUser(ctx context.Context, admins AdminEnsurer, cfg config.Config) (user.Account, bool, error) {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return user.Account{}, false, nil
	}

	acc, err := admins.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword)
	if err != nil {
		return user.Account{}, false, fmt.Errorf("seed admin: %w", err)
	}

	return acc, true, nil
}
