package user

import (
	"context"
	"sort"
	"strings"
	"time"
)

const RoleUser = "user"
const RoleAdmin = "admin"

// Account is the identity handed to the rest of the service. It never carries the hash.
type Account struct {
	ID    string   `json:"id"`
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

// Record is what the store keeps for one account.
type Record struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // never expose hash in JSON
	Roles        []string  `json:"roles"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (r Record) Account() Account {
	return Account{
		ID:    r.ID,
		Email: r.Email,
		Roles: append([]string(nil), r.Roles...),
	}
}

// UpdateRequest holds the optional fields of a profile update. Nil means "leave as is";
// a non-nil empty Roles slice is rejected.
type UpdateRequest struct {
	Email    *string
	Password *string
	Roles    []string
}

// Store is the persistence boundary for account records.
//
// FindByEmail and FindByID return ErrNotFound when no record matches.
// Insert and Replace return ErrEmailTaken when the email index rejects the write.
type Store interface {
	FindByEmail(ctx context.Context, email string) (Record, error)
	FindByID(ctx context.Context, id string) (Record, error)
	Insert(ctx context.Context, rec Record) (string, error)
	Replace(ctx context.Context, id string, rec Record) error
	EnsureUniqueIndex(ctx context.Context, field string) error
}

func DefaultRoles() []string {
	return []string{RoleUser}
}

// NormalizeEmail trims and lower-cases an email so lookups and the unique index agree.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeRoles trims, de-duplicates and sorts role names, dropping blanks.
// An empty result falls back to the default role set.
func NormalizeRoles(roles []string) []string {
	seen := make(map[string]struct{}, len(roles))
	out := make([]string, 0, len(roles))

	for _, r := range roles {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}

	if len(out) == 0 {
		return DefaultRoles()
	}

	sort.Strings(out)
	return out
}

func HasRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
