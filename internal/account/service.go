package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/geocoder89/authhub/internal/domain/user"
	"github.com/geocoder89/authhub/internal/observability"
)

// bcrypt ignores everything past 72 bytes.
const maxPasswordBytes = 72

type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) bool
}

type Service struct {
	store  user.Store
	hasher PasswordHasher
	prom   *observability.Prom
	log    *slog.Logger
	now    func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewService wires the account operations. prom and log may be nil.
func NewService(store user.Store, hasher PasswordHasher, prom *observability.Prom, log *slog.Logger) *Service {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &Service{
		store:  store,
		hasher: hasher,
		prom:   prom,
		log:    log,
		now:    time.Now,
	}
}

func (s *Service) Register(ctx context.Context, email, password string) (user.Account, error) {
	acc, err := s.register(ctx, email, password)
	s.prom.ObserveAccountResult("register", resultOf(err))
	return acc, err
}

func (s *Service) register(ctx context.Context, email, password string) (user.Account, error) {
	email, err := validateEmail(email)
	if err != nil {
		return user.Account{}, err
	}
	if err := validatePassword(password); err != nil {
		return user.Account{}, err
	}

	// the store's unique index is the real guard, this only avoids a pointless hash
	_, err = s.store.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return user.Account{}, user.ErrEmailTaken
	case !errors.Is(err, user.ErrNotFound):
		return user.Account{}, fmt.Errorf("lookup account: %w", err)
	}

	hash, err := s.hash(password)
	if err != nil {
		return user.Account{}, err
	}

	now := s.now().UTC()
	rec := user.Record{
		Email:        email,
		PasswordHash: hash,
		Roles:        user.DefaultRoles(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	id, err := s.store.Insert(ctx, rec)
	if err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			return user.Account{}, user.ErrEmailTaken
		}
		return user.Account{}, fmt.Errorf("insert account: %w", err)
	}
	rec.ID = id

	s.log.InfoContext(ctx, "account registered", "account_id", id)
	return rec.Account(), nil
}

// Authenticate returns ErrInvalidCredentials for both an unknown email and a wrong password.
func (s *Service) Authenticate(ctx context.Context, email, password string) (user.Account, error) {
	acc, err := s.authenticate(ctx, email, password)
	s.prom.ObserveAccountResult("authenticate", resultOf(err))
	return acc, err
}

func (s *Service) authenticate(ctx context.Context, email, password string) (user.Account, error) {
	rec, err := s.store.FindByEmail(ctx, user.NormalizeEmail(email))
	if err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			return user.Account{}, fmt.Errorf("lookup account: %w", err)
		}
		// burn a comparison so an unknown email costs the same as a wrong password
		s.verify(password, s.dummy())
		return user.Account{}, user.ErrInvalidCredentials
	}

	// checked after the comparison so an overlong guess costs the same
	ok := s.verify(password, rec.PasswordHash)
	if !ok || len(password) > maxPasswordBytes {
		return user.Account{}, user.ErrInvalidCredentials
	}

	return rec.Account(), nil
}

func (s *Service) FetchByID(ctx context.Context, id string) (user.Account, error) {
	rec, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.Account{}, user.ErrNotFound
		}
		return user.Account{}, fmt.Errorf("lookup account: %w", err)
	}
	return rec.Account(), nil
}

// UpdateProfile applies only the fields set on req. Concurrent updates are last-write-wins.
func (s *Service) UpdateProfile(ctx context.Context, id string, req user.UpdateRequest) (user.Account, error) {
	acc, err := s.updateProfile(ctx, id, req)
	s.prom.ObserveAccountResult("update", resultOf(err))
	return acc, err
}

func (s *Service) updateProfile(ctx context.Context, id string, req user.UpdateRequest) (user.Account, error) {
	rec, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.Account{}, user.ErrNotFound
		}
		return user.Account{}, fmt.Errorf("lookup account: %w", err)
	}

	if req.Email != nil {
		email, err := validateEmail(*req.Email)
		if err != nil {
			return user.Account{}, err
		}
		rec.Email = email
	}

	if req.Password != nil {
		if err := validatePassword(*req.Password); err != nil {
			return user.Account{}, err
		}
		hash, err := s.hash(*req.Password)
		if err != nil {
			return user.Account{}, err
		}
		rec.PasswordHash = hash
	}

	if req.Roles != nil {
		if !hasNonBlank(req.Roles) {
			return user.Account{}, user.NewValidationError("roles", "must contain at least one role")
		}
		rec.Roles = user.NormalizeRoles(req.Roles)
	}

	rec.UpdatedAt = s.now().UTC()

	if err := s.store.Replace(ctx, id, rec); err != nil {
		switch {
		case errors.Is(err, user.ErrEmailTaken):
			return user.Account{}, user.ErrEmailTaken
		case errors.Is(err, user.ErrNotFound):
			return user.Account{}, user.ErrNotFound
		}
		return user.Account{}, fmt.Errorf("replace account: %w", err)
	}

	if req.Roles != nil {
		s.log.InfoContext(ctx, "account roles changed", "account_id", id, "roles", rec.Roles)
	}
	return rec.Account(), nil
}

func (s *Service) SetRoles(ctx context.Context, id string, roles []string) (user.Account, error) {
	if roles == nil {
		roles = []string{}
	}
	return s.UpdateProfile(ctx, id, user.UpdateRequest{Roles: roles})
}

// EnsureAdmin creates an admin account for email, or grants admin to the existing one.
// The password is only used when the account has to be created.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) (user.Account, error) {
	norm, err := validateEmail(email)
	if err != nil {
		return user.Account{}, err
	}

	rec, err := s.store.FindByEmail(ctx, norm)
	switch {
	case err == nil:
		if user.HasRole(rec.Roles, user.RoleAdmin) {
			return rec.Account(), nil
		}
		return s.SetRoles(ctx, rec.ID, append(rec.Roles, user.RoleAdmin))
	case !errors.Is(err, user.ErrNotFound):
		return user.Account{}, fmt.Errorf("lookup account: %w", err)
	}

	if err := validatePassword(password); err != nil {
		return user.Account{}, err
	}

	hash, err := s.hash(password)
	if err != nil {
		return user.Account{}, err
	}

	now := s.now().UTC()
	rec = user.Record{
		Email:        norm,
		PasswordHash: hash,
		Roles:        user.NormalizeRoles([]string{user.RoleAdmin, user.RoleUser}),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	id, err := s.store.Insert(ctx, rec)
	if err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			return user.Account{}, user.ErrEmailTaken
		}
		return user.Account{}, fmt.Errorf("insert admin: %w", err)
	}
	rec.ID = id

	s.log.InfoContext(ctx, "admin account created", "account_id", id)
	return rec.Account(), nil
}

func (s *Service) hash(plain string) (string, error) {
	start := time.Now()
	h, err := s.hasher.Hash(plain)
	s.prom.ObserveHash("hash", time.Since(start))
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return h, nil
}

func (s *Service) verify(plain, hash string) bool {
	start := time.Now()
	ok := s.hasher.Verify(plain, hash)
	s.prom.ObserveHash("verify", time.Since(start))
	return ok
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash("authhub-timing-equalizer")
		if err != nil {
			s.log.Error("dummy hash failed", "err", err)
			return
		}
		s.dummyHash = h
	})
	return s.dummyHash
}

func validateEmail(raw string) (string, error) {
	email := user.NormalizeEmail(raw)
	if email == "" {
		return "", user.NewValidationError("email", "is required")
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", user.NewValidationError("email", "must be a valid email address")
	}
	return email, nil
}

func validatePassword(password string) error {
	if password == "" {
		return user.NewValidationError("password", "is required")
	}
	if len(password) > maxPasswordBytes {
		return user.NewValidationError("password", "must be at most 72 bytes")
	}
	return nil
}

func hasNonBlank(roles []string) bool {
	for _, r := range roles {
		if strings.TrimSpace(r) != "" {
			return true
		}
	}
	return false
}

func resultOf(err error) string {
	var vErr *user.ValidationError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &vErr):
		return "invalid"
	case errors.Is(err, user.ErrEmailTaken):
		return "conflict"
	case errors.Is(err, user.ErrInvalidCredentials):
		return "rejected"
	case errors.Is(err, user.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
