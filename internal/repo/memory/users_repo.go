package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/geocoder89/authhub/internal/domain/user"
	"github.com/google/uuid"
)

// UsersRepo keeps accounts in process memory. The email index is checked under
// the same lock as the write, so uniqueness holds under concurrent inserts.
type UsersRepo struct {
	mu      sync.RWMutex
	items   map[string]user.Record // {"id": record}
	byEmail map[string]string      // {"email": "id"}
}

func NewUsersRepo() *UsersRepo {
	return &UsersRepo{
		items:   make(map[string]user.Record),
		byEmail: make(map[string]string),
	}
}

func (r *UsersRepo) FindByEmail(_ context.Context, email string) (user.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return user.Record{}, user.ErrNotFound
	}
	return clone(r.items[id]), nil
}

func (r *UsersRepo) FindByID(_ context.Context, id string) (user.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.items[id]
	if !ok {
		return user.Record{}, user.ErrNotFound
	}
	return clone(rec), nil
}

func (r *UsersRepo) Insert(_ context.Context, rec user.Record) (string, error) {
	now := time.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[rec.Email]; taken {
		return "", user.ErrEmailTaken
	}

	rec = clone(rec)
	rec.ID = uuid.NewString()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	r.items[rec.ID] = rec
	r.byEmail[rec.Email] = rec.ID

	return rec.ID, nil
}

func (r *UsersRepo) Replace(_ context.Context, id string, rec user.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.items[id]
	if !ok {
		return user.ErrNotFound
	}

	if owner, taken := r.byEmail[rec.Email]; taken && owner != id {
		return user.ErrEmailTaken
	}

	rec = clone(rec)
	rec.ID = id
	rec.CreatedAt = existing.CreatedAt
	rec.UpdatedAt = time.Now().UTC()

	delete(r.byEmail, existing.Email)
	r.byEmail[rec.Email] = id
	r.items[id] = rec

	return nil
}

// EnsureUniqueIndex only knows about the email index, which always exists here.
func (r *UsersRepo) EnsureUniqueIndex(_ context.Context, field string) error {
	if field != "email" {
		return fmt.Errorf("memory: unsupported unique index %q", field)
	}
	return nil
}

func (r *UsersRepo) Ping(context.Context) error {
	return nil
}

func clone(rec user.Record) user.Record {
	rec.Roles = append([]string(nil), rec.Roles...)
	return rec
}
