// Package redisstore keeps account records in Redis: one hash per account plus
// a string key per email pointing at the account id. The email key is claimed
// with SETNX, which is what makes the email index unique.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/geocoder89/authhub/internal/domain/user"
	"github.com/geocoder89/authhub/internal/observability"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const DefaultPrefix = "authhub:"

type UsersRepo struct {
	rdb    *redis.Client
	prefix string
	prom   *observability.Prom
}

func NewUsersRepo(rdb *redis.Client, prefix string, prom *observability.Prom) *UsersRepo {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &UsersRepo{rdb: rdb, prefix: prefix, prom: prom}
}

func (r *UsersRepo) accountKey(id string) string {
	return r.prefix + "account:" + id
}

func (r *UsersRepo) emailKey(email string) string {
	return r.prefix + "account:email:" + email
}

func (r *UsersRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *UsersRepo) FindByEmail(ctx context.Context, email string) (user.Record, error) {
	var id string

	err := r.observe("accounts.find_by_email", func() error {
		v, err := r.rdb.Get(ctx, r.emailKey(email)).Result()
		if errors.Is(err, redis.Nil) {
			return user.ErrNotFound
		}
		id = v
		return err
	})
	if err != nil {
		return user.Record{}, err
	}

	return r.FindByID(ctx, id)
}

func (r *UsersRepo) FindByID(ctx context.Context, id string) (user.Record, error) {
	var rec user.Record

	err := r.observe("accounts.find_by_id", func() error {
		fields, err := r.rdb.HGetAll(ctx, r.accountKey(id)).Result()
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			return user.ErrNotFound
		}

		rec, err = decodeRecord(id, fields)
		return err
	})

	return rec, err
}

func (r *UsersRepo) Insert(ctx context.Context, rec user.Record) (string, error) {
	id := uuid.NewString()
	now := time.Now().UTC()
	rec.ID = id
	rec.CreatedAt = now
	rec.UpdatedAt = now

	fields, err := encodeRecord(rec)
	if err != nil {
		return "", err
	}

	err = r.observe("accounts.insert", func() error {
		claimed, err := r.rdb.SetNX(ctx, r.emailKey(rec.Email), id, 0).Result()
		if err != nil {
			return err
		}
		if !claimed {
			return user.ErrEmailTaken
		}

		if err := r.rdb.HSet(ctx, r.accountKey(id), fields).Err(); err != nil {
			// release the email so a retry can succeed
			_ = r.rdb.Del(ctx, r.emailKey(rec.Email)).Err()
			return err
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	return id, nil
}

// Replace overwrites the record and moves the email index when the email changes.
// Concurrent replaces of one account are last-write-wins.
func (r *UsersRepo) Replace(ctx context.Context, id string, rec user.Record) error {
	existing, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}

	rec.ID = id
	rec.CreatedAt = existing.CreatedAt
	rec.UpdatedAt = time.Now().UTC()

	fields, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	emailChanged := rec.Email != existing.Email

	return r.observe("accounts.replace", func() error {
		if emailChanged {
			claimed, err := r.rdb.SetNX(ctx, r.emailKey(rec.Email), id, 0).Result()
			if err != nil {
				return err
			}
			if !claimed {
				return user.ErrEmailTaken
			}
		}

		_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, r.accountKey(id), fields)
			if emailChanged {
				pipe.Del(ctx, r.emailKey(existing.Email))
			}
			return nil
		})
		if err != nil && emailChanged {
			_ = r.rdb.Del(ctx, r.emailKey(rec.Email)).Err()
		}
		return err
	})
}

// EnsureUniqueIndex accepts only "email"; that index is maintained by SETNX on every write.
func (r *UsersRepo) EnsureUniqueIndex(_ context.Context, field string) error {
	if field != "email" {
		return fmt.Errorf("redisstore: unsupported unique index %q", field)
	}
	return nil
}

func (r *UsersRepo) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func encodeRecord(rec user.Record) (map[string]any, error) {
	roles, err := json.Marshal(rec.Roles)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"email":         rec.Email,
		"password_hash": rec.PasswordHash,
		"roles":         string(roles),
		"created_at":    rec.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":    rec.UpdatedAt.Format(time.RFC3339Nano),
	}, nil
}

func decodeRecord(id string, fields map[string]string) (user.Record, error) {
	rec := user.Record{
		ID:           id,
		Email:        fields["email"],
		PasswordHash: fields["password_hash"],
	}

	if raw := fields["roles"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &rec.Roles); err != nil {
			return user.Record{}, fmt.Errorf("decode roles of %s: %w", id, err)
		}
	}

	var err error
	if rec.CreatedAt, err = parseTime(fields["created_at"]); err != nil {
		return user.Record{}, fmt.Errorf("decode created_at of %s: %w", id, err)
	}
	if rec.UpdatedAt, err = parseTime(fields["updated_at"]); err != nil {
		return user.Record{}, fmt.Errorf("decode updated_at of %s: %w", id, err)
	}

	return rec, nil
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, raw)
}
