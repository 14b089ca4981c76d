package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/geocoder89/authhub/internal/domain/user"
	"github.com/geocoder89/authhub/internal/observability"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// unique indexes the store knows how to build, keyed by record field
var uniqueIndexes = map[string]string{
	"email": `CREATE UNIQUE INDEX IF NOT EXISTS accounts_email_key ON accounts (email)`,
}

type UsersRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewUsersRepo(pool *pgxpool.Pool, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{pool: pool, prom: prom}
}

func (r *UsersRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func (r *UsersRepo) FindByEmail(ctx context.Context, email string) (user.Record, error) {
	var u user.Record

	err := r.observe("accounts.find_by_email", func() error {
		return r.scanOne(ctx, &u,
			`SELECT id::text, email, password_hash, roles, created_at, updated_at
			 FROM accounts
			 WHERE email = $1`,
			email,
		)
	})

	return u, err
}

func (r *UsersRepo) FindByID(ctx context.Context, id string) (user.Record, error) {
	var u user.Record

	// ids are uuids; anything else cannot exist
	if _, err := uuid.Parse(id); err != nil {
		return u, user.ErrNotFound
	}

	err := r.observe("accounts.find_by_id", func() error {
		return r.scanOne(ctx, &u,
			`SELECT id::text, email, password_hash, roles, created_at, updated_at
			 FROM accounts
			 WHERE id = $1`,
			id,
		)
	})

	return u, err
}

func (r *UsersRepo) Insert(ctx context.Context, rec user.Record) (id string, err error) {
	err = r.observe("accounts.insert", func() error {
		return r.pool.QueryRow(ctx,
			`INSERT INTO accounts (email, password_hash, roles, created_at, updated_at)
			 VALUES ($1, $2, $3, NOW(), NOW())
			 RETURNING id::text`,
			rec.Email, rec.PasswordHash, rec.Roles,
		).Scan(&id)
	})

	if err != nil {
		return "", mapWriteErr(err)
	}
	return id, nil
}

// Replace overwrites email, hash and roles. Concurrent replaces are last-write-wins.
func (r *UsersRepo) Replace(ctx context.Context, id string, rec user.Record) error {
	var tag pgconn.CommandTag

	if _, err := uuid.Parse(id); err != nil {
		return user.ErrNotFound
	}

	err := r.observe("accounts.replace", func() error {
		var execErr error
		tag, execErr = r.pool.Exec(ctx,
			`UPDATE accounts
			 SET email = $2, password_hash = $3, roles = $4, updated_at = NOW()
			 WHERE id = $1`,
			id, rec.Email, rec.PasswordHash, rec.Roles,
		)
		return execErr
	})

	if err != nil {
		return mapWriteErr(err)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (r *UsersRepo) EnsureUniqueIndex(ctx context.Context, field string) error {
	ddl, ok := uniqueIndexes[field]
	if !ok {
		return fmt.Errorf("postgres: unsupported unique index %q", field)
	}

	return r.observe("accounts.ensure_index", func() error {
		_, err := r.pool.Exec(ctx, ddl)
		return err
	})
}

func (r *UsersRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *UsersRepo) scanOne(ctx context.Context, u *user.Record, query string, arg string) error {
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.Roles,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.ErrNotFound
		}

		return err
	}
	return nil
}

func mapWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return user.ErrEmailTaken
	}
	return err
}
