// Package identities persists enrolled identities and their lockout state.
package identities

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/voicemfa/internal/common"
	"github.com/dmitrijs2005/voicemfa/internal/dbx"
	"github.com/dmitrijs2005/voicemfa/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, identity *models.Identity) (*models.Identity, error) {
	query :=
		`INSERT INTO identities (username, pin_hash, role, encrypted_voiceprint, active)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		identity.Username, identity.PINHash, identity.Role.String(), identity.EncryptedVoiceprint, identity.Active,
	).Scan(&identity.ID, &identity.CreatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return identity, nil
}

const selectIdentity = `SELECT id, username, pin_hash, role, encrypted_voiceprint, failed_attempts,
		 locked_until, last_login, active, created_at FROM identities `

func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*models.Identity, error) {
	return r.get(ctx, selectIdentity+`WHERE username = $1`, username)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Identity, error) {
	return r.get(ctx, selectIdentity+`WHERE id = $1`, id)
}

func (r *PostgresRepository) get(ctx context.Context, query string, arg string) (*models.Identity, error) {
	var (
		identity    models.Identity
		role        string
		lockedUntil sql.NullTime
		lastLogin   sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&identity.ID, &identity.Username, &identity.PINHash, &role, &identity.EncryptedVoiceprint,
		&identity.FailedAttempts, &lockedUntil, &lastLogin, &identity.Active, &identity.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if identity.Role, err = models.ParseRole(role); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	identity.LockedUntil = timePtr(lockedUntil)
	identity.LastLogin = timePtr(lastLogin)

	return &identity, nil
}

func (r *PostgresRepository) RegisterFailure(ctx context.Context, id string, maxAttempts int, lockUntil time.Time) (int, *time.Time, error) {
	query :=
		`UPDATE identities
		 SET failed_attempts = failed_attempts + 1,
		     locked_until = CASE WHEN failed_attempts + 1 >= $2 THEN $3 ELSE locked_until END
		 WHERE id = $1
		 RETURNING failed_attempts, locked_until
		 `

	var (
		attempts int
		locked   sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, id, maxAttempts, lockUntil).Scan(&attempts, &locked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil, common.ErrorNotFound
		}
		return 0, nil, fmt.Errorf("db error: %w", err)
	}

	return attempts, timePtr(locked), nil
}

func (r *PostgresRepository) ClearLock(ctx context.Context, id string) error {
	query := `UPDATE identities SET failed_attempts = 0, locked_until = NULL WHERE id = $1`
	return r.execOne(ctx, query, id)
}

func (r *PostgresRepository) RecordSuccess(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE identities SET failed_attempts = 0, locked_until = NULL, last_login = $2 WHERE id = $1`
	return r.execOne(ctx, query, id, at)
}

func (r *PostgresRepository) SetRole(ctx context.Context, username string, role models.Role) error {
	query := `UPDATE identities SET role = $2 WHERE username = $1`
	return r.execOne(ctx, query, username, role.String())
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
