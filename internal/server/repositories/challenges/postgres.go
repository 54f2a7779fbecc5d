// Package challenges persists one-time spoken challenge phrases.
package challenges

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/voicemfa/internal/common"
	"github.com/dmitrijs2005/voicemfa/internal/dbx"
	"github.com/dmitrijs2005/voicemfa/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, c *models.Challenge) (*models.Challenge, error) {
	query :=
		`INSERT INTO challenges (username, phrase, created_at, expires_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id
		 `

	if err := r.db.QueryRowContext(ctx, query, c.Username, c.Phrase, c.CreatedAt, c.ExpiresAt).Scan(&c.ID); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) DeleteUnused(ctx context.Context, username string) (int64, error) {
	query := `DELETE FROM challenges WHERE username = $1 AND used = FALSE`
	res, err := r.db.ExecContext(ctx, query, username)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return res.RowsAffected()
}

func (r *PostgresRepository) LatestValid(ctx context.Context, username string, now time.Time) (*models.Challenge, error) {
	query :=
		`SELECT id, username, phrase, created_at, expires_at, used FROM challenges
		 WHERE username = $1 AND used = FALSE AND expires_at > $2
		 ORDER BY created_at DESC
		 LIMIT 1
		 `

	var c models.Challenge
	err := r.db.QueryRowContext(ctx, query, username, now).Scan(&c.ID, &c.Username, &c.Phrase, &c.CreatedAt, &c.ExpiresAt, &c.Used)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &c, nil
}

func (r *PostgresRepository) Consume(ctx context.Context, id string, now time.Time) error {
	query := `UPDATE challenges SET used = TRUE WHERE id = $1 AND used = FALSE AND expires_at > $2`
	res, err := r.db.ExecContext(ctx, query, id, now)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM challenges WHERE expires_at <= $1`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return res.RowsAffected()
}
