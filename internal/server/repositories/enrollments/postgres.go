// Package enrollments persists resumable, slotted enrollments until they are
// finalized into an identity or expire.
package enrollments

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

// sampleColumns whitelists the slot columns so the slot index never reaches
// the SQL text unchecked.
var sampleColumns = [3]string{"sample_1", "sample_2", "sample_3"}

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, p *models.PendingEnrollment) error {
	query :=
		`INSERT INTO pending_enrollments (username, pin_hash, role, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)
		 `

	_, err := r.db.ExecContext(ctx, query, p.Username, p.PINHash, p.Role.String(), p.CreatedAt, p.ExpiresAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, username string) (*models.PendingEnrollment, error) {
	query :=
		`SELECT username, pin_hash, role, sample_1, sample_2, sample_3, created_at, expires_at
		 FROM pending_enrollments WHERE username = $1
		 `

	var (
		p    models.PendingEnrollment
		role string
	)
	err := r.db.QueryRowContext(ctx, query, username).Scan(
		&p.Username, &p.PINHash, &role, &p.Samples[0], &p.Samples[1], &p.Samples[2], &p.CreatedAt, &p.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if p.Role, err = models.ParseRole(role); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &p, nil
}

func (r *PostgresRepository) SetSample(ctx context.Context, username string, slot int, blob []byte) error {
	if slot < 0 || slot >= len(sampleColumns) {
		return common.Validationf("sample slot %d out of range", slot+1)
	}

	query := fmt.Sprintf(`UPDATE pending_enrollments SET %s = $2 WHERE username = $1`, sampleColumns[slot])
	res, err := r.db.ExecContext(ctx, query, username, blob)
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

func (r *PostgresRepository) Delete(ctx context.Context, username string) error {
	query := `DELETE FROM pending_enrollments WHERE username = $1`
	if _, err := r.db.ExecContext(ctx, query, username); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM pending_enrollments WHERE expires_at <= $1`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return res.RowsAffected()
}
