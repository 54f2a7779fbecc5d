// Package loginattempts stores the authentication audit trail.
package loginattempts

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/voicemfa/internal/dbx"
	"github.com/dmitrijs2005/voicemfa/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Append(ctx context.Context, a *models.LoginAttempt) error {
	query :=
		`INSERT INTO login_attempts (username, identity_id, operation, success, failure_reason, source_address, similarity, transcript, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id
		 `

	identityID := sql.NullString{String: a.IdentityID, Valid: a.IdentityID != ""}
	err := r.db.QueryRowContext(ctx, query,
		a.Username, identityID, a.Operation, a.Success, a.FailureReason, a.SourceAddress, a.Similarity, a.Transcript, a.CreatedAt,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListByUsername(ctx context.Context, username string, limit int) ([]*models.LoginAttempt, error) {
	query :=
		`SELECT id, username, identity_id, operation, success, failure_reason, source_address, similarity, transcript, created_at
		 FROM login_attempts WHERE username = $1
		 ORDER BY created_at DESC
		 LIMIT $2
		 `

	rows, err := r.db.QueryContext(ctx, query, username, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.LoginAttempt
	for rows.Next() {
		var (
			a          models.LoginAttempt
			identityID sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.Username, &identityID, &a.Operation, &a.Success, &a.FailureReason,
			&a.SourceAddress, &a.Similarity, &a.Transcript, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.IdentityID = identityID.String
		result = append(result, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return result, nil
}
