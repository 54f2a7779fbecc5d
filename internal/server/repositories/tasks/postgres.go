// Package tasks persists admin-assigned work items.
package tasks

import (
	"context"
	"database/sql"
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

func (r *PostgresRepository) Create(ctx context.Context, task *models.Task) (*models.Task, error) {
	query :=
		`INSERT INTO tasks (owner_id, title, description, assigned_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id
		 `

	if err := r.db.QueryRowContext(ctx, query, task.OwnerID, task.Title, task.Description, task.AssignedAt).Scan(&task.ID); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return task, nil
}

func (r *PostgresRepository) CountPending(ctx context.Context, ownerID string) (int, error) {
	query := `SELECT COUNT(*) FROM tasks WHERE owner_id = $1 AND completed = FALSE`

	var n int
	if err := r.db.QueryRowContext(ctx, query, ownerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) Complete(ctx context.Context, id, ownerID string, at time.Time) error {
	query :=
		`UPDATE tasks SET completed = TRUE, completed_at = $3
		 WHERE id = $1 AND owner_id = $2 AND completed = FALSE
		 `

	res, err := r.db.ExecContext(ctx, query, id, ownerID, at)
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

func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string, includeCompleted bool) ([]*models.Task, error) {
	query :=
		`SELECT id, owner_id, title, description, assigned_at, completed, completed_at FROM tasks
		 WHERE owner_id = $1 AND ($2 OR completed = FALSE)
		 ORDER BY assigned_at
		 `

	rows, err := r.db.QueryContext(ctx, query, ownerID, includeCompleted)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Task
	for rows.Next() {
		var (
			task        models.Task
			completedAt sql.NullTime
		)
		if err := rows.Scan(&task.ID, &task.OwnerID, &task.Title, &task.Description, &task.AssignedAt, &task.Completed, &completedAt); err != nil {
			return nil, err
		}
		if completedAt.Valid {
			t := completedAt.Time
			task.CompletedAt = &t
		}
		result = append(result, &task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return result, nil
}
