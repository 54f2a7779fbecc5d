// Package attendance persists daily clock-in/clock-out records.
package attendance

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

const selectRecord = `SELECT id, identity_id, username, work_date, clock_in, clock_out, status, fine_amount FROM attendance `

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*models.AttendanceRecord, error) {
	var (
		rec      models.AttendanceRecord
		clockOut sql.NullTime
		status   string
	)
	if err := s.Scan(&rec.ID, &rec.IdentityID, &rec.Username, &rec.Date, &rec.ClockIn, &clockOut, &status, &rec.FineAmount); err != nil {
		return nil, err
	}
	rec.Status = models.AttendanceStatus(status)
	if clockOut.Valid {
		t := clockOut.Time
		rec.ClockOut = &t
	}
	return &rec, nil
}

// Create skips the insert when the day already has an open record, so the
// surrounding transaction stays usable.
func (r *PostgresRepository) Create(ctx context.Context, rec *models.AttendanceRecord) (*models.AttendanceRecord, error) {
	query :=
		`INSERT INTO attendance (identity_id, username, work_date, clock_in, status, fine_amount)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (identity_id, work_date) WHERE clock_out IS NULL DO NOTHING
		 RETURNING id
		 `

	err := r.db.QueryRowContext(ctx, query,
		rec.IdentityID, rec.Username, rec.Date, rec.ClockIn, string(rec.Status), rec.FineAmount,
	).Scan(&rec.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rec, nil
}

func (r *PostgresRepository) OpenForDay(ctx context.Context, identityID string, day time.Time) (*models.AttendanceRecord, error) {
	query := selectRecord + `WHERE identity_id = $1 AND work_date = $2 AND clock_out IS NULL LIMIT 1`
	return r.one(ctx, query, identityID, day)
}

func (r *PostgresRepository) LatestOpen(ctx context.Context, identityID string) (*models.AttendanceRecord, error) {
	query := selectRecord + `WHERE identity_id = $1 AND clock_out IS NULL ORDER BY clock_in DESC LIMIT 1`
	return r.one(ctx, query, identityID)
}

func (r *PostgresRepository) one(ctx context.Context, query string, args ...any) (*models.AttendanceRecord, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rec, nil
}

func (r *PostgresRepository) Close(ctx context.Context, id string, clockOut time.Time, status models.AttendanceStatus, fine float64) error {
	query :=
		`UPDATE attendance SET clock_out = $2, status = $3, fine_amount = $4
		 WHERE id = $1 AND clock_out IS NULL
		 `

	res, err := r.db.ExecContext(ctx, query, id, clockOut, string(status), fine)
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

func (r *PostgresRepository) ListRange(ctx context.Context, identityID string, from, to time.Time) ([]*models.AttendanceRecord, error) {
	query := selectRecord + `WHERE identity_id = $1 AND work_date BETWEEN $2 AND $3 ORDER BY work_date, clock_in`

	rows, err := r.db.QueryContext(ctx, query, identityID, from, to)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.AttendanceRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return result, nil
}
