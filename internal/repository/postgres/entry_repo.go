package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/kizami/internal/errs"
	"github.com/and161185/kizami/internal/model"
	"github.com/and161185/kizami/internal/repository"
	"github.com/and161185/kizami/internal/timewindow"
)

// EntryRepo implements EntryRepository using PostgreSQL.
type EntryRepo struct{ db *DB }

var _ repository.EntryRepository = (*EntryRepo)(nil)

// NewEntryRepo constructs a time entry repository.
func NewEntryRepo(db *DB) *EntryRepo { return &EntryRepo{db: db} }

// Create re-derives the duration on the quarter-hour grid and inserts the entry
// for a visible client. Hours are always derived, never taken from the caller.
func (r *EntryRepo) Create(ctx context.Context, e *model.TimeEntry) (int64, error) {
	minutes, err := timewindow.StrictDurationMinutes(e.StartTime, e.EndTime)
	if err != nil {
		return 0, err
	}
	hours := float64(minutes) / 60
	if e.Hours != 0 && math.Abs(e.Hours-hours) > 0.001 {
		return 0, fmt.Errorf("%w: hours are derived from start and end time", errs.ErrValidation)
	}

	const q = `
INSERT INTO time_entries (client_id, work_category_id, work_date, start_time, end_time, hours, comment)
SELECT c.id, $2, $3, $4::time, $5::time, $6, $7
FROM clients c
WHERE c.id = $1 AND c.is_visible
RETURNING id`
	var id int64
	err = r.db.Pool.QueryRow(ctx, q,
		e.ClientID, e.WorkCategoryID, e.Date,
		e.StartTime.Format("15:04:05"), e.EndTime.Format("15:04:05"),
		hours, e.Comment,
	).Scan(&id)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return 0, fmt.Errorf("%w: client is hidden or does not exist", errs.ErrValidation)
	case isForeignKeyViolation(err):
		return 0, fmt.Errorf("%w: work category does not exist", errs.ErrValidation)
	case err != nil:
		return 0, err
	}

	e.ID = id
	e.Hours = hours
	return id, nil
}
