package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/kizami/internal/errs"
	"github.com/and161185/kizami/internal/model"
	"github.com/and161185/kizami/internal/repository"
)

// ReportRepo implements ReportRepository using PostgreSQL.
type ReportRepo struct{ db *DB }

var _ repository.ReportRepository = (*ReportRepo)(nil)

// NewReportRepo constructs a report repository.
func NewReportRepo(db *DB) *ReportRepo { return &ReportRepo{db: db} }

const sumHoursByClient = `
SELECT c.id, c.name, SUM(te.hours)::float8
FROM time_entries te
JOIN clients c ON c.id = te.client_id
WHERE te.work_date BETWEEN $1 AND $2
GROUP BY c.id, c.name
ORDER BY c.name ASC, c.id ASC`

// SummarizeHoursByClient returns one row per client with entries in the period.
// Hidden clients are included: the report covers what was recorded.
func (r *ReportRepo) SummarizeHoursByClient(ctx context.Context, from, to time.Time) ([]model.ClientHours, error) {
	rows, err := r.db.Pool.Query(ctx, sumHoursByClient, from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: summarize hours: %w", errs.ErrStorage, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.ClientHours, error) {
		var ch model.ClientHours
		err := row.Scan(&ch.ClientID, &ch.ClientName, &ch.Hours)
		return ch, err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: summarize hours: %w", errs.ErrStorage, err)
	}
	return out, nil
}
