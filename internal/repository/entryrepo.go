package repository

import (
	"context"

	"github.com/and161185/kizami/internal/model"
)

// EntryRepository persists validated time entries.
type EntryRepository interface {
	// Create inserts the entry and returns its new ID.
	Create(ctx context.Context, e *model.TimeEntry) (int64, error)
}
