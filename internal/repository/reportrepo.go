package repository

import (
	"context"
	"time"

	"github.com/and161185/kizami/internal/model"
)

// ReportRepository aggregates recorded time.
type ReportRepository interface {
	// SummarizeHoursByClient sums hours per client for entries dated from..to
	// inclusive, ordered by client name.
	SummarizeHoursByClient(ctx context.Context, from, to time.Time) ([]model.ClientHours, error)
}

// APIKeyRepository looks up and stores API key hashes.
type APIKeyRepository interface {
	// ActiveHashExists reports whether an active key with this sha256 hex hash exists.
	ActiveHashExists(ctx context.Context, keyHash string) (bool, error)
	// Create stores a new active key hash and returns its ID.
	Create(ctx context.Context, k *model.APIKey) (int64, error)
}
