package postgres

import (
	"context"
	"fmt"

	"github.com/and161185/kizami/internal/errs"
	"github.com/and161185/kizami/internal/model"
	"github.com/and161185/kizami/internal/repository"
)

// APIKeyRepo implements APIKeyRepository using PostgreSQL.
type APIKeyRepo struct{ db *DB }

var _ repository.APIKeyRepository = (*APIKeyRepo)(nil)

// NewAPIKeyRepo constructs an API key repository.
func NewAPIKeyRepo(db *DB) *APIKeyRepo { return &APIKeyRepo{db: db} }

// ActiveHashExists reports whether keyHash belongs to an active key.
func (r *APIKeyRepo) ActiveHashExists(ctx context.Context, keyHash string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM api_keys WHERE key_hash = $1 AND is_active)`
	var ok bool
	if err := r.db.Pool.QueryRow(ctx, q, keyHash).Scan(&ok); err != nil {
		return false, fmt.Errorf("%w: look up api key: %w", errs.ErrStorage, err)
	}
	return ok, nil
}

// Create stores k as an active key. A duplicate hash is a validation error.
func (r *APIKeyRepo) Create(ctx context.Context, k *model.APIKey) (int64, error) {
	const q = `INSERT INTO api_keys (key_hash, label, is_active) VALUES ($1, $2, TRUE) RETURNING id`
	var id int64
	err := r.db.Pool.QueryRow(ctx, q, k.KeyHash, k.Label).Scan(&id)
	switch {
	case isUniqueViolation(err):
		return 0, fmt.Errorf("%w: api key already exists", errs.ErrValidation)
	case err != nil:
		return 0, err
	}
	k.ID = id
	k.IsActive = true
	return id, nil
}
