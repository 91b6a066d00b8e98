// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/and161185/kizami/internal/model"
)

// Transform maps the current snapshot to its replacement. It must be pure:
// it may run while other processes wait on the store lock.
type Transform func(model.ThrottleSnapshot) model.ThrottleSnapshot

// ThrottleStore persists the login throttle snapshot shared by all workers.
// Both operations hide records that are expired at now.
type ThrottleStore interface {
	// Read returns the pruned snapshot under a shared lock. Pruning is not persisted.
	Read(ctx context.Context, now time.Time) (model.ThrottleSnapshot, error)
	// Mutate loads, prunes, transforms and rewrites the snapshot under an exclusive lock.
	Mutate(ctx context.Context, now time.Time, fn Transform) error
}
