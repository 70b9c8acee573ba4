// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/formkeeper/internal/model"
)

// TokenRepository stores one token record per principal with versioned updates.
type TokenRepository interface {
	// Put replaces the principal's record (fresh sign-in). The stored Ver becomes 1.
	Put(ctx context.Context, rec *model.TokenRecord) error
	// Get loads the record of a principal or returns errs.ErrNotFound.
	Get(ctx context.Context, principal string) (*model.TokenRecord, error)
	// Update writes rec if the stored record still has rec.ID and baseVer; returns the new version
	// or errs.ErrVersionConflict.
	Update(ctx context.Context, rec *model.TokenRecord, baseVer int64) (int64, error)
	// Delete removes the principal's record. Deleting a missing record is not an error.
	Delete(ctx context.Context, principal string) error
	// Lock holds the principal's refresh lock, shared by every process using the same store, until
	// release is called.
	Lock(ctx context.Context, principal string) (release func(), err error)
}
