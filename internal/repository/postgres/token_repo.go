package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/and161185/formkeeper/internal/errs"
	"github.com/and161185/formkeeper/internal/model"
	"github.com/and161185/formkeeper/internal/repository"
	"github.com/jackc/pgx/v5"
)

// Sealer encrypts token values at rest. Implemented by *crypto.Sealer.
type Sealer interface {
	Seal(plaintext, aad []byte) ([]byte, error)
	Open(sealed, aad []byte) ([]byte, error)
}

// TokenRepo implements TokenRepository using PostgreSQL. Access and refresh tokens are sealed with
// the principal as AAD, so a row copied to another principal fails to open.
type TokenRepo struct {
	db     *DB
	sealer Sealer
}

var _ repository.TokenRepository = (*TokenRepo)(nil)

// NewTokenRepo constructs a token repository.
func NewTokenRepo(db *DB, sealer Sealer) *TokenRepo { return &TokenRepo{db: db, sealer: sealer} }

// Put inserts or replaces the principal's record and resets its version to 1.
func (r *TokenRepo) Put(ctx context.Context, rec *model.TokenRecord) error {
	const q = `
INSERT INTO token_records (principal, id, access_token_enc, refresh_token_enc, issued_at, expires_at, error, refreshed, ver, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, now())
ON CONFLICT (principal) DO UPDATE SET
  id = EXCLUDED.id,
  access_token_enc = EXCLUDED.access_token_enc,
  refresh_token_enc = EXCLUDED.refresh_token_enc,
  issued_at = EXCLUDED.issued_at,
  expires_at = EXCLUDED.expires_at,
  error = EXCLUDED.error,
  refreshed = EXCLUDED.refreshed,
  ver = 1,
  updated_at = now()`
	access, refresh, err := r.seal(rec)
	if err != nil {
		return err
	}
	_, err = r.db.Pool.Exec(ctx, q, rec.Principal, rec.ID, access, refresh, rec.IssuedAt, rec.ExpiresAt, rec.Error, rec.Refreshed)
	if err != nil {
		return err
	}
	rec.Ver = 1
	return nil
}

// Get selects a record by principal.
func (r *TokenRepo) Get(ctx context.Context, principal string) (*model.TokenRecord, error) {
	const q = `
SELECT principal, id, access_token_enc, refresh_token_enc, issued_at, expires_at, error, refreshed, ver, updated_at
FROM token_records WHERE principal=$1`
	var (
		rec             model.TokenRecord
		access, refresh []byte
	)
	row := r.db.Pool.QueryRow(ctx, q, principal)
	err := row.Scan(&rec.Principal, &rec.ID, &access, &refresh, &rec.IssuedAt, &rec.ExpiresAt,
		&rec.Error, &rec.Refreshed, &rec.Ver, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}

	aad := []byte(rec.Principal)
	at, err := r.sealer.Open(access, aad)
	if err != nil {
		return nil, fmt.Errorf("open access token: %w", err)
	}
	rt, err := r.sealer.Open(refresh, aad)
	if err != nil {
		return nil, fmt.Errorf("open refresh token: %w", err)
	}
	rec.AccessToken, rec.RefreshToken = string(at), string(rt)
	return &rec, nil
}

// Update writes rec when (id, ver) still match and returns the bumped version.
func (r *TokenRepo) Update(ctx context.Context, rec *model.TokenRecord, baseVer int64) (int64, error) {
	const q = `
UPDATE token_records
SET access_token_enc=$4, refresh_token_enc=$5, issued_at=$6, expires_at=$7, error=$8, refreshed=$9, ver=ver+1, updated_at=now()
WHERE principal=$1 AND id=$2 AND ver=$3
RETURNING ver`
	access, refresh, err := r.seal(rec)
	if err != nil {
		return 0, err
	}
	var ver int64
	err = r.db.Pool.QueryRow(ctx, q, rec.Principal, rec.ID, baseVer,
		access, refresh, rec.IssuedAt, rec.ExpiresAt, rec.Error, rec.Refreshed).Scan(&ver)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, errs.ErrVersionConflict
		}
		return 0, err
	}
	rec.Ver = ver
	return ver, nil
}

// Delete removes the principal's record.
func (r *TokenRepo) Delete(ctx context.Context, principal string) error {
	const q = `DELETE FROM token_records WHERE principal=$1`
	_, err := r.db.Pool.Exec(ctx, q, principal)
	return err
}

// Lock takes a transaction-scoped advisory lock on the principal; release rolls the transaction back.
func (r *TokenRepo) Lock(ctx context.Context, principal string) (func(), error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin lock tx: %w", err)
	}
	bg := context.WithoutCancel(ctx)
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, principal); err != nil {
		_ = tx.Rollback(bg)
		return nil, fmt.Errorf("advisory lock: %w", err)
	}
	var once sync.Once
	return func() { once.Do(func() { _ = tx.Rollback(bg) }) }, nil
}

func (r *TokenRepo) seal(rec *model.TokenRecord) (access, refresh []byte, err error) {
	aad := []byte(rec.Principal)
	if access, err = r.sealer.Seal([]byte(rec.AccessToken), aad); err != nil {
		return nil, nil, fmt.Errorf("seal access token: %w", err)
	}
	if refresh, err = r.sealer.Seal([]byte(rec.RefreshToken), aad); err != nil {
		return nil, nil, fmt.Errorf("seal refresh token: %w", err)
	}
	return access, refresh, nil
}
