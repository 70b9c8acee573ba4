package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/and161185/formkeeper/internal/crypto"
	"github.com/and161185/formkeeper/internal/errs"
	"github.com/and161185/formkeeper/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

func newSealer(t *testing.T) *crypto.Sealer {
	t.Helper()
	s, err := crypto.NewSealer([]byte("test-seal-secret"))
	require.NoError(t, err)
	return s
}

var recordColumns = []string{"principal", "id", "access_token_enc", "refresh_token_enc", "issued_at", "expires_at", "error", "refreshed", "ver", "updated_at"}

func TestTokenRepo_Put(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTokenRepo(db, newSealer(t))
	ctx := context.Background()
	now := time.Now()
	rec := &model.TokenRecord{
		ID:           uuid.Must(uuid.NewV4()),
		Principal:    "alice@example.com",
		AccessToken:  "at",
		RefreshToken: "rt",
		IssuedAt:     now,
		ExpiresAt:    now.Add(time.Hour),
	}

	mock.ExpectExec(`INSERT INTO token_records .* ON CONFLICT \(principal\) DO UPDATE`).
		WithArgs(rec.Principal, rec.ID, pgxmock.AnyArg(), pgxmock.AnyArg(), rec.IssuedAt, rec.ExpiresAt, "", false).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, r.Put(ctx, rec))
	require.Equal(t, int64(1), rec.Ver)

	mock.ExpectExec(`INSERT INTO token_records`).
		WithArgs(rec.Principal, rec.ID, pgxmock.AnyArg(), pgxmock.AnyArg(), rec.IssuedAt, rec.ExpiresAt, "", false).
		WillReturnError(errors.New("db down"))
	require.Error(t, r.Put(ctx, rec))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepo_Get(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	s := newSealer(t)
	r := NewTokenRepo(db, s)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())
	name := "bob@example.com"
	now := time.Now()

	at, err := s.Seal([]byte("access"), []byte(name))
	require.NoError(t, err)
	rt, err := s.Seal([]byte("refresh"), []byte(name))
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT principal, id, access_token_enc, refresh_token_enc, issued_at, expires_at, error, refreshed, ver, updated_at FROM token_records WHERE principal=\$1`).
		WithArgs(name).
		WillReturnRows(pgxmock.NewRows(recordColumns).
			AddRow(name, id, at, rt, now, now.Add(time.Hour), "", true, int64(3), now))
	got, err := r.Get(ctx, name)
	require.NoError(t, err)
	require.Equal(t, id, got.ID)
	require.Equal(t, "access", got.AccessToken)
	require.Equal(t, "refresh", got.RefreshToken)
	require.Equal(t, int64(3), got.Ver)
	require.True(t, got.Refreshed)

	mock.ExpectQuery(`FROM token_records WHERE principal=\$1`).
		WithArgs(name).
		WillReturnError(pgx.ErrNoRows)
	_, err = r.Get(ctx, name)
	require.ErrorIs(t, err, errs.ErrNotFound)

	// sealed for another principal: AAD mismatch
	mock.ExpectQuery(`FROM token_records WHERE principal=\$1`).
		WithArgs("carol").
		WillReturnRows(pgxmock.NewRows(recordColumns).
			AddRow("carol", id, at, rt, now, now.Add(time.Hour), "", false, int64(1), now))
	_, err = r.Get(ctx, "carol")
	require.Error(t, err)
	require.NotErrorIs(t, err, errs.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepo_Update(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTokenRepo(db, newSealer(t))
	ctx := context.Background()
	now := time.Now()
	rec := &model.TokenRecord{
		ID:           uuid.Must(uuid.NewV4()),
		Principal:    "alice@example.com",
		AccessToken:  "at2",
		RefreshToken: "rt",
		IssuedAt:     now,
		ExpiresAt:    now.Add(time.Hour),
		Refreshed:    true,
	}

	mock.ExpectQuery(`UPDATE token_records SET .* WHERE principal=\$1 AND id=\$2 AND ver=\$3 RETURNING ver`).
		WithArgs(rec.Principal, rec.ID, int64(1), pgxmock.AnyArg(), pgxmock.AnyArg(), rec.IssuedAt, rec.ExpiresAt, "", true).
		WillReturnRows(pgxmock.NewRows([]string{"ver"}).AddRow(int64(2)))
	ver, err := r.Update(ctx, rec, 1)
	require.NoError(t, err)
	require.Equal(t, int64(2), ver)
	require.Equal(t, int64(2), rec.Ver)

	mock.ExpectQuery(`UPDATE token_records`).
		WithArgs(rec.Principal, rec.ID, int64(1), pgxmock.AnyArg(), pgxmock.AnyArg(), rec.IssuedAt, rec.ExpiresAt, "", true).
		WillReturnError(pgx.ErrNoRows)
	_, err = r.Update(ctx, rec, 1)
	require.ErrorIs(t, err, errs.ErrVersionConflict)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepo_Delete(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTokenRepo(db, newSealer(t))

	mock.ExpectExec(`DELETE FROM token_records WHERE principal=\$1`).
		WithArgs("alice").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	require.NoError(t, r.Delete(context.Background(), "alice"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepo_Lock(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTokenRepo(db, newSealer(t))
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(hashtext\(\$1\)\)`).
		WithArgs("alice").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectRollback()

	release, err := r.Lock(ctx, "alice")
	require.NoError(t, err)
	release()
	release()
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepo_Lock_Errors(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTokenRepo(db, newSealer(t))
	ctx := context.Background()

	mock.ExpectBegin().WillReturnError(errors.New("pool exhausted"))
	_, err := r.Lock(ctx, "alice")
	require.ErrorContains(t, err, "begin lock tx")

	mock.ExpectBegin()
	mock.ExpectExec(`pg_advisory_xact_lock`).WithArgs("alice").WillReturnError(errors.New("canceled"))
	mock.ExpectRollback()
	_, err = r.Lock(ctx, "alice")
	require.ErrorContains(t, err, "advisory lock")

	require.NoError(t, mock.ExpectationsWereMet())
}
