// Package memory provides an in-process TokenRepository for development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/and161185/formkeeper/internal/errs"
	"github.com/and161185/formkeeper/internal/model"
	"github.com/and161185/formkeeper/internal/repository"
)

// TokenRepo keeps records in a map guarded by a mutex. Records are copied in and out.
type TokenRepo struct {
	mu    sync.Mutex
	recs  map[string]model.TokenRecord
	locks map[string]*principalLock
}

// principalLock is a one-slot semaphore shared by refs waiters and holders.
type principalLock struct {
	sem  chan struct{}
	refs int
}

var _ repository.TokenRepository = (*TokenRepo)(nil)

// NewTokenRepo constructs an empty repository.
func NewTokenRepo() *TokenRepo {
	return &TokenRepo{recs: make(map[string]model.TokenRecord), locks: make(map[string]*principalLock)}
}

// Put replaces the principal's record and resets its version to 1.
func (r *TokenRepo) Put(_ context.Context, rec *model.TokenRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec.Ver = 1
	rec.UpdatedAt = time.Now()
	r.recs[rec.Principal] = *rec
	return nil
}

// Get returns a copy of the principal's record.
func (r *TokenRepo) Get(_ context.Context, principal string) (*model.TokenRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recs[principal]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &rec, nil
}

// Update stores rec when the stored record still has rec.ID and baseVer.
func (r *TokenRepo) Update(_ context.Context, rec *model.TokenRecord, baseVer int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.recs[rec.Principal]
	if !ok || cur.ID != rec.ID || cur.Ver != baseVer {
		return 0, errs.ErrVersionConflict
	}
	rec.Ver = baseVer + 1
	rec.UpdatedAt = time.Now()
	r.recs[rec.Principal] = *rec
	return rec.Ver, nil
}

// Delete removes the principal's record.
func (r *TokenRepo) Delete(_ context.Context, principal string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.recs, principal)
	return nil
}

// Lock waits for the principal's lock or for ctx to end.
func (r *TokenRepo) Lock(ctx context.Context, principal string) (func(), error) {
	r.mu.Lock()
	l, ok := r.locks[principal]
	if !ok {
		l = &principalLock{sem: make(chan struct{}, 1)}
		r.locks[principal] = l
	}
	l.refs++
	r.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		r.unref(principal, l)
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.sem
			r.unref(principal, l)
		})
	}, nil
}

func (r *TokenRepo) unref(principal string, l *principalLock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l.refs--; l.refs == 0 {
		delete(r.locks, principal)
	}
}
