// Package service contains application services for credential lifecycle and form documents.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/and161185/formkeeper/internal/errs"
	"github.com/and161185/formkeeper/internal/metrics"
	"github.com/and161185/formkeeper/internal/model"
	"github.com/and161185/formkeeper/internal/oauth"
	"github.com/and161185/formkeeper/internal/repository"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultRefreshTimeout bounds a single refresh exchange.
const DefaultRefreshTimeout = 10 * time.Second

// CredentialService keeps OAuth2 sessions usable across access-token expirations.
type CredentialService interface {
	// SignIn stores a fresh token record from an interactive sign-in and issues a session token.
	SignIn(ctx context.Context, principal string, grant model.Grant) (model.SignInResult, error)
	// GetValidToken returns an unexpired access token, refreshing it when needed.
	GetValidToken(ctx context.Context, principal string) (string, error)
	// Session returns the read-only projection of the stored record.
	Session(ctx context.Context, principal string) (model.Session, error)
	// SignOut drops the principal's record.
	SignOut(ctx context.Context, principal string) error
}

// CredentialOption customizes CredentialServiceImpl.
type CredentialOption func(*CredentialServiceImpl)

// WithClock overrides the time source.
func WithClock(now func() time.Time) CredentialOption {
	return func(s *CredentialServiceImpl) { s.now = now }
}

// WithRefreshTimeout overrides DefaultRefreshTimeout.
func WithRefreshTimeout(d time.Duration) CredentialOption {
	return func(s *CredentialServiceImpl) {
		if d > 0 {
			s.refreshTimeout = d
		}
	}
}

// CredentialServiceImpl is the CredentialService backed by a TokenRepository and an oauth.Exchanger.
type CredentialServiceImpl struct {
	tokens         repository.TokenRepository
	exchanger      oauth.Exchanger
	sessions       *SessionTokens
	log            *zap.Logger
	now            func() time.Time
	refreshTimeout time.Duration

	// refreshes for one principal share a single flight keyed by principal
	flights singleflight.Group
}

var _ CredentialService = (*CredentialServiceImpl)(nil)

// NewCredentialService constructs CredentialService with required dependencies.
// sessions may be nil when no session tokens are needed.
func NewCredentialService(
	tokens repository.TokenRepository, exchanger oauth.Exchanger, sessions *SessionTokens, log *zap.Logger, opts ...CredentialOption,
) *CredentialServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	s := &CredentialServiceImpl{
		tokens:         tokens,
		exchanger:      exchanger,
		sessions:       sessions,
		log:            log,
		now:            time.Now,
		refreshTimeout: DefaultRefreshTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SignIn replaces any previous record of the principal with a fresh one.
func (s *CredentialServiceImpl) SignIn(ctx context.Context, principal string, grant model.Grant) (model.SignInResult, error) {
	principal = strings.TrimSpace(principal)
	lifetime, lifetimeOK := model.Lifetime(grant.ExpiresIn)
	switch {
	case principal == "":
		return model.SignInResult{}, fmt.Errorf("%w: empty principal", errs.ErrInvalidGrant)
	case grant.AccessToken == "":
		return model.SignInResult{}, fmt.Errorf("%w: empty access token", errs.ErrInvalidGrant)
	case !lifetimeOK:
		return model.SignInResult{}, fmt.Errorf("%w: expires_in %d out of range", errs.ErrInvalidGrant, grant.ExpiresIn)
	}

	id, err := uuid.NewV4()
	if err != nil {
		return model.SignInResult{}, err
	}
	now := s.now()
	rec := model.TokenRecord{
		ID:           id,
		Principal:    principal,
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		IssuedAt:     now,
		ExpiresAt:    now.Add(lifetime),
	}
	if err := s.tokens.Put(ctx, &rec); err != nil {
		return model.SignInResult{}, fmt.Errorf("store token record: %w", err)
	}
	// a flight started before this sign-in must not be joined by later callers
	s.flights.Forget(principal)

	if grant.RefreshToken == "" {
		s.log.Warn("sign-in without refresh token; session ends at expiry", zap.String("principal", principal))
	}

	res := model.SignInResult{Record: rec}
	if s.sessions != nil {
		res.SessionToken, res.SessionExpiresAt, err = s.sessions.Issue(principal, rec.ID)
		if err != nil {
			return model.SignInResult{}, fmt.Errorf("issue session token: %w", err)
		}
	}
	s.log.Info("signed in", zap.String("principal", principal), zap.Stringer("record", rec.ID), zap.Time("expires_at", rec.ExpiresAt))
	return res, nil
}

// GetValidToken serves the stored token while it is inside its window and refreshes it otherwise.
// A failed refresh is terminal: the record keeps its error until the next SignIn.
func (s *CredentialServiceImpl) GetValidToken(ctx context.Context, principal string) (string, error) {
	rec, err := s.tokens.Get(ctx, principal)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			metrics.RecordTokenRequest(metrics.PathNoSession)
			return "", errs.ErrNoSession
		}
		return "", fmt.Errorf("load token record: %w", err)
	}
	if rec.Error != "" {
		metrics.RecordTokenRequest(metrics.PathFailed)
		return "", errs.ErrRefreshFailed
	}
	if rec.Usable(s.now()) {
		metrics.RecordTokenRequest(metrics.PathCached)
		return rec.AccessToken, nil
	}

	ch := s.flights.DoChan(principal, func() (any, error) {
		return s.refresh(context.WithoutCancel(ctx), principal)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			if errors.Is(res.Err, errs.ErrRefreshFailed) {
				metrics.RecordTokenRequest(metrics.PathFailed)
			}
			return "", res.Err
		}
		metrics.RecordTokenRequest(metrics.PathRefreshed)
		return res.Val.(string), nil
	}
}

// refresh runs under the store's per-principal lock and re-reads the record, so a refresh finished by
// an earlier flight or by another process is reused instead of spending the refresh token twice.
func (s *CredentialServiceImpl) refresh(ctx context.Context, principal string) (string, error) {
	lockCtx, cancelLock := context.WithTimeout(ctx, 2*s.refreshTimeout)
	release, err := s.tokens.Lock(lockCtx, principal)
	cancelLock()
	if err != nil {
		return "", fmt.Errorf("lock token record: %w", err)
	}
	defer release()

	rec, err := s.tokens.Get(ctx, principal)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return "", errs.ErrNoSession
	case err != nil:
		return "", fmt.Errorf("load token record: %w", err)
	case rec.Error != "":
		return "", errs.ErrRefreshFailed
	case rec.Usable(s.now()):
		return rec.AccessToken, nil
	}

	log := s.log.With(zap.String("principal", principal), zap.Stringer("record", rec.ID))
	start := time.Now()
	exCtx, cancel := context.WithTimeout(ctx, s.refreshTimeout)
	resp, exErr := s.exchanger.Refresh(exCtx, rec.RefreshToken)
	cancel()
	lifetime, lifetimeOK := model.Lifetime(resp.ExpiresIn)
	if exErr == nil && (resp.AccessToken == "" || !lifetimeOK) {
		exErr = errors.New("provider returned an unusable token")
	}
	metrics.RecordRefresh(exErr == nil, time.Since(start).Seconds())

	next := *rec
	if exErr != nil {
		log.Warn("refresh failed", zap.Error(exErr))
		next.Error = model.RefreshAccessTokenError
		if _, err := s.tokens.Update(ctx, &next, rec.Ver); err != nil {
			if errors.Is(err, errs.ErrVersionConflict) {
				return s.reread(ctx, principal)
			}
			log.Error("persist refresh failure", zap.Error(err))
		}
		return "", fmt.Errorf("%w: %v", errs.ErrRefreshFailed, exErr)
	}

	issued := s.now()
	next.AccessToken = resp.AccessToken
	if resp.RefreshToken != "" {
		next.RefreshToken = resp.RefreshToken
	}
	next.IssuedAt = issued
	next.ExpiresAt = issued.Add(lifetime)
	next.Error = ""
	next.Refreshed = true

	if _, err := s.tokens.Update(ctx, &next, rec.Ver); err != nil {
		if errors.Is(err, errs.ErrVersionConflict) {
			err = s.replaceFailed(ctx, &next)
		}
		// the old refresh token is already spent; the new access token is still good to hand out
		if err != nil {
			log.Error("persist refreshed token", zap.Error(err))
		}
	}
	log.Info("access token refreshed",
		zap.Time("expires_at", next.ExpiresAt),
		zap.Bool("rotated", resp.RefreshToken != ""),
	)
	return next.AccessToken, nil
}

// replaceFailed stores a successful refresh over a failure marker written meanwhile for the same
// sign-in. A newer sign-in or a healthy record is left alone.
func (s *CredentialServiceImpl) replaceFailed(ctx context.Context, next *model.TokenRecord) error {
	cur, err := s.tokens.Get(ctx, next.Principal)
	if err != nil {
		return err
	}
	if cur.ID != next.ID || cur.Error == "" {
		return errs.ErrVersionConflict
	}
	_, err = s.tokens.Update(ctx, next, cur.Ver)
	return err
}

// reread resolves a version conflict by trusting whatever the other writer stored.
func (s *CredentialServiceImpl) reread(ctx context.Context, principal string) (string, error) {
	rec, err := s.tokens.Get(ctx, principal)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return "", errs.ErrNoSession
	case err != nil:
		return "", fmt.Errorf("load token record: %w", err)
	case rec.Usable(s.now()):
		return rec.AccessToken, nil
	default:
		return "", errs.ErrRefreshFailed
	}
}

// Session projects the stored record without refreshing it.
func (s *CredentialServiceImpl) Session(ctx context.Context, principal string) (model.Session, error) {
	rec, err := s.tokens.Get(ctx, principal)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.Session{}, errs.ErrNoSession
		}
		return model.Session{}, fmt.Errorf("load token record: %w", err)
	}
	return model.SessionOf(*rec), nil
}

// SignOut deletes the principal's record.
func (s *CredentialServiceImpl) SignOut(ctx context.Context, principal string) error {
	if err := s.tokens.Delete(ctx, principal); err != nil {
		return fmt.Errorf("delete token record: %w", err)
	}
	s.flights.Forget(principal)
	s.log.Info("signed out", zap.String("principal", principal))
	return nil
}
