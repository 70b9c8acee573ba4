// Package model defines domain entities used by services and repositories.
package model

import (
	"math"
	"time"

	"github.com/gofrs/uuid/v5"
)

// RefreshAccessTokenError is the terminal marker stored on a record whose refresh failed.
const RefreshAccessTokenError = "RefreshAccessTokenError"

// MaxExpiresIn is the largest lifetime in seconds that fits a time.Duration.
const MaxExpiresIn = math.MaxInt64 / int64(time.Second)

// Lifetime converts expires_in seconds to a duration; ok is false outside (0, MaxExpiresIn].
func Lifetime(expiresIn int64) (d time.Duration, ok bool) {
	if expiresIn <= 0 || expiresIn > MaxExpiresIn {
		return 0, false
	}
	return time.Duration(expiresIn) * time.Second, true
}

// TokenState is the lifecycle state of a token record at a given instant.
type TokenState string

const (
	StateFresh   TokenState = "fresh"   // issued by interactive sign-in, never refreshed
	StateValid   TokenState = "valid"   // refreshed at least once, still inside its window
	StateExpired TokenState = "expired" // window passed, next access triggers a refresh
	StateFailed  TokenState = "failed"  // refresh failed, sign-in required
)

// Grant carries the credentials handed over by an interactive sign-in.
type Grant struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64 // seconds
}

// TokenResponse is a successful answer of the provider token endpoint.
type TokenResponse struct {
	AccessToken  string
	RefreshToken string // empty when the provider did not rotate it
	ExpiresIn    int64  // seconds
	TokenType    string
	Scope        string
}

// TokenRecord is the stored OAuth2 credential of one principal.
type TokenRecord struct {
	ID           uuid.UUID // changes on every interactive sign-in
	Principal    string    // unique
	AccessToken  string
	RefreshToken string
	IssuedAt     time.Time // last successful acquisition
	ExpiresAt    time.Time // IssuedAt + lifetime, fixed at acquisition
	Error        string    // terminal failure marker, empty when healthy
	Refreshed    bool      // at least one refresh succeeded since sign-in
	Ver          int64     // optimistic concurrency version (>= 1)
	UpdatedAt    time.Time
}

// Usable reports whether the access token may be handed out at now.
func (r *TokenRecord) Usable(now time.Time) bool {
	return r.Error == "" && r.AccessToken != "" && now.Before(r.ExpiresAt)
}

// State derives the lifecycle state at now.
func (r *TokenRecord) State(now time.Time) TokenState {
	switch {
	case r.Error != "":
		return StateFailed
	case !now.Before(r.ExpiresAt):
		return StateExpired
	case r.Refreshed:
		return StateValid
	default:
		return StateFresh
	}
}

// Session is the read-only projection of a token record exposed to presentation layers.
// It never carries the raw provider diagnostic, only whether a refresh failed.
type Session struct {
	Principal            string
	AccessToken          string
	RefreshToken         string
	AccessTokenIssuedAt  time.Time
	AccessTokenExpiresAt time.Time
	RefreshFailed        bool
}

// SessionOf projects a record into a Session.
func SessionOf(r TokenRecord) Session {
	return Session{
		Principal:            r.Principal,
		AccessToken:          r.AccessToken,
		RefreshToken:         r.RefreshToken,
		AccessTokenIssuedAt:  r.IssuedAt,
		AccessTokenExpiresAt: r.ExpiresAt,
		RefreshFailed:        r.Error != "",
	}
}

// SignInResult is returned to the sign-in collaborator.
type SignInResult struct {
	Record           TokenRecord
	SessionToken     string    // HS256 JWT identifying the principal
	SessionExpiresAt time.Time // session token expiry
}

// Submission is a validated document paired with a usable bearer token.
type Submission struct {
	AccessToken string
	Form        *Form
	Batch       map[string]any // wire document ready to send
}
