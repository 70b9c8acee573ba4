package service

import (
	"errors"
	"time"

	"github.com/and161185/formkeeper/internal/errs"
	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
)

// SessionTokens issues and verifies the HS256 session JWTs handed to signed-in clients.
// The subject is the principal; the token ID is the token record ID at sign-in.
type SessionTokens struct {
	signKey []byte
	ttl     time.Duration
	now     func() time.Time
}

// NewSessionTokens constructs a session token issuer.
func NewSessionTokens(signKey []byte, ttl time.Duration) *SessionTokens {
	return &SessionTokens{signKey: signKey, ttl: ttl, now: time.Now}
}

// Issue creates a signed session token for principal.
func (t *SessionTokens) Issue(principal string, recordID uuid.UUID) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   principal,
		ID:        recordID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(t.signKey)
	return signed, exp, err
}

// Parse verifies a session token and returns its principal. Failures wrap errs.ErrUnauthorized.
func (t *SessionTokens) Parse(token string) (string, error) {
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(tk *jwt.Token) (any, error) {
		if tk.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return t.signKey, nil
	},
		jwt.WithLeeway(30*time.Second),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return "", errors.Join(errs.ErrUnauthorized, err)
	}
	if claims.Subject == "" {
		return "", errors.Join(errs.ErrUnauthorized, errors.New("empty subject"))
	}
	return claims.Subject, nil
}
