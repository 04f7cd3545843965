// Package token issues and fetches the access tokens presented when a call
// is placed.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTTL is the lifetime of issued tokens.
const DefaultTTL = time.Hour

// ErrMissingCredentials means no account SID or auth token is configured.
var ErrMissingCredentials = errors.New("account credentials not configured")

// Credentials sign tokens: the account SID is the subject and the auth
// token is the HMAC key.
type Credentials struct {
	AccountSID string
	AuthToken  string
}

// Valid reports whether both fields are set.
func (c Credentials) Valid() bool {
	return c.AccountSID != "" && c.AuthToken != ""
}

// Issuer mints a token for an identity.
type Issuer interface {
	Issue(ctx context.Context, identity string) (string, error)
}

// Claims are the claims carried by an access token.
type Claims struct {
	Identity string `json:"identity"`
	jwt.RegisteredClaims
}

// JWTOption configures a JWTIssuer.
type JWTOption func(*JWTIssuer)

// WithTTL sets the token lifetime.
func WithTTL(ttl time.Duration) JWTOption {
	return func(j *JWTIssuer) {
		if ttl > 0 {
			j.ttl = ttl
		}
	}
}

// WithIssuer sets the iss claim.
func WithIssuer(iss string) JWTOption {
	return func(j *JWTIssuer) { j.issuer = iss }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) JWTOption {
	return func(j *JWTIssuer) { j.now = now }
}

// JWTIssuer signs HS256 tokens locally. Credentials are read on every call
// so edits to the preferences file apply to the next call.
type JWTIssuer struct {
	creds  func() Credentials
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewJWTIssuer creates an issuer reading credentials from creds.
func NewJWTIssuer(creds func() Credentials, opts ...JWTOption) *JWTIssuer {
	j := &JWTIssuer{
		creds:  creds,
		ttl:    DefaultTTL,
		issuer: "softphone",
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Issue signs a token for identity.
func (j *JWTIssuer) Issue(ctx context.Context, identity string) (string, error) {
	if identity == "" {
		return "", errors.New("identity is required")
	}
	creds := j.creds()
	if !creds.Valid() {
		return "", ErrMissingCredentials
	}

	now := j.now()
	claims := Claims{
		Identity: identity,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.issuer,
			Subject:   creds.AccountSID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(creds.AuthToken))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Token implements session.TokenProvider.
func (j *JWTIssuer) Token(ctx context.Context, identity string) (string, error) {
	return j.Issue(ctx, identity)
}

// Verify parses and validates a token issued with the current credentials.
func (j *JWTIssuer) Verify(tokenString string) (Claims, error) {
	creds := j.creds()
	if !creds.Valid() {
		return Claims{}, ErrMissingCredentials
	}

	var claims Claims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithIssuer(j.issuer),
		jwt.WithSubject(creds.AccountSID),
		jwt.WithTimeFunc(j.now),
		jwt.WithLeeway(30*time.Second),
	)
	_, err := parser.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		return []byte(creds.AuthToken), nil
	})
	if err != nil {
		return Claims{}, err
	}
	if claims.Identity == "" {
		return Claims{}, errors.New("identity missing")
	}
	return claims, nil
}
