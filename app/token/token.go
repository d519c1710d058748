// Package token issues and decodes the signed bearer tokens used by the
// service: short-lived access tokens, long-lived refresh tokens and
// email-confirmation tokens. All three are HS256 JWTs carrying the user's
// email as subject and a scope claim naming the token kind.
package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type Scope string

const (
	ScopeAccess  Scope = "access_token"
	ScopeRefresh Scope = "refresh_token"
	ScopeEmail   Scope = "email_token"
)

var (
	ErrExpired       = errors.New("token has expired")
	ErrBadSignature  = errors.New("token signature is invalid or payload is malformed")
	ErrScopeMismatch = errors.New("token scope mismatch")
)

type Claims struct {
	Scope Scope `json:"scope"`
	jwt.RegisteredClaims
}

type Codec struct {
	secret []byte
	now    func() time.Time
}

type Option func(*Codec)

// WithClock replaces the codec's time source.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

func NewCodec(secret string, opts ...Option) *Codec {
	c := &Codec{
		secret: []byte(secret),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Issue signs a token for subject with the given scope; it expires ttl after
// issuance. Each token carries a random jti so two tokens issued for the
// same subject in the same second still differ.
func (c *Codec) Issue(subject string, scope Scope, ttl time.Duration) (string, error) {
	now := c.now().UTC()
	claims := &Claims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Decode verifies the token and returns its subject. The signature is checked
// first, then expiry, then scope.
func (c *Codec) Decode(tokenString string, expected Scope) (string, error) {
	claims, err := c.parse(tokenString)
	if err != nil {
		return "", err
	}

	if claims.Scope != expected {
		return "", ErrScopeMismatch
	}

	return claims.Subject, nil
}

func (c *Codec) parse(tokenString string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	)

	claims := &Claims{}
	token, err := parser.ParseWithClaims(strings.TrimSpace(tokenString), claims, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrBadSignature
	}
	if !token.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrBadSignature
	}

	// exp == now counts as expired, so a zero-ttl token never decodes.
	if !c.now().Before(claims.ExpiresAt.Time) {
		return nil, ErrExpired
	}

	return claims, nil
}
