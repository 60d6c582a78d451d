package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is the only error Validate returns. It deliberately
	// does not say which check failed.
	ErrInvalidToken = errors.New("invalid token")

	ErrEmptySecret     = errors.New("token secret is empty")
	ErrMissingSubject  = errors.New("token subject is empty")
	ErrUnsupportedAlg  = errors.New("unsupported signing algorithm")
	ErrInvalidTokenTTL = errors.New("default token ttl must be positive")
)

// Claims is the identity carried by a bearer token.
type Claims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Extra     map[string]any
}

type tokenClaims struct {
	Extra map[string]any `json:"ext,omitempty"`
	jwt.RegisteredClaims
}

// TokenService issues and validates HMAC-signed JWTs.
type TokenService struct {
	secret []byte
	method *jwt.SigningMethodHMAC
	ttl    time.Duration
	now    func() time.Time
}

// TokenOption customizes a TokenService.
type TokenOption func(*TokenService)

// WithClock replaces time.Now as the source of the current time.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		s.now = now
	}
}

// NewTokenService constructs a TokenService signing with secret using the
// named HMAC algorithm (HS256, HS384 or HS512). ttl is the lifetime used by
// IssueDefault.
func NewTokenService(secret, algorithm string, ttl time.Duration, opts ...TokenOption) (*TokenService, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if ttl <= 0 {
		return nil, ErrInvalidTokenTTL
	}
	method, ok := jwt.GetSigningMethod(strings.ToUpper(algorithm)).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlg, algorithm)
	}

	s := &TokenService{
		secret: []byte(secret),
		method: method,
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// IssueDefault issues a token for subject using the default lifetime.
func (s *TokenService) IssueDefault(subject string) (string, error) {
	return s.Issue(Claims{Subject: subject}, s.ttl)
}

// Issue signs a token for claims that expires ttl from now. A token issued
// with ttl <= 0 is already expired.
func (s *TokenService) Issue(claims Claims, ttl time.Duration) (string, error) {
	if strings.TrimSpace(claims.Subject) == "" {
		return "", ErrMissingSubject
	}

	now := s.now()
	token := jwt.NewWithClaims(s.method, tokenClaims{
		Extra: claims.Extra,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(s.secret)
}

// Validate verifies the signature, subject and expiry of token and returns
// its claims. Any failure yields ErrInvalidToken.
func (s *TokenService) Validate(token string) (Claims, error) {
	var parsed tokenClaims
	_, err := jwt.ParseWithClaims(
		token,
		&parsed,
		func(t *jwt.Token) (any, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	if strings.TrimSpace(parsed.Subject) == "" {
		return Claims{}, ErrInvalidToken
	}

	expiresAt := parsed.ExpiresAt.Time
	if !s.now().Before(expiresAt) {
		return Claims{}, ErrInvalidToken
	}

	claims := Claims{
		Subject:   parsed.Subject,
		ExpiresAt: expiresAt,
		Extra:     parsed.Extra,
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time
	}
	return claims, nil
}
