// Package auth verifies the bearer tokens clients send to the gateway.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/yashrajoria/graphql-gateway/config"
)

var (
	ErrMissingExpiry  = errors.New("token has no expiry")
	ErrMissingSubject = errors.New("token has no subject")
	ErrExpired        = errors.New("token has expired")
	ErrNotYetValid    = errors.New("token is not valid yet")
	ErrIssuedInFuture = errors.New("token issued in the future")
)

// Claims are the fields the gateway reads from a verified token.
type Claims struct {
	UserID int64 `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// Expiry returns the exp claim.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Issued returns the iat claim, zero when absent.
func (c *Claims) Issued() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}

// Verifier checks signature, algorithm and time claims of a token.
type Verifier struct {
	method jwt.SigningMethod
	key    interface{}
	leeway time.Duration
	now    func() time.Time
}

// NewHMACVerifier pins HS256 with a shared secret.
func NewHMACVerifier(secret []byte, leeway time.Duration) (*Verifier, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("JWT secret not configured")
	}
	return &Verifier{method: jwt.SigningMethodHS256, key: secret, leeway: leeway, now: time.Now}, nil
}

// NewRSAVerifier pins RS256 with a PEM encoded public key.
func NewRSAVerifier(publicKeyPEM []byte, leeway time.Duration) (*Verifier, error) {
	key, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("invalid JWT public key: %w", err)
	}
	return &Verifier{method: jwt.SigningMethodRS256, key: key, leeway: leeway, now: time.Now}, nil
}

// SecretSource loads key material by name. An empty field selects the whole
// secret.
type SecretSource interface {
	GetSecretField(ctx context.Context, name, field string) (string, error)
}

// FromConfig builds the verifier for the configured algorithm. When
// KeySecretName is set the key is read from secrets instead of the env,
// optionally from one field of a JSON secret.
func FromConfig(ctx context.Context, cfg config.JWT, secrets SecretSource) (*Verifier, error) {
	secret, publicKey := cfg.Secret, cfg.PublicKey
	if cfg.KeySecretName != "" {
		if secrets == nil {
			return nil, fmt.Errorf("JWT_KEY_SECRET_NAME set without a secrets client")
		}
		v, err := secrets.GetSecretField(ctx, cfg.KeySecretName, cfg.KeySecretField)
		if err != nil {
			return nil, err
		}
		secret, publicKey = v, v
	}

	switch cfg.Algorithm {
	case "RS256":
		return NewRSAVerifier([]byte(publicKey), cfg.Leeway)
	case "HS256", "":
		return NewHMACVerifier([]byte(strings.TrimSpace(secret)), cfg.Leeway)
	default:
		return nil, fmt.Errorf("unsupported JWT algorithm %q", cfg.Algorithm)
	}
}

// WithClock replaces the time source used for exp, nbf and iat checks.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	cp := *v
	cp.now = now
	return &cp
}

// Verify parses token and returns its claims. Only the pinned algorithm is
// accepted and every time claim is checked with the configured leeway.
func (v *Verifier) Verify(token string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{v.method.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	claims := &Claims{}
	_, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.key, nil
	})
	if err != nil {
		return nil, err
	}

	now := v.now()
	if claims.ExpiresAt == nil {
		return nil, ErrMissingExpiry
	}
	if now.After(claims.ExpiresAt.Add(v.leeway)) {
		return nil, ErrExpired
	}
	if claims.NotBefore != nil && now.Add(v.leeway).Before(claims.NotBefore.Time) {
		return nil, ErrNotYetValid
	}
	if claims.IssuedAt != nil && now.Add(v.leeway).Before(claims.IssuedAt.Time) {
		return nil, ErrIssuedInFuture
	}

	if claims.UserID == 0 && claims.Subject != "" {
		if id, err := strconv.ParseInt(claims.Subject, 10, 64); err == nil {
			claims.UserID = id
		}
	}
	if claims.UserID == 0 {
		return nil, ErrMissingSubject
	}
	return claims, nil
}

// BearerToken extracts the token of an "Authorization: Bearer <token>" value.
func BearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
