package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yashrajoria/graphql-gateway/config"
)

var (
	secret = []byte("test-secret")
	now    = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
)

func sign(t *testing.T, claims Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return s
}

func claimsAt(exp time.Time) Claims {
	return Claims{
		UserID: 42,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Hour)),
		},
	}
}

func hmacVerifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := NewHMACVerifier(secret, 30*time.Second)
	require.NoError(t, err)
	return v.WithClock(func() time.Time { return now })
}

func TestVerifyValidToken(t *testing.T) {
	claims, err := hmacVerifier(t).Verify(sign(t, claimsAt(now.Add(time.Hour))))
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, now.Add(time.Hour), claims.Expiry().UTC())
	assert.Equal(t, now.Add(-time.Hour), claims.Issued().UTC())
}

func TestVerifyLeeway(t *testing.T) {
	v := hmacVerifier(t)

	_, err := v.Verify(sign(t, claimsAt(now.Add(-10*time.Second))))
	assert.NoError(t, err, "within leeway")

	_, err = v.Verify(sign(t, claimsAt(now.Add(-time.Minute))))
	assert.ErrorIs(t, err, ErrExpired)
}

func TestVerifyRejectsTimeClaims(t *testing.T) {
	v := hmacVerifier(t)

	c := claimsAt(now.Add(time.Hour))
	c.NotBefore = jwt.NewNumericDate(now.Add(time.Hour))
	_, err := v.Verify(sign(t, c))
	assert.ErrorIs(t, err, ErrNotYetValid)

	c = claimsAt(now.Add(time.Hour))
	c.IssuedAt = jwt.NewNumericDate(now.Add(10 * time.Minute))
	_, err = v.Verify(sign(t, c))
	assert.ErrorIs(t, err, ErrIssuedInFuture)

	c = claimsAt(now)
	c.ExpiresAt = nil
	_, err = v.Verify(sign(t, c))
	assert.ErrorIs(t, err, ErrMissingExpiry)
}

func TestVerifySubjectFallback(t *testing.T) {
	c := claimsAt(now.Add(time.Hour))
	c.UserID = 0
	c.Subject = "77"
	claims, err := hmacVerifier(t).Verify(sign(t, c))
	require.NoError(t, err)
	assert.Equal(t, int64(77), claims.UserID)

	c.Subject = ""
	_, err = hmacVerifier(t).Verify(sign(t, c))
	assert.ErrorIs(t, err, ErrMissingSubject)
}

func TestVerifyRejectsWrongSecretAndAlgorithm(t *testing.T) {
	v := hmacVerifier(t)

	other, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claimsAt(now.Add(time.Hour))).SignedString([]byte("other"))
	require.NoError(t, err)
	_, err = v.Verify(other)
	assert.Error(t, err)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claimsAt(now.Add(time.Hour))).SignedString(secret)
	require.NoError(t, err)
	_, err = v.Verify(hs512)
	assert.Error(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claimsAt(now.Add(time.Hour))).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = v.Verify(none)
	assert.Error(t, err)
}

func rsaKeyPair(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	return key, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
}

func TestRSAVerifier(t *testing.T) {
	key, pub := rsaKeyPair(t)

	v, err := NewRSAVerifier(pub, 0)
	require.NoError(t, err)
	v = v.WithClock(func() time.Time { return now })

	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claimsAt(now.Add(time.Hour))).SignedString(key)
	require.NoError(t, err)

	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)

	// An HMAC token signed with the public key bytes must not pass.
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claimsAt(now.Add(time.Hour))).SignedString(pub)
	require.NoError(t, err)
	_, err = v.Verify(forged)
	assert.Error(t, err)
}

type staticSecrets map[string]string

// staticSecrets keys whole secrets by name and fields by "name#field".
func (s staticSecrets) GetSecretField(_ context.Context, name, field string) (string, error) {
	key := name
	if field != "" {
		key += "#" + field
	}
	v, ok := s[key]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func TestFromConfig(t *testing.T) {
	v, err := FromConfig(context.Background(), config.JWT{Algorithm: "HS256", KeySecretName: "gateway/jwt"}, staticSecrets{"gateway/jwt": "test-secret"})
	require.NoError(t, err)
	_, err = v.WithClock(func() time.Time { return now }).Verify(sign(t, claimsAt(now.Add(time.Hour))))
	assert.NoError(t, err)

	v, err = FromConfig(context.Background(),
		config.JWT{Algorithm: "HS256", KeySecretName: "gateway/jwt", KeySecretField: "hmac"},
		staticSecrets{"gateway/jwt": `{"hmac":"test-secret"}`, "gateway/jwt#hmac": "test-secret"})
	require.NoError(t, err)
	_, err = v.WithClock(func() time.Time { return now }).Verify(sign(t, claimsAt(now.Add(time.Hour))))
	assert.NoError(t, err)

	_, err = FromConfig(context.Background(), config.JWT{Algorithm: "HS256"}, nil)
	assert.Error(t, err, "empty secret")

	_, err = FromConfig(context.Background(), config.JWT{Algorithm: "RS256", PublicKey: "not a pem"}, nil)
	assert.Error(t, err)

	_, err = FromConfig(context.Background(), config.JWT{Algorithm: "HS256", KeySecretName: "missing"}, staticSecrets{})
	assert.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	tok, ok := BearerToken("Bearer abc.def")
	assert.True(t, ok)
	assert.Equal(t, "abc.def", tok)

	tok, ok = BearerToken("bearer xyz")
	assert.True(t, ok)
	assert.Equal(t, "xyz", tok)

	for _, h := range []string{"", "Bearer ", "Basic abc", "Bearerabc"} {
		_, ok := BearerToken(h)
		assert.False(t, ok, h)
	}
}
