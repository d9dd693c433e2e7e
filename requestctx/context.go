// Package requestctx builds the per-request context every backend call goes
// through: caller identity, session, currency and correlation token.
package requestctx

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yashrajoria/graphql-gateway/auth"
	"github.com/yashrajoria/graphql-gateway/clients"
	"github.com/yashrajoria/graphql-gateway/config"
	apperrors "github.com/yashrajoria/graphql-gateway/errors"
	"github.com/yashrajoria/graphql-gateway/logger"
)

// Inbound and outbound header names.
const (
	HeaderAuthorization    = "Authorization"
	HeaderSessionID        = "Session-Id"
	HeaderCurrency         = "Currency"
	HeaderCorrelationToken = "Correlation-Token"
)

// Shared is built once at startup and read by every request.
type Shared struct {
	Config   *config.Config
	Client   *clients.BackendClient
	Verifier *auth.Verifier
	Log      *zap.Logger
	// Now is the clock used for expiry checks.
	Now func() time.Time
}

func (s *Shared) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *Shared) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

// Context is the per-request state. It is not shared across requests.
type Context struct {
	shared *Shared

	claims *auth.Claims
	token  string

	sessionID   string
	currency    string
	correlation string
	requestID   string

	revocation    sync.Once
	revocationErr error
}

// New reads the transport headers. An invalid bearer token leaves the
// request unauthenticated instead of failing it.
func New(headers http.Header, shared *Shared) *Context {
	rc := &Context{
		shared:      shared,
		sessionID:   strings.TrimSpace(headers.Get(HeaderSessionID)),
		currency:    strings.ToUpper(strings.TrimSpace(headers.Get(HeaderCurrency))),
		correlation: strings.TrimSpace(headers.Get(HeaderCorrelationToken)),
		requestID:   uuid.NewString(),
	}
	if rc.correlation == "" {
		rc.correlation = rc.requestID
	}

	if token, ok := auth.BearerToken(headers.Get(HeaderAuthorization)); ok {
		rc.authenticate(token)
	}
	return rc
}

func (rc *Context) authenticate(token string) {
	if rc.shared.Verifier == nil {
		rc.shared.log().Debug("bearer token ignored, no verifier configured",
			zap.String("correlation_token", rc.correlation))
		return
	}
	claims, err := rc.shared.Verifier.Verify(token)
	if err != nil {
		rc.shared.log().Debug("bearer token rejected",
			zap.String("correlation_token", rc.correlation),
			zap.Error(err))
		return
	}
	rc.claims = claims
	rc.token = token
}

// Claims returns the verified token claims.
func (rc *Context) Claims() (*auth.Claims, bool) {
	return rc.claims, rc.claims != nil
}

// UserID returns the authenticated user id.
func (rc *Context) UserID() (int64, bool) {
	if rc.claims == nil {
		return 0, false
	}
	return rc.claims.UserID, true
}

func (rc *Context) SessionID() (string, bool) {
	return rc.sessionID, rc.sessionID != ""
}

func (rc *Context) Currency() (string, bool) {
	return rc.currency, rc.currency != ""
}

// CorrelationToken is the inbound token or, when absent, the request id.
func (rc *Context) CorrelationToken() string {
	return rc.correlation
}

// RequestID is minted for every request and sent in the request_id cookie.
func (rc *Context) RequestID() string {
	return rc.requestID
}

func (rc *Context) Shared() *Shared {
	return rc.shared
}

// Authenticate returns the caller's user id. It fails with Forbidden for
// anonymous callers and for tokens revoked on the users backend. The
// revocation lookup runs at most once per request.
func (rc *Context) Authenticate(ctx context.Context) (int64, error) {
	if rc.claims == nil {
		return 0, apperrors.Forbidden("authentication required")
	}
	if !rc.claims.Expiry().After(rc.shared.now()) {
		return 0, apperrors.AuthExpired()
	}
	rc.revocation.Do(func() {
		ok, err := JWTNotRevoked(ctx, rc, rc.claims)
		switch {
		case err != nil:
			rc.revocationErr = err
		case !ok:
			rc.revocationErr = apperrors.Forbidden("authentication token has been revoked")
		}
	})
	if rc.revocationErr != nil {
		return 0, rc.revocationErr
	}
	return rc.claims.UserID, nil
}

func (rc *Context) headers(withAuth bool) http.Header {
	h := http.Header{}
	if withAuth && rc.token != "" {
		h.Set(HeaderAuthorization, "Bearer "+rc.token)
	}
	cookie := "request_id=" + rc.requestID
	if rc.sessionID != "" {
		cookie += "; session_id=" + rc.sessionID
	}
	h.Set("Cookie", cookie)
	if rc.currency != "" {
		h.Set(HeaderCurrency, rc.currency)
	}
	h.Set(HeaderCorrelationToken, rc.correlation)
	return h
}

type ctxKey struct{}

// WithContext stores rc in ctx and tags ctx with its correlation token for
// logging.
func WithContext(ctx context.Context, rc *Context) context.Context {
	ctx = logger.WithCorrelation(ctx, rc.correlation)
	return context.WithValue(ctx, ctxKey{}, rc)
}

// FromContext returns the Context stored by WithContext.
func FromContext(ctx context.Context) (*Context, bool) {
	rc, ok := ctx.Value(ctxKey{}).(*Context)
	return rc, ok && rc != nil
}
