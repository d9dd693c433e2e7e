package requestctx

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/yashrajoria/graphql-gateway/auth"
	"github.com/yashrajoria/graphql-gateway/clients"
	apperrors "github.com/yashrajoria/graphql-gateway/errors"
)

// Request calls a backend on behalf of the caller. Claims that have already
// expired fail with AuthExpired before anything is sent.
func Request[T any](ctx context.Context, rc *Context, method, url string, body interface{}) (T, error) {
	if rc.claims != nil && !rc.claims.Expiry().After(rc.shared.now()) {
		var zero T
		return zero, apperrors.AuthExpired()
	}
	return send[T](ctx, rc, method, url, body, true)
}

// RequestWithoutAuth is Request without the caller's credentials.
func RequestWithoutAuth[T any](ctx context.Context, rc *Context, method, url string, body interface{}) (T, error) {
	return send[T](ctx, rc, method, url, body, false)
}

func send[T any](ctx context.Context, rc *Context, method, url string, body interface{}, withAuth bool) (T, error) {
	return clients.Fetch[T](WithContext(ctx, rc), rc.shared.Client, clients.Call{
		Method:  method,
		URL:     url,
		Headers: rc.headers(withAuth),
		Body:    body,
	})
}

type revokeBefore struct {
	RevokeBefore *int64 `json:"revoke_before"`
}

// JWTNotRevoked asks the users backend whether tokens of claims' user issued
// before some instant were revoked. A token issued before that instant is
// revoked regardless of its expiry.
func JWTNotRevoked(ctx context.Context, rc *Context, claims *auth.Claims) (bool, error) {
	if claims == nil {
		return false, nil
	}
	u := clients.Join(rc.shared.Config.Backends.Users, nil, "users", strconv.FormatInt(claims.UserID, 10), "revoke_before")
	resp, err := RequestWithoutAuth[revokeBefore](ctx, rc, http.MethodGet, u, nil)
	if err != nil {
		return false, err
	}
	if resp.RevokeBefore == nil {
		return true, nil
	}
	return !claims.Issued().Before(time.Unix(*resp.RevokeBefore, 0)), nil
}
