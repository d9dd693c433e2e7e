// Package backends holds the typed calls the gateway makes to each REST
// service. Every call runs on behalf of the request context stored in ctx.
package backends

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/yashrajoria/graphql-gateway/cache"
	"github.com/yashrajoria/graphql-gateway/clients"
	"github.com/yashrajoria/graphql-gateway/config"
	apperrors "github.com/yashrajoria/graphql-gateway/errors"
	"github.com/yashrajoria/graphql-gateway/identifier"
	"github.com/yashrajoria/graphql-gateway/pricing"
	"github.com/yashrajoria/graphql-gateway/requestctx"
)

var errNoRequestContext = errors.New("no request context in ctx")

// Backends implements the pricing lookups and the reads the schema needs.
type Backends struct {
	urls  config.Backends
	rates *cache.RateCache
}

func New(urls config.Backends, rates *cache.RateCache) *Backends {
	if rates == nil {
		rates = cache.NewRateCache(nil, 0, nil, nil)
	}
	return &Backends{urls: urls, rates: rates}
}

func current(ctx context.Context) (*requestctx.Context, error) {
	rc, ok := requestctx.FromContext(ctx)
	if !ok {
		return nil, apperrors.Unknown(errNoRequestContext)
	}
	return rc, nil
}

func call[T any](ctx context.Context, method, u string, body interface{}) (T, error) {
	rc, err := current(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	return requestctx.Request[T](ctx, rc, method, u, body)
}

// optional maps a backend 404 onto a nil result.
func optional[T any](ctx context.Context, u string) (*T, error) {
	v, err := call[*T](ctx, http.MethodGet, u, nil)
	if clients.IsStatus(err, http.StatusNotFound) {
		return nil, nil
	}
	return v, err
}

func id(n int64) string {
	return strconv.FormatInt(n, 10)
}

func window(offset, limit int) url.Values {
	return url.Values{
		"offset": {strconv.Itoa(offset)},
		"limit":  {strconv.Itoa(limit)},
	}
}

// Me returns the signed-in caller.
func (b *Backends) Me(ctx context.Context) (*User, error) {
	rc, err := current(ctx)
	if err != nil {
		return nil, err
	}
	userID, err := rc.Authenticate(ctx)
	if err != nil {
		return nil, err
	}
	return b.User(ctx, userID)
}

func (b *Backends) User(ctx context.Context, userID int64) (*User, error) {
	return optional[User](ctx, clients.Join(b.urls.Users, nil, "users", id(userID)))
}

func (b *Backends) Store(ctx context.Context, storeID int64) (*Store, error) {
	return optional[Store](ctx, clients.Join(b.urls.Stores, nil, "stores", id(storeID)))
}

// Stores returns one offset window of the store list.
func (b *Backends) Stores(ctx context.Context, offset, limit int) (Page[Store], error) {
	return call[Page[Store]](ctx, http.MethodGet, clients.Join(b.urls.Stores, window(offset, limit), "stores"), nil)
}

func (b *Backends) BaseProduct(ctx context.Context, productID int64) (*BaseProduct, error) {
	return optional[BaseProduct](ctx, clients.Join(b.urls.Stores, nil, "base_products", id(productID)))
}

// Cart returns the cart of the signed-in user, or of the session for
// anonymous callers.
func (b *Backends) Cart(ctx context.Context) (*Cart, error) {
	rc, err := current(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := rc.SessionID(); !ok {
		if _, ok := rc.Claims(); !ok {
			return nil, apperrors.Forbidden("a session id or a signed-in user is required")
		}
		if _, err := rc.Authenticate(ctx); err != nil {
			return nil, err
		}
	}
	return optional[Cart](ctx, clients.Join(b.urls.Stores, nil, "carts", "current"))
}

// UpdateCartLine patches one line of the caller's cart.
func (b *Backends) UpdateCartLine(ctx context.Context, lineID int64, patch CartLinePatch) (*pricing.CartLine, error) {
	u := clients.Join(b.urls.Stores, nil, "carts", "current", "products", id(lineID))
	line, err := call[*pricing.CartLine](ctx, http.MethodPatch, u, patch)
	if clients.IsStatus(err, http.StatusNotFound) {
		return nil, apperrors.NotFound("cart line not found")
	}
	return line, err
}

func (b *Backends) Order(ctx context.Context, orderID int64) (*Order, error) {
	rc, err := current(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := rc.Authenticate(ctx); err != nil {
		return nil, err
	}
	return optional[Order](ctx, clients.Join(b.urls.Orders, nil, "orders", id(orderID)))
}

// Orders lists the caller's orders newest first, keyed by the opaque id of
// the last order seen.
func (b *Backends) Orders(ctx context.Context, after *string, limit int) ([]Order, error) {
	rc, err := current(ctx)
	if err != nil {
		return nil, err
	}
	userID, err := rc.Authenticate(ctx)
	if err != nil {
		return nil, err
	}

	q := url.Values{
		"user_id": {id(userID)},
		"limit":   {strconv.Itoa(limit)},
	}
	if after != nil {
		rawID, err := identifier.DecodeAs(*after, identifier.Orders, identifier.Order)
		if err != nil {
			return nil, apperrors.Parse("invalid cursor", err)
		}
		q.Set("after_id", id(rawID))
	}
	return call[[]Order](ctx, http.MethodGet, clients.Join(b.urls.Orders, q, "orders"), nil)
}

func (b *Backends) Warehouse(ctx context.Context, warehouseID int64) (*Warehouse, error) {
	return optional[Warehouse](ctx, clients.Join(b.urls.Warehouses, nil, "warehouses", id(warehouseID)))
}

func (b *Backends) Invoice(ctx context.Context, invoiceID int64) (*Invoice, error) {
	return optional[Invoice](ctx, clients.Join(b.urls.Billing, nil, "invoices", id(invoiceID)))
}

// Coupon implements pricing.CouponLookup. The result carries the per-customer
// activation flag, so it is never cached.
func (b *Backends) Coupon(ctx context.Context, couponID int64) (*pricing.Coupon, error) {
	return optional[pricing.Coupon](ctx, clients.Join(b.urls.Stores, nil, "coupons", id(couponID)))
}

// Package implements pricing.PackageLookup.
func (b *Backends) Package(ctx context.Context, packageID int64) (*pricing.Package, error) {
	return optional[pricing.Package](ctx, clients.Join(b.urls.Delivery, nil, "packages", id(packageID)))
}

// Rates returns the exchange table, from Redis when cached.
func (b *Backends) Rates(ctx context.Context) (cache.RateTable, error) {
	rc, err := current(ctx)
	if err != nil {
		return nil, err
	}
	return b.rates.GetOrLoad(ctx, func(ctx context.Context) (cache.RateTable, error) {
		u := clients.Join(b.urls.Stores, nil, "currency_exchange")
		return requestctx.RequestWithoutAuth[cache.RateTable](ctx, rc, http.MethodGet, u, nil)
	})
}

// Rate implements pricing.RateLookup.
func (b *Backends) Rate(ctx context.Context, from, to string) (decimal.Decimal, bool, error) {
	table, err := b.Rates(ctx)
	if err != nil {
		return decimal.Decimal{}, false, err
	}
	r, ok := table.Lookup(from, to)
	return r, ok, nil
}

// ApplyToken forwards a one-time link token to the users backend.
func (b *Backends) ApplyToken(ctx context.Context, action TokenAction, token string) error {
	rc, err := current(ctx)
	if err != nil {
		return err
	}
	u := clients.Join(b.urls.Users, nil, "users", string(action))
	_, err = requestctx.RequestWithoutAuth[struct{}](ctx, rc, http.MethodPost, u, map[string]string{"token": token})
	return err
}
