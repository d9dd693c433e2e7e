// Package graph binds the public GraphQL schema to the backends, the pricing
// engine and the paginator.
package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/shopspring/decimal"

	"github.com/yashrajoria/graphql-gateway/backends"
	"github.com/yashrajoria/graphql-gateway/cache"
	apperrors "github.com/yashrajoria/graphql-gateway/errors"
	"github.com/yashrajoria/graphql-gateway/identifier"
	"github.com/yashrajoria/graphql-gateway/logger"
	"github.com/yashrajoria/graphql-gateway/pagination"
	"github.com/yashrajoria/graphql-gateway/pricing"
	"github.com/yashrajoria/graphql-gateway/reporting"
	"github.com/yashrajoria/graphql-gateway/requestctx"
)

// currencyExchangeID is the raw id of the one CurrencyExchange node.
const currencyExchangeID int64 = 0

// Backend is everything the resolvers read from or write to.
type Backend interface {
	pricing.CouponLookup

	Me(ctx context.Context) (*backends.User, error)
	User(ctx context.Context, userID int64) (*backends.User, error)
	Store(ctx context.Context, storeID int64) (*backends.Store, error)
	Stores(ctx context.Context, offset, limit int) (backends.Page[backends.Store], error)
	BaseProduct(ctx context.Context, productID int64) (*backends.BaseProduct, error)
	Cart(ctx context.Context) (*backends.Cart, error)
	UpdateCartLine(ctx context.Context, lineID int64, patch backends.CartLinePatch) (*pricing.CartLine, error)
	Order(ctx context.Context, orderID int64) (*backends.Order, error)
	Orders(ctx context.Context, after *string, limit int) ([]backends.Order, error)
	Warehouse(ctx context.Context, warehouseID int64) (*backends.Warehouse, error)
	Invoice(ctx context.Context, invoiceID int64) (*backends.Invoice, error)
	Rates(ctx context.Context) (cache.RateTable, error)
}

// ErrorObserver counts field errors by code.
type ErrorObserver interface {
	ObserveGraphQLError(code int)
}

type Resolver struct {
	backend  Backend
	engine   *pricing.Engine
	pages    pagination.Settings
	now      func() time.Time
	observer ErrorObserver
	reporter reporting.Reporter
}

type Option func(*Resolver)

func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

func WithErrorObserver(o ErrorObserver) Option {
	return func(r *Resolver) { r.observer = o }
}

func WithReporter(rep reporting.Reporter) Option {
	return func(r *Resolver) {
		if rep != nil {
			r.reporter = rep
		}
	}
}

func NewResolver(backend Backend, engine *pricing.Engine, pages pagination.Settings, opts ...Option) *Resolver {
	r := &Resolver{
		backend:  backend,
		engine:   engine,
		pages:    pages,
		now:      time.Now,
		reporter: reporting.Noop{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// resolve wraps a field resolver so every error reaches the client as a
// gateway error carrying its code, and internal ones are reported.
func (r *Resolver) resolve(fn graphql.FieldResolveFn) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		v, err := fn(p)
		if err == nil {
			return v, nil
		}
		appErr := apperrors.From(err)
		if r.observer != nil {
			r.observer.ObserveGraphQLError(appErr.Code())
		}
		if appErr.Internal() {
			r.reporter.Report(p.Context, appErr, responsePath(p.Info), logger.Correlation(p.Context))
		}
		return nil, appErr
	}
}

func responsePath(info graphql.ResolveInfo) string {
	if info.Path == nil {
		return info.FieldName
	}
	parts := make([]string, 0, 4)
	for _, seg := range info.Path.AsArray() {
		parts = append(parts, fmt.Sprint(seg))
	}
	return strings.Join(parts, ".")
}

// nullable turns a missing entity into GraphQL null.
func nullable[T any](v *T, err error) (interface{}, error) {
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v, nil
}

func decodeID(raw interface{}, s identifier.Service, m identifier.Model) (int64, error) {
	str, _ := raw.(string)
	id, err := identifier.DecodeAs(str, s, m)
	if err != nil {
		return 0, apperrors.Parse("invalid id", err)
	}
	return id, nil
}

// buyerCurrency is the Currency header, or fallback when absent.
func buyerCurrency(ctx context.Context, fallback string) string {
	if rc, ok := requestctx.FromContext(ctx); ok {
		if c, ok := rc.Currency(); ok {
			return c
		}
	}
	return fallback
}

func money(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

type cartView struct {
	cart     *backends.Cart
	currency string
	lines    []pricing.PricedLine
	totals   pricing.Totals
	stores   []pricing.StoreTotals
}

// orderView prices an order on first use. Every order line was bought, so
// each counts as selected.
type orderView struct {
	order *backends.Order

	once   sync.Once
	lines  []pricing.PricedLine
	totals pricing.Totals
	err    error
}

func newOrderView(o *backends.Order) *orderView {
	return &orderView{order: o}
}

func (r *Resolver) priceOrder(ctx context.Context, v *orderView) ([]pricing.PricedLine, pricing.Totals, error) {
	v.once.Do(func() {
		lines := make([]pricing.CartLine, len(v.order.Lines))
		for i, l := range v.order.Lines {
			l.Selected = true
			lines[i] = l
		}
		v.lines, v.err = r.engine.PriceLines(ctx, lines, v.order.Currency)
		if v.err == nil {
			v.totals = pricing.Sum(v.lines)
		}
	})
	return v.lines, v.totals, v.err
}

type rateRow struct {
	From, To string
	Rate     decimal.Decimal
}

func rateRows(t cache.RateTable) []rateRow {
	rows := make([]rateRow, 0, len(t))
	for from, targets := range t {
		for to, rate := range targets {
			rows = append(rows, rateRow{From: from, To: to, Rate: rate})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].From != rows[j].From {
			return rows[i].From < rows[j].From
		}
		return rows[i].To < rows[j].To
	})
	return rows
}

func (r *Resolver) pageRequest(args map[string]interface{}) pagination.Request {
	req := pagination.Request{Settings: r.pages}
	if first, ok := args["first"].(int); ok {
		req.First = &first
	}
	if after, ok := args["after"].(string); ok {
		req.After = &after
	}
	return req
}

func (r *Resolver) node(ctx context.Context, raw string) (interface{}, error) {
	id, err := identifier.Decode(raw)
	if err != nil {
		return nil, apperrors.Parse("invalid id", err)
	}

	switch id.Model {
	case identifier.User:
		return nullable(r.backend.User(ctx, id.RawID))
	case identifier.Store:
		return nullable(r.backend.Store(ctx, id.RawID))
	case identifier.BaseProduct:
		return nullable(r.backend.BaseProduct(ctx, id.RawID))
	case identifier.Order:
		return r.order(ctx, id.RawID)
	case identifier.Warehouse:
		return nullable(r.backend.Warehouse(ctx, id.RawID))
	case identifier.Invoice:
		return nullable(r.backend.Invoice(ctx, id.RawID))
	case identifier.CurrencyExchange:
		if id.RawID != currencyExchangeID {
			return nil, apperrors.NotFound("currency exchange not found")
		}
		return r.backend.Rates(ctx)
	}
	return nil, apperrors.NotFound(fmt.Sprintf("%s %s cannot be fetched as a node", id.Service, id.Model))
}

func (r *Resolver) order(ctx context.Context, orderID int64) (interface{}, error) {
	o, err := r.backend.Order(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, nil
	}
	return newOrderView(o), nil
}

func (r *Resolver) stores(ctx context.Context, req pagination.Request) (interface{}, error) {
	var total *int
	conn, err := pagination.Paginate(req, func(offset, limit int) ([]*backends.Store, error) {
		page, err := r.backend.Stores(ctx, offset, limit)
		if err != nil {
			return nil, err
		}
		total = page.TotalCount
		stores := make([]*backends.Store, len(page.Items))
		for i := range page.Items {
			stores[i] = &page.Items[i]
		}
		return stores, nil
	})
	if err != nil {
		return nil, err
	}
	if total != nil {
		conn = pagination.WithTotalCount(conn, *total)
	}
	return conn, nil
}

func (r *Resolver) orders(ctx context.Context, req pagination.Request) (interface{}, error) {
	conn, err := pagination.PaginateByKey(req,
		func(after *string, limit int) ([]*orderView, error) {
			orders, err := r.backend.Orders(ctx, after, limit)
			if err != nil {
				return nil, err
			}
			views := make([]*orderView, len(orders))
			for i := range orders {
				views[i] = newOrderView(&orders[i])
			}
			return views, nil
		},
		func(v *orderView) string {
			return identifier.Encode(identifier.Orders, identifier.Order, v.order.ID)
		},
	)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (r *Resolver) cart(ctx context.Context) (interface{}, error) {
	cart, err := r.backend.Cart(ctx)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return nil, nil
	}

	currency := buyerCurrency(ctx, cart.Currency)
	lines, err := r.engine.PriceLines(ctx, cart.Lines, currency)
	if err != nil {
		return nil, err
	}
	return &cartView{
		cart:     cart,
		currency: currency,
		lines:    lines,
		totals:   pricing.Sum(lines),
		stores:   pricing.TotalsByStore(lines),
	}, nil
}

func (r *Resolver) priceLine(ctx context.Context, line *pricing.CartLine) (interface{}, error) {
	if line == nil {
		return nil, nil
	}
	priced, err := r.engine.PriceLines(ctx, []pricing.CartLine{*line}, buyerCurrency(ctx, line.Currency))
	if err != nil {
		return nil, err
	}
	return priced[0], nil
}

// applyCoupon checks the coupon is usable right now and attaches it to the
// cart line. The backend stays the authority on redemption.
func (r *Resolver) applyCoupon(ctx context.Context, input map[string]interface{}) (interface{}, error) {
	lineID, err := decodeID(input["cartProductId"], identifier.Stores, identifier.CartProduct)
	if err != nil {
		return nil, err
	}
	couponID, err := decodeID(input["couponId"], identifier.Stores, identifier.Coupon)
	if err != nil {
		return nil, err
	}

	coupon, err := r.backend.Coupon(ctx, couponID)
	if err != nil {
		return nil, err
	}
	if coupon == nil {
		return nil, apperrors.Domain(apperrors.CouponNotFound, "coupon not found")
	}
	if err := pricing.Usable(coupon, r.now()); err != nil {
		return nil, err
	}

	line, err := r.backend.UpdateCartLine(ctx, lineID, backends.CartLinePatch{CouponID: &couponID})
	if err != nil {
		return nil, err
	}
	return r.priceLine(ctx, line)
}

func (r *Resolver) setSelection(ctx context.Context, input map[string]interface{}) (interface{}, error) {
	lineID, err := decodeID(input["cartProductId"], identifier.Stores, identifier.CartProduct)
	if err != nil {
		return nil, err
	}
	selected, _ := input["selected"].(bool)

	line, err := r.backend.UpdateCartLine(ctx, lineID, backends.CartLinePatch{Selected: &selected})
	if err != nil {
		return nil, err
	}
	return r.priceLine(ctx, line)
}
