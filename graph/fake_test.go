package graph

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/yashrajoria/graphql-gateway/backends"
	"github.com/yashrajoria/graphql-gateway/cache"
	apperrors "github.com/yashrajoria/graphql-gateway/errors"
	"github.com/yashrajoria/graphql-gateway/identifier"
	"github.com/yashrajoria/graphql-gateway/pagination"
	"github.com/yashrajoria/graphql-gateway/pricing"
	"github.com/yashrajoria/graphql-gateway/requestctx"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// fakeBackend serves canned data and also acts as every pricing lookup.
type fakeBackend struct {
	stores   []backends.Store
	storeErr error
	cart     *backends.Cart
	coupons  map[int64]*pricing.Coupon
	packages map[int64]*pricing.Package
	orders   []backends.Order
	rates    cache.RateTable
	patches  map[int64]backends.CartLinePatch
}

func (f *fakeBackend) Me(context.Context) (*backends.User, error) {
	return &backends.User{ID: 1, Email: "me@example.com"}, nil
}

func (f *fakeBackend) User(_ context.Context, userID int64) (*backends.User, error) {
	if userID != 1 {
		return nil, nil
	}
	return &backends.User{ID: 1, Email: "me@example.com"}, nil
}

func (f *fakeBackend) Store(_ context.Context, storeID int64) (*backends.Store, error) {
	if f.storeErr != nil {
		return nil, f.storeErr
	}
	for i := range f.stores {
		if f.stores[i].ID == storeID {
			return &f.stores[i], nil
		}
	}
	return nil, nil
}

func (f *fakeBackend) Stores(_ context.Context, offset, limit int) (backends.Page[backends.Store], error) {
	total := len(f.stores)
	end := min(offset+limit, total)
	if offset > total {
		offset = total
	}
	return backends.Page[backends.Store]{Items: f.stores[offset:end], TotalCount: &total}, nil
}

func (f *fakeBackend) BaseProduct(_ context.Context, productID int64) (*backends.BaseProduct, error) {
	return &backends.BaseProduct{ID: productID, StoreID: 1, Name: "Lamp", Price: decimal.RequireFromString("12.5"), Currency: "EUR"}, nil
}

func (f *fakeBackend) Cart(context.Context) (*backends.Cart, error) {
	return f.cart, nil
}

func (f *fakeBackend) UpdateCartLine(_ context.Context, lineID int64, patch backends.CartLinePatch) (*pricing.CartLine, error) {
	if f.patches == nil {
		f.patches = map[int64]backends.CartLinePatch{}
	}
	f.patches[lineID] = patch
	for _, l := range f.cart.Lines {
		if l.ID != lineID {
			continue
		}
		if patch.CouponID != nil {
			l.CouponID = patch.CouponID
		}
		if patch.Selected != nil {
			l.Selected = *patch.Selected
		}
		return &l, nil
	}
	return nil, apperrors.NotFound("cart line not found")
}

func (f *fakeBackend) Order(_ context.Context, orderID int64) (*backends.Order, error) {
	for i := range f.orders {
		if f.orders[i].ID == orderID {
			return &f.orders[i], nil
		}
	}
	return nil, nil
}

func (f *fakeBackend) Orders(_ context.Context, after *string, limit int) ([]backends.Order, error) {
	start := 0
	if after != nil {
		rawID, err := identifier.DecodeAs(*after, identifier.Orders, identifier.Order)
		if err != nil {
			return nil, apperrors.Parse("invalid cursor", err)
		}
		for i, o := range f.orders {
			if o.ID == rawID {
				start = i + 1
			}
		}
	}
	end := min(start+limit, len(f.orders))
	return f.orders[start:end], nil
}

func (f *fakeBackend) Warehouse(_ context.Context, warehouseID int64) (*backends.Warehouse, error) {
	return &backends.Warehouse{ID: warehouseID, StoreID: 1, Name: "North"}, nil
}

func (f *fakeBackend) Invoice(context.Context, int64) (*backends.Invoice, error) {
	return nil, nil
}

func (f *fakeBackend) Rates(context.Context) (cache.RateTable, error) {
	return f.rates, nil
}

func (f *fakeBackend) Coupon(_ context.Context, couponID int64) (*pricing.Coupon, error) {
	return f.coupons[couponID], nil
}

func (f *fakeBackend) Package(_ context.Context, packageID int64) (*pricing.Package, error) {
	return f.packages[packageID], nil
}

func (f *fakeBackend) Rate(_ context.Context, from, to string) (decimal.Decimal, bool, error) {
	r, ok := f.rates.Lookup(from, to)
	return r, ok, nil
}

type countingObserver struct {
	mu     sync.Mutex
	counts map[int]int
}

func (o *countingObserver) ObserveGraphQLError(code int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.counts == nil {
		o.counts = map[int]int{}
	}
	o.counts[code]++
}

type report struct {
	code int
	path string
}

type recordingReporter struct {
	reports []report
}

func (r *recordingReporter) Report(_ context.Context, err *apperrors.Error, path, _ string) {
	r.reports = append(r.reports, report{code: err.Code(), path: path})
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr[T any](v T) *T { return &v }

func newFakeBackend() *fakeBackend {
	expired := now.Add(-time.Hour)
	return &fakeBackend{
		cart: &backends.Cart{
			ID:       5,
			Currency: "EUR",
			Lines: []pricing.CartLine{
				{ID: 1, StoreID: 1, ProductID: 10, Quantity: 3, UnitPrice: dec("100"), ItemDiscount: ptr(dec("0.1")), Currency: "EUR", Selected: true},
				{ID: 2, StoreID: 1, ProductID: 11, Quantity: 3, UnitPrice: dec("50"), CouponID: ptr(int64(2)), DeliveryMethodID: ptr(int64(4)), Currency: "EUR", Selected: true},
				{ID: 3, StoreID: 2, ProductID: 12, Quantity: 1, UnitPrice: dec("7"), Currency: "EUR"},
			},
		},
		coupons: map[int64]*pricing.Coupon{
			2: {ID: 2, Percent: 20, Quantity: 5, IsActive: true, Scope: pricing.ScopeBaseProducts},
			3: {ID: 3, Percent: 10, Quantity: 5, IsActive: true, Scope: pricing.ScopeBaseProducts, ExpiresAt: &expired},
		},
		packages: map[int64]*pricing.Package{
			4: {ID: 4, Name: "Courier", Price: dec("20"), Currency: "EUR"},
		},
		rates: cache.RateTable{"EUR": {"USD": dec("0.5")}},
	}
}

type harness struct {
	backend  *fakeBackend
	observer *countingObserver
	reporter *recordingReporter
	schema   graphql.Schema
}

func newHarness(t *testing.T, backend *fakeBackend) *harness {
	t.Helper()
	h := &harness{backend: backend, observer: &countingObserver{}, reporter: &recordingReporter{}}
	r := NewResolver(backend, pricing.NewEngine(backend, backend, backend),
		pagination.Settings{MaxPageSize: 50, DefaultPageSize: 10},
		WithClock(func() time.Time { return now }),
		WithErrorObserver(h.observer),
		WithReporter(h.reporter),
	)
	schema, err := NewSchema(r)
	require.NoError(t, err)
	h.schema = schema
	return h
}

func (h *harness) exec(headers http.Header, query string, vars map[string]interface{}) *graphql.Result {
	if headers == nil {
		headers = http.Header{}
	}
	rc := requestctx.New(headers, &requestctx.Shared{})
	return graphql.Do(graphql.Params{
		Schema:         h.schema,
		RequestString:  query,
		VariableValues: vars,
		Context:        requestctx.WithContext(context.Background(), rc),
	})
}
