// Package pricing computes cart and order totals from the lines a backend
// returns. Lines are never modified; every total is derived on demand.
package pricing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	apperrors "github.com/yashrajoria/graphql-gateway/errors"
)

// CartLine is one product row of a cart or order.
type CartLine struct {
	ID               int64            `json:"id"`
	StoreID          int64            `json:"store_id"`
	ProductID        int64            `json:"product_id"`
	Quantity         int              `json:"quantity"`
	UnitPrice        decimal.Decimal  `json:"unit_price"`
	ItemDiscount     *decimal.Decimal `json:"item_discount,omitempty"`
	CouponID         *int64           `json:"coupon_id,omitempty"`
	DeliveryMethodID *int64           `json:"delivery_method_id,omitempty"`
	Currency         string           `json:"currency"`
	Selected         bool             `json:"selected"`
}

// Package is a delivery option with its own price and currency.
type Package struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
}

// CouponLookup returns nil without error when the coupon does not exist.
type CouponLookup interface {
	Coupon(ctx context.Context, id int64) (*Coupon, error)
}

// PackageLookup returns nil without error when the package does not exist.
type PackageLookup interface {
	Package(ctx context.Context, id int64) (*Package, error)
}

// RateLookup returns the multiplier converting from into to, false when the
// pair is unknown.
type RateLookup interface {
	Rate(ctx context.Context, from, to string) (decimal.Decimal, bool, error)
}

// Engine prices cart lines.
type Engine struct {
	coupons  CouponLookup
	packages PackageLookup
	rates    RateLookup
}

func NewEngine(coupons CouponLookup, packages PackageLookup, rates RateLookup) *Engine {
	return &Engine{coupons: coupons, packages: packages, rates: rates}
}

// LineSubtotal applies, by precedence, an item discount, else a coupon, else
// nothing. A coupon only reduces the price of one unit.
func (e *Engine) LineSubtotal(ctx context.Context, line CartLine) (decimal.Decimal, error) {
	if line.Quantity <= 0 {
		return decimal.Zero, nil
	}
	qty := decimal.NewFromInt(int64(line.Quantity))

	if line.ItemDiscount != nil && line.ItemDiscount.IsPositive() {
		return line.UnitPrice.Mul(qty).Mul(decimal.NewFromInt(1).Sub(*line.ItemDiscount)), nil
	}

	if line.CouponID != nil {
		coupon, err := e.coupons.Coupon(ctx, *line.CouponID)
		if err != nil {
			return decimal.Zero, err
		}
		if coupon == nil {
			return decimal.Zero, apperrors.Domain(apperrors.CouponNotFound, fmt.Sprintf("coupon %d not found", *line.CouponID))
		}
		discounted := line.UnitPrice.Sub(UnitReduction(line.UnitPrice, coupon.Percent))
		return discounted.Add(line.UnitPrice.Mul(qty.Sub(decimal.NewFromInt(1)))), nil
	}

	return line.UnitPrice.Mul(qty), nil
}

// LineSubtotalWithoutDiscount is the undiscounted price of the line.
func (e *Engine) LineSubtotalWithoutDiscount(line CartLine) decimal.Decimal {
	if line.Quantity <= 0 {
		return decimal.Zero
	}
	return line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
}

// CouponDiscountAmount is how much the discounts take off the line.
func (e *Engine) CouponDiscountAmount(ctx context.Context, line CartLine) (decimal.Decimal, error) {
	subtotal, err := e.LineSubtotal(ctx, line)
	if err != nil {
		return decimal.Zero, err
	}
	return e.LineSubtotalWithoutDiscount(line).Sub(subtotal), nil
}

// DeliveryCost converts the chosen package price into buyerCurrency and
// multiplies it by the quantity. A line without a delivery method costs 0.
func (e *Engine) DeliveryCost(ctx context.Context, line CartLine, buyerCurrency string) (decimal.Decimal, error) {
	if line.DeliveryMethodID == nil || line.Quantity <= 0 {
		return decimal.Zero, nil
	}

	pkg, err := e.packages.Package(ctx, *line.DeliveryMethodID)
	if err != nil {
		return decimal.Zero, err
	}
	if pkg == nil {
		return decimal.Zero, apperrors.Domain(apperrors.PackageNotFound, fmt.Sprintf("delivery package %d not found", *line.DeliveryMethodID))
	}

	rate, err := e.rate(ctx, pkg.Currency, buyerCurrency)
	if err != nil {
		return decimal.Zero, err
	}
	return pkg.Price.Mul(rate).Mul(decimal.NewFromInt(int64(line.Quantity))), nil
}

func (e *Engine) rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	one := decimal.NewFromInt(1)
	if from == "" || to == "" || from == to || e.rates == nil {
		return one, nil
	}
	rate, ok, err := e.rates.Rate(ctx, from, to)
	if err != nil {
		return decimal.Zero, err
	}
	if !ok {
		return one, nil
	}
	return rate, nil
}

// PricedLine is a line with every derived amount.
type PricedLine struct {
	Line                    CartLine
	Subtotal                decimal.Decimal
	SubtotalWithoutDiscount decimal.Decimal
	CouponDiscount          decimal.Decimal
	DeliveryCost            decimal.Decimal
}

// PriceLines prices each line. Delivery is converted into currency, or into
// the line's own currency when currency is empty.
func (e *Engine) PriceLines(ctx context.Context, lines []CartLine, currency string) ([]PricedLine, error) {
	priced := make([]PricedLine, 0, len(lines))
	for _, line := range lines {
		subtotal, err := e.LineSubtotal(ctx, line)
		if err != nil {
			return nil, err
		}
		target := currency
		if target == "" {
			target = line.Currency
		}
		delivery, err := e.DeliveryCost(ctx, line, target)
		if err != nil {
			return nil, err
		}
		without := e.LineSubtotalWithoutDiscount(line)
		priced = append(priced, PricedLine{
			Line:                    line,
			Subtotal:                subtotal,
			SubtotalWithoutDiscount: without,
			CouponDiscount:          without.Sub(subtotal),
			DeliveryCost:            delivery,
		})
	}
	return priced, nil
}

// CartTotal sums the subtotals of selected lines.
func CartTotal(lines []PricedLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		if l.Line.Selected {
			total = total.Add(l.Subtotal)
		}
	}
	return total
}

// Totals aggregates selected lines.
type Totals struct {
	TotalCount      int
	ProductsCost    decimal.Decimal
	CouponsDiscount decimal.Decimal
	DeliveryCost    decimal.Decimal
	TotalCost       decimal.Decimal
}

// StoreTotals are the totals of the lines of one store.
type StoreTotals struct {
	StoreID int64
	Totals
}

// Sum aggregates lines. Unselected lines contribute nothing.
func Sum(lines []PricedLine) Totals {
	t := Totals{
		ProductsCost:    decimal.Zero,
		CouponsDiscount: decimal.Zero,
		DeliveryCost:    decimal.Zero,
		TotalCost:       decimal.Zero,
	}
	for _, l := range lines {
		if !l.Line.Selected {
			continue
		}
		t.TotalCount += max(l.Line.Quantity, 0)
		t.ProductsCost = t.ProductsCost.Add(l.SubtotalWithoutDiscount)
		t.CouponsDiscount = t.CouponsDiscount.Add(l.CouponDiscount)
		t.DeliveryCost = t.DeliveryCost.Add(l.DeliveryCost)
	}
	t.TotalCost = t.ProductsCost.Sub(t.CouponsDiscount).Add(t.DeliveryCost)
	return t
}

// Totals prices lines and aggregates them.
func (e *Engine) Totals(ctx context.Context, lines []CartLine, currency string) (Totals, error) {
	priced, err := e.PriceLines(ctx, lines, currency)
	if err != nil {
		return Totals{}, err
	}
	return Sum(priced), nil
}

// TotalsByStore groups priced lines by store, in order of first appearance.
func TotalsByStore(lines []PricedLine) []StoreTotals {
	var order []int64
	groups := map[int64][]PricedLine{}
	for _, l := range lines {
		if _, seen := groups[l.Line.StoreID]; !seen {
			order = append(order, l.Line.StoreID)
		}
		groups[l.Line.StoreID] = append(groups[l.Line.StoreID], l)
	}

	out := make([]StoreTotals, 0, len(order))
	for _, id := range order {
		out = append(out, StoreTotals{StoreID: id, Totals: Sum(groups[id])})
	}
	return out
}
