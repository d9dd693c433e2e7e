package graph

import (
	"context"
	"time"

	"github.com/graphql-go/graphql"

	"github.com/yashrajoria/graphql-gateway/backends"
	"github.com/yashrajoria/graphql-gateway/cache"
	"github.com/yashrajoria/graphql-gateway/identifier"
	"github.com/yashrajoria/graphql-gateway/pagination"
	"github.com/yashrajoria/graphql-gateway/pricing"
)

// APIVersion is reported by the apiVersion query.
const APIVersion = "1.0.0"

var (
	nonNullID     = graphql.NewNonNull(graphql.ID)
	nonNullString = graphql.NewNonNull(graphql.String)
	nonNullInt    = graphql.NewNonNull(graphql.Int)
	nonNullFloat  = graphql.NewNonNull(graphql.Float)
	nonNullBool   = graphql.NewNonNull(graphql.Boolean)
)

// field resolves from a source of type T. Sources of any other type
// resolve to null.
func field[T any](typ graphql.Output, get func(T) interface{}) *graphql.Field {
	return &graphql.Field{
		Type: typ,
		Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			src, ok := p.Source.(T)
			if !ok {
				return nil, nil
			}
			return get(src), nil
		},
	}
}

func idField[T any](s identifier.Service, m identifier.Model, rawID func(T) int64) *graphql.Field {
	return field(nonNullID, func(src T) interface{} {
		return identifier.Encode(s, m, rawID(src))
	})
}

func optString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func optInt(n *int) interface{} {
	if n == nil {
		return nil
	}
	return *n
}

type schemaBuilder struct {
	r *Resolver

	node *graphql.Interface

	user             *graphql.Object
	store            *graphql.Object
	baseProduct      *graphql.Object
	cartProduct      *graphql.Object
	cartStore        *graphql.Object
	cart             *graphql.Object
	order            *graphql.Object
	warehouse        *graphql.Object
	invoice          *graphql.Object
	currencyRate     *graphql.Object
	currencyExchange *graphql.Object
	pageInfo         *graphql.Object
	storeConnection  *graphql.Object
	orderConnection  *graphql.Object
}

// NewSchema builds the public schema over r.
func NewSchema(r *Resolver) (graphql.Schema, error) {
	b := &schemaBuilder{r: r}
	b.node = graphql.NewInterface(graphql.InterfaceConfig{
		Name:        "Node",
		Description: "An object with a globally unique opaque id.",
		Fields: graphql.Fields{
			"id": &graphql.Field{Type: nonNullID},
		},
		ResolveType: b.resolveType,
	})

	b.defineCatalog()
	b.defineCart()
	b.defineOrders()
	b.defineMisc()

	b.pageInfo = graphql.NewObject(graphql.ObjectConfig{
		Name: "PageInfo",
		Fields: graphql.Fields{
			"hasNextPage":     field(nonNullBool, func(p pagination.PageInfo) interface{} { return p.HasNextPage }),
			"hasPreviousPage": field(nonNullBool, func(p pagination.PageInfo) interface{} { return p.HasPreviousPage }),
			"startCursor":     field(graphql.String, func(p pagination.PageInfo) interface{} { return optString(p.StartCursor) }),
			"endCursor":       field(graphql.String, func(p pagination.PageInfo) interface{} { return optString(p.EndCursor) }),
			"totalCount":      field(graphql.Int, func(p pagination.PageInfo) interface{} { return optInt(p.TotalCount) }),
		},
	})
	b.storeConnection = connectionType[*backends.Store]("Store", b.store, b.pageInfo)
	b.orderConnection = connectionType[*orderView]("Order", b.order, b.pageInfo)

	return graphql.NewSchema(graphql.SchemaConfig{
		Query:    b.query(),
		Mutation: b.mutation(),
		Types:    []graphql.Type{b.user, b.warehouse, b.invoice, b.currencyExchange},
	})
}

func (b *schemaBuilder) resolveType(p graphql.ResolveTypeParams) *graphql.Object {
	switch p.Value.(type) {
	case *backends.User:
		return b.user
	case *backends.Store:
		return b.store
	case *backends.BaseProduct:
		return b.baseProduct
	case *orderView:
		return b.order
	case *backends.Warehouse:
		return b.warehouse
	case *backends.Invoice:
		return b.invoice
	case cache.RateTable:
		return b.currencyExchange
	}
	return nil
}

func (b *schemaBuilder) object(name string, fields graphql.Fields) *graphql.Object {
	return graphql.NewObject(graphql.ObjectConfig{
		Name:       name,
		Interfaces: []*graphql.Interface{b.node},
		Fields:     fields,
	})
}

// storeField resolves the store a source entity belongs to.
func (b *schemaBuilder) storeField(storeID func(p graphql.ResolveParams) (int64, bool)) *graphql.Field {
	return &graphql.Field{
		Type: b.store,
		Resolve: b.r.resolve(func(p graphql.ResolveParams) (interface{}, error) {
			id, ok := storeID(p)
			if !ok {
				return nil, nil
			}
			return nullable(b.r.backend.Store(p.Context, id))
		}),
	}
}

func (b *schemaBuilder) defineCatalog() {
	b.user = b.object("User", graphql.Fields{
		"id":         idField(identifier.Users, identifier.User, func(u *backends.User) int64 { return u.ID }),
		"email":      field(nonNullString, func(u *backends.User) interface{} { return u.Email }),
		"firstName":  field(graphql.String, func(u *backends.User) interface{} { return u.FirstName }),
		"lastName":   field(graphql.String, func(u *backends.User) interface{} { return u.LastName }),
		"isVerified": field(nonNullBool, func(u *backends.User) interface{} { return u.IsVerified }),
	})

	b.store = b.object("Store", graphql.Fields{
		"id":          idField(identifier.Stores, identifier.Store, func(s *backends.Store) int64 { return s.ID }),
		"name":        field(nonNullString, func(s *backends.Store) interface{} { return s.Name }),
		"description": field(graphql.String, func(s *backends.Store) interface{} { return s.Description }),
		"currency":    field(nonNullString, func(s *backends.Store) interface{} { return s.Currency }),
	})

	b.baseProduct = b.object("BaseProduct", graphql.Fields{
		"id":          idField(identifier.Stores, identifier.BaseProduct, func(bp *backends.BaseProduct) int64 { return bp.ID }),
		"name":        field(nonNullString, func(bp *backends.BaseProduct) interface{} { return bp.Name }),
		"description": field(graphql.String, func(bp *backends.BaseProduct) interface{} { return bp.Description }),
		"price":       field(nonNullFloat, func(bp *backends.BaseProduct) interface{} { return money(bp.Price) }),
		"currency":    field(nonNullString, func(bp *backends.BaseProduct) interface{} { return bp.Currency }),
		"store": b.storeField(func(p graphql.ResolveParams) (int64, bool) {
			bp, ok := p.Source.(*backends.BaseProduct)
			if !ok {
				return 0, false
			}
			return bp.StoreID, true
		}),
	})
}

// totalsFields exposes the aggregate amounts of a cart, a store group or an
// order.
func totalsFields[T any](r *Resolver, fields graphql.Fields, totals func(ctx context.Context, src T) (pricing.Totals, error)) graphql.Fields {
	amount := func(get func(pricing.Totals) interface{}, typ graphql.Output) *graphql.Field {
		return &graphql.Field{
			Type: typ,
			Resolve: r.resolve(func(p graphql.ResolveParams) (interface{}, error) {
				src, ok := p.Source.(T)
				if !ok {
					return nil, nil
				}
				t, err := totals(p.Context, src)
				if err != nil {
					return nil, err
				}
				return get(t), nil
			}),
		}
	}

	fields["totalCount"] = amount(func(t pricing.Totals) interface{} { return t.TotalCount }, nonNullInt)
	fields["productsCost"] = amount(func(t pricing.Totals) interface{} { return money(t.ProductsCost) }, nonNullFloat)
	fields["couponsDiscount"] = amount(func(t pricing.Totals) interface{} { return money(t.CouponsDiscount) }, nonNullFloat)
	fields["deliveryCost"] = amount(func(t pricing.Totals) interface{} { return money(t.DeliveryCost) }, nonNullFloat)
	fields["totalCost"] = amount(func(t pricing.Totals) interface{} { return money(t.TotalCost) }, nonNullFloat)
	return fields
}

func (b *schemaBuilder) defineCart() {
	b.cartProduct = graphql.NewObject(graphql.ObjectConfig{
		Name: "CartProduct",
		Fields: graphql.Fields{
			"id":                      idField(identifier.Stores, identifier.CartProduct, func(l pricing.PricedLine) int64 { return l.Line.ID }),
			"quantity":                field(nonNullInt, func(l pricing.PricedLine) interface{} { return l.Line.Quantity }),
			"unitPrice":               field(nonNullFloat, func(l pricing.PricedLine) interface{} { return money(l.Line.UnitPrice) }),
			"currency":                field(nonNullString, func(l pricing.PricedLine) interface{} { return l.Line.Currency }),
			"selected":                field(nonNullBool, func(l pricing.PricedLine) interface{} { return l.Line.Selected }),
			"subtotal":                field(nonNullFloat, func(l pricing.PricedLine) interface{} { return money(l.Subtotal) }),
			"subtotalWithoutDiscount": field(nonNullFloat, func(l pricing.PricedLine) interface{} { return money(l.SubtotalWithoutDiscount) }),
			"couponDiscount":          field(nonNullFloat, func(l pricing.PricedLine) interface{} { return money(l.CouponDiscount) }),
			"deliveryCost":            field(nonNullFloat, func(l pricing.PricedLine) interface{} { return money(l.DeliveryCost) }),
			"couponId": field(graphql.ID, func(l pricing.PricedLine) interface{} {
				if l.Line.CouponID == nil {
					return nil
				}
				return identifier.Encode(identifier.Stores, identifier.Coupon, *l.Line.CouponID)
			}),
			"baseProduct": &graphql.Field{
				Type: b.baseProduct,
				Resolve: b.r.resolve(func(p graphql.ResolveParams) (interface{}, error) {
					l, ok := p.Source.(pricing.PricedLine)
					if !ok {
						return nil, nil
					}
					return nullable(b.r.backend.BaseProduct(p.Context, l.Line.ProductID))
				}),
			},
		},
	})

	b.cartStore = graphql.NewObject(graphql.ObjectConfig{
		Name: "CartStore",
		Fields: totalsFields(b.r, graphql.Fields{
			"id": idField(identifier.Stores, identifier.CartStore, func(s pricing.StoreTotals) int64 { return s.StoreID }),
			"store": b.storeField(func(p graphql.ResolveParams) (int64, bool) {
				s, ok := p.Source.(pricing.StoreTotals)
				return s.StoreID, ok
			}),
		}, func(_ context.Context, s pricing.StoreTotals) (pricing.Totals, error) {
			return s.Totals, nil
		}),
	})

	b.cart = graphql.NewObject(graphql.ObjectConfig{
		Name: "Cart",
		Fields: totalsFields(b.r, graphql.Fields{
			"id":       idField(identifier.Stores, identifier.Cart, func(v *cartView) int64 { return v.cart.ID }),
			"currency": field(nonNullString, func(v *cartView) interface{} { return v.currency }),
			"products": field(graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(b.cartProduct))),
				func(v *cartView) interface{} { return v.lines }),
			"stores": field(graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(b.cartStore))),
				func(v *cartView) interface{} { return v.stores }),
			"selectedSubtotal": field(nonNullFloat, func(v *cartView) interface{} { return money(pricing.CartTotal(v.lines)) }),
		}, func(_ context.Context, v *cartView) (pricing.Totals, error) {
			return v.totals, nil
		}),
	})
}

func (b *schemaBuilder) defineOrders() {
	b.order = b.object("Order", totalsFields(b.r, graphql.Fields{
		"id":        idField(identifier.Orders, identifier.Order, func(v *orderView) int64 { return v.order.ID }),
		"status":    field(nonNullString, func(v *orderView) interface{} { return v.order.Status }),
		"currency":  field(nonNullString, func(v *orderView) interface{} { return v.order.Currency }),
		"createdAt": field(nonNullString, func(v *orderView) interface{} { return v.order.CreatedAt.UTC().Format(time.RFC3339) }),
		"products": &graphql.Field{
			Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(b.cartProduct))),
			Resolve: b.r.resolve(func(p graphql.ResolveParams) (interface{}, error) {
				v, ok := p.Source.(*orderView)
				if !ok {
					return nil, nil
				}
				lines, _, err := b.r.priceOrder(p.Context, v)
				return lines, err
			}),
		},
	}, func(ctx context.Context, v *orderView) (pricing.Totals, error) {
		_, totals, err := b.r.priceOrder(ctx, v)
		return totals, err
	}))
}

func (b *schemaBuilder) defineMisc() {
	b.warehouse = b.object("Warehouse", graphql.Fields{
		"id":      idField(identifier.Warehouses, identifier.Warehouse, func(w *backends.Warehouse) int64 { return w.ID }),
		"name":    field(nonNullString, func(w *backends.Warehouse) interface{} { return w.Name }),
		"address": field(graphql.String, func(w *backends.Warehouse) interface{} { return w.Address }),
		"store": b.storeField(func(p graphql.ResolveParams) (int64, bool) {
			w, ok := p.Source.(*backends.Warehouse)
			if !ok {
				return 0, false
			}
			return w.StoreID, true
		}),
	})

	b.invoice = b.object("Invoice", graphql.Fields{
		"id":       idField(identifier.Billing, identifier.Invoice, func(i *backends.Invoice) int64 { return i.ID }),
		"amount":   field(nonNullFloat, func(i *backends.Invoice) interface{} { return money(i.Amount) }),
		"currency": field(nonNullString, func(i *backends.Invoice) interface{} { return i.Currency }),
		"status":   field(nonNullString, func(i *backends.Invoice) interface{} { return i.Status }),
		"order": &graphql.Field{
			Type: b.order,
			Resolve: b.r.resolve(func(p graphql.ResolveParams) (interface{}, error) {
				i, ok := p.Source.(*backends.Invoice)
				if !ok {
					return nil, nil
				}
				return b.r.order(p.Context, i.OrderID)
			}),
		},
	})

	b.currencyRate = graphql.NewObject(graphql.ObjectConfig{
		Name: "CurrencyRate",
		Fields: graphql.Fields{
			"from": field(nonNullString, func(r rateRow) interface{} { return r.From }),
			"to":   field(nonNullString, func(r rateRow) interface{} { return r.To }),
			"rate": field(nonNullFloat, func(r rateRow) interface{} { return money(r.Rate) }),
		},
	})

	// There is a single exchange table, so its raw id is always 0.
	b.currencyExchange = b.object("CurrencyExchange", graphql.Fields{
		"id": idField(identifier.Stores, identifier.CurrencyExchange, func(cache.RateTable) int64 { return currencyExchangeID }),
		"rates": field(graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(b.currencyRate))),
			func(t cache.RateTable) interface{} { return rateRows(t) }),
	})
}

// connectionType builds the Connection and Edge objects for nodes of type T.
func connectionType[T any](name string, node *graphql.Object, pageInfo *graphql.Object) *graphql.Object {
	edge := graphql.NewObject(graphql.ObjectConfig{
		Name: name + "Edge",
		Fields: graphql.Fields{
			"cursor": field(nonNullString, func(e pagination.Edge[T]) interface{} { return e.Cursor }),
			"node":   field(graphql.NewNonNull(node), func(e pagination.Edge[T]) interface{} { return e.Node }),
		},
	})

	return graphql.NewObject(graphql.ObjectConfig{
		Name: name + "Connection",
		Fields: graphql.Fields{
			"edges": field(graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(edge))),
				func(c pagination.Connection[T, pagination.PageInfo]) interface{} { return c.Edges }),
			"nodes": field(graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(node))),
				func(c pagination.Connection[T, pagination.PageInfo]) interface{} { return c.Nodes() }),
			"pageInfo": field(graphql.NewNonNull(pageInfo),
				func(c pagination.Connection[T, pagination.PageInfo]) interface{} { return c.PageInfo }),
		},
	})
}

var pageArgs = graphql.FieldConfigArgument{
	"first": &graphql.ArgumentConfig{Type: graphql.Int},
	"after": &graphql.ArgumentConfig{Type: graphql.String},
}

var idArg = graphql.FieldConfigArgument{
	"id": &graphql.ArgumentConfig{Type: nonNullID},
}

func (b *schemaBuilder) query() *graphql.Object {
	r := b.r
	byID := func(s identifier.Service, m identifier.Model, fetch func(ctx context.Context, id int64) (interface{}, error)) graphql.FieldResolveFn {
		return r.resolve(func(p graphql.ResolveParams) (interface{}, error) {
			id, err := decodeID(p.Args["id"], s, m)
			if err != nil {
				return nil, err
			}
			return fetch(p.Context, id)
		})
	}

	return graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"apiVersion": &graphql.Field{
				Type: nonNullString,
				Resolve: func(graphql.ResolveParams) (interface{}, error) {
					return APIVersion, nil
				},
			},
			"node": &graphql.Field{
				Type: b.node,
				Args: idArg,
				Resolve: r.resolve(func(p graphql.ResolveParams) (interface{}, error) {
					raw, _ := p.Args["id"].(string)
					return r.node(p.Context, raw)
				}),
			},
			"me": &graphql.Field{
				Type: b.user,
				Resolve: r.resolve(func(p graphql.ResolveParams) (interface{}, error) {
					return nullable(r.backend.Me(p.Context))
				}),
			},
			"store": &graphql.Field{
				Type: b.store,
				Args: idArg,
				Resolve: byID(identifier.Stores, identifier.Store, func(ctx context.Context, id int64) (interface{}, error) {
					return nullable(r.backend.Store(ctx, id))
				}),
			},
			"stores": &graphql.Field{
				Type: graphql.NewNonNull(b.storeConnection),
				Args: pageArgs,
				Resolve: r.resolve(func(p graphql.ResolveParams) (interface{}, error) {
					return r.stores(p.Context, r.pageRequest(p.Args))
				}),
			},
			"baseProduct": &graphql.Field{
				Type: b.baseProduct,
				Args: idArg,
				Resolve: byID(identifier.Stores, identifier.BaseProduct, func(ctx context.Context, id int64) (interface{}, error) {
					return nullable(r.backend.BaseProduct(ctx, id))
				}),
			},
			"cart": &graphql.Field{
				Type: b.cart,
				Resolve: r.resolve(func(p graphql.ResolveParams) (interface{}, error) {
					return r.cart(p.Context)
				}),
			},
			"order": &graphql.Field{
				Type:    b.order,
				Args:    idArg,
				Resolve: byID(identifier.Orders, identifier.Order, r.order),
			},
			"orders": &graphql.Field{
				Type: graphql.NewNonNull(b.orderConnection),
				Args: pageArgs,
				Resolve: r.resolve(func(p graphql.ResolveParams) (interface{}, error) {
					return r.orders(p.Context, r.pageRequest(p.Args))
				}),
			},
			"currencyExchange": &graphql.Field{
				Type: graphql.NewNonNull(b.currencyExchange),
				Resolve: r.resolve(func(p graphql.ResolveParams) (interface{}, error) {
					return r.backend.Rates(p.Context)
				}),
			},
		},
	})
}

func (b *schemaBuilder) mutation() *graphql.Object {
	r := b.r
	input := func(name string, fields graphql.InputObjectConfigFieldMap) graphql.FieldConfigArgument {
		return graphql.FieldConfigArgument{
			"input": &graphql.ArgumentConfig{
				Type: graphql.NewNonNull(graphql.NewInputObject(graphql.InputObjectConfig{
					Name:   name,
					Fields: fields,
				})),
			},
		}
	}
	withInput := func(fn func(ctx context.Context, in map[string]interface{}) (interface{}, error)) graphql.FieldResolveFn {
		return r.resolve(func(p graphql.ResolveParams) (interface{}, error) {
			in, _ := p.Args["input"].(map[string]interface{})
			return fn(p.Context, in)
		})
	}

	return graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"applyCouponToCart": &graphql.Field{
				Type: b.cartProduct,
				Args: input("ApplyCouponToCartInput", graphql.InputObjectConfigFieldMap{
					"cartProductId": &graphql.InputObjectFieldConfig{Type: nonNullID},
					"couponId":      &graphql.InputObjectFieldConfig{Type: nonNullID},
				}),
				Resolve: withInput(r.applyCoupon),
			},
			"setCartLineSelection": &graphql.Field{
				Type: b.cartProduct,
				Args: input("SetCartLineSelectionInput", graphql.InputObjectConfigFieldMap{
					"cartProductId": &graphql.InputObjectFieldConfig{Type: nonNullID},
					"selected":      &graphql.InputObjectFieldConfig{Type: nonNullBool},
				}),
				Resolve: withInput(r.setSelection),
			},
		},
	})
}
