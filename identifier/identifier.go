// Package identifier implements the opaque global object id that addresses
// any entity of any backend through the public GraphQL surface.
//
// An id is "<service>_<model>_<raw id>" encoded with standard base64. Clients
// treat it as opaque and hand it back unmodified.
package identifier

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Delimiter joins the three segments before encoding. Model names are
// CamelCase and service names lowercase, so neither ever contains it.
const Delimiter = "_"

// Service is the backend that owns an entity.
type Service string

const (
	Users         Service = "users"
	Stores        Service = "stores"
	Orders        Service = "orders"
	Billing       Service = "billing"
	Delivery      Service = "delivery"
	Warehouses    Service = "warehouses"
	Notifications Service = "notifications"
	Saga          Service = "saga"
)

// Model is the entity type inside a service.
type Model string

const (
	User                Model = "User"
	UserDeliveryAddress Model = "UserDeliveryAddress"
	JWT                 Model = "JWT"

	Store            Model = "Store"
	Product          Model = "Product"
	BaseProduct      Model = "BaseProduct"
	Category         Model = "Category"
	Attribute        Model = "Attribute"
	Coupon           Model = "Coupon"
	Cart             Model = "Cart"
	CartProduct      Model = "CartProduct"
	CartStore        Model = "CartStore"
	CurrencyExchange Model = "CurrencyExchange"

	Order Model = "Order"

	Invoice          Model = "Invoice"
	MerchantBilling  Model = "MerchantBilling"
	PaymentIntent    Model = "PaymentIntent"
	BillingCustomer  Model = "BillingCustomer"
	InternationalAcc Model = "InternationalBillingInfo"

	Company        Model = "Company"
	Package        Model = "Package"
	CompanyPackage Model = "CompanyPackage"
	Country        Model = "Country"
	ShippingRate   Model = "ShippingRate"

	Warehouse Model = "Warehouse"
	Stock     Model = "Stock"

	EmailTemplate Model = "EmailTemplate"

	CreateStoreOperation Model = "CreateStoreOperation"
)

var serviceModels = map[Service][]Model{
	Users:         {User, UserDeliveryAddress, JWT},
	Stores:        {Store, Product, BaseProduct, Category, Attribute, Coupon, Cart, CartProduct, CartStore, CurrencyExchange},
	Orders:        {Order},
	Billing:       {Invoice, MerchantBilling, PaymentIntent, BillingCustomer, InternationalAcc},
	Delivery:      {Company, Package, CompanyPackage, Country, ShippingRate},
	Warehouses:    {Warehouse, Stock},
	Notifications: {EmailTemplate},
	Saga:          {CreateStoreOperation},
}

// Services lists every known service in a stable order.
func Services() []Service {
	return []Service{Users, Stores, Orders, Billing, Delivery, Warehouses, Notifications, Saga}
}

// Models returns the models owned by s, nil when s is unknown.
func Models(s Service) []Model {
	return serviceModels[s]
}

// Owns reports whether model m belongs to service s.
func Owns(s Service, m Model) bool {
	for _, known := range serviceModels[s] {
		if known == m {
			return true
		}
	}
	return false
}

// Decode failures. Every ParseError wraps exactly one of them.
var (
	ErrInvalidBase64  = errors.New("id is not valid base64")
	ErrInvalidUTF8    = errors.New("decoded id is not valid utf-8")
	ErrSegmentCount   = errors.New("id must have three non-empty segments")
	ErrUnknownService = errors.New("unknown service")
	ErrUnknownModel   = errors.New("unknown model for service")
	ErrInvalidRawID   = errors.New("raw id is not an integer")
)

// ParseError reports why an opaque id could not be decoded.
type ParseError struct {
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse id %q: %v", e.Input, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// OpaqueID is a decoded global id.
type OpaqueID struct {
	Service Service
	Model   Model
	RawID   int64
}

// String encodes the id.
func (id OpaqueID) String() string {
	return Encode(id.Service, id.Model, id.RawID)
}

// Encode returns the opaque string for (service, model, raw id).
func Encode(s Service, m Model, rawID int64) string {
	plain := strings.Join([]string{string(s), string(m), strconv.FormatInt(rawID, 10)}, Delimiter)
	return base64.StdEncoding.EncodeToString([]byte(plain))
}

// Decode reverses Encode.
func Decode(input string) (OpaqueID, error) {
	raw, err := base64.StdEncoding.DecodeString(input)
	if err != nil {
		return OpaqueID{}, &ParseError{Input: input, Err: ErrInvalidBase64}
	}
	if !utf8.Valid(raw) {
		return OpaqueID{}, &ParseError{Input: input, Err: ErrInvalidUTF8}
	}

	segments := strings.Split(string(raw), Delimiter)
	if len(segments) != 3 {
		return OpaqueID{}, &ParseError{Input: input, Err: ErrSegmentCount}
	}
	for _, seg := range segments {
		if seg == "" {
			return OpaqueID{}, &ParseError{Input: input, Err: ErrSegmentCount}
		}
	}

	service := Service(segments[0])
	if _, ok := serviceModels[service]; !ok {
		return OpaqueID{}, &ParseError{Input: input, Err: ErrUnknownService}
	}
	model := Model(segments[1])
	if !Owns(service, model) {
		return OpaqueID{}, &ParseError{Input: input, Err: ErrUnknownModel}
	}
	rawID, err := strconv.ParseInt(segments[2], 10, 64)
	if err != nil {
		return OpaqueID{}, &ParseError{Input: input, Err: ErrInvalidRawID}
	}

	return OpaqueID{Service: service, Model: model, RawID: rawID}, nil
}

// DecodeAs decodes input and checks it addresses the expected model.
func DecodeAs(input string, s Service, m Model) (int64, error) {
	id, err := Decode(input)
	if err != nil {
		return 0, err
	}
	if id.Service != s || id.Model != m {
		return 0, &ParseError{Input: input, Err: fmt.Errorf("%w: expected %s %s, got %s %s", ErrUnknownModel, s, m, id.Service, id.Model)}
	}
	return id.RawID, nil
}
