package backends

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/yashrajoria/graphql-gateway/pricing"
)

type User struct {
	ID         int64  `json:"id"`
	Email      string `json:"email"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	IsVerified bool   `json:"is_verified"`
}

type Store struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Currency    string `json:"currency"`
	OwnerID     int64  `json:"owner_id"`
}

type BaseProduct struct {
	ID          int64           `json:"id"`
	StoreID     int64           `json:"store_id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`
	CategoryID  *int64          `json:"category_id,omitempty"`
}

// Cart is the caller's cart, identified by user or session on the backend.
type Cart struct {
	ID       int64              `json:"id"`
	Currency string             `json:"currency"`
	Lines    []pricing.CartLine `json:"products"`
}

type Order struct {
	ID        int64              `json:"id"`
	UserID    int64              `json:"user_id"`
	Status    string             `json:"status"`
	Currency  string             `json:"currency"`
	CreatedAt time.Time          `json:"created_at"`
	Lines     []pricing.CartLine `json:"products"`
}

type Warehouse struct {
	ID      int64  `json:"id"`
	StoreID int64  `json:"store_id"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

type Invoice struct {
	ID       int64           `json:"id"`
	OrderID  int64           `json:"order_id"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Status   string          `json:"status"`
}

// Page is a list response of the offset-paginated endpoints.
type Page[T any] struct {
	Items      []T  `json:"items"`
	TotalCount *int `json:"total_count,omitempty"`
}

// CartLinePatch is a partial update of one cart line.
type CartLinePatch struct {
	CouponID *int64 `json:"coupon_id,omitempty"`
	Selected *bool  `json:"selected,omitempty"`
}

// TokenAction is a one-time link action the users backend applies.
type TokenAction string

const (
	VerifyEmail   TokenAction = "verify-email-apply"
	ResetPassword TokenAction = "reset-password-apply"
	AddDevice     TokenAction = "add-device-apply"
)
