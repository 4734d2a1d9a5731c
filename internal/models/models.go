package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a product in the catalog. Quantity is the stock
// currently available for purchase.
type Product struct {
	ID        int64           `db:"id" json:"id"`
	Name      string          `db:"product_name" json:"product_name"`
	Category  *string         `db:"category" json:"category,omitempty"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Quantity  int             `db:"quantity" json:"quantity"`
	Image     *string         `db:"image" json:"image,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// CartLine is one product entry in a user's cart. Name, category, price
// and image are cached from the catalog at the time the line was added.
type CartLine struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Category    *string         `json:"category,omitempty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	Image       *string         `json:"image,omitempty"`
}

// Order is the persisted header of a completed purchase.
type Order struct {
	ID             int64           `db:"id" json:"id"`
	UserID         int64           `db:"user_id" json:"user_id"`
	Total          decimal.Decimal `db:"total" json:"total"`
	Address        *string         `db:"address" json:"address,omitempty"`
	IdempotencyKey *string         `db:"idempotency_key" json:"idempotency_key,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// OrderItem is an immutable copy of one purchased product's details at
// order time. Later catalog edits never touch these rows.
type OrderItem struct {
	ID          int64           `db:"id" json:"id"`
	OrderID     int64           `db:"order_id" json:"order_id"`
	ProductID   int64           `db:"product_id" json:"product_id"`
	ProductName string          `db:"product_name" json:"product_name"`
	Category    *string         `db:"category" json:"category,omitempty"`
	Price       decimal.Decimal `db:"price" json:"price"`
	Quantity    int             `db:"quantity" json:"quantity"`
	Image       *string         `db:"image" json:"image,omitempty"`
}

// PaymentLabel is the cosmetic payment info shown on an invoice. It is
// never used to charge anyone and stores at most the last 4 digits.
type PaymentLabel struct {
	Method    string  `json:"method"`
	CardName  *string `json:"card_name,omitempty"`
	CardLast4 *string `json:"card_last4,omitempty"`
}

// Payment method labels
const (
	PaymentMethodCard = "Card"
	PaymentMethodCash = "Cash on Delivery"
)

// User roles, as asserted by the authenticating gateway.
const (
	RoleAdmin    = "admin"
	RoleCustomer = "customer"
)
