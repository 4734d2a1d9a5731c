package models

import (
	"errors"
	"fmt"
)

// Errors returned by order placement. EmptyCart is rejected before the
// store is touched; the product errors are only authoritative when
// detected under the row lock inside the placement transaction.
var (
	ErrEmptyCart     = errors.New("cart is empty")
	ErrOrderNotFound = errors.New("order not found")
)

// ProductNotFoundError reports a cart line whose product no longer
// exists in the catalog.
type ProductNotFoundError struct {
	ProductID   int64
	ProductName string
}

func (e *ProductNotFoundError) Error() string {
	if e.ProductName != "" {
		return fmt.Sprintf("product not found: %s", e.ProductName)
	}
	return fmt.Sprintf("product not found: %d", e.ProductID)
}

// InsufficientStockError reports a cart line requesting more units than
// the locked stock row holds.
type InsufficientStockError struct {
	ProductID   int64
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("not enough stock for %s: available=%d, requested=%d",
		e.ProductName, e.Available, e.Requested)
}
