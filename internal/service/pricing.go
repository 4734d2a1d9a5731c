package service

import (
	"shop-service/internal/models"

	"github.com/shopspring/decimal"
)

// Fixed checkout surcharge rates.
var (
	GSTRate      = decimal.NewFromFloat(0.09)
	DeliveryRate = decimal.NewFromFloat(0.15)
)

// Quote is the price breakdown for a cart.
type Quote struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	GST         decimal.Decimal `json:"gst"`
	DeliveryFee decimal.Decimal `json:"delivery_fee"`
	Total       decimal.Decimal `json:"total"`
}

// PriceCart computes the order total for a set of cart lines.
//
// GST and the delivery fee are each rounded to 2 decimal places before
// the final sum. Rounding the intermediates (not only the final total)
// can shift the last cent, and invoices already issued by the legacy
// system depend on this exact ordering.
func PriceCart(lines []models.CartLine) Quote {
	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}

	gst := subtotal.Mul(GSTRate).Round(2)
	deliveryFee := subtotal.Mul(DeliveryRate).Round(2)
	total := subtotal.Add(gst).Add(deliveryFee).Round(2)

	return Quote{
		Subtotal:    subtotal,
		GST:         gst,
		DeliveryFee: deliveryFee,
		Total:       total,
	}
}
