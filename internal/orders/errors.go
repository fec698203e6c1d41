package orders

import (
	"errors"

	"github.com/ariefcatur/go-crypto-shop/internal/inventory"
)

var (
	ErrEmptyOrder        = errors.New("order has no items")
	ErrInvalidQuantity   = errors.New("quantity must be greater than zero")
	ErrProductNotFound   = errors.New("product not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvoiceNotFound   = errors.New("invoice not found")
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrInvalidPrice      = errors.New("price must be zero or greater")

	// ErrInsufficientStock matches *inventory.InsufficientStockError via errors.Is.
	ErrInsufficientStock = inventory.ErrInsufficientStock
)

// IsValidation reports errors caused by bad caller input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrEmptyOrder) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrInvalidPrice)
}
