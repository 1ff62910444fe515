package cart

import (
	"context"
	"errors"

	"github.com/danielpatrickdp/placement-engine/internal/catalog"
)

var (
	ErrOutOfStock   = errors.New("out of stock")
	ErrNotInCart    = errors.New("not in cart")
	ErrEmptyCart    = errors.New("cart is empty")
	ErrCheckoutBusy = errors.New("checkout already in progress")
)

// #region checkout-state
// CheckoutState is the checkout affordance shown to the user.
type CheckoutState int

const (
	CheckoutReady CheckoutState = iota
	CheckoutProcessing
)

func (s CheckoutState) String() string {
	if s == CheckoutProcessing {
		return "processing"
	}
	return "ready"
}

// #endregion checkout-state

// #region order
// Item is one cart line.
type Item struct {
	Entry    catalog.Entry
	Quantity int
}

// Order is what gets handed to the payment processor.
type Order struct {
	ID       string
	Items    []Item
	Subtotal float64
	Shipping float64
	Total    float64
}

// Receipt confirms a successful charge.
type Receipt struct {
	OrderID   string
	Reference string
}

// Result is reported once per checkout attempt. Err is nil on success.
type Result struct {
	Order   Order
	Receipt Receipt
	Err     error
}

// PaymentProcessor charges an order. Calls may be slow and may fail.
type PaymentProcessor interface {
	Charge(ctx context.Context, order Order) (Receipt, error)
}

// #endregion order
