package cart

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/placement-engine/internal/catalog"
	"github.com/danielpatrickdp/placement-engine/internal/logging"
	"github.com/danielpatrickdp/placement-engine/internal/scheduler"
)

// #region cart
// Cart holds the items picked during a session. Like the placement
// session it is driven from a single loop; payment results arrive
// through the shared Async.
type Cart struct {
	items    []Item
	state    CheckoutState
	payments PaymentProcessor
	async    *scheduler.Async
	log      *logging.Logger
	// epoch changes on Reset; payment results from an older epoch are dropped.
	epoch int
}

// New creates an empty cart.
func New(payments PaymentProcessor, async *scheduler.Async, log *logging.Logger) *Cart {
	if log == nil {
		log = logging.Nop()
	}
	return &Cart{payments: payments, async: async, log: log.With("component", "cart")}
}

// #endregion cart

// #region add-remove
// Add puts one unit of entry in the cart. Out-of-stock entries, or more
// units than are in stock, are rejected with ErrOutOfStock.
func (c *Cart) Add(entry catalog.Entry) error {
	for i := range c.items {
		if c.items[i].Entry.ID != entry.ID {
			continue
		}
		if c.items[i].Quantity >= entry.Stock {
			return fmt.Errorf("add %s: %w", entry.ID, ErrOutOfStock)
		}
		c.items[i].Quantity++
		return nil
	}
	if !entry.InStock() {
		return fmt.Errorf("add %s: %w", entry.ID, ErrOutOfStock)
	}
	c.items = append(c.items, Item{Entry: entry, Quantity: 1})
	return nil
}

// Remove drops one unit of id, and the line when it reaches zero.
func (c *Cart) Remove(id string) error {
	for i := range c.items {
		if c.items[i].Entry.ID != id {
			continue
		}
		c.items[i].Quantity--
		if c.items[i].Quantity <= 0 {
			c.items = append(c.items[:i], c.items[i+1:]...)
		}
		return nil
	}
	return fmt.Errorf("remove %s: %w", id, ErrNotInCart)
}

// Clear empties the cart.
func (c *Cart) Clear() { c.items = nil }

// Reset empties the cart, makes checkout available again and detaches
// any charge still in flight. Its result is logged and otherwise ignored.
func (c *Cart) Reset() {
	c.items = nil
	c.state = CheckoutReady
	c.epoch++
}

// #endregion add-remove

// #region totals
// Items returns a copy of the cart lines.
func (c *Cart) Items() []Item {
	return append([]Item(nil), c.items...)
}

// Count returns the number of units in the cart.
func (c *Cart) Count() int {
	n := 0
	for _, it := range c.items {
		n += it.Quantity
	}
	return n
}

// Subtotal is the sum of discounted prices.
func (c *Cart) Subtotal() float64 {
	var sum float64
	for _, it := range c.items {
		sum += it.Entry.SalePrice() * float64(it.Quantity)
	}
	return sum
}

// Shipping charges each line's shipping cost once unless it ships free.
func (c *Cart) Shipping() float64 {
	var sum float64
	for _, it := range c.items {
		if !it.Entry.Shipping.Free {
			sum += it.Entry.Shipping.Cost
		}
	}
	return sum
}

// Total is Subtotal plus Shipping.
func (c *Cart) Total() float64 {
	return c.Subtotal() + c.Shipping()
}

// State returns the checkout affordance.
func (c *Cart) State() CheckoutState { return c.state }

// #endregion totals

// #region checkout
// Checkout charges the cart without blocking. onDone runs on the loop once
// the processor answers. On success the cart is emptied; on failure the
// items are kept and the affordance goes back to ready.
func (c *Cart) Checkout(onDone func(Result)) error {
	if c.state == CheckoutProcessing {
		return ErrCheckoutBusy
	}
	if len(c.items) == 0 {
		return ErrEmptyCart
	}
	order := Order{
		ID:       uuid.NewString(),
		Items:    c.Items(),
		Subtotal: c.Subtotal(),
		Shipping: c.Shipping(),
		Total:    c.Total(),
	}
	c.state = CheckoutProcessing
	epoch := c.epoch
	c.log.Info("checkout started", "order_id", order.ID, "total", order.Total, "units", c.Count())

	c.async.Go(func(ctx context.Context) scheduler.Done {
		receipt, err := c.payments.Charge(ctx, order)
		return func(stale bool) {
			if stale || epoch != c.epoch {
				c.log.Warn("payment result dropped after cart reset", "order_id", order.ID, "error", err)
				return
			}
			c.state = CheckoutReady
			if err != nil {
				c.log.Warn("payment failed", "order_id", order.ID, "error", err)
				err = fmt.Errorf("payment: %w", err)
			} else {
				c.log.Info("payment confirmed", "order_id", order.ID, "reference", receipt.Reference)
				c.items = nil
			}
			if onDone != nil {
				onDone(Result{Order: order, Receipt: receipt, Err: err})
			}
		}
	})
	return nil
}

// #endregion checkout
