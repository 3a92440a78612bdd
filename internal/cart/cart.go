// Package cart holds a customer's shopping cart.
//
// A Cart has a single writer. Every mutation is written through to its
// Store before the in-memory state changes, so a failed save leaves the
// cart exactly as it was.
package cart

import (
	"fmt"
	"math"

	"github.com/tecnokaijin/storefront/internal/models"
)

// Store is the durable slot a cart is mirrored to
type Store interface {
	Load() ([]models.CartItem, error)
	Save(items []models.CartItem) error
}

// Cart is an ordered collection of cart items keyed by product ID
type Cart struct {
	items []models.CartItem
	store Store
}

// New loads a cart from store
func New(store Store) (*Cart, error) {
	items, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	c := &Cart{store: store}
	for _, item := range items {
		if item.Quantity < 1 {
			continue
		}
		if i := c.indexOf(item.ProductID); i >= 0 {
			c.items[i].Quantity += item.Quantity
			continue
		}
		c.items = append(c.items, item)
	}
	return c, nil
}

// Add puts qty units of a product snapshot in the cart, merging with an
// existing entry for the same product. The resulting quantity may not
// exceed the snapshot's stock.
func (c *Cart) Add(snapshot models.CartItem, qty int) error {
	if qty < 1 {
		return models.Invalid("quantity", "must be at least 1")
	}
	next := c.clone()
	if i := c.indexOf(snapshot.ProductID); i >= 0 {
		held := next[i].Quantity
		if qty > snapshot.Stock-held {
			requested := held + qty
			if requested < held {
				requested = math.MaxInt
			}
			return &models.StockError{ProductID: snapshot.ProductID, Requested: requested, Available: snapshot.Stock}
		}
		next[i].Quantity = held + qty
		next[i].Stock = snapshot.Stock
	} else {
		if qty > snapshot.Stock {
			return &models.StockError{ProductID: snapshot.ProductID, Requested: qty, Available: snapshot.Stock}
		}
		snapshot.Quantity = qty
		next = append(next, snapshot)
	}
	return c.commit(next)
}

// Remove deletes the entry for productID, if any
func (c *Cart) Remove(productID int64) error {
	i := c.indexOf(productID)
	if i < 0 {
		return nil
	}
	next := c.clone()
	next = append(next[:i], next[i+1:]...)
	return c.commit(next)
}

// UpdateQuantity sets the quantity of an entry. A quantity of zero or less
// removes it.
func (c *Cart) UpdateQuantity(productID int64, qty int) error {
	if qty <= 0 {
		return c.Remove(productID)
	}
	i := c.indexOf(productID)
	if i < 0 {
		return fmt.Errorf("%w in cart: %d", models.ErrProductNotFound, productID)
	}
	if qty > c.items[i].Stock {
		return &models.StockError{ProductID: productID, Requested: qty, Available: c.items[i].Stock}
	}
	next := c.clone()
	next[i].Quantity = qty
	return c.commit(next)
}

// Clear empties the cart
func (c *Cart) Clear() error {
	return c.commit(nil)
}

// Total returns the sum of price × quantity over all entries
func (c *Cart) Total() int64 {
	var total int64
	for _, item := range c.items {
		total += item.Subtotal()
	}
	return total
}

// Count returns the number of units in the cart
func (c *Cart) Count() int {
	n := 0
	for _, item := range c.items {
		n += item.Quantity
	}
	return n
}

// Len returns the number of distinct products in the cart
func (c *Cart) Len() int {
	return len(c.items)
}

// Get returns the entry for productID
func (c *Cart) Get(productID int64) (models.CartItem, bool) {
	if i := c.indexOf(productID); i >= 0 {
		return c.items[i], true
	}
	return models.CartItem{}, false
}

// Items returns a copy of the entries in insertion order
func (c *Cart) Items() []models.CartItem {
	return c.clone()
}

// Snapshot returns the entries to hand over to checkout
func (c *Cart) Snapshot() []models.CartItem {
	return c.clone()
}

func (c *Cart) commit(next []models.CartItem) error {
	if err := c.store.Save(next); err != nil {
		return fmt.Errorf("failed to save cart: %w", err)
	}
	c.items = next
	return nil
}

func (c *Cart) clone() []models.CartItem {
	if len(c.items) == 0 {
		return nil
	}
	out := make([]models.CartItem, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Cart) indexOf(productID int64) int {
	for i, item := range c.items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}
