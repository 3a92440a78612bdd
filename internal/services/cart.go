package services

import (
	"context"
	"fmt"

	"github.com/tecnokaijin/storefront/internal/cart"
	"github.com/tecnokaijin/storefront/internal/models"
	"github.com/tecnokaijin/storefront/internal/money"
	"github.com/tecnokaijin/storefront/internal/repository"
)

// CartQuote is a submitted cart priced against the catalog
type CartQuote struct {
	Items          []models.CartItem `json:"items"`
	Count          int               `json:"count"`
	Total          int64             `json:"total"`
	FormattedTotal string            `json:"formatted_total"`
}

// CartService rebuilds carts submitted by clients
type CartService struct {
	products repository.ProductRepository
}

// NewCartService creates a new cart service
func NewCartService(products repository.ProductRepository) *CartService {
	return &CartService{products: products}
}

// Rebuild replays submitted lines into a fresh cart. Each line is checked
// against the current product stock; a positive submitted price replaces the
// catalog price so the customer pays what they saw when adding the item.
func (s *CartService) Rebuild(ctx context.Context, lines []models.OrderLineInput) (*cart.Cart, error) {
	c, err := cart.New(cart.NewMemoryStore())
	if err != nil {
		return nil, err
	}
	for i, line := range lines {
		if line.Quantity < 1 {
			return nil, models.Invalid(fmt.Sprintf("items[%d].quantity", i), "must be at least 1")
		}
		p, err := s.products.Get(ctx, line.ProductID)
		if err != nil {
			return nil, err
		}
		snap := models.SnapshotOf(*p)
		if line.Price > 0 {
			snap.Price = line.Price
		}
		if err := c.Add(snap, line.Quantity); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Quote prices a submitted cart without placing an order
func (s *CartService) Quote(ctx context.Context, lines []models.OrderLineInput) (*CartQuote, error) {
	c, err := s.Rebuild(ctx, lines)
	if err != nil {
		return nil, err
	}
	items := c.Items()
	if items == nil {
		items = []models.CartItem{}
	}
	total := c.Total()
	return &CartQuote{
		Items:          items,
		Count:          c.Count(),
		Total:          total,
		FormattedTotal: money.Format(total),
	}, nil
}
