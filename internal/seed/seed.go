// Package seed loads the demo catalog, accounts and historical orders.
package seed

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log"

	"gopkg.in/yaml.v3"

	"github.com/tecnokaijin/storefront/internal/models"
	"github.com/tecnokaijin/storefront/internal/services"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Catalog is the seed file layout
type Catalog struct {
	Users    []UserSeed    `yaml:"users"`
	Products []ProductSeed `yaml:"products"`
	Orders   []OrderSeed   `yaml:"orders"`
}

type UserSeed struct {
	Name     string      `yaml:"name"`
	Email    string      `yaml:"email"`
	Password string      `yaml:"password"`
	Role     models.Role `yaml:"role"`
}

type ProductSeed struct {
	Name        string `yaml:"name"`
	Price       int64  `yaml:"price"`
	Category    string `yaml:"category"`
	Image       string `yaml:"image"`
	Stock       int    `yaml:"stock"`
	Description string `yaml:"description"`
	Specs       string `yaml:"specs"`
}

type OrderSeed struct {
	User            string                 `yaml:"user"`
	Status          models.OrderStatus     `yaml:"status"`
	PaymentMethod   models.PaymentMethod   `yaml:"payment_method"`
	ShippingAddress models.ShippingAddress `yaml:"shipping_address"`
	Items           []struct {
		Product  string `yaml:"product"`
		Quantity int    `yaml:"quantity"`
	} `yaml:"items"`
}

// Input converts the seed into a catalog product input
func (p ProductSeed) Input() models.ProductInput {
	return models.ProductInput{
		Name:        p.Name,
		Price:       models.FlexInt(p.Price),
		Category:    p.Category,
		Image:       p.Image,
		Stock:       models.FlexInt(p.Stock),
		Description: p.Description,
		Specs:       p.Specs,
	}
}

// ParseCatalog decodes a seed file
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse seed catalog: %w", err)
	}
	return &c, nil
}

// DefaultCatalog returns the embedded demo data
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// Seeder writes a catalog through the services so every rule applies to it
type Seeder struct {
	users    *services.UserService
	products *services.ProductService
	orders   *services.OrderService
}

func NewSeeder(us *services.UserService, ps *services.ProductService, os *services.OrderService) *Seeder {
	return &Seeder{users: us, products: ps, orders: os}
}

// Run loads c unless the store already holds a catalog. admin advances the
// historical orders to their recorded status.
func (s *Seeder) Run(ctx context.Context, c *Catalog, admin *models.User) error {
	existing, err := s.products.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count products: %w", err)
	}
	if existing > 0 {
		log.Printf("[SEED] Catalog already has %d products, skipping", existing)
		return nil
	}

	for _, u := range c.Users {
		_, err := s.users.FindByEmail(ctx, u.Email)
		if err == nil {
			continue
		}
		if !errors.Is(err, models.ErrUserNotFound) {
			return err
		}
		if _, err := s.users.CreateUser(ctx, u.Name, u.Email, u.Password, u.Role); err != nil {
			return fmt.Errorf("failed to seed user %s: %w", u.Email, err)
		}
	}

	byName := make(map[string]*models.Product, len(c.Products))
	for _, p := range c.Products {
		created, err := s.products.CreateProduct(ctx, p.Input())
		if err != nil {
			return fmt.Errorf("failed to seed product %q: %w", p.Name, err)
		}
		byName[created.Name] = created
	}

	for i, o := range c.Orders {
		if err := s.seedOrder(ctx, o, byName, admin); err != nil {
			return fmt.Errorf("failed to seed order %d: %w", i+1, err)
		}
	}

	log.Printf("[SEED] Loaded %d users, %d products, %d orders", len(c.Users), len(c.Products), len(c.Orders))
	return nil
}

func (s *Seeder) seedOrder(ctx context.Context, o OrderSeed, byName map[string]*models.Product, admin *models.User) error {
	user, err := s.users.FindByEmail(ctx, o.User)
	if err != nil {
		return err
	}

	snapshot := make([]models.CartItem, 0, len(o.Items))
	for _, item := range o.Items {
		p, ok := byName[item.Product]
		if !ok {
			return fmt.Errorf("unknown product %q", item.Product)
		}
		line := models.SnapshotOf(*p)
		line.Quantity = item.Quantity
		snapshot = append(snapshot, line)
	}

	order, err := s.orders.CreateOrder(ctx, user.ID, snapshot, o.ShippingAddress, o.PaymentMethod)
	if err != nil {
		return err
	}
	for _, next := range pathTo(o.Status) {
		if _, err := s.orders.UpdateOrderStatus(ctx, admin, order.ID, next); err != nil {
			return err
		}
	}
	return nil
}

// pathTo lists the transitions that take a pending order to target
func pathTo(target models.OrderStatus) []models.OrderStatus {
	switch target {
	case models.StatusProcessing:
		return []models.OrderStatus{models.StatusProcessing}
	case models.StatusShipped:
		return []models.OrderStatus{models.StatusProcessing, models.StatusShipped}
	case models.StatusDelivered:
		return []models.OrderStatus{models.StatusProcessing, models.StatusShipped, models.StatusDelivered}
	case models.StatusCancelled:
		return []models.OrderStatus{models.StatusCancelled}
	default:
		return nil
	}
}
