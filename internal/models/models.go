package models

import (
	"fmt"
	"strings"
	"time"
)

// Role is the access level of a user account
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// PaymentMethod is how a customer pays for an order
type PaymentMethod string

const (
	PaymentWebpay   PaymentMethod = "webpay"
	PaymentTransfer PaymentMethod = "transfer"
)

// Valid reports whether p is an accepted payment method
func (p PaymentMethod) Valid() bool {
	return p == PaymentWebpay || p == PaymentTransfer
}

// User represents a user account
type User struct {
	ID           int64     `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	Name         string    `json:"name" db:"name"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Role         Role      `json:"role" db:"role"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// IsAdmin reports whether the user may perform administrative actions
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// NormalizeEmail lowercases and trims an email so lookups are case-insensitive
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Product represents a product in the catalog
type Product struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Price       int64     `json:"price" db:"price"`
	Category    string    `json:"category" db:"category"`
	Image       string    `json:"image" db:"image"`
	Stock       int       `json:"stock" db:"stock"`
	Description string    `json:"description" db:"description"`
	Specs       string    `json:"specs" db:"specs"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// CartItem is a product snapshot plus the quantity the customer wants.
// Price and stock are the values seen when the product was added.
type CartItem struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Image     string `json:"image,omitempty"`
	Stock     int    `json:"stock"`
	Specs     string `json:"specs,omitempty"`
	Quantity  int    `json:"quantity"`
}

// Subtotal returns price × quantity
func (i CartItem) Subtotal() int64 {
	return i.Price * int64(i.Quantity)
}

// SnapshotOf captures the cart-relevant fields of a product
func SnapshotOf(p Product) CartItem {
	return CartItem{
		ProductID: p.ID,
		Name:      p.Name,
		Price:     p.Price,
		Image:     p.Image,
		Stock:     p.Stock,
		Specs:     p.Specs,
	}
}

// UserSummary is the denormalized customer data stored on an order
type UserSummary struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ShippingAddress is where an order is delivered
type ShippingAddress struct {
	FullName string `json:"full_name" yaml:"full_name"`
	Address  string `json:"address" yaml:"address"`
	City     string `json:"city" yaml:"city"`
	Region   string `json:"region" yaml:"region"`
	Phone    string `json:"phone" yaml:"phone"`
}

// OrderItem represents a line of an order with its price frozen at creation
type OrderItem struct {
	ProductID   int64  `json:"product_id" db:"product_id"`
	ProductName string `json:"product_name" db:"product_name"`
	Quantity    int    `json:"quantity" db:"quantity"`
	UnitPrice   int64  `json:"unit_price" db:"unit_price"`
}

// Amount returns unit price × quantity
func (i OrderItem) Amount() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

// Order represents a placed order
type Order struct {
	ID              int64           `json:"id" db:"id"`
	OrderNumber     string          `json:"order_number" db:"-"`
	UserID          int64           `json:"user_id" db:"user_id"`
	User            UserSummary     `json:"user" db:"-"`
	Items           []OrderItem     `json:"items" db:"-"`
	Total           int64           `json:"total" db:"total"`
	ShippingAddress ShippingAddress `json:"shipping_address" db:"-"`
	PaymentMethod   PaymentMethod   `json:"payment_method" db:"payment_method"`
	Status          OrderStatus     `json:"status" db:"status"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// FormatOrderNumber derives the human readable order number from its ID
func FormatOrderNumber(id int64) string {
	return fmt.Sprintf("ORD-%03d", id)
}

// SumItems adds up the line amounts of an order
func SumItems(items []OrderItem) int64 {
	var total int64
	for _, item := range items {
		total += item.Amount()
	}
	return total
}

// AuthResponse is returned by register and login
type AuthResponse struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}
