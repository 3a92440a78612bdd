package models

import (
	"bytes"
	"math"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
	"sync"
)

// MinPasswordLength is the shortest accepted password
const MinPasswordLength = 6

var (
	categoriesMu sync.RWMutex
	categories   = []string{"celulares", "notebooks", "tablets", "accesorios"}
)

// Categories returns the accepted product categories
func Categories() []string {
	categoriesMu.RLock()
	defer categoriesMu.RUnlock()
	out := make([]string, len(categories))
	copy(out, categories)
	return out
}

// RegisterCategory extends the accepted product categories
func RegisterCategory(name string) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || ValidCategory(name) {
		return
	}
	categoriesMu.Lock()
	categories = append(categories, name)
	categoriesMu.Unlock()
}

// ValidCategory reports whether name is an accepted category
func ValidCategory(name string) bool {
	categoriesMu.RLock()
	defer categoriesMu.RUnlock()
	for _, c := range categories {
		if c == name {
			return true
		}
	}
	return false
}

// FlexInt decodes from a JSON number or a numeric string.
// An empty string decodes as zero.
type FlexInt int64

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if string(data) == "null" {
		return nil
	}
	s := string(data)
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unquoted)
	}
	if s == "" {
		*f = 0
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*f = FlexInt(n)
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v != math.Trunc(v) {
		return Invalid("", "%s is not a whole number", s)
	}
	*f = FlexInt(v)
	return nil
}

// RegisterInput is the payload for creating an account
type RegisterInput struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Validate checks the registration rules
func (in RegisterInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Email) == "" || in.Password == "" || in.ConfirmPassword == "" {
		return &ValidationError{Message: "all fields are required"}
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(in.Email)); err != nil {
		return Invalid("email", "is not a valid address")
	}
	if in.Password != in.ConfirmPassword {
		return Invalid("confirm_password", "passwords do not match")
	}
	if len(in.Password) < MinPasswordLength {
		return Invalid("password", "must be at least %d characters", MinPasswordLength)
	}
	return nil
}

// LoginInput is the payload for authenticating
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks both credentials are present
func (in LoginInput) Validate() error {
	if strings.TrimSpace(in.Email) == "" || in.Password == "" {
		return &ValidationError{Message: "email and password are required"}
	}
	return nil
}

// UpdateUserInput is an administrative change to an account.
// Nil fields are left untouched.
type UpdateUserInput struct {
	Name     *string `json:"name"`
	Password *string `json:"password"`
	Role     *Role   `json:"role"`
}

// Validate checks the fields that were provided
func (in UpdateUserInput) Validate() error {
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return Invalid("name", "must not be empty")
	}
	if in.Password != nil && len(*in.Password) < MinPasswordLength {
		return Invalid("password", "must be at least %d characters", MinPasswordLength)
	}
	if in.Role != nil && !in.Role.Valid() {
		return Invalid("role", "unknown role %q", *in.Role)
	}
	return nil
}

// ProductInput is the payload for creating a product
type ProductInput struct {
	Name        string  `json:"name"`
	Price       FlexInt `json:"price"`
	Category    string  `json:"category"`
	Image       string  `json:"image"`
	Stock       FlexInt `json:"stock"`
	Description string  `json:"description"`
	Specs       string  `json:"specs"`
}

// Product converts the input into an unsaved product
func (in ProductInput) Product() Product {
	return Product{
		Name:        strings.TrimSpace(in.Name),
		Price:       int64(in.Price),
		Category:    strings.ToLower(strings.TrimSpace(in.Category)),
		Image:       strings.TrimSpace(in.Image),
		Stock:       int(in.Stock),
		Description: in.Description,
		Specs:       in.Specs,
	}
}

// ProductPatch is a full or partial product update.
// Nil fields keep their current value.
type ProductPatch struct {
	Name        *string  `json:"name"`
	Price       *FlexInt `json:"price"`
	Category    *string  `json:"category"`
	Image       *string  `json:"image"`
	Stock       *FlexInt `json:"stock"`
	Description *string  `json:"description"`
	Specs       *string  `json:"specs"`
}

// Apply returns p with the patch fields overwritten
func (in ProductPatch) Apply(p Product) Product {
	if in.Name != nil {
		p.Name = strings.TrimSpace(*in.Name)
	}
	if in.Price != nil {
		p.Price = int64(*in.Price)
	}
	if in.Category != nil {
		p.Category = strings.ToLower(strings.TrimSpace(*in.Category))
	}
	if in.Image != nil {
		p.Image = strings.TrimSpace(*in.Image)
	}
	if in.Stock != nil {
		p.Stock = int(*in.Stock)
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.Specs != nil {
		p.Specs = *in.Specs
	}
	return p
}

// ValidateProduct checks the catalog rules on a product
func ValidateProduct(p Product) error {
	if p.Name == "" {
		return Invalid("name", "is required")
	}
	if p.Price <= 0 {
		return Invalid("price", "must be a positive amount")
	}
	if p.Category == "" {
		return Invalid("category", "is required")
	}
	if !ValidCategory(p.Category) {
		return Invalid("category", "unknown category %q", p.Category)
	}
	if p.Image == "" {
		return Invalid("image", "is required")
	}
	if p.Stock < 0 {
		return Invalid("stock", "must not be negative")
	}
	return nil
}

// ProductFilter narrows a catalog listing
type ProductFilter struct {
	Category string
	Search   string
	MinPrice *int64
	MaxPrice *int64
}

// ParseProductFilter reads a filter from query parameters
func ParseProductFilter(q url.Values) (ProductFilter, error) {
	f := ProductFilter{
		Category: strings.ToLower(strings.TrimSpace(q.Get("category"))),
		Search:   strings.TrimSpace(q.Get("search")),
	}
	var err error
	if f.MinPrice, err = parsePrice(q, "minPrice"); err != nil {
		return ProductFilter{}, err
	}
	if f.MaxPrice, err = parsePrice(q, "maxPrice"); err != nil {
		return ProductFilter{}, err
	}
	return f, nil
}

func parsePrice(q url.Values, key string) (*int64, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, Invalid(key, "must be a whole number")
	}
	return &v, nil
}

// Match reports whether p satisfies every set criterion
func (f ProductFilter) Match(p Product) bool {
	if f.Category != "" && !strings.EqualFold(p.Category, f.Category) {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(p.Name), needle) &&
			!strings.Contains(strings.ToLower(p.Description), needle) {
			return false
		}
	}
	if f.MinPrice != nil && p.Price < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && p.Price > *f.MaxPrice {
		return false
	}
	return true
}

// Apply filters products, keeping their order
func (f ProductFilter) Apply(products []Product) []Product {
	out := make([]Product, 0, len(products))
	for _, p := range products {
		if f.Match(p) {
			out = append(out, p)
		}
	}
	return out
}

// OrderLineInput is one submitted cart line.
// Price is the unit price the customer saw; zero means use the catalog price.
type OrderLineInput struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
	Price     int64 `json:"price"`
}

// CreateOrderInput is the checkout payload
type CreateOrderInput struct {
	UserID          int64            `json:"user_id"`
	Items           []OrderLineInput `json:"items"`
	ShippingAddress ShippingAddress  `json:"shipping_address"`
	PaymentMethod   PaymentMethod    `json:"payment_method"`
}

// Validate checks every shipping field is present
func (a ShippingAddress) Validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"shipping_address.full_name", a.FullName},
		{"shipping_address.address", a.Address},
		{"shipping_address.city", a.City},
		{"shipping_address.region", a.Region},
		{"shipping_address.phone", a.Phone},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return Invalid(f.name, "is required")
		}
	}
	return nil
}

// StatusInput is the payload for changing an order status
type StatusInput struct {
	Status OrderStatus `json:"status"`
}

// Validate checks the status is known
func (in StatusInput) Validate() error {
	if !in.Status.Valid() {
		return Invalid("status", "unknown status %q", in.Status)
	}
	return nil
}
