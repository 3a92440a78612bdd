// Package client is a typed HTTP client for the storefront API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/tecnokaijin/storefront/internal/models"
)

// APIError is a non-2xx answer from the server
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

// Quote is a priced cart as returned by /api/cart/quote
type Quote struct {
	Items          []models.CartItem `json:"items"`
	Count          int               `json:"count"`
	Total          int64             `json:"total"`
	FormattedTotal string            `json:"formatted_total"`
}

// Client talks to one storefront server
type Client struct {
	baseURL   string
	client    *http.Client
	transport *AuthTransport
}

func New(baseURL, token string) *Client {
	t := &AuthTransport{Token: token, Base: http.DefaultTransport}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Transport: t, Timeout: 10 * time.Second},
		transport: t,
	}
}

// SetToken changes the bearer token sent with every request
func (c *Client) SetToken(token string) {
	c.transport.Token = token
}

// AuthTransport adds the bearer token and asks for brotli-encoded responses
type AuthTransport struct {
	Token string
	Base  http.RoundTripper
}

func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if t.Token != "" {
		req.Header.Set("Authorization", "Bearer "+t.Token)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "br")
	return t.Base.RoundTrip(req)
}

type readCloserWrapper struct {
	io.Reader
	io.Closer
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	if resp.Header.Get("Content-Encoding") == "br" {
		resp.Body = &readCloserWrapper{Reader: brotli.NewReader(resp.Body), Closer: resp.Body}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(raw, &apiErr) != nil || apiErr.Error == "" {
			apiErr.Error = strings.TrimSpace(string(raw))
		}
		return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

func (c *Client) Register(ctx context.Context, in models.RegisterInput) (*models.AuthResponse, error) {
	var out models.AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*models.AuthResponse, error) {
	var out models.AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", models.LoginInput{Email: email, Password: password}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
}

func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var out models.User
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Products lists the catalog; query takes category, search, minPrice and maxPrice
func (c *Client) Products(ctx context.Context, query url.Values) ([]models.Product, error) {
	path := "/api/products"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	var out []models.Product
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Product(ctx context.Context, id int64) (*models.Product, error) {
	var out models.Product
	if err := c.do(ctx, http.MethodGet, "/api/products/"+strconv.FormatInt(id, 10), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateProduct(ctx context.Context, in models.ProductInput) (*models.Product, error) {
	var out models.Product
	if err := c.do(ctx, http.MethodPost, "/api/products", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateProduct(ctx context.Context, id int64, patch models.ProductPatch) (*models.Product, error) {
	var out models.Product
	if err := c.do(ctx, http.MethodPut, "/api/products/"+strconv.FormatInt(id, 10), patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteProduct(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "/api/products/"+strconv.FormatInt(id, 10), nil, nil)
}

// Quote prices cart lines against the current catalog
func (c *Client) Quote(ctx context.Context, lines []models.OrderLineInput) (*Quote, error) {
	var out Quote
	body := map[string]any{"items": lines}
	if err := c.do(ctx, http.MethodPost, "/api/cart/quote", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) PlaceOrder(ctx context.Context, in models.CreateOrderInput) (*models.Order, error) {
	var out models.Order
	if err := c.do(ctx, http.MethodPost, "/api/orders", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Order(ctx context.Context, id int64) (*models.Order, error) {
	var out models.Order
	if err := c.do(ctx, http.MethodGet, "/api/orders/"+strconv.FormatInt(id, 10), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MyOrders returns the orders of userID, newest first
func (c *Client) MyOrders(ctx context.Context, userID int64) ([]models.Order, error) {
	var out []models.Order
	if err := c.do(ctx, http.MethodGet, "/api/orders/my-orders/"+strconv.FormatInt(userID, 10), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Orders returns every order; administrators only
func (c *Client) Orders(ctx context.Context) ([]models.Order, error) {
	var out []models.Order
	if err := c.do(ctx, http.MethodGet, "/api/orders", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UpdateOrderStatus(ctx context.Context, id int64, status models.OrderStatus) (*models.Order, error) {
	var out models.Order
	body := models.StatusInput{Status: status}
	if err := c.do(ctx, http.MethodPut, "/api/orders/"+strconv.FormatInt(id, 10)+"/status", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Users(ctx context.Context) ([]models.User, error) {
	var out []models.User
	if err := c.do(ctx, http.MethodGet, "/api/users", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UpdateUser(ctx context.Context, id int64, in models.UpdateUserInput) (*models.User, error) {
	var out models.User
	if err := c.do(ctx, http.MethodPut, "/api/users/"+strconv.FormatInt(id, 10), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteUser(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "/api/users/"+strconv.FormatInt(id, 10), nil, nil)
}
