package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"golang.org/x/crypto/bcrypt"

	"github.com/tecnokaijin/storefront/internal/events"
	"github.com/tecnokaijin/storefront/internal/metrics"
	"github.com/tecnokaijin/storefront/internal/models"
	"github.com/tecnokaijin/storefront/internal/repository"
	"github.com/tecnokaijin/storefront/internal/services"
	"github.com/tecnokaijin/storefront/pkg/config"
)

type testServer struct {
	router     *mux.Router
	products   *services.ProductService
	adminToken string
	userToken  string
	userID     int64
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	m, err := metrics.NewAppMetrics(noop.NewMeterProvider().Meter("test"), "storefront-test")
	require.NoError(t, err)

	store := repository.NewMemoryStore()
	users, err := services.NewUserService(store.Users(), m, bcrypt.MinCost, "admin@tecnokaijin.cl")
	require.NoError(t, err)
	products := services.NewProductService(store.Products(), m, time.Minute)
	carts := services.NewCartService(store.Products())
	orders := services.NewOrderService(store, carts, products, events.LogPublisher{}, m)
	sessions := services.NewSessionStore(m)

	admin, err := users.EnsurePrimaryAdmin(ctx, "Administrador", "admin123")
	require.NoError(t, err)
	user, err := users.CreateUser(ctx, "Usuario Demo", "user@tecnokaijin.cl", "user123", models.RoleUser)
	require.NoError(t, err)

	for _, p := range []models.ProductInput{
		{Name: "iPhone 15 Pro Max", Price: 1299990, Category: "celulares", Image: "https://img/iphone", Stock: 15},
		{Name: "Sony WH-1000XM5", Price: 349990, Category: "accesorios", Image: "https://img/sony", Stock: 2},
	} {
		_, err := products.CreateProduct(ctx, p)
		require.NoError(t, err)
	}

	cfg := &config.Config{CORSAllowedOrigin: "*", StorageDriver: "memory", OTELServiceVersion: "1.0.0"}
	app := NewApp(cfg, m, products, carts, orders, users, sessions)
	r := mux.NewRouter()
	app.SetupRoutes(r)

	return &testServer{
		router:     r,
		products:   products,
		adminToken: sessions.Issue(ctx, admin.ID),
		userToken:  sessions.Issue(ctx, user.ID),
		userID:     user.ID,
	}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	return decode[map[string]string](t, rec)["error"]
}

func orderBody(items ...models.OrderLineInput) map[string]any {
	return map[string]any{
		"items": items,
		"shipping_address": models.ShippingAddress{
			FullName: "Usuario Demo", Address: "Av. Providencia 1234", City: "Santiago",
			Region: "Metropolitana", Phone: "+56 9 1234 5678",
		},
		"payment_method": "webpay",
	}
}

func TestHealthAndIndex(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[map[string]string](t, rec)["status"])

	rec = s.do(t, http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var index struct {
		Stats map[string]int `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &index))
	assert.Equal(t, map[string]int{"users": 2, "products": 2, "orders": 0}, index.Stats)

	rec = s.do(t, http.MethodGet, "/api/nothing-here", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "route not found", errorOf(t, rec))
}

func TestRegisterLoginLogout(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/auth/register", "", models.RegisterInput{
		Name: "Ana", Email: "ana@tecnokaijin.cl", Password: "secret1", ConfirmPassword: "secret1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	auth := decode[models.AuthResponse](t, rec)
	assert.NotEmpty(t, auth.Token)
	assert.Equal(t, models.RoleUser, auth.User.Role)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = s.do(t, http.MethodPost, "/api/auth/register", "", models.RegisterInput{
		Name: "Ana", Email: "ANA@tecnokaijin.cl", Password: "secret1", ConfirmPassword: "secret1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	wrong := s.do(t, http.MethodPost, "/api/auth/login", "", models.LoginInput{Email: "ana@tecnokaijin.cl", Password: "nope12"})
	unknown := s.do(t, http.MethodPost, "/api/auth/login", "", models.LoginInput{Email: "ghost@tecnokaijin.cl", Password: "nope12"})
	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())

	rec = s.do(t, http.MethodPost, "/api/auth/login", "", models.LoginInput{Email: "ana@tecnokaijin.cl", Password: "secret1"})
	require.Equal(t, http.StatusOK, rec.Code)
	token := decode[models.AuthResponse](t, rec).Token

	rec = s.do(t, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ana@tecnokaijin.cl", decode[models.User](t, rec).Email)

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodPost, "/api/auth/logout", token, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/auth/me", token, nil).Code)

	rec = s.do(t, http.MethodPost, "/api/auth/login", "", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProductEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/products?category=accesorios", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]models.Product](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "Sony WH-1000XM5", list[0].Name)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/products?minPrice=cheap", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/products/abc", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/products/99", "", nil).Code)

	body := `{"name":"iPad Air","price":"699990","category":"tablets","image":"https://img/ipad","stock":"8"}`
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/api/products", "", body).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPost, "/api/products", s.userToken, body).Code)

	rec = s.do(t, http.MethodPost, "/api/products", s.adminToken, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[models.Product](t, rec)
	assert.Equal(t, int64(3), created.ID)
	assert.Equal(t, int64(699990), created.Price)
	assert.Equal(t, 8, created.Stock)

	rec = s.do(t, http.MethodPost, "/api/products", s.adminToken, `{"name":"X","price":"abc","category":"tablets","image":"i"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/products/3", s.adminToken, `{"stock":3}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decode[models.Product](t, rec).Stock)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodDelete, "/api/products/3", s.adminToken, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, "/api/products/3", s.adminToken, nil).Code)
}

func TestOrderEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/orders", s.userToken, orderBody(models.OrderLineInput{ProductID: 2, Quantity: 2}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	order := decode[models.Order](t, rec)
	assert.Equal(t, s.userID, order.UserID)
	assert.Equal(t, "ORD-001", order.OrderNumber)
	assert.Equal(t, int64(699980), order.Total)
	assert.Equal(t, models.StatusPending, order.Status)

	rec = s.do(t, http.MethodPost, "/api/orders", s.userToken, orderBody(models.OrderLineInput{ProductID: 2, Quantity: 1}))
	assert.Equal(t, http.StatusConflict, rec.Code)

	empty := orderBody()
	empty["user_id"] = s.userID
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/orders", "", empty).Code)

	unknown := orderBody(models.OrderLineInput{ProductID: 1, Quantity: 1})
	unknown["user_id"] = 404
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/api/orders", "", unknown).Code)

	rec = s.do(t, http.MethodGet, "/api/orders/my-orders/2", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Order](t, rec), 1)

	rec = s.do(t, http.MethodGet, "/api/orders/my-orders/1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/orders/1", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/orders/7", "", nil).Code)

	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/api/orders", s.userToken, nil).Code)
	rec = s.do(t, http.MethodGet, "/api/orders", s.adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Order](t, rec), 1)
}

func TestOrderStatusEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/orders", s.userToken, orderBody(models.OrderLineInput{ProductID: 1, Quantity: 1}))
	require.Equal(t, http.StatusCreated, rec.Code)

	status := func(token, value string) *httptest.ResponseRecorder {
		return s.do(t, http.MethodPut, "/api/orders/1/status", token, map[string]string{"status": value})
	}

	assert.Equal(t, http.StatusUnauthorized, status("", "processing").Code)
	assert.Equal(t, http.StatusForbidden, status(s.userToken, "processing").Code)
	assert.Equal(t, http.StatusBadRequest, status(s.adminToken, "completed").Code)
	assert.Equal(t, http.StatusConflict, status(s.adminToken, "delivered").Code)

	rec = status(s.adminToken, "processing")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.StatusProcessing, decode[models.Order](t, rec).Status)

	rec = status(s.adminToken, "cancelled")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/products/1", "", nil)
	assert.Equal(t, 15, decode[models.Product](t, rec).Stock)
}

func TestQuoteEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/cart/quote", "", quoteRequest{Items: []models.OrderLineInput{
		{ProductID: 1, Quantity: 1},
		{ProductID: 2, Quantity: 1},
	}})
	require.Equal(t, http.StatusOK, rec.Code)
	quote := decode[services.CartQuote](t, rec)
	assert.Equal(t, int64(1649980), quote.Total)
	assert.Equal(t, "$1.649.980", quote.FormattedTotal)
	assert.Equal(t, 2, quote.Count)

	rec = s.do(t, http.MethodPost, "/api/cart/quote", "", quoteRequest{Items: []models.OrderLineInput{{ProductID: 2, Quantity: 3}}})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUserEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/users", s.adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.User](t, rec), 2)

	rec = s.do(t, http.MethodDelete, "/api/users/1", s.adminToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, models.ErrPrimaryAdmin.Error(), errorOf(t, rec))

	rec = s.do(t, http.MethodPut, "/api/users/1", s.adminToken, `{"role":"user"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/users/2", s.adminToken, `{"name":"Usuario Renombrado"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Usuario Renombrado", decode[models.User](t, rec).Name)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodDelete, "/api/users/2", s.adminToken, nil).Code)
	// sessions of a deleted user end with it
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/auth/me", s.userToken, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/users/2", s.adminToken, nil).Code)
}

func TestAPIResponsesAreBrotliEncoded(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	req.Header.Set("Accept-Encoding", "br")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "br", rec.Header().Get("Content-Encoding"))
	var products []models.Product
	require.NoError(t, json.NewDecoder(brotli.NewReader(rec.Body)).Decode(&products))
	assert.Len(t, products, 2)
}

func TestPreflight(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodOptions, "/api/orders", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCreateOrderAcceptsWebStorefrontPayload(t *testing.T) {
	s := newTestServer(t)

	body := map[string]any{
		"userId": s.userID,
		"items":  []map[string]any{{"productId": 1, "quantity": 1, "price": 1299990}},
		"total":  1299990,
		"shippingAddress": map[string]any{
			"fullName": "Usuario Demo",
			"address":  "Av. Providencia 1234",
			"city":     "Santiago",
			"region":   "Metropolitana",
			"phone":    "+56 9 1234 5678",
		},
		"paymentMethod": "webpay",
	}
	rec := s.do(t, http.MethodPost, "/api/orders", "", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	order := decode[models.Order](t, rec)
	assert.Equal(t, s.userID, order.UserID)
	assert.Equal(t, "Usuario Demo", order.ShippingAddress.FullName)
	assert.Equal(t, models.PaymentWebpay, order.PaymentMethod)
	assert.Equal(t, int64(1299990), order.Total)
}
