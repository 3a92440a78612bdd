package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/tecnokaijin/storefront/internal/metrics"
	"github.com/tecnokaijin/storefront/internal/middleware"
	"github.com/tecnokaijin/storefront/internal/models"
	"github.com/tecnokaijin/storefront/internal/services"
	"github.com/tecnokaijin/storefront/pkg/config"
)

const maxBodyBytes = 1 << 20

// App holds application dependencies
type App struct {
	config         *config.Config
	metrics        *metrics.AppMetrics
	productService *services.ProductService
	cartService    *services.CartService
	orderService   *services.OrderService
	userService    *services.UserService
	sessions       *services.SessionStore
}

// NewApp creates a new application instance
func NewApp(
	cfg *config.Config,
	m *metrics.AppMetrics,
	ps *services.ProductService,
	cs *services.CartService,
	os *services.OrderService,
	us *services.UserService,
	sessions *services.SessionStore,
) *App {
	return &App{
		config:         cfg,
		metrics:        m,
		productService: ps,
		cartService:    cs,
		orderService:   os,
		userService:    us,
		sessions:       sessions,
	}
}

// SetupRoutes configures the HTTP routes
func (a *App) SetupRoutes(r *mux.Router) {
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.CORSMiddleware(a.config.CORSAllowedOrigin))
	r.Use(middleware.ErrorHandlerMiddleware)
	r.Use(middleware.MetricsMiddleware(a.metrics))

	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.CompressMiddleware)
	api.Use(middleware.AuthMiddleware(a.sessions, a.userService))

	// Auth
	api.HandleFunc("/auth/register", a.RegisterHandler).Methods("POST")
	api.HandleFunc("/auth/login", a.LoginHandler).Methods("POST")
	api.HandleFunc("/auth/logout", middleware.RequireUser(a.LogoutHandler)).Methods("POST")
	api.HandleFunc("/auth/me", middleware.RequireUser(a.MeHandler)).Methods("GET")

	// Products
	api.HandleFunc("/products", a.ListProductsHandler).Methods("GET")
	api.HandleFunc("/products", middleware.RequireAdmin(a.CreateProductHandler)).Methods("POST")
	api.HandleFunc("/products/{id}", a.GetProductHandler).Methods("GET")
	api.HandleFunc("/products/{id}", middleware.RequireAdmin(a.UpdateProductHandler)).Methods("PUT")
	api.HandleFunc("/products/{id}", middleware.RequireAdmin(a.DeleteProductHandler)).Methods("DELETE")

	// Cart
	api.HandleFunc("/cart/quote", a.QuoteCartHandler).Methods("POST")

	// Orders
	api.HandleFunc("/orders", middleware.RequireAdmin(a.ListOrdersHandler)).Methods("GET")
	api.HandleFunc("/orders", a.CreateOrderHandler).Methods("POST")
	api.HandleFunc("/orders/my-orders/{userId}", a.ListUserOrdersHandler).Methods("GET")
	api.HandleFunc("/orders/{id}", a.GetOrderHandler).Methods("GET")
	api.HandleFunc("/orders/{id}/status", middleware.RequireAdmin(a.UpdateOrderStatusHandler)).Methods("PUT")

	// Users
	api.HandleFunc("/users", middleware.RequireAdmin(a.ListUsersHandler)).Methods("GET")
	api.HandleFunc("/users/{id}", middleware.RequireAdmin(a.GetUserHandler)).Methods("GET")
	api.HandleFunc("/users/{id}", middleware.RequireAdmin(a.UpdateUserHandler)).Methods("PUT")
	api.HandleFunc("/users/{id}", middleware.RequireAdmin(a.DeleteUserHandler)).Methods("DELETE")

	// Health, index and metrics
	r.HandleFunc("/health", a.HealthHandler).Methods("GET")
	r.HandleFunc("/", a.IndexHandler).Methods("GET")
	if scrape := a.metrics.ScrapeHandler(); scrape != nil {
		r.Handle("/metrics", scrape).Methods("GET")
	}

	// mux skips middleware for unmatched methods, so preflight requests land here
	r.MethodNotAllowedHandler = middleware.CORSMiddleware(a.config.CORSAllowedOrigin)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			respondError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		}))
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, "route not found")
	})
}

// HealthHandler handles health check requests
func (a *App) HealthHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"storage": a.config.StorageDriver,
	})
}

// IndexHandler describes the API and reports live directory and catalog stats
func (a *App) IndexHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	users, err := a.userService.Count(ctx)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	products, err := a.productService.Count(ctx)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	orders, err := a.orderService.Count(ctx)
	if err != nil {
		a.handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"message": "TecnoKaijin API",
		"version": a.config.OTELServiceVersion,
		"endpoints": map[string]string{
			"auth":     "/api/auth",
			"products": "/api/products",
			"cart":     "/api/cart/quote",
			"orders":   "/api/orders",
			"users":    "/api/users",
			"health":   "/health",
		},
		"stats": map[string]int{
			"users":    users,
			"products": products,
			"orders":   orders,
		},
	})
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("[HTTP] failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// handleError maps service errors to HTTP statuses. Anything unrecognized is
// logged with the request ID and hidden behind a generic 500.
func (a *App) handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, models.ErrValidation), errors.Is(err, models.ErrDuplicateEmail):
		respondError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrInvalidCredentials), errors.Is(err, models.ErrUnauthorized):
		respondError(w, r, http.StatusUnauthorized, err.Error())
	case errors.Is(err, models.ErrForbidden), errors.Is(err, models.ErrPrimaryAdmin):
		respondError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, models.ErrNotFound):
		respondError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrStockExceeded), errors.Is(err, models.ErrInvalidTransition):
		respondError(w, r, http.StatusConflict, err.Error())
	default:
		log.Printf("[HTTP] %s %s failed (request_id=%s): %v", r.Method, r.URL.Path, middleware.RequestID(r.Context()), err)
		respondError(w, r, http.StatusInternalServerError, "internal server error")
	}
}

// decodeJSON reads a JSON body into dst, answering 400 itself on failure
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
	if err == nil {
		return true
	}
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		respondError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, io.EOF):
		respondError(w, r, http.StatusBadRequest, "request body is required")
	default:
		respondError(w, r, http.StatusBadRequest, "Invalid request body")
	}
	return false
}

// pathID parses a numeric route variable, answering 400 itself on failure
func pathID(w http.ResponseWriter, r *http.Request, name, label string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id < 1 {
		respondError(w, r, http.StatusBadRequest, "Invalid "+label+" ID")
		return 0, false
	}
	return id, true
}
