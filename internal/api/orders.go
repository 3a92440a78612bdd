package api

import (
	"net/http"

	"github.com/tecnokaijin/storefront/internal/middleware"
	"github.com/tecnokaijin/storefront/internal/models"
)

type quoteRequest struct {
	Items []models.OrderLineInput `json:"items"`
}

// QuoteCartHandler handles POST /api/cart/quote
func (a *App) QuoteCartHandler(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	quote, err := a.cartService.Quote(r.Context(), req.Items)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, quote)
}

// CreateOrderHandler handles POST /api/orders. A logged-in caller that omits
// user_id orders for themselves.
func (a *App) CreateOrderHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CreateOrderInput
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == 0 {
		if u := middleware.CurrentUser(r.Context()); u != nil {
			req.UserID = u.ID
		}
	}

	order, err := a.orderService.PlaceOrder(r.Context(), req)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, order)
}

// GetOrderHandler handles GET /api/orders/{id}
func (a *App) GetOrderHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "order")
	if !ok {
		return
	}

	order, err := a.orderService.GetOrder(r.Context(), id)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// ListOrdersHandler handles GET /api/orders
func (a *App) ListOrdersHandler(w http.ResponseWriter, r *http.Request) {
	orders, err := a.orderService.ListOrders(r.Context())
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

// ListUserOrdersHandler handles GET /api/orders/my-orders/{userId}
func (a *App) ListUserOrdersHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userId", "user")
	if !ok {
		return
	}

	orders, err := a.orderService.ListUserOrders(r.Context(), userID)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

// UpdateOrderStatusHandler handles PUT /api/orders/{id}/status
func (a *App) UpdateOrderStatusHandler(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r, "id", "order")
	if !ok {
		return
	}
	var req models.StatusInput
	if !decodeJSON(w, r, &req) {
		return
	}

	order, err := a.orderService.UpdateOrderStatus(r.Context(), middleware.CurrentUser(r.Context()), orderID, req.Status)
	if err != nil {
		a.handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}
