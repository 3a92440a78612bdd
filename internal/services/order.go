package services

import (
	"context"
	"fmt"
	"log"
	"math"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/tecnokaijin/storefront/internal/events"
	"github.com/tecnokaijin/storefront/internal/metrics"
	"github.com/tecnokaijin/storefront/internal/models"
	"github.com/tecnokaijin/storefront/internal/repository"
)

// OrderService builds orders from carts and drives their status
type OrderService struct {
	store   repository.Store
	carts   *CartService
	catalog *ProductService
	events  events.Publisher
	metrics *metrics.AppMetrics
}

// NewOrderService creates a new order service
func NewOrderService(store repository.Store, carts *CartService, catalog *ProductService, publisher events.Publisher, m *metrics.AppMetrics) *OrderService {
	return &OrderService{
		store:   store,
		carts:   carts,
		catalog: catalog,
		events:  publisher,
		metrics: m,
	}
}

// CreateOrder turns a cart snapshot into a pending order. Unit prices are
// copied from the snapshot and never recomputed from the catalog.
func (s *OrderService) CreateOrder(ctx context.Context, userID int64, snapshot []models.CartItem, addr models.ShippingAddress, payment models.PaymentMethod) (*models.Order, error) {
	user, err := s.store.Users().Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.create(ctx, user, snapshot, addr, payment)
}

// PlaceOrder is checkout from a submitted cart. The lines are replayed into a
// cart against current stock before the order is created.
func (s *OrderService) PlaceOrder(ctx context.Context, in models.CreateOrderInput) (*models.Order, error) {
	user, err := s.store.Users().Get(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	if len(in.Items) == 0 {
		return nil, models.ErrEmptyCart
	}
	c, err := s.carts.Rebuild(ctx, in.Items)
	if err != nil {
		return nil, err
	}
	return s.create(ctx, user, c.Snapshot(), in.ShippingAddress, in.PaymentMethod)
}

func (s *OrderService) create(ctx context.Context, user *models.User, snapshot []models.CartItem, addr models.ShippingAddress, payment models.PaymentMethod) (*models.Order, error) {
	if len(snapshot) == 0 {
		return nil, models.ErrEmptyCart
	}
	if err := addr.Validate(); err != nil {
		return nil, err
	}
	if !payment.Valid() {
		return nil, models.Invalid("payment_method", "unknown payment method %q", payment)
	}

	items := make([]models.OrderItem, 0, len(snapshot))
	ids := make([]int64, 0, len(snapshot))
	units := 0
	var total int64
	for i, line := range snapshot {
		if line.Quantity < 1 {
			return nil, models.Invalid(fmt.Sprintf("items[%d].quantity", i), "must be at least 1")
		}
		if line.Price <= 0 {
			return nil, models.Invalid(fmt.Sprintf("items[%d].price", i), "must be greater than 0")
		}
		if line.Price > (math.MaxInt64-total)/int64(line.Quantity) {
			return nil, models.Invalid(fmt.Sprintf("items[%d]", i), "order total is too large")
		}
		total += line.Price * int64(line.Quantity)
		items = append(items, models.OrderItem{
			ProductID:   line.ProductID,
			ProductName: line.Name,
			Quantity:    line.Quantity,
			UnitPrice:   line.Price,
		})
		ids = append(ids, line.ProductID)
		units += line.Quantity
	}

	order := &models.Order{
		UserID:          user.ID,
		User:            models.UserSummary{Name: user.Name, Email: user.Email},
		Items:           items,
		Total:           total,
		ShippingAddress: addr,
		PaymentMethod:   payment,
		Status:          models.StatusPending,
	}
	if err := s.store.Orders().Create(ctx, order); err != nil {
		return nil, err
	}
	// stock changed
	s.catalog.Invalidate(ids...)

	s.metrics.RecordOrder(ctx, order.Total, units, string(payment))
	s.publish(ctx, events.OrderCreated(order))
	log.Printf("[ORDER] Order created: order_id=%d, number=%s, user_id=%d, total=%d, items=%d",
		order.ID, order.OrderNumber, order.UserID, order.Total, len(order.Items))
	return order, nil
}

// GetOrder returns an order by ID
func (s *OrderService) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	return s.store.Orders().Get(ctx, id)
}

// ListOrders returns every order ordered by ID
func (s *OrderService) ListOrders(ctx context.Context) ([]models.Order, error) {
	return s.store.Orders().List(ctx)
}

// ListUserOrders returns the orders of a user, newest first
func (s *OrderService) ListUserOrders(ctx context.Context, userID int64) ([]models.Order, error) {
	return s.store.Orders().ListByUser(ctx, userID)
}

// UpdateOrderStatus moves an order to status on behalf of actor. Only
// administrators may do so and only along the allowed transitions.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, actor *models.User, id int64, status models.OrderStatus) (*models.Order, error) {
	if !actor.IsAdmin() {
		return nil, models.ErrForbidden
	}
	if err := (models.StatusInput{Status: status}).Validate(); err != nil {
		return nil, err
	}
	current, err := s.store.Orders().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.Status.CanTransitionTo(status) {
		return nil, &models.TransitionError{From: current.Status, To: status}
	}

	updated, err := s.store.Orders().Transition(ctx, id, current.Status, status)
	if err != nil {
		return nil, err
	}
	if status == models.StatusCancelled {
		ids := make([]int64, len(updated.Items))
		for i, item := range updated.Items {
			ids[i] = item.ProductID
		}
		s.catalog.Invalidate(ids...)
	}

	s.metrics.RecordTransition(ctx, string(current.Status), string(status))
	s.publish(ctx, events.StatusChanged(updated, current.Status))
	log.Printf("[ORDER] Status changed: order_id=%d, %s -> %s, by user_id=%d", id, current.Status, status, actor.ID)
	return updated, nil
}

// Count returns the number of orders
func (s *OrderService) Count(ctx context.Context) (int, error) {
	return s.store.Orders().Count(ctx)
}

// publish delivers e; the order is already stored, so failures are only logged
func (s *OrderService) publish(ctx context.Context, e events.Event) {
	if err := s.events.Publish(ctx, e); err != nil {
		log.Printf("[EVENTS] publish failed: type=%s, order_id=%d: %v", e.Type, e.OrderID, err)
		return
	}
	s.metrics.EventsPublished.Add(ctx, 1, metric.WithAttributes(s.metrics.WithServiceName([]attribute.KeyValue{
		attribute.String("event.type", e.Type),
	})...))
}
