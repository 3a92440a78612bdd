package services

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tecnokaijin/storefront/internal/events"
	"github.com/tecnokaijin/storefront/internal/models"
)

func TestCreateOrderFreezesPrices(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.addProduct(t, "A", 1000, 5)
	b := env.addProduct(t, "B", 500, 5)

	snapshot := []models.CartItem{
		{ProductID: a.ID, Name: "A", Price: 1000, Stock: 5, Quantity: 2},
		{ProductID: b.ID, Name: "B", Price: 500, Stock: 5, Quantity: 1},
	}
	order, err := env.orders.CreateOrder(ctx, env.customer.ID, snapshot, validAddress(), models.PaymentWebpay)
	require.NoError(t, err)
	assert.Equal(t, int64(2500), order.Total)
	assert.Equal(t, models.StatusPending, order.Status)
	assert.Equal(t, "ORD-001", order.OrderNumber)
	assert.Equal(t, "Usuario Demo", order.User.Name)
	assert.Equal(t, "user@tecnokaijin.cl", order.User.Email)
	require.Len(t, order.Items, 2)
	assert.Equal(t, "A", order.Items[0].ProductName)

	price := models.FlexInt(9999)
	_, err = env.products.UpdateProduct(ctx, a.ID, models.ProductPatch{Price: &price})
	require.NoError(t, err)

	stored, err := env.orders.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2500), stored.Total)
	assert.Equal(t, int64(1000), stored.Items[0].UnitPrice)

	p, err := env.products.GetProduct(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Stock)

	assert.Equal(t, []string{events.TypeOrderCreated}, env.published.types())
}

func TestCreateOrderRejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.addProduct(t, "A", 1000, 5)
	line := []models.CartItem{{ProductID: a.ID, Name: "A", Price: 1000, Stock: 5, Quantity: 1}}

	tests := []struct {
		name     string
		userID   int64
		snapshot []models.CartItem
		addr     models.ShippingAddress
		payment  models.PaymentMethod
		target   error
	}{
		{"unknown user", 999, line, validAddress(), models.PaymentWebpay, models.ErrUserNotFound},
		{"empty cart", env.customer.ID, nil, validAddress(), models.PaymentWebpay, models.ErrEmptyCart},
		{"missing shipping field", env.customer.ID, line, models.ShippingAddress{FullName: "x"}, models.PaymentWebpay, models.ErrValidation},
		{"unknown payment", env.customer.ID, line, validAddress(), "bitcoin", models.ErrValidation},
		{"zero price", env.customer.ID, []models.CartItem{{ProductID: a.ID, Price: 0, Quantity: 1}}, validAddress(), models.PaymentWebpay, models.ErrValidation},
		{"negative price", env.customer.ID, []models.CartItem{{ProductID: a.ID, Price: -1000, Quantity: 2}}, validAddress(), models.PaymentWebpay, models.ErrValidation},
		{"total overflows", env.customer.ID, []models.CartItem{
			{ProductID: a.ID, Price: math.MaxInt64 / 2, Quantity: 1},
			{ProductID: a.ID, Price: math.MaxInt64 / 2, Quantity: 3},
		}, validAddress(), models.PaymentWebpay, models.ErrValidation},
		{"over stock", env.customer.ID, []models.CartItem{{ProductID: a.ID, Price: 1000, Quantity: 6}}, validAddress(), models.PaymentTransfer, models.ErrStockExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.orders.CreateOrder(ctx, tt.userID, tt.snapshot, tt.addr, tt.payment)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.target), "got %v", err)
		})
	}

	n, err := env.orders.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, env.published.types())

	p, err := env.products.GetProduct(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, p.Stock)
}

func TestUnknownUserCheckedBeforeEmptyCart(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.orders.CreateOrder(context.Background(), 404, nil, validAddress(), models.PaymentWebpay)
	assert.ErrorIs(t, err, models.ErrUserNotFound)

	_, err = env.orders.PlaceOrder(context.Background(), models.CreateOrderInput{UserID: 404})
	assert.ErrorIs(t, err, models.ErrUserNotFound)
}

func TestPlaceOrderRebuildsCart(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.addProduct(t, "A", 1000, 5)
	b := env.addProduct(t, "B", 500, 5)

	order, err := env.orders.PlaceOrder(ctx, models.CreateOrderInput{
		UserID: env.customer.ID,
		Items: []models.OrderLineInput{
			{ProductID: a.ID, Quantity: 1, Price: 900},
			{ProductID: b.ID, Quantity: 1},
			{ProductID: a.ID, Quantity: 1},
		},
		ShippingAddress: validAddress(),
		PaymentMethod:   models.PaymentTransfer,
	})
	require.NoError(t, err)
	require.Len(t, order.Items, 2)
	assert.Equal(t, 2, order.Items[0].Quantity)
	// price from the first add is kept
	assert.Equal(t, int64(900), order.Items[0].UnitPrice)
	assert.Equal(t, int64(500), order.Items[1].UnitPrice)
	assert.Equal(t, int64(2300), order.Total)
}

func TestPlaceOrderRejectsOverStockAndUnknownProduct(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.addProduct(t, "A", 1000, 2)

	_, err := env.orders.PlaceOrder(ctx, models.CreateOrderInput{
		UserID:          env.customer.ID,
		Items:           []models.OrderLineInput{{ProductID: a.ID, Quantity: 2}, {ProductID: a.ID, Quantity: 1}},
		ShippingAddress: validAddress(),
		PaymentMethod:   models.PaymentWebpay,
	})
	var stockErr *models.StockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 3, stockErr.Requested)
	assert.Equal(t, 2, stockErr.Available)

	_, err = env.orders.PlaceOrder(ctx, models.CreateOrderInput{
		UserID:          env.customer.ID,
		Items:           []models.OrderLineInput{{ProductID: 777, Quantity: 1}},
		ShippingAddress: validAddress(),
		PaymentMethod:   models.PaymentWebpay,
	})
	assert.ErrorIs(t, err, models.ErrProductNotFound)

	_, err = env.orders.PlaceOrder(ctx, models.CreateOrderInput{
		UserID:          env.customer.ID,
		Items:           []models.OrderLineInput{{ProductID: a.ID, Quantity: 0}},
		ShippingAddress: validAddress(),
		PaymentMethod:   models.PaymentWebpay,
	})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestSecondOrderSeesReservedStock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.addProduct(t, "A", 1000, 3)

	// warm the cache so a stale stock value would be visible
	_, err := env.products.GetProduct(ctx, a.ID)
	require.NoError(t, err)

	place := func(qty int) error {
		_, err := env.orders.PlaceOrder(ctx, models.CreateOrderInput{
			UserID:          env.customer.ID,
			Items:           []models.OrderLineInput{{ProductID: a.ID, Quantity: qty}},
			ShippingAddress: validAddress(),
			PaymentMethod:   models.PaymentWebpay,
		})
		return err
	}
	require.NoError(t, place(2))
	assert.ErrorIs(t, place(2), models.ErrStockExceeded)

	p, err := env.products.GetProduct(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Stock)
}

func TestUpdateOrderStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.addProduct(t, "A", 1000, 5)
	order, err := env.orders.CreateOrder(ctx, env.customer.ID,
		[]models.CartItem{{ProductID: a.ID, Name: "A", Price: 1000, Stock: 5, Quantity: 2}},
		validAddress(), models.PaymentWebpay)
	require.NoError(t, err)

	_, err = env.orders.UpdateOrderStatus(ctx, env.customer, order.ID, models.StatusProcessing)
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = env.orders.UpdateOrderStatus(ctx, env.admin, order.ID, "completed")
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = env.orders.UpdateOrderStatus(ctx, env.admin, order.ID, models.StatusDelivered)
	var terr *models.TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, models.StatusPending, terr.From)

	_, err = env.orders.UpdateOrderStatus(ctx, env.admin, 999, models.StatusProcessing)
	assert.ErrorIs(t, err, models.ErrOrderNotFound)

	for _, next := range []models.OrderStatus{models.StatusProcessing, models.StatusShipped, models.StatusDelivered} {
		updated, err := env.orders.UpdateOrderStatus(ctx, env.admin, order.ID, next)
		require.NoError(t, err)
		assert.Equal(t, next, updated.Status)
		assert.Equal(t, int64(2000), updated.Total)
	}

	_, err = env.orders.UpdateOrderStatus(ctx, env.admin, order.ID, models.StatusPending)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	assert.Equal(t, []string{
		events.TypeOrderCreated,
		events.TypeOrderStatusChanged,
		events.TypeOrderStatusChanged,
		events.TypeOrderStatusChanged,
	}, env.published.types())
}

func TestCancelRestocksAndRefreshesCatalog(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.addProduct(t, "A", 1000, 5)
	order, err := env.orders.CreateOrder(ctx, env.customer.ID,
		[]models.CartItem{{ProductID: a.ID, Name: "A", Price: 1000, Stock: 5, Quantity: 2}},
		validAddress(), models.PaymentWebpay)
	require.NoError(t, err)

	p, err := env.products.GetProduct(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, 3, p.Stock)

	cancelled, err := env.orders.UpdateOrderStatus(ctx, env.admin, order.ID, models.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)

	p, err = env.products.GetProduct(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, p.Stock)

	_, err = env.orders.UpdateOrderStatus(ctx, env.admin, order.ID, models.StatusProcessing)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestListUserOrdersNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.addProduct(t, "A", 1000, 10)
	line := []models.CartItem{{ProductID: a.ID, Name: "A", Price: 1000, Stock: 10, Quantity: 1}}

	first, err := env.orders.CreateOrder(ctx, env.customer.ID, line, validAddress(), models.PaymentWebpay)
	require.NoError(t, err)
	_, err = env.orders.CreateOrder(ctx, env.admin.ID, line, validAddress(), models.PaymentWebpay)
	require.NoError(t, err)
	third, err := env.orders.CreateOrder(ctx, env.customer.ID, line, validAddress(), models.PaymentWebpay)
	require.NoError(t, err)

	mine, err := env.orders.ListUserOrders(ctx, env.customer.ID)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, third.ID, mine[0].ID)
	assert.Equal(t, first.ID, mine[1].ID)

	all, err := env.orders.ListOrders(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
