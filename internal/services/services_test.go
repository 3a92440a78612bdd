package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"golang.org/x/crypto/bcrypt"

	"github.com/tecnokaijin/storefront/internal/events"
	"github.com/tecnokaijin/storefront/internal/metrics"
	"github.com/tecnokaijin/storefront/internal/models"
	"github.com/tecnokaijin/storefront/internal/repository"
)

const primaryEmail = "admin@tecnokaijin.cl"

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type testEnv struct {
	store     *repository.MemoryStore
	users     *UserService
	products  *ProductService
	carts     *CartService
	orders    *OrderService
	sessions  *SessionStore
	published *recordingPublisher
	admin     *models.User
	customer  *models.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	m, err := metrics.NewAppMetrics(noop.NewMeterProvider().Meter("test"), "storefront-test")
	require.NoError(t, err)

	store := repository.NewMemoryStore()
	users, err := NewUserService(store.Users(), m, bcrypt.MinCost, primaryEmail)
	require.NoError(t, err)
	products := NewProductService(store.Products(), m, time.Minute)
	carts := NewCartService(store.Products())
	pub := &recordingPublisher{}

	env := &testEnv{
		store:     store,
		users:     users,
		products:  products,
		carts:     carts,
		orders:    NewOrderService(store, carts, products, pub, m),
		sessions:  NewSessionStore(m),
		published: pub,
	}

	env.admin, err = users.EnsurePrimaryAdmin(ctx, "Administrador", "admin123")
	require.NoError(t, err)
	env.customer, err = users.Register(ctx, models.RegisterInput{
		Name: "Usuario Demo", Email: "user@tecnokaijin.cl", Password: "user123", ConfirmPassword: "user123",
	})
	require.NoError(t, err)
	return env
}

func (e *testEnv) addProduct(t *testing.T, name string, price int64, stock int) *models.Product {
	t.Helper()
	p, err := e.products.CreateProduct(context.Background(), models.ProductInput{
		Name: name, Price: models.FlexInt(price), Category: "accesorios", Image: "https://img/" + name, Stock: models.FlexInt(stock),
	})
	require.NoError(t, err)
	return p
}

func validAddress() models.ShippingAddress {
	return models.ShippingAddress{
		FullName: "Usuario Demo",
		Address:  "Av. Providencia 1234",
		City:     "Santiago",
		Region:   "Metropolitana",
		Phone:    "+56 9 1234 5678",
	}
}
