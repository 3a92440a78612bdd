package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tecnokaijin/storefront/internal/models"
)

// MemoryStore keeps every collection in process memory behind one lock.
// Data is lost on restart.
type MemoryStore struct {
	mu sync.RWMutex

	users    map[int64]models.User
	products map[int64]models.Product
	orders   map[int64]models.Order

	nextUserID    int64
	nextProductID int64
	nextOrderID   int64

	now func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[int64]models.User),
		products:      make(map[int64]models.Product),
		orders:        make(map[int64]models.Order),
		nextUserID:    1,
		nextProductID: 1,
		nextOrderID:   1,
		now:           time.Now,
	}
}

func (s *MemoryStore) Users() UserRepository       { return memoryUsers{s} }
func (s *MemoryStore) Products() ProductRepository { return memoryProducts{s} }
func (s *MemoryStore) Orders() OrderRepository     { return memoryOrders{s} }
func (s *MemoryStore) Close() error                { return nil }

type memoryUsers struct{ s *MemoryStore }

func (r memoryUsers) Create(ctx context.Context, u *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u.Email = models.NormalizeEmail(u.Email)
	for _, existing := range r.s.users {
		if existing.Email == u.Email {
			return models.ErrDuplicateEmail
		}
	}
	u.ID = r.s.nextUserID
	r.s.nextUserID++
	if u.CreatedAt.IsZero() {
		u.CreatedAt = r.s.now()
	}
	r.s.users[u.ID] = *u
	return nil
}

func (r memoryUsers) Get(ctx context.Context, id int64) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	return &u, nil
}

func (r memoryUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	email = models.NormalizeEmail(email)
	for _, u := range r.s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, models.ErrUserNotFound
}

func (r memoryUsers) List(ctx context.Context) ([]models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	res := make([]models.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		res = append(res, u)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (r memoryUsers) Update(ctx context.Context, u *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[u.ID]; !ok {
		return models.ErrUserNotFound
	}
	u.Email = models.NormalizeEmail(u.Email)
	for id, existing := range r.s.users {
		if id != u.ID && existing.Email == u.Email {
			return models.ErrDuplicateEmail
		}
	}
	r.s.users[u.ID] = *u
	return nil
}

func (r memoryUsers) Delete(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[id]; !ok {
		return models.ErrUserNotFound
	}
	delete(r.s.users, id)
	return nil
}

func (r memoryUsers) Count(ctx context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.users), nil
}

type memoryProducts struct{ s *MemoryStore }

func (r memoryProducts) Create(ctx context.Context, p *models.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p.ID = r.s.nextProductID
	r.s.nextProductID++
	now := r.s.now()
	p.CreatedAt = now
	p.UpdatedAt = now
	r.s.products[p.ID] = *p
	return nil
}

func (r memoryProducts) Get(ctx context.Context, id int64) (*models.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.products[id]
	if !ok {
		return nil, models.ErrProductNotFound
	}
	return &p, nil
}

func (r memoryProducts) List(ctx context.Context) ([]models.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	res := make([]models.Product, 0, len(r.s.products))
	for _, p := range r.s.products {
		res = append(res, p)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (r memoryProducts) Update(ctx context.Context, id int64, change func(p *models.Product) error) (*models.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.products[id]
	if !ok {
		return nil, models.ErrProductNotFound
	}
	p := existing
	if err := change(&p); err != nil {
		return nil, err
	}
	p.ID = existing.ID
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = r.s.now()
	r.s.products[id] = p
	return &p, nil
}

func (r memoryProducts) Delete(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.products[id]; !ok {
		return models.ErrProductNotFound
	}
	delete(r.s.products, id)
	return nil
}

func (r memoryProducts) Count(ctx context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.products), nil
}

type memoryOrders struct{ s *MemoryStore }

func (r memoryOrders) Create(ctx context.Context, o *models.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	// Check every line before touching stock so a failure writes nothing.
	requested := make(map[int64]int)
	for _, item := range o.Items {
		requested[item.ProductID] += item.Quantity
	}
	for id, qty := range requested {
		p, ok := r.s.products[id]
		if !ok {
			return models.ErrProductNotFound
		}
		if p.Stock < qty {
			return &models.StockError{ProductID: id, Requested: qty, Available: p.Stock}
		}
	}

	now := r.s.now()
	for id, qty := range requested {
		p := r.s.products[id]
		p.Stock -= qty
		p.UpdatedAt = now
		r.s.products[id] = p
	}

	o.ID = r.s.nextOrderID
	r.s.nextOrderID++
	o.OrderNumber = models.FormatOrderNumber(o.ID)
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = o.CreatedAt
	r.s.orders[o.ID] = copyOrder(*o)
	return nil
}

func (r memoryOrders) Get(ctx context.Context, id int64) (*models.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	o, ok := r.s.orders[id]
	if !ok {
		return nil, models.ErrOrderNotFound
	}
	o = copyOrder(o)
	return &o, nil
}

func (r memoryOrders) List(ctx context.Context) ([]models.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	res := make([]models.Order, 0, len(r.s.orders))
	for _, o := range r.s.orders {
		res = append(res, copyOrder(o))
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (r memoryOrders) ListByUser(ctx context.Context, userID int64) ([]models.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	res := []models.Order{}
	for _, o := range r.s.orders {
		if o.UserID == userID {
			res = append(res, copyOrder(o))
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID > res[j].ID })
	return res, nil
}

func (r memoryOrders) Transition(ctx context.Context, id int64, from, to models.OrderStatus) (*models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	o, ok := r.s.orders[id]
	if !ok {
		return nil, models.ErrOrderNotFound
	}
	if o.Status != from {
		return nil, &models.TransitionError{From: o.Status, To: to}
	}

	now := r.s.now()
	if to == models.StatusCancelled {
		for _, item := range o.Items {
			// Deleted products are not resurrected.
			if p, ok := r.s.products[item.ProductID]; ok {
				p.Stock += item.Quantity
				p.UpdatedAt = now
				r.s.products[item.ProductID] = p
			}
		}
	}

	o.Status = to
	o.UpdatedAt = now
	r.s.orders[id] = o
	o = copyOrder(o)
	return &o, nil
}

func (r memoryOrders) Count(ctx context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.orders), nil
}

func copyOrder(o models.Order) models.Order {
	items := make([]models.OrderItem, len(o.Items))
	copy(items, o.Items)
	o.Items = items
	return o
}
