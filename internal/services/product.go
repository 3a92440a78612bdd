package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/tecnokaijin/storefront/internal/metrics"
	"github.com/tecnokaijin/storefront/internal/models"
	"github.com/tecnokaijin/storefront/internal/repository"
)

// ProductCache holds recently read products for a fixed TTL. Each product
// has a version that Invalidate bumps; a read started before an invalidation
// is not cached.
type ProductCache struct {
	mu       sync.RWMutex
	items    map[int64]cachedProduct
	versions map[int64]uint64
	ttl      time.Duration
	now      func() time.Time
}

type cachedProduct struct {
	product models.Product
	expires time.Time
}

func NewProductCache(ttl time.Duration) *ProductCache {
	return &ProductCache{
		items:    make(map[int64]cachedProduct),
		versions: make(map[int64]uint64),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (c *ProductCache) get(id int64) (models.Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cached, ok := c.items[id]
	if !ok || !c.now().Before(cached.expires) {
		return models.Product{}, false
	}
	return cached.product, true
}

// version is taken before reading the store and handed back to put
func (c *ProductCache) version(id int64) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.versions[id]
}

func (c *ProductCache) put(p models.Product, seen uint64) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.versions[p.ID] != seen {
		return
	}
	c.items[p.ID] = cachedProduct{product: p, expires: c.now().Add(c.ttl)}
}

// Invalidate drops the given products from the cache
func (c *ProductCache) Invalidate(ids ...int64) {
	c.mu.Lock()
	for _, id := range ids {
		delete(c.items, id)
		c.versions[id]++
	}
	c.mu.Unlock()
}

// ProductService is the catalog: listing, lookups and admin maintenance
type ProductService struct {
	repo    repository.ProductRepository
	metrics *metrics.AppMetrics
	cache   *ProductCache
}

// NewProductService creates a new product service
func NewProductService(repo repository.ProductRepository, m *metrics.AppMetrics, cacheTTL time.Duration) *ProductService {
	return &ProductService{
		repo:    repo,
		metrics: m,
		cache:   NewProductCache(cacheTTL),
	}
}

// ListProducts returns the products matching filter, ordered by ID
func (s *ProductService) ListProducts(ctx context.Context, filter models.ProductFilter) ([]models.Product, error) {
	products, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return filter.Apply(products), nil
}

// GetProduct returns a product by ID, served from the cache when fresh
func (s *ProductService) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	if p, ok := s.cache.get(id); ok {
		s.metrics.RecordCache(ctx, "product", true)
		s.recordView(ctx, p)
		return &p, nil
	}
	s.metrics.RecordCache(ctx, "product", false)

	seen := s.cache.version(id)
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.put(*p, seen)
	s.recordView(ctx, *p)
	return p, nil
}

func (s *ProductService) recordView(ctx context.Context, p models.Product) {
	s.metrics.ProductsViewed.Add(ctx, 1, metric.WithAttributes(s.metrics.WithServiceName([]attribute.KeyValue{
		attribute.Int64("product_id", p.ID),
		attribute.String("product_category", p.Category),
	})...))
	s.metrics.RecordInventory(ctx, p.ID, p.Category, p.Stock)
}

// CreateProduct validates and stores a new product
func (s *ProductService) CreateProduct(ctx context.Context, in models.ProductInput) (*models.Product, error) {
	p := in.Product()
	if err := models.ValidateProduct(p); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, &p); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	s.metrics.RecordInventory(ctx, p.ID, p.Category, p.Stock)
	log.Printf("[CATALOG] Product created: product_id=%d, name=%q, stock=%d", p.ID, p.Name, p.Stock)
	return &p, nil
}

// UpdateProduct merges patch into the stored product and re-validates it.
// The merge runs against the row as stored at write time.
func (s *ProductService) UpdateProduct(ctx context.Context, id int64, patch models.ProductPatch) (*models.Product, error) {
	p, err := s.repo.Update(ctx, id, func(p *models.Product) error {
		merged := patch.Apply(*p)
		if err := models.ValidateProduct(merged); err != nil {
			return err
		}
		*p = merged
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(id)
	s.metrics.RecordInventory(ctx, p.ID, p.Category, p.Stock)
	log.Printf("[CATALOG] Product updated: product_id=%d", id)
	return p, nil
}

// DeleteProduct removes a product. Orders keep their copied line data.
func (s *ProductService) DeleteProduct(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.cache.Invalidate(id)
	log.Printf("[CATALOG] Product deleted: product_id=%d", id)
	return nil
}

// Invalidate drops cached copies after stock changes made elsewhere
func (s *ProductService) Invalidate(ids ...int64) {
	s.cache.Invalidate(ids...)
}

// Count returns the catalog size
func (s *ProductService) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}
