package metrics

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"

	"github.com/tecnokaijin/storefront/pkg/config"
)

// Exporter names accepted by METRICS_EXPORTER
const (
	ExporterOTLP       = "otlp"
	ExporterPrometheus = "prometheus"
	ExporterNone       = "none"
)

// AppMetrics holds all application metrics
type AppMetrics struct {
	// HTTP Metrics
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestsErrors  metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	// Database Metrics
	DBQueriesTotal  metric.Int64Counter
	DBQueryDuration metric.Float64Histogram

	// Business Metrics
	OrdersCreated          metric.Int64Counter
	OrderStatusTransitions metric.Int64Counter
	ProductsViewed         metric.Int64Counter
	CartItemsCount         metric.Int64Gauge
	InventoryLevel         metric.Int64Gauge
	RevenueTotal           metric.Int64Counter

	// Application Metrics
	ActiveUsersCount metric.Int64Gauge
	CacheHits        metric.Int64Counter
	CacheMisses      metric.Int64Counter
	EventsPublished  metric.Int64Counter

	serviceName string
	scrape      http.Handler
}

// InitMetrics builds the meter provider selected by cfg.MetricsExporter and
// registers it globally.
func InitMetrics(ctx context.Context, cfg *config.Config) (*AppMetrics, *sdkmetric.MeterProvider, error) {
	res, err := buildResource(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	var scrape http.Handler

	switch cfg.MetricsExporter {
	case ExporterOTLP:
		reader, err := otlpReader(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, sdkmetric.WithReader(reader))
		log.Printf("[METRICS] exporting OTLP to %s/v1/metrics every 10s", cfg.OTELExporterOTLPEndpoint)

	case ExporterPrometheus:
		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(exporter))
		scrape = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
		log.Printf("[METRICS] serving prometheus metrics at /metrics")

	case ExporterNone, "":
		log.Printf("[METRICS] exporter disabled, instruments are recorded in-process only")

	default:
		return nil, nil, fmt.Errorf("unknown metrics exporter %q", cfg.MetricsExporter)
	}

	meterProvider := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(meterProvider)

	m, err := NewAppMetrics(meterProvider.Meter(cfg.OTELServiceName), cfg.OTELServiceName)
	if err != nil {
		return nil, nil, err
	}
	m.scrape = scrape
	return m, meterProvider, nil
}

func buildResource(ctx context.Context, cfg *config.Config) (*resource.Resource, error) {
	// OTEL_RESOURCE_ATTRIBUTES and OTEL_SERVICE_NAME are read first; explicit values win.
	envRes, err := resource.New(ctx, resource.WithFromEnv())
	if err != nil {
		envRes = resource.Empty()
	}

	explicitRes, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.OTELServiceName),
			semconv.ServiceVersion(cfg.OTELServiceVersion),
			attribute.String("deployment.environment", cfg.OTELDeploymentEnvironment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create explicit resource: %w", err)
	}

	res, err := resource.Merge(envRes, explicitRes)
	if err != nil {
		return nil, fmt.Errorf("failed to merge resources: %w", err)
	}
	return res, nil
}

func otlpReader(ctx context.Context, cfg *config.Config) (sdkmetric.Reader, error) {
	// WithEndpoint expects host:port without a scheme
	exporterOpts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(cfg.OTELExporterOTLPEndpoint),
		otlpmetrichttp.WithURLPath("/v1/metrics"),
	}
	if headers := parseHeaders(cfg.OTELExporterOTLPHeaders); len(headers) > 0 {
		exporterOpts = append(exporterOpts, otlpmetrichttp.WithHeaders(headers))
	}
	if cfg.OTELExporterOTLPInsecure {
		exporterOpts = append(exporterOpts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}
	return sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second)), nil
}

// Default histogram buckets in milliseconds, up to 60s
var buckets = []float64{2, 4, 6, 8, 10, 50, 100, 200, 400, 800, 1000, 1400, 2000, 5000, 10000, 15000, 20000, 30000, 45000, 60000}

// instruments creates instruments and keeps the first error
type instruments struct {
	meter metric.Meter
	err   error
}

func (b *instruments) counter(name, desc, unit string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	b.keep(name, err)
	return c
}

func (b *instruments) gauge(name, desc string) metric.Int64Gauge {
	g, err := b.meter.Int64Gauge(name, metric.WithDescription(desc), metric.WithUnit("1"))
	b.keep(name, err)
	return g
}

func (b *instruments) histogram(name, desc string) metric.Float64Histogram {
	h, err := b.meter.Float64Histogram(name,
		metric.WithDescription(desc),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(buckets...),
	)
	b.keep(name, err)
	return h
}

func (b *instruments) keep(name string, err error) {
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("failed to create %s: %w", name, err)
	}
}

// NewAppMetrics creates every instrument on meter
func NewAppMetrics(meter metric.Meter, serviceName string) (*AppMetrics, error) {
	b := &instruments{meter: meter}
	m := &AppMetrics{
		HTTPRequestsTotal:   b.counter("http.server.request.count", "Total number of HTTP requests", "1"),
		HTTPRequestsErrors:  b.counter("http.server.request.error.count", "Total number of HTTP error requests", "1"),
		HTTPRequestDuration: b.histogram("http.server.request.duration", "HTTP request duration in milliseconds"),

		DBQueriesTotal:  b.counter("db.client.queries.count", "Total number of database queries", "1"),
		DBQueryDuration: b.histogram("db.client.queries.duration", "Database query duration in milliseconds"),

		OrdersCreated:          b.counter("orders_created_total", "Total number of orders created", "1"),
		OrderStatusTransitions: b.counter("order_status_transitions_total", "Total number of applied order status changes", "1"),
		ProductsViewed:         b.counter("products_viewed_total", "Total number of product views", "1"),
		CartItemsCount:         b.gauge("cart_items_count", "Units in the most recently checked out cart"),
		InventoryLevel:         b.gauge("inventory_level", "Current inventory level for products"),
		RevenueTotal:           b.counter("revenue_total", "Total revenue generated", "CLP"),

		ActiveUsersCount: b.gauge("active_users_count", "Users holding an open session"),
		CacheHits:        b.counter("cache_hits_total", "Total number of cache hits", "1"),
		CacheMisses:      b.counter("cache_misses_total", "Total number of cache misses", "1"),
		EventsPublished:  b.counter("events_published_total", "Total number of domain events published", "1"),

		serviceName: serviceName,
	}
	if b.err != nil {
		return nil, b.err
	}
	return m, nil
}

// ScrapeHandler serves the prometheus registry, or nil for other exporters
func (m *AppMetrics) ScrapeHandler() http.Handler {
	return m.scrape
}

// WithServiceName adds service.name to attributes
func (m *AppMetrics) WithServiceName(attrs []attribute.KeyValue) []attribute.KeyValue {
	return append(attrs, attribute.String("service.name", m.serviceName))
}

// RecordDBQuery records database query metrics including the SQL statement
func (m *AppMetrics) RecordDBQuery(ctx context.Context, system, operation, table, statement string, start time.Time, success bool) {
	duration := time.Since(start).Milliseconds()

	status := "success"
	if !success {
		status = "error"
	}

	attrs := m.WithServiceName([]attribute.KeyValue{
		attribute.String("db.operation", operation),
		attribute.String("db.sql.table", table),
		attribute.String("db.statement", statement),
		attribute.String("db.system", system),
		attribute.String("status", status),
	})

	m.DBQueriesTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.DBQueryDuration.Record(ctx, float64(duration), metric.WithAttributes(attrs...))
}

// RecordOrder records a newly created order
func (m *AppMetrics) RecordOrder(ctx context.Context, total int64, units int, payment string) {
	attrs := metric.WithAttributes(m.WithServiceName([]attribute.KeyValue{
		attribute.String("payment.method", payment),
	})...)
	m.OrdersCreated.Add(ctx, 1, attrs)
	m.RevenueTotal.Add(ctx, total, attrs)
	m.CartItemsCount.Record(ctx, int64(units), metric.WithAttributes(m.WithServiceName(nil)...))
}

// RecordTransition records an applied order status change
func (m *AppMetrics) RecordTransition(ctx context.Context, from, to string) {
	m.OrderStatusTransitions.Add(ctx, 1, metric.WithAttributes(m.WithServiceName([]attribute.KeyValue{
		attribute.String("order.status.from", from),
		attribute.String("order.status.to", to),
	})...))
}

// RecordInventory records the stock level of one product
func (m *AppMetrics) RecordInventory(ctx context.Context, productID int64, category string, stock int) {
	m.InventoryLevel.Record(ctx, int64(stock), metric.WithAttributes(m.WithServiceName([]attribute.KeyValue{
		attribute.Int64("product.id", productID),
		attribute.String("product.category", category),
	})...))
}

// RecordCache counts a cache lookup for cache
func (m *AppMetrics) RecordCache(ctx context.Context, cache string, hit bool) {
	attrs := metric.WithAttributes(m.WithServiceName([]attribute.KeyValue{
		attribute.String("cache.name", cache),
	})...)
	if hit {
		m.CacheHits.Add(ctx, 1, attrs)
		return
	}
	m.CacheMisses.Add(ctx, 1, attrs)
}

// parseHeaders parses header string in format "key1=value1,key2=value2"
func parseHeaders(headerStr string) map[string]string {
	headers := make(map[string]string)
	if headerStr == "" {
		return headers
	}

	for _, pair := range strings.Split(headerStr, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) == 2 {
			headers[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return headers
}
