package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"golang.org/x/sync/errgroup"

	"github.com/tecnokaijin/storefront/internal/api"
	"github.com/tecnokaijin/storefront/internal/db"
	"github.com/tecnokaijin/storefront/internal/events"
	"github.com/tecnokaijin/storefront/internal/metrics"
	"github.com/tecnokaijin/storefront/internal/models"
	"github.com/tecnokaijin/storefront/internal/repository"
	"github.com/tecnokaijin/storefront/internal/seed"
	"github.com/tecnokaijin/storefront/internal/services"
	"github.com/tecnokaijin/storefront/pkg/config"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
	log.Println("Server exited")
}

func run() error {
	// Load configuration
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	for _, c := range cfg.CatalogExtraCategories {
		models.RegisterCategory(c)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize OpenTelemetry metrics
	appMetrics, meterProvider, err := metrics.InitMetrics(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down meter provider: %v", err)
		}
	}()

	store, err := openStore(ctx, cfg, meterProvider, appMetrics)
	if err != nil {
		return err
	}
	defer store.Close()

	publisher := events.NewPublisher(cfg.KafkaBrokers, cfg.KafkaOrdersTopic)
	defer publisher.Close()

	// Initialize services
	userService, err := services.NewUserService(store.Users(), appMetrics, cfg.BcryptCost, cfg.PrimaryAdminEmail)
	if err != nil {
		return fmt.Errorf("failed to create user service: %w", err)
	}
	productService := services.NewProductService(store.Products(), appMetrics, cfg.ProductCacheTTL)
	cartService := services.NewCartService(store.Products())
	orderService := services.NewOrderService(store, cartService, productService, publisher, appMetrics)
	sessions := services.NewSessionStore(appMetrics)

	admin, err := userService.EnsurePrimaryAdmin(ctx, cfg.PrimaryAdminName, cfg.PrimaryAdminPassword)
	if err != nil {
		return fmt.Errorf("failed to ensure primary admin: %w", err)
	}

	if cfg.SeedData {
		catalog, err := seed.DefaultCatalog()
		if err != nil {
			return err
		}
		if err := seed.NewSeeder(userService, productService, orderService).Run(ctx, catalog, admin); err != nil {
			return fmt.Errorf("failed to seed data: %w", err)
		}
	}

	app := api.NewApp(cfg, appMetrics, productService, cartService, orderService, userService, sessions)
	router := mux.NewRouter()
	app.SetupRoutes(router)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.GetAppPortInt()),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("Server starting on port %s (storage: %s)", cfg.AppPort, cfg.StorageDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed to start: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// openStore picks the repository backend named by STORAGE_DRIVER
func openStore(ctx context.Context, cfg *config.Config, provider *sdkmetric.MeterProvider, m *metrics.AppMetrics) (repository.Store, error) {
	if cfg.StorageDriver == "memory" {
		log.Printf("[DB] using in-memory storage")
		return repository.NewMemoryStore(), nil
	}

	database, err := db.NewDB(cfg.StorageDriver, cfg.GetDSN(), provider, cfg.OTELServiceName)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return repository.NewSQLStore(database, m), nil
}
