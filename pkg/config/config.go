package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration from environment variables
type Config struct {
	// Application
	AppPort           string
	CORSAllowedOrigin string

	// Storage
	StorageDriver string // memory, mysql or postgres
	DBHost        string
	DBPort        string
	DBUser        string
	DBPassword    string
	DBName        string
	DatabaseURL   string // postgres connection string
	SeedData      bool

	// Directory
	PrimaryAdminEmail    string
	PrimaryAdminName     string
	PrimaryAdminPassword string
	BcryptCost           int

	// Catalog
	ProductCacheTTL        time.Duration
	CatalogExtraCategories []string

	// Events
	KafkaBrokers     string
	KafkaOrdersTopic string

	// Metrics / OpenTelemetry
	MetricsExporter           string // otlp, prometheus or none
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPHeaders   string // e.g. signoz-ingestion-key=<key>
	OTELExporterOTLPInsecure  bool   // true for http://, false for https://
	OTELServiceName           string
	OTELServiceVersion        string
	OTELDeploymentEnvironment string
}

// LoadConfig loads configuration from .env file and environment variables with defaults
func LoadConfig() *Config {
	// .env is optional; only report real parse errors
	if err := godotenv.Load(); err != nil {
		if _, ok := err.(*os.PathError); !ok {
			log.Printf("Warning: Error loading .env file: %v", err)
		}
	}

	return &Config{
		AppPort:           getEnv("APP_PORT", "8080"),
		CORSAllowedOrigin: getEnv("CORS_ALLOWED_ORIGIN", "*"),

		StorageDriver: strings.ToLower(getEnv("STORAGE_DRIVER", "memory")),
		DBHost:        getEnv("DB_HOST", "localhost"),
		DBPort:        getEnv("DB_PORT", "3306"),
		DBUser:        getEnv("DB_USER", "root"),
		DBPassword:    getEnv("DB_PASSWORD", "password"),
		DBName:        getEnv("DB_NAME", "tecnokaijin"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		SeedData:      getEnvBool("SEED_DATA", true),

		PrimaryAdminEmail:    getEnv("PRIMARY_ADMIN_EMAIL", "admin@tecnokaijin.cl"),
		PrimaryAdminName:     getEnv("PRIMARY_ADMIN_NAME", "Administrador"),
		PrimaryAdminPassword: getEnv("PRIMARY_ADMIN_PASSWORD", "admin123"),
		BcryptCost:           getEnvInt("BCRYPT_COST", 10),

		ProductCacheTTL:        getEnvDuration("PRODUCT_CACHE_TTL", 5*time.Minute),
		CatalogExtraCategories: getEnvList("CATALOG_EXTRA_CATEGORIES"),

		KafkaBrokers:     getEnv("KAFKA_BROKERS", ""),
		KafkaOrdersTopic: getEnv("KAFKA_ORDERS_TOPIC", "tecnokaijin.orders"),

		MetricsExporter:           strings.ToLower(getEnv("METRICS_EXPORTER", "none")),
		OTELExporterOTLPEndpoint:  getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		OTELExporterOTLPHeaders:   getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
		OTELExporterOTLPInsecure:  getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELServiceName:           getEnv("OTEL_SERVICE_NAME", "tecnokaijin-storefront"),
		OTELServiceVersion:        getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
		OTELDeploymentEnvironment: getEnv("OTEL_DEPLOYMENT_ENVIRONMENT", "development"),
	}
}

// Validate reports settings that cannot work together
func (c *Config) Validate() error {
	var errs []error
	switch c.StorageDriver {
	case "memory", "mysql":
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when STORAGE_DRIVER=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver))
	}
	switch c.MetricsExporter {
	case "otlp", "prometheus", "none":
	default:
		errs = append(errs, fmt.Errorf("unknown METRICS_EXPORTER %q", c.MetricsExporter))
	}
	// bcrypt.MinCost and bcrypt.MaxCost
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be between 4 and 31, got %d", c.BcryptCost))
	}
	if c.PrimaryAdminEmail == "" {
		errs = append(errs, errors.New("PRIMARY_ADMIN_EMAIL must not be empty"))
	}
	if len(c.PrimaryAdminPassword) < 6 {
		errs = append(errs, errors.New("PRIMARY_ADMIN_PASSWORD must be at least 6 characters"))
	}
	if _, err := strconv.Atoi(c.AppPort); err != nil {
		errs = append(errs, fmt.Errorf("APP_PORT %q is not a number", c.AppPort))
	}
	return errors.Join(errs...)
}

// GetDSN returns the DSN for the configured SQL driver
func (c *Config) GetDSN() string {
	if c.StorageDriver == "postgres" {
		return c.DatabaseURL
	}
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?parseTime=true&charset=utf8mb4&loc=UTC"
}

// GetAppPortInt returns the application port as an integer
func (c *Config) GetAppPortInt() int {
	port, err := strconv.Atoi(c.AppPort)
	if err != nil {
		return 8080
	}
	return port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes":
			return true
		}
		return false
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: %s=%q is not a number, using %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Warning: %s=%q is not a duration, using %s", key, value, defaultValue)
		return defaultValue
	}
	return d
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
