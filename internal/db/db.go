package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Supported drivers
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// DB wraps the database connection with metrics
type DB struct {
	*sql.DB
	Driver string
}

// NewDB opens an instrumented connection for driver ("mysql" or "postgres")
func NewDB(driver, dsn string, provider metric.MeterProvider, serviceName string) (*DB, error) {
	sqlDriver, system, err := driverInfo(driver)
	if err != nil {
		return nil, err
	}

	// Register otelsql wrapper for the underlying driver
	driverName, err := otelsql.Register(sqlDriver,
		otelsql.WithAttributes(
			attribute.String("db.system", system),
		),
		otelsql.WithMeterProvider(provider),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register otelsql: %w", err)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Register otelsql's built-in stats reporting
	if err := otelsql.RegisterDBStatsMetrics(db,
		otelsql.WithMeterProvider(provider),
		otelsql.WithAttributes(
			attribute.String("db.system", system),
			attribute.String("service.name", serviceName),
		)); err != nil {
		log.Printf("Warning: failed to register otelsql stats metrics: %v", err)
	}

	return &DB{DB: db, Driver: driver}, nil
}

func driverInfo(driver string) (sqlDriver, system string, err error) {
	switch driver {
	case DriverMySQL:
		return "mysql", "mysql", nil
	case DriverPostgres:
		return "pgx", "postgresql", nil
	default:
		return "", "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// System returns the db.system attribute value for this connection
func (db *DB) System() string {
	_, system, _ := driverInfo(db.Driver)
	return system
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}

// Rebind converts ? placeholders to the driver's bind style
func (db *DB) Rebind(query string) string {
	return Rebind(db.Driver, query)
}

// Rebind converts ? placeholders to $n for postgres. Quoted ? are left alone.
func Rebind(driver, query string) string {
	if driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for _, r := range query {
		switch {
		case r == '\'':
			inQuote = !inQuote
			b.WriteRune(r)
		case r == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Schema returns the embedded schema for driver
func Schema(driver string) (string, error) {
	var name string
	switch driver {
	case DriverMySQL:
		name = "schema/mysql.sql"
	case DriverPostgres:
		name = "schema/postgres.sql"
	default:
		return "", fmt.Errorf("no schema for driver %q", driver)
	}
	data, err := schemaFS.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("failed to read schema: %w", err)
	}
	return string(data), nil
}

// Migrate applies the embedded schema for this connection's driver
func (db *DB) Migrate(ctx context.Context) error {
	schemaSQL, err := Schema(db.Driver)
	if err != nil {
		return err
	}
	return db.InitSchema(ctx, schemaSQL)
}

// InitSchema initializes the database schema
// It splits the SQL into individual statements and executes them one by one
func (db *DB) InitSchema(ctx context.Context, schemaSQL string) error {
	statements := splitSQLStatements(schemaSQL)

	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute statement %d: %w\nStatement: %s", i+1, err, stmt)
		}
	}

	log.Printf("[DB] %s schema initialized (%d statements)", db.Driver, len(statements))
	return nil
}

// splitSQLStatements drops -- comment lines and splits on semicolons
func splitSQLStatements(sql string) []string {
	lines := strings.Split(sql, "\n")
	var cleanedLines []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" && !strings.HasPrefix(trimmed, "--") {
			cleanedLines = append(cleanedLines, line)
		}
	}

	cleanedSQL := strings.Join(cleanedLines, "\n")
	statements := strings.Split(cleanedSQL, ";")

	var result []string
	for _, stmt := range statements {
		stmt = strings.TrimSpace(stmt)
		if stmt != "" {
			result = append(result, stmt)
		}
	}

	return result
}
