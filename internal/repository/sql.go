package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tecnokaijin/storefront/internal/db"
	"github.com/tecnokaijin/storefront/internal/metrics"
	"github.com/tecnokaijin/storefront/internal/models"
)

// SQLStore persists collections in MySQL or PostgreSQL
type SQLStore struct {
	db      *db.DB
	metrics *metrics.AppMetrics
	now     func() time.Time
}

// NewSQLStore creates a store over an open connection
func NewSQLStore(database *db.DB, m *metrics.AppMetrics) *SQLStore {
	return &SQLStore{db: database, metrics: m, now: func() time.Time { return time.Now().UTC() }}
}

func (s *SQLStore) Users() UserRepository       { return sqlUsers{s} }
func (s *SQLStore) Products() ProductRepository { return sqlProducts{s} }
func (s *SQLStore) Orders() OrderRepository     { return sqlOrders{s} }
func (s *SQLStore) Close() error                { return s.db.Close() }

// querier is satisfied by *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLStore) observe(ctx context.Context, op, table, stmt string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordDBQuery(ctx, s.db.System(), op, table, stmt, start, err == nil || errors.Is(err, sql.ErrNoRows))
}

func (s *SQLStore) exec(ctx context.Context, q querier, op, table, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := q.ExecContext(ctx, s.db.Rebind(query), args...)
	s.observe(ctx, op, table, query, start, err)
	return res, err
}

func (s *SQLStore) query(ctx context.Context, q querier, table, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := q.QueryContext(ctx, s.db.Rebind(query), args...)
	s.observe(ctx, "SELECT", table, query, start, err)
	return rows, err
}

func (s *SQLStore) queryRow(ctx context.Context, q querier, table, query string, dest ...any) error {
	return s.queryRowArgs(ctx, q, table, query, nil, dest...)
}

func (s *SQLStore) queryRowArgs(ctx context.Context, q querier, table, query string, args []any, dest ...any) error {
	start := time.Now()
	err := q.QueryRowContext(ctx, s.db.Rebind(query), args...).Scan(dest...)
	s.observe(ctx, "SELECT", table, query, start, err)
	return err
}

// insert runs an INSERT and returns the generated id
func (s *SQLStore) insert(ctx context.Context, q querier, table, query string, args ...any) (int64, error) {
	if s.db.Driver == db.DriverPostgres {
		var id int64
		start := time.Now()
		err := q.QueryRowContext(ctx, s.db.Rebind(query+" RETURNING id"), args...).Scan(&id)
		s.observe(ctx, "INSERT", table, query, start, err)
		return id, err
	}
	res, err := s.exec(ctx, q, "INSERT", table, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// runAtomic runs fn in a transaction, committing only when fn succeeds
func (s *SQLStore) runAtomic(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// reservations sums the requested quantity per product. The ids come back in
// ascending order so concurrent transactions take row locks in the same order.
func reservations(items []models.OrderItem) ([]int64, map[int64]int) {
	requested := make(map[int64]int)
	var ids []int64
	for _, item := range items {
		if _, seen := requested[item.ProductID]; !seen {
			ids = append(ids, item.ProductID)
		}
		requested[item.ProductID] += item.Quantity
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, requested
}

func rowsAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

type sqlUsers struct{ s *SQLStore }

const userColumns = "id, email, name, password_hash, role, created_at"

func scanUser(sc interface{ Scan(...any) error }) (*models.User, error) {
	var u models.User
	if err := sc.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Role, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r sqlUsers) Create(ctx context.Context, u *models.User) error {
	u.Email = models.NormalizeEmail(u.Email)
	if u.CreatedAt.IsZero() {
		u.CreatedAt = r.s.now()
	}
	id, err := r.s.insert(ctx, r.s.db, "users",
		"INSERT INTO users (email, name, password_hash, role, created_at) VALUES (?, ?, ?, ?, ?)",
		u.Email, u.Name, u.PasswordHash, string(u.Role), u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrDuplicateEmail
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	u.ID = id
	return nil
}

func (r sqlUsers) getBy(ctx context.Context, column string, value any) (*models.User, error) {
	start := time.Now()
	query := "SELECT " + userColumns + " FROM users WHERE " + column + " = ?"
	u, err := scanUser(r.s.db.QueryRowContext(ctx, r.s.db.Rebind(query), value))
	r.s.observe(ctx, "SELECT", "users", query, start, err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

func (r sqlUsers) Get(ctx context.Context, id int64) (*models.User, error) {
	return r.getBy(ctx, "id", id)
}

func (r sqlUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getBy(ctx, "email", models.NormalizeEmail(email))
}

func (r sqlUsers) List(ctx context.Context) ([]models.User, error) {
	rows, err := r.s.query(ctx, r.s.db, "users", "SELECT "+userColumns+" FROM users ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (r sqlUsers) Update(ctx context.Context, u *models.User) error {
	u.Email = models.NormalizeEmail(u.Email)
	res, err := r.s.exec(ctx, r.s.db, "UPDATE", "users",
		"UPDATE users SET email = ?, name = ?, password_hash = ?, role = ? WHERE id = ?",
		u.Email, u.Name, u.PasswordHash, string(u.Role), u.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrDuplicateEmail
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	// MySQL reports 0 affected rows when nothing changed
	if err := rowsAffected(res, models.ErrUserNotFound); err != nil {
		if _, getErr := r.Get(ctx, u.ID); getErr != nil {
			return getErr
		}
	}
	return nil
}

func (r sqlUsers) Delete(ctx context.Context, id int64) error {
	res, err := r.s.exec(ctx, r.s.db, "DELETE", "users", "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return rowsAffected(res, models.ErrUserNotFound)
}

func (r sqlUsers) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.s.queryRow(ctx, r.s.db, "users", "SELECT COUNT(*) FROM users", &n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

type sqlProducts struct{ s *SQLStore }

const productColumns = "id, name, price, category, image, stock, description, specs, created_at, updated_at"

func scanProduct(sc interface{ Scan(...any) error }) (*models.Product, error) {
	var p models.Product
	err := sc.Scan(&p.ID, &p.Name, &p.Price, &p.Category, &p.Image, &p.Stock,
		&p.Description, &p.Specs, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r sqlProducts) Create(ctx context.Context, p *models.Product) error {
	now := r.s.now()
	id, err := r.s.insert(ctx, r.s.db, "products",
		"INSERT INTO products (name, price, category, image, stock, description, specs, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		p.Name, p.Price, p.Category, p.Image, p.Stock, p.Description, p.Specs, now, now)
	if err != nil {
		return fmt.Errorf("failed to insert product: %w", err)
	}
	p.ID = id
	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

func (r sqlProducts) Get(ctx context.Context, id int64) (*models.Product, error) {
	start := time.Now()
	query := "SELECT " + productColumns + " FROM products WHERE id = ?"
	p, err := scanProduct(r.s.db.QueryRowContext(ctx, r.s.db.Rebind(query), id))
	r.s.observe(ctx, "SELECT", "products", query, start, err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

func (r sqlProducts) List(ctx context.Context) ([]models.Product, error) {
	rows, err := r.s.query(ctx, r.s.db, "products", "SELECT "+productColumns+" FROM products ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (r sqlProducts) Update(ctx context.Context, id int64, change func(p *models.Product) error) (*models.Product, error) {
	var updated *models.Product
	err := r.s.runAtomic(ctx, func(tx *sql.Tx) error {
		start := time.Now()
		query := "SELECT " + productColumns + " FROM products WHERE id = ? FOR UPDATE"
		existing, err := scanProduct(tx.QueryRowContext(ctx, r.s.db.Rebind(query), id))
		r.s.observe(ctx, "SELECT", "products", query, start, err)
		if errors.Is(err, sql.ErrNoRows) {
			return models.ErrProductNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock product: %w", err)
		}

		p := *existing
		if err := change(&p); err != nil {
			return err
		}
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
		p.UpdatedAt = r.s.now()
		_, err = r.s.exec(ctx, tx, "UPDATE", "products",
			"UPDATE products SET name = ?, price = ?, category = ?, image = ?, stock = ?, description = ?, specs = ?, updated_at = ? WHERE id = ?",
			p.Name, p.Price, p.Category, p.Image, p.Stock, p.Description, p.Specs, p.UpdatedAt, p.ID)
		if err != nil {
			return fmt.Errorf("failed to update product: %w", err)
		}
		updated = &p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r sqlProducts) Delete(ctx context.Context, id int64) error {
	res, err := r.s.exec(ctx, r.s.db, "DELETE", "products", "DELETE FROM products WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	return rowsAffected(res, models.ErrProductNotFound)
}

func (r sqlProducts) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.s.queryRow(ctx, r.s.db, "products", "SELECT COUNT(*) FROM products", &n); err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return n, nil
}

type sqlOrders struct{ s *SQLStore }

const orderColumns = "id, user_id, user_name, user_email, total, ship_full_name, ship_address, ship_city, ship_region, ship_phone, payment_method, status, created_at, updated_at"

func scanOrder(sc interface{ Scan(...any) error }) (*models.Order, error) {
	var o models.Order
	a := &o.ShippingAddress
	err := sc.Scan(&o.ID, &o.UserID, &o.User.Name, &o.User.Email, &o.Total,
		&a.FullName, &a.Address, &a.City, &a.Region, &a.Phone,
		&o.PaymentMethod, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.OrderNumber = models.FormatOrderNumber(o.ID)
	o.Items = []models.OrderItem{}
	return &o, nil
}

func (r sqlOrders) Create(ctx context.Context, o *models.Order) error {
	ids, requested := reservations(o.Items)

	return r.s.runAtomic(ctx, func(tx *sql.Tx) error {
		now := r.s.now()

		// Lock product rows in ascending id order, then check before any write
		for _, id := range ids {
			var stock int
			err := r.s.queryRowArgs(ctx, tx, "products", "SELECT stock FROM products WHERE id = ? FOR UPDATE", []any{id}, &stock)
			if errors.Is(err, sql.ErrNoRows) {
				return models.ErrProductNotFound
			}
			if err != nil {
				return fmt.Errorf("failed to lock product %d: %w", id, err)
			}
			if stock < requested[id] {
				return &models.StockError{ProductID: id, Requested: requested[id], Available: stock}
			}
		}
		for _, id := range ids {
			if _, err := r.s.exec(ctx, tx, "UPDATE", "products",
				"UPDATE products SET stock = stock - ?, updated_at = ? WHERE id = ?",
				requested[id], now, id); err != nil {
				return fmt.Errorf("failed to reserve stock: %w", err)
			}
		}

		if o.CreatedAt.IsZero() {
			o.CreatedAt = now
		}
		o.UpdatedAt = o.CreatedAt
		a := o.ShippingAddress
		id, err := r.s.insert(ctx, tx, "orders",
			"INSERT INTO orders (user_id, user_name, user_email, total, ship_full_name, ship_address, ship_city, ship_region, ship_phone, payment_method, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			o.UserID, o.User.Name, o.User.Email, o.Total, a.FullName, a.Address, a.City, a.Region, a.Phone,
			string(o.PaymentMethod), string(o.Status), o.CreatedAt, o.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert order: %w", err)
		}

		for _, item := range o.Items {
			if _, err := r.s.exec(ctx, tx, "INSERT", "order_items",
				"INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price) VALUES (?, ?, ?, ?, ?)",
				id, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice); err != nil {
				return fmt.Errorf("failed to insert order item: %w", err)
			}
		}

		o.ID = id
		o.OrderNumber = models.FormatOrderNumber(id)
		return nil
	})
}

// attachItems loads order_items for the given orders
func (r sqlOrders) attachItems(ctx context.Context, q querier, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	index := make(map[int64]int, len(orders))
	args := make([]any, len(orders))
	for i, o := range orders {
		index[o.ID] = i
		args[i] = o.ID
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(orders)), ", ")
	rows, err := r.s.query(ctx, q, "order_items",
		"SELECT order_id, product_id, product_name, quantity, unit_price FROM order_items WHERE order_id IN ("+placeholders+") ORDER BY order_id, id",
		args...)
	if err != nil {
		return fmt.Errorf("failed to load order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var orderID int64
		var item models.OrderItem
		if err := rows.Scan(&orderID, &item.ProductID, &item.ProductName, &item.Quantity, &item.UnitPrice); err != nil {
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		i := index[orderID]
		orders[i].Items = append(orders[i].Items, item)
	}
	return rows.Err()
}

func (r sqlOrders) get(ctx context.Context, q querier, id int64) (*models.Order, error) {
	start := time.Now()
	query := "SELECT " + orderColumns + " FROM orders WHERE id = ?"
	o, err := scanOrder(q.QueryRowContext(ctx, r.s.db.Rebind(query), id))
	r.s.observe(ctx, "SELECT", "orders", query, start, err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	orders := []models.Order{*o}
	if err := r.attachItems(ctx, q, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func (r sqlOrders) Get(ctx context.Context, id int64) (*models.Order, error) {
	return r.get(ctx, r.s.db, id)
}

func (r sqlOrders) list(ctx context.Context, query string, args ...any) ([]models.Order, error) {
	rows, err := r.s.query(ctx, r.s.db, "orders", query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	orders := []models.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.attachItems(ctx, r.s.db, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r sqlOrders) List(ctx context.Context) ([]models.Order, error) {
	return r.list(ctx, "SELECT "+orderColumns+" FROM orders ORDER BY id")
}

func (r sqlOrders) ListByUser(ctx context.Context, userID int64) ([]models.Order, error) {
	return r.list(ctx, "SELECT "+orderColumns+" FROM orders WHERE user_id = ? ORDER BY id DESC", userID)
}

func (r sqlOrders) Transition(ctx context.Context, id int64, from, to models.OrderStatus) (*models.Order, error) {
	var updated *models.Order
	err := r.s.runAtomic(ctx, func(tx *sql.Tx) error {
		var current models.OrderStatus
		err := r.s.queryRowArgs(ctx, tx, "orders", "SELECT status FROM orders WHERE id = ? FOR UPDATE", []any{id}, &current)
		if errors.Is(err, sql.ErrNoRows) {
			return models.ErrOrderNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock order: %w", err)
		}
		if current != from {
			return &models.TransitionError{From: current, To: to}
		}

		now := r.s.now()
		if to == models.StatusCancelled {
			// Products deleted since the order was placed are skipped by the join
			query, args := restockQuery(r.s.db.Driver, id, now)
			if _, err := r.s.exec(ctx, tx, "UPDATE", "products", query, args...); err != nil {
				return fmt.Errorf("failed to restock order: %w", err)
			}
		}

		if _, err := r.s.exec(ctx, tx, "UPDATE", "orders",
			"UPDATE orders SET status = ?, updated_at = ? WHERE id = ?", string(to), now, id); err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}

		updated, err = r.get(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// restockQuery returns the statement that gives back the stock of every line of an order
func restockQuery(driver string, orderID int64, now time.Time) (string, []any) {
	if driver == db.DriverPostgres {
		return `UPDATE products p SET stock = p.stock + oi.qty, updated_at = ?
FROM (SELECT product_id, SUM(quantity) AS qty FROM order_items WHERE order_id = ? GROUP BY product_id) oi
WHERE p.id = oi.product_id`, []any{now, orderID}
	}
	return `UPDATE products p
JOIN (SELECT product_id, SUM(quantity) AS qty FROM order_items WHERE order_id = ? GROUP BY product_id) oi ON p.id = oi.product_id
SET p.stock = p.stock + oi.qty, p.updated_at = ?`, []any{orderID, now}
}

func (r sqlOrders) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.s.queryRow(ctx, r.s.db, "orders", "SELECT COUNT(*) FROM orders", &n); err != nil {
		return 0, fmt.Errorf("failed to count orders: %w", err)
	}
	return n, nil
}
