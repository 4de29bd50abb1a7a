package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/stock-settlement/internal/core/domain"
)

// MySQLOrderStore is the engine's view of the external order store: status
// transitions, line items and append-only history.
type MySQLOrderStore struct {
	db *sql.DB
}

func NewMySQLOrderStore(db *sql.DB) *MySQLOrderStore {
	return &MySQLOrderStore{db: db}
}

func (s *MySQLOrderStore) CreateOrder(ctx context.Context, order domain.Order, lines []domain.OrderLine) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO orders (customer_id, status, placed_at)
		VALUES (?, ?, ?)`,
		order.CustomerID, order.Status, order.PlacedAt)
	if err != nil {
		return 0, fmt.Errorf("insert order: %w", err)
	}
	orderID, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, line := range lines {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_lines (order_id, product_variant_id, quantity)
			VALUES (?, ?, ?)`,
			orderID, line.ProductVariantID, line.Quantity); err != nil {
			return 0, fmt.Errorf("insert order line: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO order_status_history (order_id, status, description, created_at)
		VALUES (?, ?, ?, ?)`,
		orderID, order.Status, "order placed", time.Now()); err != nil {
		return 0, fmt.Errorf("insert history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return orderID, nil
}

func (s *MySQLOrderStore) GetOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	var order domain.Order
	err := s.db.QueryRowContext(ctx, `
		SELECT id, customer_id, status, placed_at
		FROM orders WHERE id = ?`, orderID,
	).Scan(&order.ID, &order.CustomerID, &order.Status, &order.PlacedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query order %d: %w", orderID, err)
	}
	return &order, nil
}

func (s *MySQLOrderStore) Lines(ctx context.Context, orderID int64) ([]domain.OrderLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, product_variant_id, quantity
		FROM order_lines WHERE order_id = ?`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query lines for order %d: %w", orderID, err)
	}
	defer rows.Close()

	var lines []domain.OrderLine
	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(&line.OrderID, &line.ProductVariantID, &line.Quantity); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (s *MySQLOrderStore) History(ctx context.Context, orderID int64) ([]domain.StatusHistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, status, description, created_at
		FROM order_status_history
		WHERE order_id = ?
		ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query history for order %d: %w", orderID, err)
	}
	defer rows.Close()

	var entries []domain.StatusHistoryEntry
	for rows.Next() {
		var entry domain.StatusHistoryEntry
		if err := rows.Scan(&entry.OrderID, &entry.Status, &entry.Description, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// TransitionStatus locks the order row, refuses to leave a terminal state,
// and writes the new status together with its history entry in one
// transaction.
func (s *MySQLOrderStore) TransitionStatus(ctx context.Context, orderID int64, to domain.OrderStatus, description string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var current domain.OrderStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = ? FOR UPDATE`, orderID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("order %d: %w", orderID, domain.ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("lock order %d: %w", orderID, err)
	}

	if current.Terminal() {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `UPDATE orders SET status = ? WHERE id = ?`, to, orderID); err != nil {
		return false, fmt.Errorf("update order %d status: %w", orderID, err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO order_status_history (order_id, status, description, created_at)
		VALUES (?, ?, ?, ?)`,
		orderID, to, description, time.Now()); err != nil {
		return false, fmt.Errorf("insert history for order %d: %w", orderID, err)
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *MySQLOrderStore) AppendHistory(ctx context.Context, orderID int64, status domain.OrderStatus, description string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO order_status_history (order_id, status, description, created_at)
		VALUES (?, ?, ?, ?)`,
		orderID, status, description, time.Now())
	if err != nil {
		return fmt.Errorf("append history for order %d: %w", orderID, err)
	}
	return nil
}

func (s *MySQLOrderStore) CancelledNeedingRestore(ctx context.Context, window time.Duration) ([]int64, error) {
	query := `
		SELECT DISTINCT o.id
		FROM orders o
		JOIN order_lines l ON l.order_id = o.id
		LEFT JOIN stock_restores r ON r.order_id = o.id
		WHERE o.status = ? AND r.order_id IS NULL`
	args := []any{domain.OrderStatusCancelled}

	if window > 0 {
		query += ` AND o.placed_at >= ?`
		args = append(args, time.Now().Add(-window))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query cancelled orders needing restore: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan order id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
