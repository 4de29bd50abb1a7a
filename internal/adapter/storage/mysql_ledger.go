package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/stock-settlement/internal/core/domain"
	"github.com/rl1809/stock-settlement/internal/port"
)

const mysqlErrDuplicateEntry = 1062

// MySQLLedger implements the inventory ledger on MySQL. Locking is
// SELECT ... FOR UPDATE; the decrement is a single conditional UPDATE so
// concurrent settlements can never overdraw a record, and the per-line
// settlement markers live in the same transactions as the movements they
// cover.
type MySQLLedger struct {
	db *sql.DB
}

func NewMySQLLedger(db *sql.DB) *MySQLLedger {
	return &MySQLLedger{db: db}
}

func (l *MySQLLedger) InTx(ctx context.Context, fn func(tx port.LedgerTx) error) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&ledgerTx{tx: tx}); err != nil {
		return err
	}

	return tx.Commit()
}

type ledgerTx struct {
	tx *sql.Tx
}

func (t *ledgerTx) LockForUpdate(ctx context.Context, variantID int64) ([]domain.InventoryRecord, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, product_variant_id, warehouse_id, stock_quantity, warehouse_active
		FROM inventory_records
		WHERE product_variant_id = ? AND warehouse_active = 1
		ORDER BY stock_quantity DESC
		FOR UPDATE`, variantID)
	if err != nil {
		return nil, fmt.Errorf("lock inventory for variant %d: %w", variantID, err)
	}
	defer rows.Close()

	var records []domain.InventoryRecord
	for rows.Next() {
		var rec domain.InventoryRecord
		if err := rows.Scan(&rec.ID, &rec.ProductVariantID, &rec.WarehouseID, &rec.StockQuantity, &rec.WarehouseActive); err != nil {
			return nil, fmt.Errorf("scan inventory record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (t *ledgerTx) ConditionalDecrement(ctx context.Context, recordID int64, amount int) (bool, error) {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE inventory_records
		SET stock_quantity = stock_quantity - ?
		WHERE id = ? AND stock_quantity >= ?`,
		amount, recordID, amount)
	if err != nil {
		return false, fmt.Errorf("decrement record %d: %w", recordID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (t *ledgerTx) Increment(ctx context.Context, recordID int64, amount int) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE inventory_records
		SET stock_quantity = stock_quantity + ?
		WHERE id = ?`,
		amount, recordID)
	if err != nil {
		return fmt.Errorf("increment record %d: %w", recordID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("increment record %d: %w", recordID, domain.ErrNotFound)
	}
	return nil
}

func (t *ledgerTx) LineSettled(ctx context.Context, orderID, variantID int64) (bool, error) {
	var one int
	err := t.tx.QueryRowContext(ctx, `
		SELECT 1 FROM line_settlements
		WHERE order_id = ? AND product_variant_id = ?`,
		orderID, variantID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query line settlement: %w", err)
	}
	return true, nil
}

func (t *ledgerTx) MarkLineSettled(ctx context.Context, orderID, variantID int64, quantity int) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO line_settlements (order_id, product_variant_id, quantity)
		VALUES (?, ?, ?)`,
		orderID, variantID, quantity)
	if err != nil {
		return fmt.Errorf("mark line settled: %w", err)
	}
	return nil
}

func (t *ledgerTx) UnmarkLineSettled(ctx context.Context, orderID, variantID int64) error {
	_, err := t.tx.ExecContext(ctx, `
		DELETE FROM line_settlements
		WHERE order_id = ? AND product_variant_id = ?`,
		orderID, variantID)
	if err != nil {
		return fmt.Errorf("unmark line settled: %w", err)
	}
	return nil
}

// RestoreForOrder inserts the restore marker and credits back every settled
// quantity in one transaction. The marker's primary key makes the whole
// operation exactly-once: a duplicate insert means a previous call already
// restored this order.
func (l *MySQLLedger) RestoreForOrder(ctx context.Context, orderID, warehouseID int64) (map[int64]int, bool, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO stock_restores (order_id) VALUES (?)`, orderID); err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrDuplicateEntry {
			return nil, true, nil
		}
		return nil, false, fmt.Errorf("insert restore marker: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT product_variant_id, quantity FROM line_settlements
		WHERE order_id = ?
		FOR UPDATE`, orderID)
	if err != nil {
		return nil, false, fmt.Errorf("load line settlements: %w", err)
	}

	settled := map[int64]int{}
	for rows.Next() {
		var variantID int64
		var quantity int
		if err := rows.Scan(&variantID, &quantity); err != nil {
			rows.Close()
			return nil, false, fmt.Errorf("scan line settlement: %w", err)
		}
		settled[variantID] += quantity
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, false, err
	}
	rows.Close()

	for variantID, quantity := range settled {
		if err := creditVariant(ctx, tx, variantID, warehouseID, quantity); err != nil {
			return nil, false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return settled, false, nil
}

// creditVariant adds quantity to the variant's record in the designated
// warehouse, falling back to any active record when the variant is not
// stocked there.
func creditVariant(ctx context.Context, tx *sql.Tx, variantID, warehouseID int64, quantity int) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE inventory_records
		SET stock_quantity = stock_quantity + ?
		WHERE product_variant_id = ? AND warehouse_id = ?`,
		quantity, variantID, warehouseID)
	if err != nil {
		return fmt.Errorf("credit variant %d: %w", variantID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	result, err = tx.ExecContext(ctx, `
		UPDATE inventory_records
		SET stock_quantity = stock_quantity + ?
		WHERE product_variant_id = ? AND warehouse_active = 1
		ORDER BY id
		LIMIT 1`,
		quantity, variantID)
	if err != nil {
		return fmt.Errorf("credit variant %d: %w", variantID, err)
	}
	rows, err = result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("credit variant %d: no inventory record: %w", variantID, domain.ErrNotFound)
	}
	return nil
}
