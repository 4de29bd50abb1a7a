package port

import (
	"context"

	"github.com/rl1809/stock-settlement/internal/core/domain"
)

// LedgerTx is the view of the inventory ledger inside one storage
// transaction. Records returned by LockForUpdate stay exclusively held until
// the transaction ends, so a plan computed from them can be executed without
// interleaving decrements from other settlements.
type LedgerTx interface {
	// LockForUpdate returns all records for a variant in active warehouses,
	// ordered by stock descending, under a mutual-exclusion guarantee.
	LockForUpdate(ctx context.Context, variantID int64) ([]domain.InventoryRecord, error)

	// ConditionalDecrement atomically subtracts amount iff the record holds
	// at least that much. A false return is the normal insufficient-capacity
	// signal, not an error.
	ConditionalDecrement(ctx context.Context, recordID int64, amount int) (bool, error)

	// Increment adds stock back to a record. There is no upper bound check:
	// it only ever returns what a prior decrement took.
	Increment(ctx context.Context, recordID int64, amount int) error

	// LineSettled reports whether a durable per-order-line settlement marker
	// exists, making redelivered work items skip already-deducted lines.
	LineSettled(ctx context.Context, orderID, variantID int64) (bool, error)

	// MarkLineSettled records the marker in the same transaction as the
	// decrements it covers.
	MarkLineSettled(ctx context.Context, orderID, variantID int64, quantity int) error

	// UnmarkLineSettled removes a line marker; rollbacks run it in the same
	// transaction as the increments returning the line's stock.
	UnmarkLineSettled(ctx context.Context, orderID, variantID int64) error
}

// InventoryLedger is the durable store of per-warehouse stock quantities.
type InventoryLedger interface {
	// InTx runs fn inside one storage transaction, rolling back when fn
	// returns an error and committing otherwise.
	InTx(ctx context.Context, fn func(tx LedgerTx) error) error

	// RestoreForOrder credits every quantity recorded in the order's line
	// settlements back into the given warehouse's record for each variant
	// (falling back to any active record when the variant is not stocked
	// there) and writes the per-order restore marker, all in one
	// transaction. When the marker already exists nothing is credited and
	// already is true.
	RestoreForOrder(ctx context.Context, orderID, warehouseID int64) (restored map[int64]int, already bool, err error)
}
