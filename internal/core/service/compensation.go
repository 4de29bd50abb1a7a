package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/rl1809/stock-settlement/internal/core/domain"
	"github.com/rl1809/stock-settlement/internal/metrics"
	"github.com/rl1809/stock-settlement/internal/port"
)

// CompensationService reverses the effects of a failed or undone settlement:
// it cancels orders that cannot be stocked and credits deducted stock back
// for orders cancelled through any path.
type CompensationService struct {
	orders port.OrderStore
	ledger port.InventoryLedger

	// restoreWarehouseID is the designated warehouse cancelled-order stock
	// is credited into, rather than reversing the original per-warehouse
	// split.
	restoreWarehouseID int64
}

func NewCompensationService(orders port.OrderStore, ledger port.InventoryLedger, restoreWarehouseID int64) *CompensationService {
	return &CompensationService{
		orders:             orders,
		ledger:             ledger,
		restoreWarehouseID: restoreWarehouseID,
	}
}

// CancelForInsufficientStock transitions the order to CANCELLED with a
// shortage-describing history entry. A terminal order is left untouched,
// which makes double-cancellation under redelivery a no-op. The caller has
// already returned this attempt's deductions, so the restore marker is
// written immediately: nothing is outstanding and the sweeper must not
// credit this order again.
func (c *CompensationService) CancelForInsufficientStock(ctx context.Context, orderID int64, reason string) error {
	transitioned, err := c.orders.TransitionStatus(ctx, orderID, domain.OrderStatusCancelled, "insufficient stock: "+reason)
	if err != nil {
		return fmt.Errorf("cancel order %d: %w", orderID, err)
	}
	if !transitioned {
		log.Info().Int64("order_id", orderID).Msg("order already terminal, cancellation is a no-op")
		return nil
	}

	if _, _, err := c.ledger.RestoreForOrder(ctx, orderID, c.restoreWarehouseID); err != nil {
		// Not fatal for correctness: without the marker the sweeper will
		// revisit the order and find nothing left in its settlement ledger.
		return fmt.Errorf("record restore marker for order %d: %w", orderID, err)
	}
	return nil
}

// RestoreStockForCancelledOrder credits back everything the settlement
// ledger records as deducted for the order. It returns true only when this
// call applied credits; repeated calls find the restore marker and do
// nothing. Orders that are missing or not CANCELLED are left untouched.
func (c *CompensationService) RestoreStockForCancelledOrder(ctx context.Context, orderID int64) (bool, error) {
	order, err := c.orders.GetOrder(ctx, orderID)
	if err != nil {
		return false, fmt.Errorf("load order %d: %w", orderID, err)
	}
	if order == nil {
		return false, fmt.Errorf("restore order %d: %w", orderID, domain.ErrNotFound)
	}
	if order.Status != domain.OrderStatusCancelled {
		log.Info().Int64("order_id", orderID).Str("status", string(order.Status)).
			Msg("order not cancelled, skipping stock restore")
		return false, nil
	}

	restored, already, err := c.ledger.RestoreForOrder(ctx, orderID, c.restoreWarehouseID)
	if err != nil {
		return false, fmt.Errorf("restore order %d: %w", orderID, err)
	}
	if already {
		metrics.RestoresSkipped.Inc()
		return false, nil
	}

	total := 0
	for _, qty := range restored {
		total += qty
	}
	log.Info().Int64("order_id", orderID).Int("variants", len(restored)).Int("units", total).
		Int64("warehouse_id", c.restoreWarehouseID).Msg("restored stock for cancelled order")
	metrics.RestoresApplied.Inc()
	return true, nil
}
