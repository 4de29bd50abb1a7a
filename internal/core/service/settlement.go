package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/rl1809/stock-settlement/internal/core/domain"
	"github.com/rl1809/stock-settlement/internal/metrics"
	"github.com/rl1809/stock-settlement/internal/port"
)

// Disposition is the only thing the queue adapter learns about a processed
// work item: commit the offset or leave it for redelivery.
type Disposition int

const (
	Ack Disposition = iota
	Retry
)

// SettlementService drives one work item through the settlement state
// machine: lock, allocate, decrement per line, with full rollback and
// compensation when any line falls short.
type SettlementService struct {
	ledger port.InventoryLedger
	orders port.OrderStore
	comp   *CompensationService
	guard  port.SettlementGuard
	events port.EventEmitter
}

func NewSettlementService(
	ledger port.InventoryLedger,
	orders port.OrderStore,
	comp *CompensationService,
	guard port.SettlementGuard,
	events port.EventEmitter,
) *SettlementService {
	return &SettlementService{
		ledger: ledger,
		orders: orders,
		comp:   comp,
		guard:  guard,
		events: events,
	}
}

// settledLine remembers the exact deductions committed for one line of the
// current attempt, so a later shortage can return them.
type settledLine struct {
	variantID int64
	plan      domain.AllocationPlan
}

// Process settles one work item and decides whether the queue message may be
// acknowledged. All errors from the ledger, allocator and compensation
// handler are resolved here; nothing propagates to the queue adapter except
// the disposition.
func (s *SettlementService) Process(ctx context.Context, item domain.WorkItem) Disposition {
	if err := item.Validate(); err != nil {
		log.Error().Err(err).Int64("order_id", item.OrderID).
			Msg("poison work item, acknowledging without processing")
		metrics.ItemsPoisoned.Inc()
		return Ack
	}

	order, err := s.orders.GetOrder(ctx, item.OrderID)
	if err != nil {
		log.Error().Err(err).Int64("order_id", item.OrderID).Msg("order lookup failed, leaving item for redelivery")
		metrics.ItemsRetried.Inc()
		return Retry
	}
	if order == nil {
		log.Error().Int64("order_id", item.OrderID).Msg("work item references missing order, acknowledging")
		metrics.ItemsPoisoned.Inc()
		return Ack
	}
	if order.Status.Terminal() {
		// Redelivery after the order was already resolved.
		log.Info().Int64("order_id", item.OrderID).Str("status", string(order.Status)).
			Msg("order already in terminal state, nothing to settle")
		return Ack
	}

	if s.guard != nil {
		ok, gerr := s.guard.Acquire(ctx, item.OrderID)
		if gerr != nil {
			// The guard is advisory; the durable markers keep reprocessing
			// safe without it.
			log.Warn().Err(gerr).Int64("order_id", item.OrderID).Msg("settlement guard unavailable, proceeding")
		} else if !ok {
			log.Info().Int64("order_id", item.OrderID).Msg("order already being settled elsewhere, redelivering")
			metrics.ItemsRetried.Inc()
			return Retry
		} else {
			defer func() {
				if rerr := s.guard.Release(context.WithoutCancel(ctx), item.OrderID); rerr != nil {
					log.Warn().Err(rerr).Int64("order_id", item.OrderID).Msg("failed to release settlement guard")
				}
			}()
		}
	}

	var applied []settledLine
	for _, line := range item.Items {
		plan, lerr := s.settleLine(ctx, item.OrderID, line)
		if lerr == nil {
			if len(plan) > 0 {
				applied = append(applied, settledLine{variantID: line.ProductVariantID, plan: plan})
			}
			continue
		}

		if errors.Is(lerr, domain.ErrInsufficientStock) {
			return s.cancel(ctx, order, applied, lerr.Error())
		}

		// Transient storage failure. Lines already committed keep their
		// markers, so redelivery resumes with the remaining lines only.
		log.Error().Err(lerr).Int64("order_id", item.OrderID).Int64("variant_id", line.ProductVariantID).
			Msg("line settlement failed, leaving item for redelivery")
		metrics.ItemsRetried.Inc()
		return Retry
	}

	// Optional audit marker; losing it does not affect settlement.
	if err := s.orders.AppendHistory(ctx, item.OrderID, order.Status, "stock reserved for all lines"); err != nil {
		log.Warn().Err(err).Int64("order_id", item.OrderID).Msg("failed to append stock-reserved history entry")
	}

	log.Info().Int64("order_id", item.OrderID).Int("lines", len(item.Items)).Msg("work item settled")
	metrics.ItemsSettled.Inc()
	return Ack
}

// settleLine deducts one line inside a single ledger transaction. The
// returned plan lists the committed deductions; it is empty when the line's
// settlement marker was already present from an earlier delivery.
func (s *SettlementService) settleLine(ctx context.Context, orderID int64, line domain.WorkItemLine) (domain.AllocationPlan, error) {
	var executed domain.AllocationPlan

	err := s.ledger.InTx(ctx, func(tx port.LedgerTx) error {
		done, err := tx.LineSettled(ctx, orderID, line.ProductVariantID)
		if err != nil {
			return err
		}
		if done {
			log.Info().Int64("order_id", orderID).Int64("variant_id", line.ProductVariantID).
				Msg("line already settled by an earlier delivery, skipping")
			return nil
		}

		records, err := tx.LockForUpdate(ctx, line.ProductVariantID)
		if err != nil {
			return err
		}

		plan, shortfall := domain.Allocate(records, line.Quantity)
		if shortfall > 0 {
			return &domain.ShortageError{
				ProductVariantID: line.ProductVariantID,
				Available:        plan.Total(),
				Requested:        line.Quantity,
			}
		}

		executed, err = s.executePlan(ctx, tx, orderID, line, plan)
		if err != nil {
			executed = nil
			return err
		}

		return tx.MarkLineSettled(ctx, orderID, line.ProductVariantID, line.Quantity)
	})
	if err != nil {
		return nil, err
	}
	return executed, nil
}

// executePlan runs the plan's conditional decrements. The plan came from a
// locked snapshot, so failures are rare; on a lost race it replans once
// against a fresh locked read of the remaining amount and treats a second
// failure as insufficient stock.
func (s *SettlementService) executePlan(ctx context.Context, tx port.LedgerTx, orderID int64, line domain.WorkItemLine, plan domain.AllocationPlan) (domain.AllocationPlan, error) {
	var executed domain.AllocationPlan
	replanned := false

	for i := 0; i < len(plan); i++ {
		step := plan[i]
		ok, err := tx.ConditionalDecrement(ctx, step.RecordID, step.Amount)
		if err != nil {
			return nil, err
		}
		if ok {
			executed = append(executed, step)
			continue
		}

		if replanned {
			return nil, &domain.ShortageError{
				ProductVariantID: line.ProductVariantID,
				Available:        executed.Total(),
				Requested:        line.Quantity,
			}
		}
		replanned = true
		metrics.DecrementRaces.Inc()
		log.Warn().Int64("order_id", orderID).Int64("variant_id", line.ProductVariantID).
			Int64("record_id", step.RecordID).Msg("conditional decrement lost a race, replanning line")

		records, err := tx.LockForUpdate(ctx, line.ProductVariantID)
		if err != nil {
			return nil, err
		}
		remaining := line.Quantity - executed.Total()
		fresh, shortfall := domain.Allocate(records, remaining)
		if shortfall > 0 {
			return nil, &domain.ShortageError{
				ProductVariantID: line.ProductVariantID,
				Available:        executed.Total() + fresh.Total(),
				Requested:        line.Quantity,
			}
		}
		plan = fresh
		i = -1
	}

	return executed, nil
}

// cancel rolls back every deduction this attempt committed, then hands the
// order to the compensation handler. Only after both succeed may the work
// item be acknowledged: the order has then been definitively resolved.
func (s *SettlementService) cancel(ctx context.Context, order *domain.Order, applied []settledLine, reason string) Disposition {
	if err := s.rollback(ctx, order.ID, applied); err != nil {
		log.Error().Err(err).Int64("order_id", order.ID).Msg("rollback failed, leaving item for redelivery")
		metrics.ItemsRetried.Inc()
		return Retry
	}

	if err := s.comp.CancelForInsufficientStock(ctx, order.ID, reason); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Error().Err(err).Int64("order_id", order.ID).Msg("order vanished during cancellation, acknowledging")
			return Ack
		}
		log.Error().Err(err).Int64("order_id", order.ID).Msg("cancellation failed, leaving item for redelivery")
		metrics.ItemsRetried.Inc()
		return Retry
	}

	s.emitShortage(ctx, order, reason)

	log.Info().Int64("order_id", order.ID).Str("reason", reason).Msg("order cancelled for insufficient stock")
	metrics.ItemsCancelled.Inc()
	return Ack
}

// rollback returns the exact amounts taken during this attempt, newest line
// first. Each line's increments and marker removal commit together, so a
// crash mid-rollback is repaired by redelivery without double-crediting.
func (s *SettlementService) rollback(ctx context.Context, orderID int64, applied []settledLine) error {
	for i := len(applied) - 1; i >= 0; i-- {
		line := applied[i]
		err := s.ledger.InTx(ctx, func(tx port.LedgerTx) error {
			for j := len(line.plan) - 1; j >= 0; j-- {
				step := line.plan[j]
				if err := tx.Increment(ctx, step.RecordID, step.Amount); err != nil {
					return err
				}
			}
			return tx.UnmarkLineSettled(ctx, orderID, line.variantID)
		})
		if err != nil {
			return fmt.Errorf("rollback variant %d: %w", line.variantID, err)
		}
	}
	return nil
}

func (s *SettlementService) emitShortage(ctx context.Context, order *domain.Order, reason string) {
	if s.events == nil {
		return
	}
	event := domain.NotificationEvent{
		ID:         uuid.New().String(),
		Type:       domain.EventOrderOutOfStock,
		Message:    fmt.Sprintf("order %d was cancelled: %s", order.ID, reason),
		Link:       fmt.Sprintf("/orders/%d", order.ID),
		CustomerID: order.CustomerID,
	}
	if err := s.events.Emit(ctx, event); err != nil {
		// Delivery is external and best-effort; settlement is already final.
		log.Warn().Err(err).Int64("order_id", order.ID).Msg("failed to emit shortage notification event")
	}
}
