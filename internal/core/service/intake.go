package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rl1809/stock-settlement/internal/core/domain"
	"github.com/rl1809/stock-settlement/internal/port"
)

var ErrInvalidOrder = errors.New("invalid order")

// IntakeService is the producer side of the engine: it persists a PENDING
// order and enqueues exactly one settlement work item for it. Stock is never
// deducted synchronously here.
type IntakeService struct {
	orders port.OrderStore
	queue  port.WorkItemEnqueuer
}

func NewIntakeService(orders port.OrderStore, queue port.WorkItemEnqueuer) *IntakeService {
	return &IntakeService{orders: orders, queue: queue}
}

func (s *IntakeService) PlaceOrder(ctx context.Context, customerID *int64, items []domain.WorkItemLine) (int64, error) {
	if len(items) == 0 {
		return 0, fmt.Errorf("%w: no line items", ErrInvalidOrder)
	}
	for _, item := range items {
		if item.ProductVariantID <= 0 || item.Quantity < 1 {
			return 0, fmt.Errorf("%w: variant %d quantity %d", ErrInvalidOrder, item.ProductVariantID, item.Quantity)
		}
	}

	order := domain.Order{
		CustomerID: customerID,
		Status:     domain.OrderStatusPending,
		PlacedAt:   time.Now(),
	}
	lines := make([]domain.OrderLine, len(items))
	for i, item := range items {
		lines[i] = domain.OrderLine{ProductVariantID: item.ProductVariantID, Quantity: item.Quantity}
	}

	orderID, err := s.orders.CreateOrder(ctx, order, lines)
	if err != nil {
		return 0, fmt.Errorf("create order: %w", err)
	}

	if err := s.queue.Enqueue(ctx, domain.WorkItem{OrderID: orderID, Items: items}); err != nil {
		// The order exists but will never settle; cancel it rather than
		// leaving it PENDING forever.
		if _, cerr := s.orders.TransitionStatus(ctx, orderID, domain.OrderStatusCancelled, "settlement enqueue failed"); cerr != nil {
			log.Error().Err(cerr).Int64("order_id", orderID).Msg("failed to cancel order after enqueue failure")
		}
		return 0, fmt.Errorf("enqueue settlement for order %d: %w", orderID, err)
	}

	log.Info().Int64("order_id", orderID).Int("lines", len(items)).Msg("order placed, settlement enqueued")
	return orderID, nil
}

// CancelOrder is the manual admin cancellation path. It only flips the
// status; restoring deducted stock is the reconciliation sweeper's job.
func (s *IntakeService) CancelOrder(ctx context.Context, orderID int64, reason string) (bool, error) {
	if reason == "" {
		reason = "cancelled by operator"
	} else {
		reason = "cancelled by operator: " + reason
	}
	transitioned, err := s.orders.TransitionStatus(ctx, orderID, domain.OrderStatusCancelled, reason)
	if err != nil {
		return false, err
	}
	return transitioned, nil
}

// OrderStatus returns the order together with its full status history.
func (s *IntakeService) OrderStatus(ctx context.Context, orderID int64) (*domain.Order, []domain.StatusHistoryEntry, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	if order == nil {
		return nil, nil, domain.ErrNotFound
	}
	history, err := s.orders.History(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	return order, history, nil
}
