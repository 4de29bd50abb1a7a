package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// Terminal reports whether the status admits no further transitions by the
// settlement engine.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusCancelled, OrderStatusDelivered, OrderStatusCompleted:
		return true
	}
	return false
}

// Order is the subset of the order the engine reads and writes: it only
// transitions status and appends history, it never owns order business rules
// beyond cancellation on insufficient stock.
type Order struct {
	ID         int64
	CustomerID *int64
	Status     OrderStatus
	PlacedAt   time.Time
}

type OrderLine struct {
	OrderID          int64
	ProductVariantID int64
	Quantity         int
}

// StatusHistoryEntry is an append-only audit record; entries are never
// mutated or deleted.
type StatusHistoryEntry struct {
	OrderID     int64
	Status      OrderStatus
	Description string
	CreatedAt   time.Time
}
