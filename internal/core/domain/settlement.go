package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientStock is the expected business outcome when a line
	// cannot be fully allocated. It is resolved by cancellation plus
	// compensation, never retried as-is.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrNotFound marks a missing order or variant: a data-integrity fault
	// that redelivery cannot fix.
	ErrNotFound = errors.New("not found")

	// ErrMalformedItem marks a work item that fails validation and must be
	// treated as a poison message.
	ErrMalformedItem = errors.New("malformed work item")
)

// ShortageError carries the human-readable shortage detail recorded in the
// order's status history when a line cannot be satisfied.
type ShortageError struct {
	ProductVariantID int64
	Available        int
	Requested        int
}

func (e *ShortageError) Error() string {
	return fmt.Sprintf("variant %d: available %d, requested %d", e.ProductVariantID, e.Available, e.Requested)
}

func (e *ShortageError) Unwrap() error { return ErrInsufficientStock }

// WorkItem is the queued instruction to deduct stock for one order. It is
// produced once at order creation, is immutable, and may be delivered more
// than once.
type WorkItem struct {
	OrderID int64          `json:"order_id"`
	Items   []WorkItemLine `json:"items"`
}

type WorkItemLine struct {
	ProductVariantID int64 `json:"variant_id"`
	Quantity         int   `json:"quantity"`
}

// Validate rejects items that can never be processed, wrapping
// ErrMalformedItem so consumers can route them as poison messages.
func (w WorkItem) Validate() error {
	if w.OrderID <= 0 {
		return fmt.Errorf("%w: order id %d", ErrMalformedItem, w.OrderID)
	}
	if len(w.Items) == 0 {
		return fmt.Errorf("%w: order %d has no lines", ErrMalformedItem, w.OrderID)
	}
	for _, line := range w.Items {
		if line.ProductVariantID <= 0 {
			return fmt.Errorf("%w: order %d: variant id %d", ErrMalformedItem, w.OrderID, line.ProductVariantID)
		}
		if line.Quantity < 1 {
			return fmt.Errorf("%w: order %d: variant %d quantity %d", ErrMalformedItem, w.OrderID, line.ProductVariantID, line.Quantity)
		}
	}
	return nil
}
