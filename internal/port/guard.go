package port

import "context"

// SettlementGuard is an advisory in-flight lock taken per order while a work
// item is being processed, shielding the durable idempotency markers from
// concurrent duplicate deliveries. It is not authoritative: correctness
// rests on the markers, the guard only avoids wasted work.
type SettlementGuard interface {
	// Acquire returns false when another consumer currently holds the order.
	Acquire(ctx context.Context, orderID int64) (bool, error)

	Release(ctx context.Context, orderID int64) error
}
