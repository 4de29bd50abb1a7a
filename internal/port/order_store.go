package port

import (
	"context"
	"time"

	"github.com/rl1809/stock-settlement/internal/core/domain"
)

// OrderStore is the external order CRUD collaborator. The engine never
// creates orders on its own behalf beyond the intake API; settlement only
// transitions status and appends history.
type OrderStore interface {
	// CreateOrder persists a new PENDING order with its lines and an initial
	// history entry, returning the assigned order id.
	CreateOrder(ctx context.Context, order domain.Order, lines []domain.OrderLine) (int64, error)

	// GetOrder returns nil when the order does not exist.
	GetOrder(ctx context.Context, orderID int64) (*domain.Order, error)

	Lines(ctx context.Context, orderID int64) ([]domain.OrderLine, error)

	History(ctx context.Context, orderID int64) ([]domain.StatusHistoryEntry, error)

	// TransitionStatus moves the order to the target status and appends a
	// history entry, atomically. It returns false without changing anything
	// when the current status is terminal, which makes cancellation
	// idempotent under redelivery.
	TransitionStatus(ctx context.Context, orderID int64, to domain.OrderStatus, description string) (bool, error)

	// AppendHistory adds an audit entry without changing status.
	AppendHistory(ctx context.Context, orderID int64, status domain.OrderStatus, description string) error

	// CancelledNeedingRestore lists CANCELLED orders that have lines but no
	// restore marker. A zero window means an unbounded scan; otherwise only
	// orders placed inside the window are returned.
	CancelledNeedingRestore(ctx context.Context, window time.Duration) ([]int64, error)
}
