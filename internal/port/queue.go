package port

import (
	"context"

	"github.com/rl1809/stock-settlement/internal/core/domain"
)

// WorkItemEnqueuer publishes settlement work items to the durable queue,
// keyed by order id so items for one order land on one partition.
type WorkItemEnqueuer interface {
	Enqueue(ctx context.Context, item domain.WorkItem) error
}

// EventEmitter hands structured events to the external notification
// collaborator. Emission is fire-and-forget from the engine's point of view.
type EventEmitter interface {
	Emit(ctx context.Context, event domain.NotificationEvent) error
}
