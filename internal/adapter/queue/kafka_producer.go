package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/segmentio/kafka-go"

	"github.com/rl1809/stock-settlement/internal/core/domain"
)

// Enqueuer publishes settlement work items keyed by order id, so all
// deliveries for one order hit the same partition and are processed in
// order by a single consumer.
type Enqueuer struct {
	writer *kafka.Writer
}

func NewEnqueuer(writer *kafka.Writer) *Enqueuer {
	return &Enqueuer{writer: writer}
}

func (e *Enqueuer) Enqueue(ctx context.Context, item domain.WorkItem) error {
	value, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal work item: %w", err)
	}

	err = e.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(item.OrderID, 10)),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("write work item for order %d: %w", item.OrderID, err)
	}
	return nil
}

// EventEmitter publishes notification events for the external notification
// collaborator to deliver.
type EventEmitter struct {
	writer *kafka.Writer
}

func NewEventEmitter(writer *kafka.Writer) *EventEmitter {
	return &EventEmitter{writer: writer}
}

func (e *EventEmitter) Emit(ctx context.Context, event domain.NotificationEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	err = e.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.ID),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("write event %s: %w", event.Type, err)
	}
	return nil
}
