package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/rl1809/stock-settlement/internal/core/domain"
	"github.com/rl1809/stock-settlement/internal/core/service"
	"github.com/rl1809/stock-settlement/internal/metrics"
)

// workItemProcessor is what the consumer needs from the settlement service.
type workItemProcessor interface {
	Process(ctx context.Context, item domain.WorkItem) service.Disposition
}

// Consumer pulls settlement work items off the queue and acknowledges them
// only after the settlement service resolved them. A Retry disposition keeps
// the offset uncommitted and re-runs the same message after a backoff, so a
// crash anywhere before the commit leads to redelivery.
type Consumer struct {
	reader  *kafka.Reader
	svc     workItemProcessor
	backoff time.Duration
	wg      sync.WaitGroup
}

func NewConsumer(reader *kafka.Reader, svc workItemProcessor) *Consumer {
	return &Consumer{
		reader:  reader,
		svc:     svc,
		backoff: 2 * time.Second,
	}
}

// Start launches the consume loop; it exits when ctx is cancelled or the
// reader is closed.
func (c *Consumer) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		log.Info().Str("topic", c.reader.Config().Topic).Str("group", c.reader.Config().GroupID).
			Msg("settlement consumer started")

		for {
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Error().Err(err).Msg("fetch from work queue failed, retrying")
				select {
				case <-time.After(c.backoff):
				case <-ctx.Done():
					return
				}
				continue
			}

			c.handle(ctx, msg)
		}
	}()
}

// Stop closes the reader and waits for the consume loop to drain.
func (c *Consumer) Stop() {
	c.reader.Close()
	c.wg.Wait()
	log.Info().Msg("settlement consumer stopped")
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	var item domain.WorkItem
	if err := json.Unmarshal(msg.Value, &item); err != nil {
		// Undecodable payloads can never succeed; acknowledge them instead
		// of wedging the partition. Production deployments should route
		// these to a dead-letter topic.
		log.Error().Err(err).Int("partition", msg.Partition).Int64("offset", msg.Offset).
			Msg("undecodable work item, acknowledging")
		metrics.ItemsPoisoned.Inc()
		c.commit(ctx, msg)
		return
	}

	for {
		if c.svc.Process(ctx, item) == service.Ack {
			c.commit(ctx, msg)
			return
		}
		log.Info().Int64("order_id", item.OrderID).Dur("backoff", c.backoff).
			Msg("work item left unacknowledged, retrying after backoff")
		select {
		case <-time.After(c.backoff):
		case <-ctx.Done():
			return
		}
	}
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		log.Error().Err(err).Int("partition", msg.Partition).Int64("offset", msg.Offset).
			Msg("offset commit failed; the item will be redelivered")
	}
}
