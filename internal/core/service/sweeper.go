package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rl1809/stock-settlement/internal/metrics"
	"github.com/rl1809/stock-settlement/internal/port"
)

// Sweeper is the periodic safety net behind the compensation handler: it
// finds cancelled orders whose deductions were never restored (worker crash,
// manual admin cancellation, timeout) and restores them, making restoration
// eventually consistent regardless of how the cancellation happened.
type Sweeper struct {
	orders   port.OrderStore
	comp     *CompensationService
	interval time.Duration
	window   time.Duration

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewSweeper bounds each pass to orders placed within window; a zero window
// scans unboundedly, with the restore marker as the sole filter.
func NewSweeper(orders port.OrderStore, comp *CompensationService, interval, window time.Duration) *Sweeper {
	return &Sweeper{
		orders:   orders,
		comp:     comp,
		interval: interval,
		window:   window,
		stop:     make(chan struct{}),
	}
}

// Start runs one pass immediately, then one per interval, until Stop.
func (s *Sweeper) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.Info().Dur("interval", s.interval).Dur("window", s.window).Msg("reconciliation sweeper started")

		s.RunOnce(ctx)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.RunOnce(ctx)
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *Sweeper) Stop() {
	close(s.stop)
	s.wg.Wait()
	log.Info().Msg("reconciliation sweeper stopped")
}

// RunOnce performs a single sweep. A failure on one order never aborts the
// others; the next pass retries whatever failed.
func (s *Sweeper) RunOnce(ctx context.Context) (processed, skipped, failed int) {
	metrics.SweepsRun.Inc()

	orderIDs, err := s.orders.CancelledNeedingRestore(ctx, s.window)
	if err != nil {
		log.Error().Err(err).Msg("sweep query failed")
		return 0, 0, 0
	}

	for _, orderID := range orderIDs {
		credited, err := s.comp.RestoreStockForCancelledOrder(ctx, orderID)
		switch {
		case err != nil:
			failed++
			metrics.SweepFailures.Inc()
			log.Error().Err(err).Int64("order_id", orderID).Msg("sweep restore failed")
		case credited:
			processed++
		default:
			skipped++
		}
	}

	log.Info().Int("candidates", len(orderIDs)).Int("processed", processed).
		Int("skipped", skipped).Int("failed", failed).Msg("reconciliation sweep finished")
	return processed, skipped, failed
}
