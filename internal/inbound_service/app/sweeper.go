package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/orderpilot/dispatch_services/internal/inbound_service/domain"
)

const sweepBatchSize = 100

// Sweeper periodically re-enqueues receipts stuck in queued, covering the
// enqueue-failure path where a receipt was durably recorded but its
// processing task never reached the queue.
type Sweeper struct {
	receipts   domain.ReceiptRepository
	queue      TaskQueue
	interval   time.Duration
	staleAfter time.Duration
	logger     *slog.Logger
}

func NewSweeper(receipts domain.ReceiptRepository, queue TaskQueue, interval, staleAfter time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		receipts:   receipts,
		queue:      queue,
		interval:   interval,
		staleAfter: staleAfter,
		logger:     logger.With("component", "sweeper"),
	}
}

// Run blocks until the context is cancelled, sweeping once per interval.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "sweeper started", "interval", s.interval, "stale_after", s.staleAfter)
	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	ids, err := s.receipts.ListStuckQueued(ctx, s.staleAfter, sweepBatchSize)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list stuck receipts", "error", err)
		return
	}
	for _, id := range ids {
		if err := s.queue.Enqueue(ctx, id, 1); err != nil {
			s.logger.ErrorContext(ctx, "failed to re-enqueue stuck receipt", "error", err, "message_id", id)
			continue
		}
		sweptReceiptsCounter.Inc()
		s.logger.InfoContext(ctx, "re-enqueued stuck receipt", "message_id", id)
	}
}
