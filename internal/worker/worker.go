package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// OrderAdvancer advances fabrication-ready orders.
type OrderAdvancer interface {
	AdvanceReadyFabrications(ctx context.Context) (int, error)
}

// NotificationRetrier re-sends recorded notification failures.
type NotificationRetrier interface {
	SweepRetryable(ctx context.Context) (int, error)
}

// Processor runs the two background rules: the AWAITING_FABRICATION ->
// IN_PREPARATION auto-transition and the notification retry sweep. All user
// transitions are explicit API actions; these are the only polled ones.
type Processor struct {
	orders   OrderAdvancer
	notifier NotificationRetrier
	interval time.Duration
	logger   *zap.Logger
}

func NewProcessor(orders OrderAdvancer, notifier NotificationRetrier, interval time.Duration, logger *zap.Logger) *Processor {
	return &Processor{orders: orders, notifier: notifier, interval: interval, logger: logger}
}

// Run polls until the context is cancelled. Call as a goroutine.
func (p *Processor) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("worker stopped")
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Processor) tick(ctx context.Context) {
	advanced, err := p.orders.AdvanceReadyFabrications(ctx)
	if err != nil {
		p.logger.Error("advance fabrications", zap.Error(err))
	} else if advanced > 0 {
		p.logger.Info("orders advanced to preparation", zap.Int("count", advanced))
	}

	delivered, err := p.notifier.SweepRetryable(ctx)
	if err != nil {
		p.logger.Error("notification retry sweep", zap.Error(err))
	} else if delivered > 0 {
		p.logger.Info("notifications redelivered", zap.Int("count", delivered))
	}
}
