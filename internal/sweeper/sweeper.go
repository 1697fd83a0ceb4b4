package sweeper

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/event-ticketing/internal/domain"
	"github.com/robertarktes/event-ticketing/internal/observability"
)

type Store interface {
	ExpiredPendingOrders(ctx context.Context, now time.Time) ([]domain.Order, error)
}

type Workflow interface {
	Cancel(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)
}

// Sweeper cancels PENDING orders whose durable holds have lapsed. The Redis
// TTL frees the lock keys on its own but never touches order status; without
// this loop an abandoned checkout would stay PENDING forever.
type Sweeper struct {
	store    Store
	workflow Workflow
	logger   observability.Logger
}

func NewSweeper(store Store, workflow Workflow, logger observability.Logger) *Sweeper {
	return &Sweeper{store: store, workflow: workflow, logger: logger}
}

func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Sweep(ctx, now)
		}
	}
}

// Sweep cancels each expired order independently; one failure is logged and
// does not halt the rest of the pass.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) {
	orders, err := s.store.ExpiredPendingOrders(ctx, now)
	if err != nil {
		s.logger.WithError(err).Error("failed to query expired pending orders")
		return
	}
	for _, order := range orders {
		if _, err := s.workflow.Cancel(ctx, order.ID); err != nil {
			s.logger.WithError(err).WithField("order_id", order.ID).Error("failed to cancel expired order")
			observability.SweptOrders.WithLabelValues("error").Inc()
			continue
		}
		s.logger.WithField("order_id", order.ID).Info("cancelled expired order")
		observability.SweptOrders.WithLabelValues("cancelled").Inc()
	}
}
