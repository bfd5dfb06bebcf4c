package recon

import (
	"context"
	"log/slog"
	"time"

	"github.com/ariefcatur/go-merch-checkout.git/internal/inventory"
	"github.com/ariefcatur/go-merch-checkout.git/internal/metrics"
)

type CancelStore interface {
	CancelPending(ctx context.Context, orderID string) (bool, error)
}

// Sweeper releases expired, unsettled reservations so abandoned checkouts
// do not lock stock forever, and cancels their pending orders.
type Sweeper struct {
	Ledger   *inventory.Ledger
	Orders   CancelStore
	Cache    Invalidator
	Interval time.Duration
	Batch    int
	Log      *slog.Logger
}

func (s *Sweeper) Run(ctx context.Context) {
	if s.Batch <= 0 {
		s.Batch = 100
	}
	t := time.NewTicker(s.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	ids, err := s.Ledger.ExpiredOrderIDs(ctx, time.Now().UTC(), s.Batch)
	if err != nil {
		s.Log.Error("sweep query failed", "err", err)
		return
	}
	for _, id := range ids {
		canceled, err := s.Orders.CancelPending(ctx, id)
		if err != nil {
			s.Log.Error("sweep cancel failed", "order_id", id, "err", err)
			continue
		}
		if canceled {
			metrics.SweptOrders.Inc()
			s.Log.Info("expired reservation released, order canceled", "order_id", id)
			if s.Cache != nil {
				s.Cache.InvalidateOrder(ctx, id)
			}
		}
	}
}
