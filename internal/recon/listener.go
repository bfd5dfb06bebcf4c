package recon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/go-merch-checkout.git/internal/kafka"
	"github.com/ariefcatur/go-merch-checkout.git/internal/metrics"
	"github.com/ariefcatur/go-merch-checkout.git/internal/orders"
	"github.com/ariefcatur/go-merch-checkout.git/internal/payments"
	"github.com/ariefcatur/go-merch-checkout.git/internal/redisx"
)

type OrderStore interface {
	GetByProcessorRef(ctx context.Context, ref string) (*orders.Order, error)
	MarkPaid(ctx context.Context, orderID, eventID string) (bool, error)
	MarkFailed(ctx context.Context, orderID, eventID string) (bool, error)
}

// Dedup is the fast path only; the conditional status update in the order
// store is what actually makes duplicate deliveries harmless.
type Dedup interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

// Listener is the reconciliation state machine fed by the payment.events
// topic. Deliveries are at-least-once and may be out of order.
type Listener struct {
	Orders OrderStore
	Dedup  Dedup
	Cache  Invalidator
	Log    *slog.Logger
}

// Invalidator drops the cached read-side view after a transition.
type Invalidator interface {
	InvalidateOrder(ctx context.Context, orderID string)
}

// HandleMessage is the kafka consumer handler. A non-nil return leaves the
// offset uncommitted so the event is redelivered.
func (l *Listener) HandleMessage(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := kafkax.UnmarshalEnvelope(m.Value, &env); err != nil {
		// poison message; shape was validated at ingress, so log and drop
		l.Log.Error("undecodable payment event", "err", err)
		metrics.WebhookEvents.WithLabelValues("unknown", "invalid").Inc()
		return nil
	}
	if env.EventType != orders.EventPaymentSucceeded && env.EventType != orders.EventPaymentFailed {
		return nil // ignore
	}

	if l.Dedup != nil {
		if seen, _ := l.Dedup.Seen(ctx, env.EventID); seen {
			metrics.WebhookEvents.WithLabelValues(env.EventType, "duplicate").Inc()
			return nil
		}
	}

	ev, err := kafkax.UnwrapPayload[payments.Event](env.Payload)
	if err != nil {
		l.Log.Error("undecodable payment payload", "event_id", env.EventID, "err", err)
		return nil
	}

	if err := l.Apply(ctx, ev); err != nil {
		return err
	}

	if l.Dedup != nil {
		_ = l.Dedup.Mark(ctx, env.EventID)
	}
	return nil
}

// Apply runs one event through the per-order state machine.
//
//	pending --succeeded--> paid   (commit reservations)
//	pending --failed-----> failed (release reservations)
//	terminal --anything--> no-op
func (l *Listener) Apply(ctx context.Context, ev payments.Event) error {
	ord, err := l.Orders.GetByProcessorRef(ctx, ev.IntentRef)
	if errors.Is(err, orders.ErrNotFound) {
		// the event can race the checkout transaction that stores the ref;
		// fail so the delivery is retried once the order row lands
		metrics.WebhookEvents.WithLabelValues(ev.Type, "error").Inc()
		return fmt.Errorf("no order for processor ref %s yet", ev.IntentRef)
	}
	if err != nil {
		return err
	}

	var applied bool
	switch ev.Type {
	case payments.EventIntentSucceeded:
		applied, err = l.Orders.MarkPaid(ctx, ord.ID, ev.ID)
	case payments.EventIntentFailed:
		applied, err = l.Orders.MarkFailed(ctx, ord.ID, ev.ID)
	default:
		return nil // rejected at the transport boundary; belt and braces
	}
	if err != nil {
		metrics.WebhookEvents.WithLabelValues(ev.Type, "error").Inc()
		return err
	}

	if !applied {
		// already terminal: duplicate or late event, accepted and discarded
		l.Log.Info("payment event no-op", "order_id", ord.ID, "event_id", ev.ID,
			"type", ev.Type, "status", string(ord.PaymentStatus))
		metrics.WebhookEvents.WithLabelValues(ev.Type, "noop").Inc()
		return nil
	}

	if l.Cache != nil {
		l.Cache.InvalidateOrder(ctx, ord.ID)
	}
	l.Log.Info("payment event applied", "order_id", ord.ID, "event_id", ev.ID, "type", ev.Type)
	metrics.WebhookEvents.WithLabelValues(ev.Type, "applied").Inc()
	return nil
}

// --- redis-backed implementations ---

type RedisDedup struct{ Client *redis.Client }

func (d *RedisDedup) Seen(ctx context.Context, eventID string) (bool, error) {
	return redisx.Exists(ctx, d.Client, fmt.Sprintf(redisx.KeyEventDedup, eventID))
}

func (d *RedisDedup) Mark(ctx context.Context, eventID string) error {
	return d.Client.Set(ctx, fmt.Sprintf(redisx.KeyEventDedup, eventID), "1", redisx.TTLDedup).Err()
}

type RedisInvalidator struct{ Client *redis.Client }

func (i *RedisInvalidator) InvalidateOrder(ctx context.Context, orderID string) {
	_ = i.Client.Del(ctx, fmt.Sprintf(redisx.KeyOrderView, orderID)).Err()
}
