package httpx

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/go-merch-checkout.git/internal/kafka"
	"github.com/ariefcatur/go-merch-checkout.git/internal/metrics"
	"github.com/ariefcatur/go-merch-checkout.git/internal/orders"
	"github.com/ariefcatur/go-merch-checkout.git/internal/payments"
)

const maxWebhookBody = 1 << 20

type eventPublisher interface {
	PublishSync(ctx context.Context, key, value []byte, headers ...kafkago.Header) error
}

// WebhookHandler is the transport boundary for processor events: verify the
// signature, check the shape, make the event durable, answer. The state
// machine itself runs in the reconciler consumer.
type WebhookHandler struct {
	Events eventPublisher
	Secret []byte
	Log    *slog.Logger
}

func (h *WebhookHandler) Register(r *chi.Mux) {
	r.Post("/api/payments/webhook", h.receive)
}

func (h *WebhookHandler) receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	sig := r.Header.Get(payments.SigHeader)
	if sig == "" || !payments.VerifySignature(h.Secret, body, sig) {
		// integrity violation: somebody is speaking our protocol without the secret
		h.Log.Error("webhook signature mismatch", "remote", r.RemoteAddr)
		metrics.WebhookEvents.WithLabelValues("unknown", "invalid").Inc()
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "bad signature"})
		return
	}

	ev, err := payments.ParseEvent(body)
	if err != nil {
		h.Log.Warn("webhook rejected", "err", err)
		metrics.WebhookEvents.WithLabelValues("unknown", "invalid").Inc()
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed event"})
		return
	}

	eventType := orders.EventPaymentSucceeded
	if ev.Type == payments.EventIntentFailed {
		eventType = orders.EventPaymentFailed
	}
	env := orders.Envelope{
		EventID:       ev.ID, // processor event id = idempotency key
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      "payments-webhook",
		CorrelationID: ev.OrderID,
		Payload:       kafkax.MustMarshal(ev),
	}
	key := ev.OrderID
	if key == "" {
		key = ev.IntentRef
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Events.PublishSync(ctx, orders.PartitionKey(key), kafkax.MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	); err != nil {
		// non-2xx so the processor redelivers
		h.Log.Error("webhook publish failed", "event_id", ev.ID, "err", err)
		metrics.WebhookEvents.WithLabelValues(ev.Type, "error").Inc()
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "event not accepted"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
