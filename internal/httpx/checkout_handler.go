package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/ariefcatur/go-merch-checkout.git/internal/checkout"
	kafkax "github.com/ariefcatur/go-merch-checkout.git/internal/kafka"
	"github.com/ariefcatur/go-merch-checkout.git/internal/logging"
	"github.com/ariefcatur/go-merch-checkout.git/internal/metrics"
	"github.com/ariefcatur/go-merch-checkout.git/internal/orders"
)

type CheckoutReq struct {
	ExternalID string               `json:"external_id,omitempty"`
	StoreID    string               `json:"store_id"`
	Items      []checkout.LineInput `json:"items"`
	Shipping   *orders.Address      `json:"shipping_address,omitempty"`
}

type CheckoutResp struct {
	OrderID      string    `json:"order_id"`
	ClientSecret string    `json:"client_secret"`
	TotalCents   int       `json:"total_cents"`
	Currency     string    `json:"currency"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	Idempotent   bool      `json:"idempotent"`
}

type CheckoutHandler struct {
	Svc      *checkout.Service
	Producer *kafkax.Producer // order.created integration events
	Service  string
}

func (h *CheckoutHandler) Register(r *chi.Mux) {
	r.Post("/api/checkout", h.checkout)
}

func (h *CheckoutHandler) checkout(w http.ResponseWriter, r *http.Request) {
	// session middleware upstream resolves the buyer; auth itself is out of scope here
	buyerID := r.Header.Get("X-Buyer-Id")
	if buyerID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing buyer"})
		return
	}

	var req CheckoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.StoreID == "" || len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	res, err := h.Svc.Checkout(ctx, checkout.Request{
		ExternalID: req.ExternalID,
		BuyerID:    buyerID,
		StoreID:    req.StoreID,
		Lines:      req.Items,
		Shipping:   req.Shipping,
	})
	if err != nil {
		var unavail *checkout.UnavailableError
		switch {
		case errors.As(err, &unavail):
			metrics.CheckoutTotal.WithLabelValues("unavailable").Inc()
			writeJSON(w, http.StatusConflict, map[string]any{"unavailable": unavail.Lines})
		case isClientErr(err):
			metrics.CheckoutTotal.WithLabelValues("rejected").Inc()
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		default:
			metrics.CheckoutTotal.WithLabelValues("error").Inc()
			logging.FromCtx(ctx).Error("checkout failed", "err", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "checkout failed"})
		}
		return
	}

	if !res.Idempotent {
		h.publishCreated(r, buyerID, req, res)
	}
	metrics.CheckoutTotal.WithLabelValues("created").Inc()
	writeJSON(w, http.StatusCreated, CheckoutResp{
		OrderID:      res.OrderID,
		ClientSecret: res.ClientSecret,
		TotalCents:   res.TotalCents,
		Currency:     res.Currency,
		ExpiresAt:    res.ExpiresAt,
		Idempotent:   res.Idempotent,
	})
}

func (h *CheckoutHandler) publishCreated(r *http.Request, buyerID string, req CheckoutReq, res *checkout.Result) {
	lines := make([]orders.LineQty, 0, len(req.Items))
	for _, it := range req.Items {
		lines = append(lines, orders.LineQty{VariantID: it.VariantID, Qty: it.Qty})
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderCreated,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.Service,
		TraceID:       r.Header.Get("X-Request-Id"),
		CorrelationID: res.OrderID,
		Payload: kafkax.MustMarshal(orders.OrderCreatedPayload{
			OrderID:    res.OrderID,
			ExternalID: req.ExternalID,
			BuyerID:    buyerID,
			StoreID:    req.StoreID,
			Lines:      lines,
			TotalCents: res.TotalCents,
			Currency:   res.Currency,
		}),
	}
	h.Producer.Publish(orders.PartitionKey(res.OrderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderCreated)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func isClientErr(err error) bool {
	for _, e := range []error{
		checkout.ErrEmptyCart,
		checkout.ErrInvalidQty,
		checkout.ErrUnknownVariant,
		checkout.ErrVariantDisabled,
		checkout.ErrMixedStores,
		checkout.ErrMixedCurrencies,
	} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}
