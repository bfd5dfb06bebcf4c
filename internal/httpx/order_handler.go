package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/ariefcatur/go-merch-checkout.git/internal/catalog"
	"github.com/ariefcatur/go-merch-checkout.git/internal/logging"
	"github.com/ariefcatur/go-merch-checkout.git/internal/orders"
	"github.com/ariefcatur/go-merch-checkout.git/internal/redisx"
)

type OrderViewStore interface {
	GetWithLines(ctx context.Context, identifier string) (*orders.OrderView, error)
}

// ViewCache holds assembled order views, always keyed by the internal order
// id. Keying by whatever the client sent would leave ref-keyed copies that
// InvalidateOrder never finds.
type ViewCache interface {
	GetOrderView(ctx context.Context, orderID string) (string, bool)
	SetOrderView(ctx context.Context, orderID string, raw []byte)
}

// OrderHandler is the read side: order materialization and product listing.
// No side effects beyond cache fills.
type OrderHandler struct {
	Store   OrderViewStore
	Catalog *catalog.Repo
	Cache   ViewCache

	group singleflight.Group
}

func (h *OrderHandler) Register(r *chi.Mux) {
	r.Get("/api/order/{id}", h.getOrder)
	r.Get("/api/products", h.listProducts)
}

func (h *OrderHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// only hits when the client used the internal id; ref lookups resolve
	// through the DB first
	if s, ok := h.Cache.GetOrderView(ctx, id); ok {
		writeJSON(w, http.StatusOK, json.RawMessage(s))
		return
	}

	// collapse concurrent misses for the same order into one DB read
	v, err, _ := h.group.Do(id, func() (any, error) {
		view, err := h.Store.GetWithLines(ctx, id)
		if err != nil {
			return nil, err
		}
		b, err := json.Marshal(view)
		if err != nil {
			return nil, err
		}
		h.Cache.SetOrderView(ctx, view.ID, b)
		return b, nil
	})
	if errors.Is(err, orders.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	if err != nil {
		logging.FromCtx(ctx).Error("get order failed", "id", id, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(v.([]byte))
}

func (h *OrderHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	storeID := r.URL.Query().Get("store_id")
	if storeID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing store_id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Catalog.ListProducts(ctx, storeID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

// RedisViewCache backs ViewCache with the shared order:view keys.
type RedisViewCache struct{ Client *redis.Client }

func (c *RedisViewCache) GetOrderView(ctx context.Context, orderID string) (string, bool) {
	s, err := c.Client.Get(ctx, fmt.Sprintf(redisx.KeyOrderView, orderID)).Result()
	return s, err == nil && s != ""
}

func (c *RedisViewCache) SetOrderView(ctx context.Context, orderID string, raw []byte) {
	_ = c.Client.Set(ctx, fmt.Sprintf(redisx.KeyOrderView, orderID), raw, redisx.TTLOrderView).Err()
}
