package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-merch-checkout.git/internal/orders"
)

type fakeViewStore struct {
	views map[string]*orders.OrderView // by id and by processor ref
	calls int
}

func (f *fakeViewStore) GetWithLines(_ context.Context, identifier string) (*orders.OrderView, error) {
	f.calls++
	v, ok := f.views[identifier]
	if !ok {
		return nil, orders.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

type memViewCache struct{ entries map[string]string }

func (c *memViewCache) GetOrderView(_ context.Context, orderID string) (string, bool) {
	s, ok := c.entries[orderID]
	return s, ok
}

func (c *memViewCache) SetOrderView(_ context.Context, orderID string, raw []byte) {
	c.entries[orderID] = string(raw)
}

func newOrderServer(store *fakeViewStore, cache *memViewCache) *httptest.Server {
	r := chi.NewRouter()
	(&OrderHandler{Store: store, Cache: cache}).Register(r)
	return httptest.NewServer(r)
}

func getOrderView(t *testing.T, url, id string) (int, orders.OrderView) {
	t.Helper()
	resp, err := http.Get(url + "/api/order/" + id)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var view orders.OrderView
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
			t.Fatal(err)
		}
	}
	return resp.StatusCode, view
}

func TestGetOrderCachesUnderOrderIDOnly(t *testing.T) {
	view := &orders.OrderView{ID: "ord-1", ProcessorRef: "pi_1", PaymentStatus: orders.StatusPending}
	store := &fakeViewStore{views: map[string]*orders.OrderView{"ord-1": view, "pi_1": view}}
	cache := &memViewCache{entries: map[string]string{}}
	srv := newOrderServer(store, cache)
	defer srv.Close()

	code, got := getOrderView(t, srv.URL, "pi_1")
	if code != http.StatusOK || got.ID != "ord-1" {
		t.Fatalf("ref lookup: code %d view %+v", code, got)
	}
	if _, ok := cache.entries["pi_1"]; ok {
		t.Error("view cached under the processor ref; InvalidateOrder would never find it")
	}
	if _, ok := cache.entries["ord-1"]; !ok {
		t.Error("view not cached under the order id")
	}

	// transition lands; a ref-addressed read must see it immediately
	view.PaymentStatus = orders.StatusPaid
	delete(cache.entries, "ord-1") // what InvalidateOrder does
	if _, got := getOrderView(t, srv.URL, "pi_1"); got.PaymentStatus != orders.StatusPaid {
		t.Errorf("stale view after transition: %+v", got)
	}
}

func TestGetOrderByIDServedFromCache(t *testing.T) {
	view := &orders.OrderView{ID: "ord-1", PaymentStatus: orders.StatusPending}
	store := &fakeViewStore{views: map[string]*orders.OrderView{"ord-1": view}}
	cache := &memViewCache{entries: map[string]string{}}
	srv := newOrderServer(store, cache)
	defer srv.Close()

	for i := 0; i < 2; i++ {
		if code, _ := getOrderView(t, srv.URL, "ord-1"); code != http.StatusOK {
			t.Fatalf("request %d: code %d", i, code)
		}
	}
	if store.calls != 1 {
		t.Errorf("expected one DB read, got %d", store.calls)
	}
}

func TestGetOrderNotFound(t *testing.T) {
	srv := newOrderServer(
		&fakeViewStore{views: map[string]*orders.OrderView{}},
		&memViewCache{entries: map[string]string{}},
	)
	defer srv.Close()

	if code, _ := getOrderView(t, srv.URL, "nope"); code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
}
