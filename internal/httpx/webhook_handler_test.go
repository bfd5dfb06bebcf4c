package httpx

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/go-merch-checkout.git/internal/kafka"
	"github.com/ariefcatur/go-merch-checkout.git/internal/logging"
	"github.com/ariefcatur/go-merch-checkout.git/internal/orders"
	"github.com/ariefcatur/go-merch-checkout.git/internal/payments"
)

type fakePublisher struct {
	err      error
	messages [][]byte
}

func (f *fakePublisher) PublishSync(_ context.Context, _, value []byte, _ ...kafkago.Header) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, value)
	return nil
}

func newWebhookServer(pub *fakePublisher, secret string) *httptest.Server {
	r := chi.NewRouter()
	h := &WebhookHandler{Events: pub, Secret: []byte(secret), Log: logging.New("webhook-test")}
	h.Register(r)
	return httptest.NewServer(r)
}

func post(t *testing.T, url string, body []byte, sig string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url+"/api/payments/webhook", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if sig != "" {
		req.Header.Set(payments.SigHeader, sig)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	pub := &fakePublisher{}
	srv := newWebhookServer(pub, "whsec")
	defer srv.Close()

	body := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","intent_ref":"pi_1"}`)

	for _, sig := range []string{"", "deadbeef", payments.Sign([]byte("wrong"), body)} {
		resp := post(t, srv.URL, body, sig)
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("sig %q: expected 401, got %d", sig, resp.StatusCode)
		}
	}
	if len(pub.messages) != 0 {
		t.Error("nothing may be published for an unverified delivery")
	}
}

func TestWebhookRejectsMalformedEvent(t *testing.T) {
	pub := &fakePublisher{}
	srv := newWebhookServer(pub, "whsec")
	defer srv.Close()

	body := []byte(`{"type":"payment_intent.succeeded"}`) // no id, no ref
	resp := post(t, srv.URL, body, payments.Sign([]byte("whsec"), body))
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestWebhookPublishesVerifiedEvent(t *testing.T) {
	pub := &fakePublisher{}
	srv := newWebhookServer(pub, "whsec")
	defer srv.Close()

	body := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","intent_ref":"pi_1","order_id":"ord-1"}`)
	resp := post(t, srv.URL, body, payments.Sign([]byte("whsec"), body))
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	if len(pub.messages) != 1 {
		t.Fatalf("expected one published event, got %d", len(pub.messages))
	}
	var env orders.Envelope
	if err := kafkax.UnmarshalEnvelope(pub.messages[0], &env); err != nil {
		t.Fatal(err)
	}
	if env.EventID != "evt_1" || env.EventType != orders.EventPaymentSucceeded || env.CorrelationID != "ord-1" {
		t.Errorf("unexpected envelope: %+v", env)
	}
}

func TestWebhookAsksForRedeliveryWhenPublishFails(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	srv := newWebhookServer(pub, "whsec")
	defer srv.Close()

	body := []byte(`{"id":"evt_1","type":"payment_intent.failed","intent_ref":"pi_1"}`)
	resp := post(t, srv.URL, body, payments.Sign([]byte("whsec"), body))
	resp.Body.Close()
	if resp.StatusCode < 500 {
		t.Errorf("expected non-2xx server error for redelivery, got %d", resp.StatusCode)
	}
}
