package payments

import (
	"errors"
	"testing"
)

func TestSignVerifyRoundtrip(t *testing.T) {
	secret := []byte("whsec_test")
	body := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","intent_ref":"pi_1"}`)

	sig := Sign(secret, body)
	if !VerifySignature(secret, body, sig) {
		t.Fatal("valid signature rejected")
	}
	if VerifySignature(secret, append(body, ' '), sig) {
		t.Error("tampered body accepted")
	}
	if VerifySignature([]byte("other"), body, sig) {
		t.Error("wrong secret accepted")
	}
	if VerifySignature(secret, body, "not-hex") {
		t.Error("garbage header accepted")
	}
}

func TestParseEvent(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"id":"evt_1","type":"payment_intent.succeeded","intent_ref":"pi_1","order_id":"ord_1","amount_cents":4500,"currency":"USD"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.ID != "evt_1" || ev.IntentRef != "pi_1" || ev.AmountCents != 4500 {
		t.Errorf("unexpected event: %+v", ev)
	}

	bad := [][]byte{
		[]byte(`not json`),
		[]byte(`{"type":"payment_intent.succeeded","intent_ref":"pi_1"}`),
		[]byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`),
		[]byte(`{"id":"evt_1","type":"payment_intent.created","intent_ref":"pi_1"}`),
	}
	for _, b := range bad {
		if _, err := ParseEvent(b); !errors.Is(err, ErrBadEvent) {
			t.Errorf("expected ErrBadEvent for %s, got %v", b, err)
		}
	}
}
