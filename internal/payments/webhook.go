package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SigHeader carries hex(HMAC-SHA256(secret, raw body)).
const SigHeader = "X-Webhook-Signature"

const (
	EventIntentSucceeded = "payment_intent.succeeded"
	EventIntentFailed    = "payment_intent.failed"
)

var ErrBadEvent = errors.New("malformed webhook event")

// Event is the processor's webhook payload. ID is the idempotency key;
// IntentRef correlates back to the order's processor_ref.
type Event struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	IntentRef   string    `json:"intent_ref"`
	OrderID     string    `json:"order_id,omitempty"` // the correlation tag we set at intent creation
	AmountCents int       `json:"amount_cents,omitempty"`
	Currency    string    `json:"currency,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares in constant time. A mismatch is an integrity
// violation: reject the delivery outright.
func VerifySignature(secret, body []byte, header string) bool {
	sig, err := hex.DecodeString(header)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hmac.Equal(sig, mac.Sum(nil))
}

// ParseEvent checks shape before anything reaches the reconciliation state
// machine. Unknown types are rejected here, never downstream.
func ParseEvent(body []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrBadEvent, err)
	}
	if ev.ID == "" || ev.IntentRef == "" {
		return Event{}, fmt.Errorf("%w: missing id or intent_ref", ErrBadEvent)
	}
	switch ev.Type {
	case EventIntentSucceeded, EventIntentFailed:
		return ev, nil
	default:
		return Event{}, fmt.Errorf("%w: unknown type %q", ErrBadEvent, ev.Type)
	}
}
