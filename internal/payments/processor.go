package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type IntentRequest struct {
	OrderID     string `json:"order_id"` // correlation tag on the processor side
	AmountCents int    `json:"amount_cents"`
	Currency    string `json:"currency"`
}

type Intent struct {
	Ref          string `json:"id"`
	ClientSecret string `json:"client_secret"`
}

// Processor is the contract this core needs from the external payment
// system: create an intent for an amount, tagged with our order id.
type Processor interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
}

// Client talks to the processor's REST API. Intent creation happens after
// the reservation transaction committed, so a slow processor never holds
// inventory locks.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Intent{}, err
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/payment_intents", bytes.NewReader(body))
	if err != nil {
		return Intent{}, err
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTP.Do(hreq)
	if err != nil {
		return Intent{}, fmt.Errorf("create intent: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return Intent{}, fmt.Errorf("create intent: processor returned %d", resp.StatusCode)
	}
	var in Intent
	if err := json.NewDecoder(resp.Body).Decode(&in); err != nil {
		return Intent{}, fmt.Errorf("create intent: decode: %w", err)
	}
	if in.Ref == "" || in.ClientSecret == "" {
		return Intent{}, fmt.Errorf("create intent: incomplete response")
	}
	return in, nil
}
