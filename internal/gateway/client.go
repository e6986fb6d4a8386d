package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client talks to the payment gateway. The gateway's internals are opaque:
// we create tip intents and verify the signatures on its webhooks, nothing
// more.
type Client struct {
	baseURL       string
	apiKey        string
	webhookSecret string
	httpClient    *http.Client
}

func NewClient(baseURL, apiKey, webhookSecret string) *Client {
	return &Client{
		baseURL:       baseURL,
		apiKey:        apiKey,
		webhookSecret: webhookSecret,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
	}
}

type TipIntent struct {
	ID          string `json:"id"`
	CheckoutURL string `json:"checkout_url"`
	Status      string `json:"status"`
}

type tipIntentRequest struct {
	EventID   string `json:"event_id"`
	RequestID string `json:"request_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	UserID    string `json:"user_id"`
}

// CreateTipIntent opens a payment flow with the gateway; the confirmation
// arrives later on the webhook.
func (c *Client) CreateTipIntent(ctx context.Context, eventID, requestID, userID string, amount int64, currency string) (*TipIntent, error) {
	body, err := json.Marshal(tipIntentRequest{
		EventID:   eventID,
		RequestID: requestID,
		Amount:    amount,
		Currency:  currency,
		UserID:    userID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tip intent: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/tip-intents", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach payment gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("payment gateway returned status %d", resp.StatusCode)
	}

	var intent TipIntent
	if err := json.NewDecoder(resp.Body).Decode(&intent); err != nil {
		return nil, fmt.Errorf("failed to decode tip intent: %w", err)
	}

	return &intent, nil
}

// VerifySignature checks the HMAC-SHA256 signature the gateway attaches to
// webhook payloads.
func (c *Client) VerifySignature(payload []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
