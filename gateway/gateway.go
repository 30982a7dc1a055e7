package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"

	"fulfillment-service/config"
)

var (
	// ErrInvalidAmount: below the gateway's minimum charge, rejected before
	// any network call.
	ErrInvalidAmount = errors.New("amount below gateway minimum")
	// ErrTimeout: the bounded call deadline elapsed; the caller may retry,
	// the adapter does not.
	ErrTimeout = errors.New("gateway timeout")
	// ErrUnavailable: gateway-side 5xx.
	ErrUnavailable = errors.New("gateway unavailable")
)

// RejectedError carries the provider's business reason for a 4xx refusal.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("payment rejected: %s", e.Reason)
}

// Intent is the gateway-side payment request created before the customer
// completes payment.
type Intent struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type Client struct {
	baseURL   string
	keyID     string
	keySecret string
	minAmount int64
	http      *http.Client
	logger    *slog.Logger
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL:   cfg.GatewayBaseURL,
		keyID:     cfg.GatewayKeyID,
		keySecret: cfg.GatewayKeySecret,
		minAmount: cfg.GatewayMinAmount,
		http:      &http.Client{Timeout: cfg.GatewayTimeout},
		logger:    slog.With("component", "gateway"),
	}
}

func (c *Client) KeyID() string {
	return c.keyID
}

// CreateIntent registers a payment intent with the gateway for the given
// amount in minor units. Receipt is our order number, echoed back in webhook
// deliveries.
func (c *Client) CreateIntent(ctx context.Context, receipt string, amount int64, currency string) (Intent, error) {
	var intent Intent

	if amount < c.minAmount {
		return intent, fmt.Errorf("amount %d: %w", amount, ErrInvalidAmount)
	}

	body, err := json.Marshal(map[string]any{
		"amount":   amount,
		"currency": currency,
		"receipt":  receipt,
	})
	if err != nil {
		return intent, fmt.Errorf("marshal intent request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return intent, fmt.Errorf("build intent request: %w", err)
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return intent, fmt.Errorf("create intent: %w", ErrTimeout)
		}
		return intent, fmt.Errorf("create intent: %w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return intent, fmt.Errorf("read intent response: %w", err)
	}

	switch {
	case resp.StatusCode >= 500:
		c.logger.Error("gateway 5xx", "status", resp.StatusCode, "body", string(respBody))
		return intent, fmt.Errorf("create intent status %d: %w", resp.StatusCode, ErrUnavailable)
	case resp.StatusCode >= 400:
		return intent, &RejectedError{Reason: rejectionReason(respBody)}
	}

	if err := json.Unmarshal(respBody, &intent); err != nil {
		return intent, fmt.Errorf("decode intent response: %w", err)
	}
	if intent.ID == "" {
		return intent, fmt.Errorf("gateway returned no intent id: %w", ErrUnavailable)
	}
	return intent, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func rejectionReason(body []byte) string {
	var payload struct {
		Error struct {
			Description string `json:"description"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Description != "" {
		return payload.Error.Description
	}
	return "payment could not be completed"
}
