package carrier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"fulfillment-service/config"

	"github.com/shopspring/decimal"
)

var (
	ErrUnavailable    = errors.New("carrier unavailable")
	ErrPickupNotFound = errors.New("pickup location not registered with carrier")
	ErrNotServiceable = errors.New("no courier serves this route")
)

// Client talks to the shipping carrier's API. Credentials live server-side
// in config; the session token is cached with an explicit expiry and
// refreshed when it runs out, never persisted.
type Client struct {
	baseURL  string
	email    string
	password string
	http     *http.Client
	logger   *slog.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL:  cfg.CarrierBaseURL,
		email:    cfg.CarrierEmail,
		password: cfg.CarrierPassword,
		http:     &http.Client{Timeout: cfg.CarrierTimeout},
		logger:   slog.With("component", "carrier"),
	}
}

type PickupLocation struct {
	Name     string `json:"name"`
	Postcode string `json:"postcode"`
}

type ShipmentItem struct {
	Name      string `json:"name"`
	SKU       string `json:"sku"`
	Quantity  int    `json:"units"`
	UnitPrice int64  `json:"selling_price"`
}

type ShipmentRequest struct {
	OrderReference string         `json:"order_id"`
	PickupLocation string         `json:"pickup_location"`
	CustomerName   string         `json:"customer_name"`
	CustomerEmail  string         `json:"customer_email"`
	CustomerPhone  string         `json:"customer_phone"`
	AddressLine1   string         `json:"address_line1"`
	AddressLine2   string         `json:"address_line2,omitempty"`
	City           string         `json:"city"`
	State          string         `json:"state"`
	Country        string         `json:"country"`
	Postcode       string         `json:"postcode"`
	PaymentMethod  string         `json:"payment_method"`
	Amount         int64          `json:"order_amount"`
	WeightGrams    int            `json:"weight_grams"`
	Items          []ShipmentItem `json:"order_items"`
}

type Shipment struct {
	CarrierOrderID string `json:"order_id"`
	ShipmentID     string `json:"shipment_id"`
}

// CourierOption is one serviceable courier with its quoted rate. The rate is
// a quote for ranking, decimal to survive fractional carrier pricing.
type CourierOption struct {
	CourierID   string          `json:"courier_company_id"`
	CourierName string          `json:"courier_name"`
	Rate        decimal.Decimal `json:"rate"`
	ETDDays     int             `json:"estimated_delivery_days"`
}

type Assignment struct {
	AWB         string `json:"awb_code"`
	CourierName string `json:"courier_name"`
}

// GetPickupLocations lists the pickup points registered with the carrier
// account.
func (c *Client) GetPickupLocations(ctx context.Context) ([]PickupLocation, error) {
	var out struct {
		Locations []PickupLocation `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/settings/pickup-locations", nil, &out); err != nil {
		return nil, fmt.Errorf("pickup locations: %w", err)
	}
	return out.Locations, nil
}

// CreateShipment registers the order with the carrier and returns the
// carrier-side identifiers. The carrier de-duplicates by order reference, so
// a duplicate call returns the same shipment.
func (c *Client) CreateShipment(ctx context.Context, req ShipmentRequest) (Shipment, error) {
	var out Shipment
	if err := c.do(ctx, http.MethodPost, "/v1/orders/create", req, &out); err != nil {
		return out, fmt.Errorf("create shipment: %w", err)
	}
	if out.ShipmentID == "" {
		return out, fmt.Errorf("create shipment: carrier returned no shipment id: %w", ErrUnavailable)
	}
	return out, nil
}

// Serviceability asks which couriers can carry weightGrams from pickup to
// delivery postcode.
func (c *Client) Serviceability(ctx context.Context, pickupPostcode, deliveryPostcode string, weightGrams int) ([]CourierOption, error) {
	path := fmt.Sprintf("/v1/courier/serviceability?pickup_postcode=%s&delivery_postcode=%s&weight=%d",
		pickupPostcode, deliveryPostcode, weightGrams)

	var out struct {
		Data struct {
			AvailableCouriers []CourierOption `json:"available_courier_companies"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("serviceability: %w", err)
	}
	if len(out.Data.AvailableCouriers) == 0 {
		return nil, ErrNotServiceable
	}
	return out.Data.AvailableCouriers, nil
}

// AssignCourier requests an AWB from one specific courier for a shipment.
func (c *Client) AssignCourier(ctx context.Context, shipmentID, courierID string) (Assignment, error) {
	body := map[string]string{
		"shipment_id": shipmentID,
		"courier_id":  courierID,
	}
	var out struct {
		Response struct {
			Data Assignment `json:"data"`
		} `json:"response"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/courier/assign/awb", body, &out); err != nil {
		return Assignment{}, fmt.Errorf("assign courier %s: %w", courierID, err)
	}
	if out.Response.Data.AWB == "" {
		return Assignment{}, fmt.Errorf("assign courier %s: no awb returned", courierID)
	}
	return out.Response.Data, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	token, err := c.authToken(ctx)
	if err != nil {
		return err
	}

	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		c.logger.Error("carrier error response",
			"method", method, "path", path,
			"status", resp.StatusCode, "body", string(respBody))
		return fmt.Errorf("status %d: %w", resp.StatusCode, ErrUnavailable)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) authToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry.Add(-time.Minute)) {
		return c.token, nil
	}

	raw, err := json.Marshal(map[string]string{
		"email":    c.email,
		"password": c.password,
	})
	if err != nil {
		return "", fmt.Errorf("marshal login: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/auth/login", bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("login: %w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("login status %d: %w", resp.StatusCode, ErrUnavailable)
	}

	var out struct {
		Token     string `json:"token"`
		ExpiresIn int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	if out.Token == "" {
		return "", fmt.Errorf("login returned no token: %w", ErrUnavailable)
	}

	ttl := 24 * time.Hour
	if out.ExpiresIn > 0 {
		ttl = time.Duration(out.ExpiresIn) * time.Second
	}
	c.token = out.Token
	c.tokenExpiry = time.Now().Add(ttl)

	return c.token, nil
}
