package gateway_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fulfillment-service/config"
	"fulfillment-service/gateway"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, handler http.HandlerFunc, timeout time.Duration) *gateway.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return gateway.NewClient(&config.Config{
		GatewayBaseURL:   server.URL,
		GatewayKeyID:     "key_test",
		GatewayKeySecret: "secret_test",
		GatewayTimeout:   timeout,
		GatewayMinAmount: 100,
	})
}

func TestCreateIntent(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/orders", r.URL.Path)

		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "key_test", user)
		assert.Equal(t, "secret_test", pass)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, float64(945), req["amount"])
		assert.Equal(t, "ORD-TEST", req["receipt"])

		_ = json.NewEncoder(w).Encode(gateway.Intent{
			ID: "gw_order_123", Amount: 945, Currency: "INR", Receipt: "ORD-TEST",
		})
	}, 5*time.Second)

	intent, err := client.CreateIntent(context.Background(), "ORD-TEST", 945, "INR")
	require.NoError(t, err)
	assert.Equal(t, "gw_order_123", intent.ID)
}

func TestCreateIntentBelowMinimum(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("gateway must not be called for sub-minimum amounts")
	}, 5*time.Second)

	_, err := client.CreateIntent(context.Background(), "ORD-TEST", 99, "INR")
	require.ErrorIs(t, err, gateway.ErrInvalidAmount)
}

func TestCreateIntentGatewayDown(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}, 5*time.Second)

	_, err := client.CreateIntent(context.Background(), "ORD-TEST", 945, "INR")
	require.ErrorIs(t, err, gateway.ErrUnavailable)
}

func TestCreateIntentRejected(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"description":"currency not enabled"}}`))
	}, 5*time.Second)

	_, err := client.CreateIntent(context.Background(), "ORD-TEST", 945, "INR")

	var rejected *gateway.RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "currency not enabled", rejected.Reason)
}

func TestCreateIntentTimeout(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}, 20*time.Millisecond)

	_, err := client.CreateIntent(context.Background(), "ORD-TEST", 945, "INR")
	require.ErrorIs(t, err, gateway.ErrTimeout)
}
