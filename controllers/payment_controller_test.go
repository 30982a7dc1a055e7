package controllers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"fulfillment-service/controllers"
	"fulfillment-service/fulfillment"
	"fulfillment-service/gateway"
	"fulfillment-service/models"
	"fulfillment-service/store/storetest"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const signingSecret = "test-signing-secret"

type fakeGateway struct {
	intent gateway.Intent
	err    error
	calls  int
}

func (f *fakeGateway) CreateIntent(_ context.Context, receipt string, amount int64, currency string) (gateway.Intent, error) {
	f.calls++
	if f.err != nil {
		return gateway.Intent{}, f.err
	}
	intent := f.intent
	intent.Receipt = receipt
	intent.Amount = amount
	intent.Currency = currency
	return intent, nil
}

func (f *fakeGateway) KeyID() string { return "key_test" }

type paymentFixture struct {
	db        *storetest.Store
	gateway   *fakeGateway
	publisher *capturePublisher
	router    *gin.Engine
}

type capturePublisher struct {
	events []models.FulfillmentEvent
}

func (p *capturePublisher) PublishFulfillmentEvent(event models.FulfillmentEvent) error {
	p.events = append(p.events, event)
	return nil
}

func newPaymentFixture() *paymentFixture {
	db := storetest.New()
	gw := &fakeGateway{intent: gateway.Intent{ID: "gw_order_1"}}
	publisher := &capturePublisher{}
	confirmer := fulfillment.NewService(db, publisher)
	ctl := controllers.NewPaymentController(db, gw, confirmer, signingSecret)

	router := gin.New()
	router.POST("/api/payments", ctl.CreateIntent)
	router.POST("/api/payments/verify", ctl.VerifyPayment)

	return &paymentFixture{db: db, gateway: gw, publisher: publisher, router: router}
}

func (f *paymentFixture) seedOrder() uuid.UUID {
	orderID := uuid.New()
	f.db.Orders[orderID] = &models.Order{
		ID:            orderID,
		OrderNumber:   "ORD-ABC123",
		Total:         5945,
		Currency:      "INR",
		Status:        models.StatusPending,
		PaymentStatus: models.PaymentPending,
	}
	return orderID
}

func TestCreateIntent(t *testing.T) {
	f := newPaymentFixture()
	orderID := f.seedOrder()

	w := postJSON(t, f.router, "/api/payments", models.CreateIntentRequest{OrderID: orderID.String()})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp models.CreateIntentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "gw_order_1", resp.GatewayOrderID)
	assert.Equal(t, int64(5945), resp.Amount)
	assert.Equal(t, "key_test", resp.KeyID)

	stored := f.db.Orders[orderID]
	require.NotNil(t, stored.GatewayOrderID)
	assert.Equal(t, "gw_order_1", *stored.GatewayOrderID)
}

func TestCreateIntentReusesExisting(t *testing.T) {
	f := newPaymentFixture()
	orderID := f.seedOrder()
	existing := "gw_order_prior"
	f.db.Orders[orderID].GatewayOrderID = &existing

	w := postJSON(t, f.router, "/api/payments", models.CreateIntentRequest{OrderID: orderID.String()})
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.CreateIntentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, existing, resp.GatewayOrderID)
	assert.Zero(t, f.gateway.calls, "no second gateway intent for the same order")
}

func TestCreateIntentAlreadyPaid(t *testing.T) {
	f := newPaymentFixture()
	orderID := f.seedOrder()
	f.db.Orders[orderID].PaymentStatus = models.PaymentPaid

	w := postJSON(t, f.router, "/api/payments", models.CreateIntentRequest{OrderID: orderID.String()})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Zero(t, f.gateway.calls)
}

func TestCreateIntentUnknownOrder(t *testing.T) {
	f := newPaymentFixture()

	w := postJSON(t, f.router, "/api/payments", models.CreateIntentRequest{OrderID: uuid.NewString()})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateIntentGatewayErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"invalid amount", gateway.ErrInvalidAmount, http.StatusBadRequest},
		{"timeout", gateway.ErrTimeout, http.StatusGatewayTimeout},
		{"rejected", &gateway.RejectedError{Reason: "currency not enabled"}, http.StatusPaymentRequired},
		{"unavailable", gateway.ErrUnavailable, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPaymentFixture()
			orderID := f.seedOrder()
			f.gateway.err = tt.err

			w := postJSON(t, f.router, "/api/payments", models.CreateIntentRequest{OrderID: orderID.String()})
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Nil(t, f.db.Orders[orderID].GatewayOrderID)
		})
	}
}

func TestVerifyPayment(t *testing.T) {
	f := newPaymentFixture()
	orderID := f.seedOrder()
	gatewayID := "gw_order_1"
	f.db.Orders[orderID].GatewayOrderID = &gatewayID

	sig := gateway.Sign(signingSecret, "gw_order_1", "gw_pay_1")
	req := models.VerifyPaymentRequest{
		OrderID:          orderID.String(),
		GatewayOrderID:   "gw_order_1",
		GatewayPaymentID: "gw_pay_1",
		Signature:        sig,
	}

	w := postJSON(t, f.router, "/api/payments/verify", req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	order := f.db.Orders[orderID]
	assert.Equal(t, models.PaymentPaid, order.PaymentStatus)
	assert.Equal(t, models.StatusProcessing, order.Status)
	assert.Len(t, f.publisher.events, 2)

	// A replayed verify succeeds without re-running side effects.
	w = postJSON(t, f.router, "/api/payments/verify", req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, f.publisher.events, 2)
}

func TestVerifyPaymentBadSignature(t *testing.T) {
	f := newPaymentFixture()
	orderID := f.seedOrder()

	w := postJSON(t, f.router, "/api/payments/verify", models.VerifyPaymentRequest{
		OrderID:          orderID.String(),
		GatewayOrderID:   "gw_order_1",
		GatewayPaymentID: "gw_pay_1",
		Signature:        "forged",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	order := f.db.Orders[orderID]
	assert.Equal(t, models.PaymentPending, order.PaymentStatus, "a bad signature mutates nothing")
	assert.Equal(t, models.StatusPending, order.Status)
	assert.Empty(t, f.publisher.events)
}

func TestVerifyPaymentRejectsForeignIntent(t *testing.T) {
	// A customer who paid a cheap order holds a valid signature for their own
	// gateway pair. Replaying it against someone else's order must not
	// confirm that order.
	f := newPaymentFixture()
	cheapID := f.seedOrder()
	cheapGatewayID := "gw_cheap"
	f.db.Orders[cheapID].GatewayOrderID = &cheapGatewayID

	victimID := f.seedOrder()
	victimGatewayID := "gw_victim"
	f.db.Orders[victimID].GatewayOrderID = &victimGatewayID

	sig := gateway.Sign(signingSecret, "gw_cheap", "pay_cheap")
	w := postJSON(t, f.router, "/api/payments/verify", models.VerifyPaymentRequest{
		OrderID:          victimID.String(),
		GatewayOrderID:   "gw_cheap",
		GatewayPaymentID: "pay_cheap",
		Signature:        sig,
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	victim := f.db.Orders[victimID]
	assert.Equal(t, models.PaymentPending, victim.PaymentStatus)
	assert.Equal(t, models.StatusPending, victim.Status)
	assert.Empty(t, f.publisher.events)
}

func TestVerifyPaymentRejectsOrderWithoutIntent(t *testing.T) {
	f := newPaymentFixture()
	orderID := f.seedOrder()

	sig := gateway.Sign(signingSecret, "gw_order_1", "gw_pay_1")
	w := postJSON(t, f.router, "/api/payments/verify", models.VerifyPaymentRequest{
		OrderID:          orderID.String(),
		GatewayOrderID:   "gw_order_1",
		GatewayPaymentID: "gw_pay_1",
		Signature:        sig,
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, models.PaymentPending, f.db.Orders[orderID].PaymentStatus)
}

func TestVerifyPaymentUnknownOrder(t *testing.T) {
	f := newPaymentFixture()

	sig := gateway.Sign(signingSecret, "gw_order_1", "gw_pay_1")
	w := postJSON(t, f.router, "/api/payments/verify", models.VerifyPaymentRequest{
		OrderID:          uuid.NewString(),
		GatewayOrderID:   "gw_order_1",
		GatewayPaymentID: "gw_pay_1",
		Signature:        sig,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestVerifyPaymentMissingFields(t *testing.T) {
	f := newPaymentFixture()

	w := postJSON(t, f.router, "/api/payments/verify", gin.H{"order_id": uuid.NewString()})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
