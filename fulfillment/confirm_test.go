package fulfillment_test

import (
	"context"
	"errors"
	"testing"

	"fulfillment-service/fulfillment"
	"fulfillment-service/models"
	"fulfillment-service/store/storetest"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	events []models.FulfillmentEvent
	err    error
}

func (p *capturePublisher) PublishFulfillmentEvent(event models.FulfillmentEvent) error {
	p.events = append(p.events, event)
	return p.err
}

func TestConfirmPaymentOnce(t *testing.T) {
	db := storetest.New()
	orderID := uuid.New()
	db.Orders[orderID] = &models.Order{
		ID:            orderID,
		Status:        models.StatusPending,
		PaymentStatus: models.PaymentPending,
	}

	publisher := &capturePublisher{}
	svc := fulfillment.NewService(db, publisher)

	transitioned, err := svc.ConfirmPayment(context.Background(), orderID, "gw_pay_1", "verify")
	require.NoError(t, err)
	assert.True(t, transitioned)

	order := db.Orders[orderID]
	assert.Equal(t, models.PaymentPaid, order.PaymentStatus)
	assert.Equal(t, models.StatusProcessing, order.Status)
	require.NotNil(t, order.GatewayPaymentID)
	assert.Equal(t, "gw_pay_1", *order.GatewayPaymentID)

	require.Len(t, publisher.events, 2)
	assert.Equal(t, models.EventOrderConfirmed, publisher.events[0].Type)
	assert.Equal(t, models.EventShipmentRequest, publisher.events[1].Type)
	assert.Equal(t, orderID.String(), publisher.events[0].OrderID)
}

func TestConfirmPaymentRepeatIsNoOp(t *testing.T) {
	db := storetest.New()
	orderID := uuid.New()
	db.Orders[orderID] = &models.Order{
		ID:            orderID,
		Status:        models.StatusPending,
		PaymentStatus: models.PaymentPending,
	}

	publisher := &capturePublisher{}
	svc := fulfillment.NewService(db, publisher)

	_, err := svc.ConfirmPayment(context.Background(), orderID, "gw_pay_1", "verify")
	require.NoError(t, err)

	// Redelivered webhook after the verify call already confirmed.
	transitioned, err := svc.ConfirmPayment(context.Background(), orderID, "gw_pay_1", "webhook")
	require.NoError(t, err)
	assert.False(t, transitioned)
	assert.Len(t, publisher.events, 2, "repeat confirmation must not publish again")
}

func TestConfirmPaymentPublishFailureDoesNotUndo(t *testing.T) {
	db := storetest.New()
	orderID := uuid.New()
	db.Orders[orderID] = &models.Order{
		ID:            orderID,
		Status:        models.StatusPending,
		PaymentStatus: models.PaymentPending,
	}

	publisher := &capturePublisher{err: errors.New("broker down")}
	svc := fulfillment.NewService(db, publisher)

	transitioned, err := svc.ConfirmPayment(context.Background(), orderID, "gw_pay_1", "webhook")
	require.NoError(t, err)
	assert.True(t, transitioned)
	assert.Equal(t, models.PaymentPaid, db.Orders[orderID].PaymentStatus)
}

func TestConfirmPaymentUnknownOrder(t *testing.T) {
	svc := fulfillment.NewService(storetest.New(), &capturePublisher{})

	_, err := svc.ConfirmPayment(context.Background(), uuid.New(), "gw_pay_1", "verify")
	require.Error(t, err)
}
