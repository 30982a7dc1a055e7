package fulfillment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fulfillment-service/middlewares"
	"fulfillment-service/models"

	"github.com/google/uuid"
)

// Publisher dispatches best-effort downstream work (notification email,
// shipment automation) off the request path. Publish failures are logged,
// never propagated: they must not undo a payment confirmation.
type Publisher interface {
	PublishFulfillmentEvent(event models.FulfillmentEvent) error
}

// Service owns the payment-confirmation transition shared by the synchronous
// verify endpoint and the payment webhook.
type Service struct {
	orders    PaidMarker
	publisher Publisher
	logger    *slog.Logger
}

// PaidMarker is the slice of the order store the confirmation needs.
type PaidMarker interface {
	MarkPaid(ctx context.Context, id uuid.UUID, gatewayPaymentID string) (bool, error)
}

func NewService(orders PaidMarker, publisher Publisher) *Service {
	return &Service{
		orders:    orders,
		publisher: publisher,
		logger:    slog.With("component", "fulfillment"),
	}
}

// ConfirmPayment transitions the order to paid/processing exactly once. It
// reports whether this call performed the transition; a repeat call is a
// no-op that triggers no downstream effects, so a double-clicked verify or a
// redelivered webhook cannot double-ship or double-notify.
func (s *Service) ConfirmPayment(ctx context.Context, orderID uuid.UUID, gatewayPaymentID, source string) (bool, error) {
	transitioned, err := s.orders.MarkPaid(ctx, orderID, gatewayPaymentID)
	if err != nil {
		return false, fmt.Errorf("mark paid: %w", err)
	}

	if !transitioned {
		s.logger.Info("payment already confirmed", "order_id", orderID, "source", source)
		return false, nil
	}

	middlewares.RecordPaymentConfirmation(source)
	s.logger.Info("payment confirmed", "order_id", orderID, "source", source)

	now := time.Now().UTC()
	for _, eventType := range []string{models.EventOrderConfirmed, models.EventShipmentRequest} {
		event := models.FulfillmentEvent{
			OrderID:  orderID.String(),
			Type:     eventType,
			Occurred: now,
		}
		if err := s.publisher.PublishFulfillmentEvent(event); err != nil {
			s.logger.Error("failed to publish fulfillment event",
				"order_id", orderID, "type", eventType, "error", err)
		}
	}

	return true, nil
}
