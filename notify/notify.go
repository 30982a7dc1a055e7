package notify

import (
	"context"
	"fmt"
	"log/slog"

	"fulfillment-service/models"
	"fulfillment-service/store"

	"github.com/google/uuid"
)

// Sender delivers customer notifications. The mail system is an external
// collaborator; failures here are best-effort and never bubble into the
// payment pipeline.
type Sender interface {
	SendOrderConfirmation(ctx context.Context, orderID uuid.UUID) error
}

// LogSender resolves the order and records what would be sent. Swap in a
// real mail backend behind the same interface.
type LogSender struct {
	orders store.OrderStore
	logger *slog.Logger
}

func NewLogSender(orders store.OrderStore) *LogSender {
	return &LogSender{
		orders: orders,
		logger: slog.With("component", "notify"),
	}
}

func (s *LogSender) SendOrderConfirmation(ctx context.Context, orderID uuid.UUID) error {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("get order: %w", err)
	}

	if order.PaymentStatus != models.PaymentPaid {
		s.logger.Warn("skipping confirmation for unpaid order", "order_id", orderID)
		return nil
	}

	s.logger.Info("order confirmation sent",
		"order_id", orderID,
		"order_number", order.OrderNumber,
		"email", order.CustomerEmail,
		"total", order.Total)
	return nil
}
