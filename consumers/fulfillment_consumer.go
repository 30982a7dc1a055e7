package consumers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"fulfillment-service/config"
	"fulfillment-service/models"
	"fulfillment-service/notify"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ShipmentCreator is implemented by fulfillment.Orchestrator.
type ShipmentCreator interface {
	CreateShipment(ctx context.Context, orderID uuid.UUID) (string, error)
}

var logger = slog.With("component", "consumers")

// StartFulfillmentConsumers wires the three queues: shipment requests drive
// the orchestrator, notification events drive the mail sender, and the
// dead-letter queue is drained for the logs. Consumption happens off the
// HTTP path so webhook acks never wait on carrier or mail latency.
func StartFulfillmentConsumers(ch *amqp.Channel, cfg *config.Config, shipments ShipmentCreator, sender notify.Sender) {
	consume(ch, cfg.ShipmentQueue, "fulfillment-shipments", func(msg amqp.Delivery) {
		event, orderID, err := parseEvent(msg.Body)
		if err != nil {
			logger.Error("invalid shipment message", "body", string(msg.Body), "error", err)
			_ = msg.Nack(false, false)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		awb, err := shipments.CreateShipment(ctx, orderID)
		if err != nil {
			// Shipment automation is retryable; the order stays paid and an
			// operator can re-trigger it. Dead-letter the message for
			// visibility.
			logger.Error("shipment automation failed", "order_id", orderID, "error", err)
			_ = msg.Nack(false, false)
			return
		}

		logger.Info("shipment automation complete",
			"order_id", orderID, "awb", awb, "event", event.Type)
		_ = msg.Ack(false)
	})

	consume(ch, cfg.NotificationQueue, "fulfillment-notifications", func(msg amqp.Delivery) {
		_, orderID, err := parseEvent(msg.Body)
		if err != nil {
			logger.Error("invalid notification message", "body", string(msg.Body), "error", err)
			_ = msg.Nack(false, false)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := sender.SendOrderConfirmation(ctx, orderID); err != nil {
			logger.Error("confirmation notification failed", "order_id", orderID, "error", err)
		}
		// Best-effort: never requeue a notification.
		_ = msg.Ack(false)
	})

	consume(ch, cfg.DeadLetterQueue, "fulfillment-dlq", func(msg amqp.Delivery) {
		logger.Warn("dead letter received", "body", string(msg.Body))
		_ = msg.Ack(false)
	})
}

func consume(ch *amqp.Channel, queue, tag string, handle func(amqp.Delivery)) {
	msgs, err := ch.Consume(
		queue,
		tag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		logger.Error("failed to register consumer", "queue", queue, "error", err)
		return
	}

	go func() {
		for msg := range msgs {
			func() {
				defer func() {
					if r := recover(); r != nil {
						logger.Error("recovered from panic in consumer", "queue", queue, "panic", r)
						_ = msg.Nack(false, false)
					}
				}()
				handle(msg)
			}()
		}
	}()
}

func parseEvent(body []byte) (models.FulfillmentEvent, uuid.UUID, error) {
	var event models.FulfillmentEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return event, uuid.Nil, err
	}
	orderID, err := uuid.Parse(event.OrderID)
	if err != nil {
		return event, uuid.Nil, err
	}
	return event, orderID, nil
}
