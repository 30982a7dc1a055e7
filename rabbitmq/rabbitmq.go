package rabbitmq

import (
	"encoding/json"
	"fmt"
	"time"

	"fulfillment-service/config"
	"fulfillment-service/models"

	amqp "github.com/rabbitmq/amqp091-go"
)

type RabbitMQ struct {
	Conn    *amqp.Connection
	Channel *amqp.Channel
	Cfg     *config.Config
}

func NewRabbitMQ(cfg *config.Config) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}

	return &RabbitMQ{
		Conn:    conn,
		Channel: ch,
		Cfg:     cfg,
	}, nil
}

// SetupQueues declares the fulfillment exchange with one queue per routing
// key (shipment.request, order.confirmed) and a dead-letter queue for
// deliveries the consumers give up on.
func (r *RabbitMQ) SetupQueues() error {
	if err := r.Channel.ExchangeDeclare(
		r.Cfg.DeadLetterQueue+"_exchange",
		"direct",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return err
	}

	if _, err := r.Channel.QueueDeclare(
		r.Cfg.DeadLetterQueue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return err
	}

	if err := r.Channel.QueueBind(
		r.Cfg.DeadLetterQueue,
		"",
		r.Cfg.DeadLetterQueue+"_exchange",
		false,
		nil,
	); err != nil {
		return err
	}

	if err := r.Channel.ExchangeDeclare(
		r.Cfg.FulfillmentExchange,
		"direct",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return err
	}

	queues := map[string]string{
		r.Cfg.ShipmentQueue:     models.EventShipmentRequest,
		r.Cfg.NotificationQueue: models.EventOrderConfirmed,
	}

	for queue, routingKey := range queues {
		if _, err := r.Channel.QueueDeclare(
			queue,
			true,  // durable
			false, // auto-delete
			false, // exclusive
			false, // no-wait
			amqp.Table{
				"x-dead-letter-exchange":    r.Cfg.DeadLetterQueue + "_exchange",
				"x-dead-letter-routing-key": "",
			},
		); err != nil {
			return err
		}

		if err := r.Channel.QueueBind(
			queue,
			routingKey,
			r.Cfg.FulfillmentExchange,
			false,
			nil,
		); err != nil {
			return err
		}
	}

	return nil
}

// PublishFulfillmentEvent routes the event by its type. Implements
// fulfillment.Publisher.
func (r *RabbitMQ) PublishFulfillmentEvent(event models.FulfillmentEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		ContentType:  "application/json",
		Body:         body,
	}

	return r.Channel.Publish(
		r.Cfg.FulfillmentExchange,
		event.Type,
		false, // mandatory
		false, // immediate
		msg,
	)
}

func (r *RabbitMQ) Close() {
	if r.Channel != nil {
		_ = r.Channel.Close()
	}
	if r.Conn != nil {
		_ = r.Conn.Close()
	}
}
