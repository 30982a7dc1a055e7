package models

import "time"

const (
	ProviderPayment = "payment"
	ProviderCarrier = "carrier"
)

// WebhookEvent is the append-only audit record for every delivery received
// on a webhook endpoint, stored before any processing so replayed or
// unresolvable events remain inspectable. Only Processed is ever flipped.
type WebhookEvent struct {
	ID            int64     `json:"id"`
	Provider      string    `json:"provider"`
	EventType     string    `json:"event_type"`
	Authenticated bool      `json:"authenticated"`
	Reference     string    `json:"reference,omitempty"`
	Payload       []byte    `json:"payload"`
	Processed     bool      `json:"processed"`
	CreatedAt     time.Time `json:"created_at"`
}

// PaymentWebhook is the gateway's event envelope. Event values follow the
// provider vocabulary: payment.captured, payment.failed, order.paid.
type PaymentWebhook struct {
	Event            string `json:"event"`
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	// The receipt we supplied when creating the gateway intent, i.e. the
	// order number.
	Receipt string `json:"receipt"`
	Amount  int64  `json:"amount"`
}

// CarrierWebhook carries a shipment status change. OrderReference is the
// reference we registered the shipment under (the order number); AWB is the
// tracking number and the correlation key of last resort.
type CarrierWebhook struct {
	AWB            string `json:"awb"`
	CurrentStatus  string `json:"current_status"`
	OrderReference string `json:"order_id"`
	ShipmentID     string `json:"shipment_id"`
	CourierName    string `json:"courier_name"`
	Location       string `json:"location,omitempty"`
}

// ShipmentAnalyticsRecord is derived, idempotently updated tracking state
// keyed by AWB. The order row stays authoritative for status.
type ShipmentAnalyticsRecord struct {
	TrackingNumber string      `json:"tracking_number"`
	CarrierStatus  string      `json:"carrier_status"`
	InternalStatus OrderStatus `json:"internal_status"`
	CourierName    string      `json:"courier_name"`
	EventCount     int         `json:"event_count"`
	LastEventAt    time.Time   `json:"last_event_at"`
}

// FulfillmentEvent is the message published to RabbitMQ after a payment is
// confirmed: shipment.request triggers the orchestrator, order.confirmed
// triggers the notification sender.
type FulfillmentEvent struct {
	OrderID  string    `json:"order_id"`
	Type     string    `json:"type"`
	Occurred time.Time `json:"occurred"`
}

const (
	EventShipmentRequest = "shipment.request"
	EventOrderConfirmed  = "order.confirmed"
)
