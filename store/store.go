package store

import (
	"context"
	"errors"

	"fulfillment-service/models"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrCouponExhausted means the usage cap was hit between validation and
	// the guarded increment inside the order-creation transaction.
	ErrCouponExhausted = errors.New("coupon usage limit reached")
)

// OrderStore is the single source of truth for order and payment state.
type OrderStore interface {
	// CreateOrder inserts the order and its items in one transaction. If the
	// order carries a coupon code, the coupon's usage counter is incremented
	// in the same transaction under its cap; exhaustion aborts the whole
	// creation with ErrCouponExhausted.
	CreateOrder(ctx context.Context, order *models.Order) error

	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetOrderByNumber(ctx context.Context, number string) (*models.Order, error)
	GetOrderByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Order, error)
	GetOrderByCarrierRef(ctx context.Context, ref string) (*models.Order, error)
	GetOrderByTrackingNumber(ctx context.Context, awb string) (*models.Order, error)

	SetGatewayOrderID(ctx context.Context, id uuid.UUID, gatewayOrderID string) error

	// MarkPaid flips payment_status to paid and status to processing in one
	// guarded update. It reports whether this call performed the transition;
	// false means the order was already paid and no state changed.
	MarkPaid(ctx context.Context, id uuid.UUID, gatewayPaymentID string) (bool, error)
	MarkPaymentFailed(ctx context.Context, id uuid.UUID) error

	SetShipmentRefs(ctx context.Context, id uuid.UUID, carrierOrderID, carrierShipmentID, awb string) error
	// SetTrackingNumber is the AWB-only write: it records a tracking number
	// without touching the lifecycle status.
	SetTrackingNumber(ctx context.Context, id uuid.UUID, awb string) error

	// UpdateStatus is a compare-and-swap on the status column. It reports
	// whether the row moved, so concurrent reconcilers cannot interleave a
	// downgrade between read and write.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.OrderStatus) (bool, error)
}

type CatalogStore interface {
	GetProduct(ctx context.Context, id string) (*models.Product, error)
}

type CouponStore interface {
	GetCoupon(ctx context.Context, code string) (*models.Coupon, error)
}

// WebhookStore persists the audit log and the derived shipment analytics.
type WebhookStore interface {
	AppendEvent(ctx context.Context, event *models.WebhookEvent) (int64, error)
	MarkEventProcessed(ctx context.Context, id int64) error
	UpsertShipmentAnalytics(ctx context.Context, rec *models.ShipmentAnalyticsRecord) error
}

// Store is the full persistence surface, implemented by MySQLStore.
type Store interface {
	OrderStore
	CatalogStore
	CouponStore
	WebhookStore
}
