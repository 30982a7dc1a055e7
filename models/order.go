package models

import (
	"time"

	"github.com/google/uuid"
)

// All monetary amounts are integer minor currency units (paise, cents).
// Totals are computed server-side only; client-submitted prices are never
// trusted.
type Order struct {
	ID          uuid.UUID `json:"id"`
	OrderNumber string    `json:"order_number"`
	UserID      *int64    `json:"user_id,omitempty"`

	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	CustomerPhone string `json:"customer_phone"`

	Subtotal int64  `json:"subtotal"`
	Discount int64  `json:"discount"`
	Tax      int64  `json:"tax"`
	Shipping int64  `json:"shipping"`
	Total    int64  `json:"total"`
	Currency string `json:"currency"`

	Status        OrderStatus   `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	PaymentMethod string        `json:"payment_method"`
	CouponCode    *string       `json:"coupon_code,omitempty"`

	ShippingAddress Address `json:"shipping_address"`
	BillingAddress  Address `json:"billing_address"`

	GatewayOrderID    *string `json:"gateway_order_id,omitempty"`
	GatewayPaymentID  *string `json:"gateway_payment_id,omitempty"`
	CarrierOrderID    *string `json:"carrier_order_id,omitempty"`
	CarrierShipmentID *string `json:"carrier_shipment_id,omitempty"`
	TrackingNumber    *string `json:"tracking_number,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Items []OrderItem `json:"items"`
}

// OrderItem captures the unit price at the time of order. It is never
// re-derived from the catalog afterwards.
type OrderItem struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	WeightGrams int    `json:"weight_grams"`
}

func (i OrderItem) LineTotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

type Address struct {
	Name     string `json:"name"`
	Line1    string `json:"line1"`
	Line2    string `json:"line2,omitempty"`
	City     string `json:"city"`
	State    string `json:"state"`
	Country  string `json:"country"`
	Postcode string `json:"postcode"`
	Phone    string `json:"phone,omitempty"`
}

func (a Address) Empty() bool {
	return a.Line1 == "" && a.City == "" && a.Postcode == ""
}

type Product struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Price       int64  `json:"price"`
	WeightGrams int    `json:"weight_grams"`
	Active      bool   `json:"active"`
}

type CheckoutItem struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
	// Echoed by the client for display only, never used for totals.
	Price int64 `json:"price"`
}

type CheckoutRequest struct {
	Items           []CheckoutItem `json:"items"`
	ShippingAddress Address        `json:"shipping_address"`
	BillingAddress  *Address       `json:"billing_address,omitempty"`
	CustomerName    string         `json:"customer_name"`
	CustomerEmail   string         `json:"customer_email"`
	CustomerPhone   string         `json:"customer_phone"`
	CouponCode      string         `json:"coupon_code,omitempty"`
	PaymentMethod   string         `json:"payment_method"`
}

type CheckoutResponse struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	Subtotal    int64     `json:"subtotal"`
	Discount    int64     `json:"discount"`
	Tax         int64     `json:"tax"`
	Shipping    int64     `json:"shipping"`
	Total       int64     `json:"total"`
	Currency    string    `json:"currency"`
}

type CreateIntentRequest struct {
	OrderID string `json:"order_id" binding:"required"`
}

type CreateIntentResponse struct {
	GatewayOrderID string `json:"gateway_order_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	KeyID          string `json:"key_id"`
}

type VerifyPaymentRequest struct {
	OrderID          string `json:"order_id" binding:"required"`
	GatewayOrderID   string `json:"gateway_order_id" binding:"required"`
	GatewayPaymentID string `json:"gateway_payment_id" binding:"required"`
	Signature        string `json:"signature" binding:"required"`
}
