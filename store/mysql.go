package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fulfillment-service/models"

	"github.com/google/uuid"
)

type MySQLStore struct {
	db *sql.DB
}

func NewMySQL(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

const orderColumns = `id, order_number, user_id, customer_name, customer_email, customer_phone,
	subtotal, discount, tax, shipping, total, currency,
	status, payment_status, payment_method, coupon_code,
	shipping_address, billing_address,
	gateway_order_id, gateway_payment_id, carrier_order_id, carrier_shipment_id, tracking_number,
	created_at, updated_at`

func (s *MySQLStore) CreateOrder(ctx context.Context, order *models.Order) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if order.CouponCode != nil {
		// Guarded increment: the row lock serializes concurrent redemptions,
		// so a cap-1 coupon can only be redeemed by one of two racing
		// checkouts.
		res, err := tx.ExecContext(ctx, `
			UPDATE coupons
			SET usage_count = usage_count + 1
			WHERE code = ? AND active = 1
			  AND (usage_limit IS NULL OR usage_count < usage_limit)
		`, *order.CouponCode)
		if err != nil {
			return fmt.Errorf("redeem coupon: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("redeem coupon rows: %w", err)
		}
		if affected == 0 {
			return ErrCouponExhausted
		}
	}

	shippingJSON, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshal shipping address: %w", err)
	}
	billingJSON, err := json.Marshal(order.BillingAddress)
	if err != nil {
		return fmt.Errorf("marshal billing address: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, order_number, user_id, customer_name, customer_email, customer_phone,
			subtotal, discount, tax, shipping, total, currency,
			status, payment_status, payment_method, coupon_code,
			shipping_address, billing_address, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		order.ID.String(), order.OrderNumber, order.UserID,
		order.CustomerName, order.CustomerEmail, order.CustomerPhone,
		order.Subtotal, order.Discount, order.Tax, order.Shipping, order.Total, order.Currency,
		string(order.Status), string(order.PaymentStatus), order.PaymentMethod, order.CouponCode,
		shippingJSON, billingJSON, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for _, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price, weight_grams)
			VALUES (?, ?, ?, ?, ?, ?)
		`, order.ID.String(), item.ProductID, item.ProductName, item.Quantity, item.UnitPrice, item.WeightGrams)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *MySQLStore) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return s.getOrderWhere(ctx, "id = ?", id.String())
}

func (s *MySQLStore) GetOrderByNumber(ctx context.Context, number string) (*models.Order, error) {
	return s.getOrderWhere(ctx, "order_number = ?", number)
}

func (s *MySQLStore) GetOrderByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Order, error) {
	return s.getOrderWhere(ctx, "gateway_order_id = ?", gatewayOrderID)
}

func (s *MySQLStore) GetOrderByCarrierRef(ctx context.Context, ref string) (*models.Order, error) {
	return s.getOrderWhere(ctx, "carrier_order_id = ? OR carrier_shipment_id = ?", ref, ref)
}

func (s *MySQLStore) GetOrderByTrackingNumber(ctx context.Context, awb string) (*models.Order, error) {
	return s.getOrderWhere(ctx, "tracking_number = ?", awb)
}

func (s *MySQLStore) getOrderWhere(ctx context.Context, where string, args ...any) (*models.Order, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE "+where+" LIMIT 1", args...)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, product_name, quantity, unit_price, weight_grams
		FROM order_items WHERE order_id = ? ORDER BY id ASC
	`, order.ID.String())
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var item models.OrderItem
		if err := rows.Scan(&item.ProductID, &item.ProductName, &item.Quantity, &item.UnitPrice, &item.WeightGrams); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("order items rows: %w", err)
	}

	return order, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var (
		o            models.Order
		idStr        string
		userID       sql.NullInt64
		status       string
		payStatus    string
		couponCode   sql.NullString
		shippingJSON []byte
		billingJSON  []byte
		gwOrderID    sql.NullString
		gwPaymentID  sql.NullString
		carOrderID   sql.NullString
		carShipID    sql.NullString
		awb          sql.NullString
	)

	err := row.Scan(&idStr, &o.OrderNumber, &userID, &o.CustomerName, &o.CustomerEmail, &o.CustomerPhone,
		&o.Subtotal, &o.Discount, &o.Tax, &o.Shipping, &o.Total, &o.Currency,
		&status, &payStatus, &o.PaymentMethod, &couponCode,
		&shippingJSON, &billingJSON,
		&gwOrderID, &gwPaymentID, &carOrderID, &carShipID, &awb,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}

	o.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse order id[%s]: %w", idStr, err)
	}

	o.Status, err = models.ToOrderStatus(status)
	if err != nil {
		return nil, fmt.Errorf("order %s: %w", idStr, err)
	}
	o.PaymentStatus = models.PaymentStatus(payStatus)

	if err := json.Unmarshal(shippingJSON, &o.ShippingAddress); err != nil {
		return nil, fmt.Errorf("unmarshal shipping address: %w", err)
	}
	if err := json.Unmarshal(billingJSON, &o.BillingAddress); err != nil {
		return nil, fmt.Errorf("unmarshal billing address: %w", err)
	}

	if userID.Valid {
		o.UserID = &userID.Int64
	}
	o.CouponCode = nullableString(couponCode)
	o.GatewayOrderID = nullableString(gwOrderID)
	o.GatewayPaymentID = nullableString(gwPaymentID)
	o.CarrierOrderID = nullableString(carOrderID)
	o.CarrierShipmentID = nullableString(carShipID)
	o.TrackingNumber = nullableString(awb)

	return &o, nil
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func (s *MySQLStore) SetGatewayOrderID(ctx context.Context, id uuid.UUID, gatewayOrderID string) error {
	return s.updateOrder(ctx, id, "gateway_order_id = ?", gatewayOrderID)
}

func (s *MySQLStore) MarkPaid(ctx context.Context, id uuid.UUID, gatewayPaymentID string) (bool, error) {
	// The payment_status guard makes this the idempotency gate for both the
	// synchronous verify call and the webhook fallback: only one caller ever
	// observes the transition. The status guard keeps a stale capture from
	// reviving an order that was cancelled while unpaid.
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = ?, status = ?, gateway_payment_id = ?, updated_at = ?
		WHERE id = ? AND payment_status <> ? AND status = ?
	`, string(models.PaymentPaid), string(models.StatusProcessing), gatewayPaymentID, time.Now().UTC(),
		id.String(), string(models.PaymentPaid), string(models.StatusPending))
	if err != nil {
		return false, fmt.Errorf("mark paid: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark paid rows: %w", err)
	}
	return affected == 1, nil
}

func (s *MySQLStore) MarkPaymentFailed(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE orders SET payment_status = ?, updated_at = ?
		WHERE id = ? AND payment_status = ?
	`, string(models.PaymentFailed), time.Now().UTC(), id.String(), string(models.PaymentPending))
	if err != nil {
		return fmt.Errorf("mark payment failed: %w", err)
	}
	return nil
}

func (s *MySQLStore) SetShipmentRefs(ctx context.Context, id uuid.UUID, carrierOrderID, carrierShipmentID, awb string) error {
	return s.updateOrder(ctx, id,
		"carrier_order_id = ?, carrier_shipment_id = ?, tracking_number = ?",
		carrierOrderID, carrierShipmentID, awb)
}

func (s *MySQLStore) SetTrackingNumber(ctx context.Context, id uuid.UUID, awb string) error {
	return s.updateOrder(ctx, id, "tracking_number = ?", awb)
}

func (s *MySQLStore) updateOrder(ctx context.Context, id uuid.UUID, set string, args ...any) error {
	args = append(args, time.Now().UTC(), id.String())
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET "+set+", updated_at = ? WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MySQLStore) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.OrderStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, string(to), time.Now().UTC(), id.String(), string(from))
	if err != nil {
		return false, fmt.Errorf("update status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update status rows: %w", err)
	}
	return affected == 1, nil
}

func (s *MySQLStore) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	var p models.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, price, weight_grams, active FROM products WHERE id = ?
	`, id).Scan(&p.ID, &p.Name, &p.Price, &p.WeightGrams, &p.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &p, nil
}

func (s *MySQLStore) GetCoupon(ctx context.Context, code string) (*models.Coupon, error) {
	var (
		c          models.Coupon
		dtype      string
		startDate  sql.NullTime
		endDate    sql.NullTime
		usageLimit sql.NullInt64
		minCart    sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT code, discount_type, value, active, start_date, end_date, usage_limit, usage_count, min_cart_value
		FROM coupons WHERE code = ?
	`, code).Scan(&c.Code, &dtype, &c.Value, &c.Active, &startDate, &endDate, &usageLimit, &c.UsageCount, &minCart)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get coupon: %w", err)
	}

	c.DiscountType = models.DiscountType(dtype)
	if startDate.Valid {
		c.StartDate = &startDate.Time
	}
	if endDate.Valid {
		c.EndDate = &endDate.Time
	}
	if usageLimit.Valid {
		limit := int(usageLimit.Int64)
		c.UsageLimit = &limit
	}
	if minCart.Valid {
		c.MinCartValue = &minCart.Int64
	}
	return &c, nil
}

func (s *MySQLStore) AppendEvent(ctx context.Context, event *models.WebhookEvent) (int64, error) {
	payload := event.Payload
	if len(payload) == 0 {
		payload = []byte(`{}`)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_events (provider, event_type, authenticated, reference, payload, processed, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)
	`, event.Provider, event.EventType, event.Authenticated, event.Reference, payload, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("append webhook event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("webhook event id: %w", err)
	}
	return id, nil
}

func (s *MySQLStore) MarkEventProcessed(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE webhook_events SET processed = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark event processed: %w", err)
	}
	return nil
}

func (s *MySQLStore) UpsertShipmentAnalytics(ctx context.Context, rec *models.ShipmentAnalyticsRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shipment_analytics (tracking_number, carrier_status, internal_status, courier_name, event_count, last_event_at)
		VALUES (?, ?, ?, ?, 1, ?)
		ON DUPLICATE KEY UPDATE
			carrier_status = VALUES(carrier_status),
			internal_status = VALUES(internal_status),
			courier_name = VALUES(courier_name),
			event_count = event_count + 1,
			last_event_at = VALUES(last_event_at)
	`, rec.TrackingNumber, rec.CarrierStatus, string(rec.InternalStatus), rec.CourierName, rec.LastEventAt)
	if err != nil {
		return fmt.Errorf("upsert shipment analytics: %w", err)
	}
	return nil
}
