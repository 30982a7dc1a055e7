package database

import "fmt"

// Monetary columns are BIGINT minor units throughout; binary floats never
// touch money.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id VARCHAR(64) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		price BIGINT NOT NULL,
		weight_grams INT NOT NULL DEFAULT 0,
		active TINYINT(1) NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS coupons (
		code VARCHAR(64) PRIMARY KEY,
		discount_type VARCHAR(16) NOT NULL,
		value BIGINT NOT NULL,
		active TINYINT(1) NOT NULL DEFAULT 1,
		start_date DATETIME NULL,
		end_date DATETIME NULL,
		usage_limit INT NULL,
		usage_count INT NOT NULL DEFAULT 0,
		min_cart_value BIGINT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id CHAR(36) PRIMARY KEY,
		order_number VARCHAR(32) NOT NULL UNIQUE,
		user_id BIGINT NULL,
		customer_name VARCHAR(255) NOT NULL DEFAULT '',
		customer_email VARCHAR(255) NOT NULL DEFAULT '',
		customer_phone VARCHAR(32) NOT NULL DEFAULT '',
		subtotal BIGINT NOT NULL,
		discount BIGINT NOT NULL DEFAULT 0,
		tax BIGINT NOT NULL DEFAULT 0,
		shipping BIGINT NOT NULL DEFAULT 0,
		total BIGINT NOT NULL,
		currency CHAR(3) NOT NULL DEFAULT 'INR',
		status VARCHAR(32) NOT NULL DEFAULT 'pending',
		payment_status VARCHAR(16) NOT NULL DEFAULT 'pending',
		payment_method VARCHAR(32) NOT NULL DEFAULT '',
		coupon_code VARCHAR(64) NULL,
		shipping_address JSON NOT NULL,
		billing_address JSON NOT NULL,
		gateway_order_id VARCHAR(64) NULL,
		gateway_payment_id VARCHAR(64) NULL,
		carrier_order_id VARCHAR(64) NULL,
		carrier_shipment_id VARCHAR(64) NULL,
		tracking_number VARCHAR(64) NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		INDEX idx_orders_gateway_order (gateway_order_id),
		INDEX idx_orders_tracking (tracking_number)
	)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		order_id CHAR(36) NOT NULL,
		product_id VARCHAR(64) NOT NULL,
		product_name VARCHAR(255) NOT NULL,
		quantity INT NOT NULL,
		unit_price BIGINT NOT NULL,
		weight_grams INT NOT NULL DEFAULT 0,
		CONSTRAINT fk_order_items_order FOREIGN KEY (order_id)
			REFERENCES orders (id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS webhook_events (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		provider VARCHAR(16) NOT NULL,
		event_type VARCHAR(64) NOT NULL,
		authenticated TINYINT(1) NOT NULL DEFAULT 0,
		reference VARCHAR(128) NOT NULL DEFAULT '',
		payload JSON NOT NULL,
		processed TINYINT(1) NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS shipment_analytics (
		tracking_number VARCHAR(64) PRIMARY KEY,
		carrier_status VARCHAR(64) NOT NULL,
		internal_status VARCHAR(32) NOT NULL,
		courier_name VARCHAR(128) NOT NULL DEFAULT '',
		event_count INT NOT NULL DEFAULT 0,
		last_event_at DATETIME NOT NULL
	)`,
}

func EnsureSchema() error {
	for _, stmt := range schema {
		if _, err := DB.Exec(stmt); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
	}
	return nil
}
