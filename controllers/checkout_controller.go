package controllers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"fulfillment-service/middlewares"
	"fulfillment-service/models"
	"fulfillment-service/pricing"
	"fulfillment-service/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type CheckoutController struct {
	orders  store.OrderStore
	pricing *pricing.Engine
	logger  *slog.Logger
}

func NewCheckoutController(orders store.OrderStore, engine *pricing.Engine) *CheckoutController {
	return &CheckoutController{
		orders:  orders,
		pricing: engine,
		logger:  slog.With("component", "checkout"),
	}
}

// Checkout turns a cart into a pending order. Totals come from the catalog,
// never from the request.
func (ctl *CheckoutController) Checkout(c *gin.Context) {
	success := false
	defer func() { middlewares.RecordOrderOperation("checkout", success) }()

	var req models.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if len(req.Items) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty_cart"})
		return
	}
	if req.ShippingAddress.Empty() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_address"})
		return
	}

	quote, err := ctl.pricing.Quote(c.Request.Context(), req.Items, req.CouponCode, req.ShippingAddress.Country)
	if err != nil {
		switch {
		case errors.Is(err, pricing.ErrProductNotFound),
			errors.Is(err, pricing.ErrProductInactive),
			errors.Is(err, pricing.ErrCouponInvalid):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			ctl.logger.Error("pricing failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not price order"})
		}
		return
	}

	billing := req.ShippingAddress
	if req.BillingAddress != nil && !req.BillingAddress.Empty() {
		billing = *req.BillingAddress
	}

	shipping := pricing.ShippingFor(quote.Subtotal - quote.Discount)

	now := time.Now().UTC()
	order := &models.Order{
		ID:              uuid.New(),
		OrderNumber:     newOrderNumber(),
		CustomerName:    req.CustomerName,
		CustomerEmail:   req.CustomerEmail,
		CustomerPhone:   req.CustomerPhone,
		Subtotal:        quote.Subtotal,
		Discount:        quote.Discount,
		Tax:             quote.Tax,
		Shipping:        shipping,
		Total:           quote.Subtotal - quote.Discount + shipping + quote.Tax,
		Currency:        "INR",
		Status:          models.StatusPending,
		PaymentStatus:   models.PaymentPending,
		PaymentMethod:   req.PaymentMethod,
		CouponCode:      quote.CouponCode,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  billing,
		CreatedAt:       now,
		UpdatedAt:       now,
		Items:           quote.Items,
	}

	if userID, ok := c.Get("userID"); ok {
		id := userID.(int64)
		order.UserID = &id
	}

	if err := ctl.orders.CreateOrder(c.Request.Context(), order); err != nil {
		if errors.Is(err, store.ErrCouponExhausted) {
			c.JSON(http.StatusConflict, gin.H{"error": "coupon usage limit reached"})
			return
		}
		ctl.logger.Error("order creation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create order"})
		return
	}

	success = true
	c.JSON(http.StatusCreated, models.CheckoutResponse{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Subtotal:    order.Subtotal,
		Discount:    order.Discount,
		Tax:         order.Tax,
		Shipping:    order.Shipping,
		Total:       order.Total,
		Currency:    order.Currency,
	})
}

// GetOrder returns one order with its items.
func (ctl *CheckoutController) GetOrder(c *gin.Context) {
	success := false
	defer func() { middlewares.RecordOrderOperation("details", success) }()

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	order, err := ctl.orders.GetOrder(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}
		ctl.logger.Error("order lookup failed", "order_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
		return
	}

	if userID, ok := c.Get("userID"); ok {
		if order.UserID != nil && *order.UserID != userID.(int64) {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}
	}

	success = true
	c.JSON(http.StatusOK, order)
}

func newOrderNumber() string {
	return "ORD-" + strings.ToUpper(uuid.New().String()[:8])
}
