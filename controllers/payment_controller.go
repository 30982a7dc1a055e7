package controllers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"fulfillment-service/fulfillment"
	"fulfillment-service/gateway"
	"fulfillment-service/middlewares"
	"fulfillment-service/models"
	"fulfillment-service/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// GatewayAPI is the slice of the gateway client the payment routes use.
type GatewayAPI interface {
	CreateIntent(ctx context.Context, receipt string, amount int64, currency string) (gateway.Intent, error)
	KeyID() string
}

type PaymentController struct {
	orders    store.OrderStore
	gateway   GatewayAPI
	confirmer *fulfillment.Service
	// Secret used to verify payment signatures. Never leaves the server.
	signingSecret string
	logger        *slog.Logger
}

func NewPaymentController(orders store.OrderStore, gw GatewayAPI, confirmer *fulfillment.Service, signingSecret string) *PaymentController {
	return &PaymentController{
		orders:        orders,
		gateway:       gw,
		confirmer:     confirmer,
		signingSecret: signingSecret,
		logger:        slog.With("component", "payments"),
	}
}

// CreateIntent registers a payment intent with the gateway for an order's
// total and stores the returned intent id. Repeat calls reuse the existing
// intent.
func (ctl *PaymentController) CreateIntent(c *gin.Context) {
	success := false
	defer func() { middlewares.RecordOrderOperation("create_intent", success) }()

	var req models.CreateIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	order, err := ctl.orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}
		ctl.logger.Error("order lookup failed", "order_id", orderID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
		return
	}

	if order.PaymentStatus == models.PaymentPaid {
		c.JSON(http.StatusConflict, gin.H{"error": "order already paid"})
		return
	}

	if order.GatewayOrderID != nil && *order.GatewayOrderID != "" {
		success = true
		c.JSON(http.StatusOK, models.CreateIntentResponse{
			GatewayOrderID: *order.GatewayOrderID,
			Amount:         order.Total,
			Currency:       order.Currency,
			KeyID:          ctl.gateway.KeyID(),
		})
		return
	}

	intent, err := ctl.gateway.CreateIntent(c.Request.Context(), order.OrderNumber, order.Total, order.Currency)
	if err != nil {
		ctl.respondGatewayError(c, orderID, err)
		return
	}

	if err := ctl.orders.SetGatewayOrderID(c.Request.Context(), orderID, intent.ID); err != nil {
		ctl.logger.Error("failed to store gateway order id",
			"order_id", orderID, "gateway_order_id", intent.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not record payment intent"})
		return
	}

	success = true
	c.JSON(http.StatusCreated, models.CreateIntentResponse{
		GatewayOrderID: intent.ID,
		Amount:         order.Total,
		Currency:       order.Currency,
		KeyID:          ctl.gateway.KeyID(),
	})
}

// Gateway and carrier internals are logged, not surfaced: callers see a
// generic retryable message with the status code carrying the category.
func (ctl *PaymentController) respondGatewayError(c *gin.Context, orderID uuid.UUID, err error) {
	var rejected *gateway.RejectedError
	switch {
	case errors.Is(err, gateway.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount below gateway minimum"})
	case errors.Is(err, gateway.ErrTimeout):
		ctl.logger.Error("gateway timeout", "order_id", orderID, "error", err)
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "payment could not be completed, please try again"})
	case errors.As(err, &rejected):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": rejected.Reason})
	default:
		ctl.logger.Error("gateway unavailable", "order_id", orderID, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "payment could not be completed, please try again"})
	}
}

// VerifyPayment checks the gateway's payment signature and confirms the
// payment exactly once. A replayed call with a valid signature succeeds
// without re-running side effects; a bad signature mutates nothing.
func (ctl *PaymentController) VerifyPayment(c *gin.Context) {
	success := false
	defer func() { middlewares.RecordOrderOperation("verify_payment", success) }()

	var req models.VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	if !gateway.VerifySignature(ctl.signingSecret, req.GatewayOrderID, req.GatewayPaymentID, req.Signature) {
		ctl.logger.Warn("payment signature mismatch",
			"order_id", orderID, "gateway_order_id", req.GatewayOrderID)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	order, err := ctl.orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}
		ctl.logger.Error("order lookup failed", "order_id", orderID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
		return
	}

	// The signature proves the gateway pair is genuine, not that it belongs
	// to this order. A paying customer holds a valid signature for their own
	// intent, so the pair must match the intent recorded at creation time.
	if order.GatewayOrderID == nil || *order.GatewayOrderID != req.GatewayOrderID {
		ctl.logger.Warn("payment verification against mismatched intent",
			"order_id", orderID, "gateway_order_id", req.GatewayOrderID)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	if _, err := ctl.confirmer.ConfirmPayment(c.Request.Context(), orderID, req.GatewayPaymentID, "verify"); err != nil {
		ctl.logger.Error("payment confirmation failed", "order_id", orderID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not confirm payment"})
		return
	}

	success = true
	c.JSON(http.StatusOK, gin.H{"status": "success", "order_id": orderID})
}
