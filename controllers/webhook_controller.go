package controllers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"fulfillment-service/fulfillment"
	"fulfillment-service/gateway"
	"fulfillment-service/middlewares"
	"fulfillment-service/models"
	"fulfillment-service/store"

	"github.com/gin-gonic/gin"
)

// WebhookController ingests payment and carrier callbacks. Both endpoints
// always acknowledge with 200 so the provider stops retrying; the actual
// outcome lives in logs, metrics and the webhook_events audit table. Every
// delivery is logged before any processing.
type WebhookController struct {
	orders     store.OrderStore
	webhooks   store.WebhookStore
	confirmer  *fulfillment.Service
	reconciler *fulfillment.Reconciler

	paymentSecret string
	carrierSecret string
	logger        *slog.Logger
}

func NewWebhookController(
	orders store.OrderStore,
	webhooks store.WebhookStore,
	confirmer *fulfillment.Service,
	reconciler *fulfillment.Reconciler,
	paymentSecret, carrierSecret string,
) *WebhookController {
	return &WebhookController{
		orders:        orders,
		webhooks:      webhooks,
		confirmer:     confirmer,
		reconciler:    reconciler,
		paymentSecret: paymentSecret,
		carrierSecret: carrierSecret,
		logger:        slog.With("component", "webhooks"),
	}
}

func (ctl *WebhookController) PaymentWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		body = nil
	}

	// An empty configured secret never authenticates; otherwise an HMAC
	// computed with an empty key would pass.
	authenticated := ctl.paymentSecret != "" &&
		gateway.VerifyWebhookSignature(ctl.paymentSecret, body, c.GetHeader("X-Webhook-Signature"))

	var payload models.PaymentWebhook
	parseErr := json.Unmarshal(body, &payload)

	eventType := payload.Event
	if parseErr != nil || eventType == "" {
		eventType = "unparseable"
	}
	eventID := ctl.logEvent(c, &models.WebhookEvent{
		Provider:      models.ProviderPayment,
		EventType:     eventType,
		Authenticated: authenticated,
		Reference:     payload.GatewayOrderID,
		Payload:       body,
	})

	outcome := ctl.processPaymentEvent(c, authenticated, parseErr, payload, eventID)
	middlewares.RecordWebhookEvent(models.ProviderPayment, string(outcome))

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type webhookOutcome string

const (
	outcomeUnauthenticated webhookOutcome = "unauthenticated"
	outcomeMalformed       webhookOutcome = "malformed"
	outcomeOrderNotFound   webhookOutcome = "order_not_found"
	outcomeConfirmed       webhookOutcome = "confirmed"
	outcomeDuplicate       webhookOutcome = "duplicate"
	outcomePaymentFailed   webhookOutcome = "payment_failed"
	outcomeIgnored         webhookOutcome = "ignored"
	outcomeError           webhookOutcome = "error"
)

func (ctl *WebhookController) processPaymentEvent(c *gin.Context, authenticated bool, parseErr error, payload models.PaymentWebhook, eventID int64) webhookOutcome {
	if !authenticated {
		ctl.logger.Warn("unauthenticated payment webhook")
		return outcomeUnauthenticated
	}
	if parseErr != nil {
		ctl.logger.Warn("malformed payment webhook", "error", parseErr)
		return outcomeMalformed
	}

	ctx := c.Request.Context()
	order, matchedBy, err := fulfillment.ResolveOrder(ctx, ctl.orders, fulfillment.OrderRefs{
		GatewayOrderID: payload.GatewayOrderID,
		OrderNumber:    payload.Receipt,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			ctl.logger.Warn("payment webhook for unknown order",
				"gateway_order_id", payload.GatewayOrderID, "receipt", payload.Receipt)
			return outcomeOrderNotFound
		}
		ctl.logger.Error("order resolution failed", "error", err)
		return outcomeError
	}

	switch payload.Event {
	case "payment.captured", "order.paid":
		// The durable fallback for clients that never reach the verify call.
		transitioned, err := ctl.confirmer.ConfirmPayment(ctx, order.ID, payload.GatewayPaymentID, "webhook")
		if err != nil {
			ctl.logger.Error("webhook payment confirmation failed", "order_id", order.ID, "error", err)
			return outcomeError
		}
		ctl.markProcessed(ctx, eventID)
		ctl.logger.Info("payment webhook applied",
			"order_id", order.ID, "matched_by", matchedBy, "transitioned", transitioned)
		if transitioned {
			return outcomeConfirmed
		}
		return outcomeDuplicate

	case "payment.failed":
		if err := ctl.orders.MarkPaymentFailed(ctx, order.ID); err != nil {
			ctl.logger.Error("mark payment failed", "order_id", order.ID, "error", err)
			return outcomeError
		}
		ctl.markProcessed(ctx, eventID)
		return outcomePaymentFailed

	default:
		ctl.logger.Info("ignored payment webhook event", "event", payload.Event)
		return outcomeIgnored
	}
}

func (ctl *WebhookController) CarrierWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		body = nil
	}

	token := c.GetHeader("X-Carrier-Token")
	authenticated := ctl.carrierSecret != "" &&
		subtle.ConstantTimeCompare([]byte(token), []byte(ctl.carrierSecret)) == 1

	var payload models.CarrierWebhook
	parseErr := json.Unmarshal(body, &payload)

	eventType := payload.CurrentStatus
	if parseErr != nil || eventType == "" {
		eventType = "unparseable"
	}
	eventID := ctl.logEvent(c, &models.WebhookEvent{
		Provider:      models.ProviderCarrier,
		EventType:     eventType,
		Authenticated: authenticated,
		Reference:     payload.AWB,
		Payload:       body,
	})

	outcome := ctl.processCarrierEvent(c, authenticated, parseErr, payload, eventID)
	middlewares.RecordWebhookEvent(models.ProviderCarrier, string(outcome))

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (ctl *WebhookController) processCarrierEvent(c *gin.Context, authenticated bool, parseErr error, payload models.CarrierWebhook, eventID int64) webhookOutcome {
	if !authenticated {
		ctl.logger.Warn("unauthenticated carrier webhook")
		return outcomeUnauthenticated
	}
	if parseErr != nil {
		ctl.logger.Warn("malformed carrier webhook", "error", parseErr)
		return outcomeMalformed
	}

	ctx := c.Request.Context()
	order, matchedBy, err := fulfillment.ResolveOrder(ctx, ctl.orders, fulfillment.OrderRefs{
		OrderNumber:    payload.OrderReference,
		CarrierRef:     payload.ShipmentID,
		TrackingNumber: payload.AWB,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			ctl.logger.Warn("carrier webhook for unknown order",
				"awb", payload.AWB, "reference", payload.OrderReference)
			return outcomeOrderNotFound
		}
		ctl.logger.Error("order resolution failed", "error", err)
		return outcomeError
	}

	result, err := ctl.reconciler.Apply(ctx, order, payload.CurrentStatus, payload.AWB, payload.CourierName)
	if err != nil {
		ctl.logger.Error("reconciler failed",
			"order_id", order.ID, "status", payload.CurrentStatus, "error", err)
		return outcomeError
	}

	ctl.markProcessed(ctx, eventID)
	ctl.logger.Info("carrier webhook reconciled",
		"order_id", order.ID, "matched_by", matchedBy,
		"carrier_status", payload.CurrentStatus, "outcome", result)
	return webhookOutcome(result)
}

// logEvent appends to the audit table before processing; a failure to log is
// itself only logged, never an excuse to reject the delivery.
func (ctl *WebhookController) logEvent(c *gin.Context, event *models.WebhookEvent) int64 {
	id, err := ctl.webhooks.AppendEvent(c.Request.Context(), event)
	if err != nil {
		ctl.logger.Error("failed to log webhook event", "provider", event.Provider, "error", err)
		return 0
	}
	return id
}

func (ctl *WebhookController) markProcessed(ctx context.Context, eventID int64) {
	if eventID == 0 {
		return
	}
	if err := ctl.webhooks.MarkEventProcessed(ctx, eventID); err != nil {
		ctl.logger.Error("failed to mark webhook event processed", "event_id", eventID, "error", err)
	}
}
