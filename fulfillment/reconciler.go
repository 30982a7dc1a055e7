package fulfillment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fulfillment-service/models"
	"fulfillment-service/store"
)

// Outcome of reconciling one carrier event against an order.
type Outcome string

const (
	// OutcomeApplied: the lifecycle moved forward.
	OutcomeApplied Outcome = "applied"
	// OutcomeAWBOnly: the status already covers the event, only the missing
	// tracking number was written.
	OutcomeAWBOnly Outcome = "awb_only"
	// OutcomeNoChange: duplicate delivery, nothing to do.
	OutcomeNoChange Outcome = "no_change"
	// OutcomeRejected: the event would downgrade the lifecycle or advance an
	// unpaid order.
	OutcomeRejected Outcome = "rejected"
	// OutcomeUnknownStatus: unrecognised carrier vocabulary; logged, skipped.
	OutcomeUnknownStatus Outcome = "unknown_status"
	// OutcomeConflict: a concurrent update won the compare-and-swap.
	OutcomeConflict Outcome = "conflict"
)

// carrierStatusMap translates the carrier's vocabulary onto the internal
// lifecycle. Keys are normalised: upper case, underscores as spaces.
var carrierStatusMap = map[string]models.OrderStatus{
	"PICKED UP":        models.StatusShipped,
	"SHIPPED":          models.StatusShipped,
	"IN TRANSIT":       models.StatusShipped,
	"OUT FOR DELIVERY": models.StatusShipped,
	"DELIVERED":        models.StatusDelivered,
	"RTO INITIATED":    models.StatusReturnRequested,
	"RTO IN TRANSIT":   models.StatusReturnRequested,
	"RTO DELIVERED":    models.StatusReturned,
	"CANCELED":         models.StatusCancelled,
	"CANCELLED":        models.StatusCancelled,
}

// MapCarrierStatus resolves a raw carrier status to an internal lifecycle
// state.
func MapCarrierStatus(raw string) (models.OrderStatus, bool) {
	key := strings.ToUpper(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, "_", " ")
	status, ok := carrierStatusMap[key]
	return status, ok
}

// Reconciler applies carrier events to orders under the no-downgrade rule.
type Reconciler struct {
	orders   store.OrderStore
	webhooks store.WebhookStore
	logger   *slog.Logger
}

func NewReconciler(orders store.OrderStore, webhooks store.WebhookStore) *Reconciler {
	return &Reconciler{
		orders:   orders,
		webhooks: webhooks,
		logger:   slog.With("component", "reconciler"),
	}
}

// Apply maps one carrier event onto the order lifecycle. The lifecycle only
// moves forward; an event at or behind the current stage may still write a
// missing tracking number (the AWB-only update) but never the status. The
// shipment analytics record is refreshed for every recognised event.
func (r *Reconciler) Apply(ctx context.Context, order *models.Order, carrierStatus, awb, courierName string) (Outcome, error) {
	target, ok := MapCarrierStatus(carrierStatus)
	if !ok {
		r.logger.Warn("unknown carrier status", "order_id", order.ID, "status", carrierStatus)
		return OutcomeUnknownStatus, nil
	}

	outcome, err := r.apply(ctx, order, target, awb)
	if err != nil {
		return outcome, err
	}

	// On a lost compare-and-swap the snapshot is stale; the winning update
	// already recorded the current state.
	if awb != "" && outcome != OutcomeConflict {
		rec := &models.ShipmentAnalyticsRecord{
			TrackingNumber: awb,
			CarrierStatus:  carrierStatus,
			InternalStatus: order.Status,
			CourierName:    courierName,
			LastEventAt:    time.Now().UTC(),
		}
		if outcome == OutcomeApplied {
			rec.InternalStatus = target
		}
		if err := r.webhooks.UpsertShipmentAnalytics(ctx, rec); err != nil {
			// Analytics are derived, not authoritative. Keep the order update.
			r.logger.Error("shipment analytics upsert failed", "awb", awb, "error", err)
		}
	}

	return outcome, nil
}

func (r *Reconciler) apply(ctx context.Context, order *models.Order, target models.OrderStatus, awb string) (Outcome, error) {
	missingAWB := awb != "" && (order.TrackingNumber == nil || *order.TrackingNumber == "")

	if !order.Status.CanTransition(target) {
		if missingAWB {
			if err := r.orders.SetTrackingNumber(ctx, order.ID, awb); err != nil {
				return OutcomeRejected, fmt.Errorf("awb-only update: %w", err)
			}
			r.logger.Info("awb-only update", "order_id", order.ID, "awb", awb)
			return OutcomeAWBOnly, nil
		}
		if target == order.Status {
			return OutcomeNoChange, nil
		}
		r.logger.Warn("status downgrade rejected",
			"order_id", order.ID, "current", order.Status, "incoming", target)
		return OutcomeRejected, nil
	}

	// An unpaid order never advances past pending on carrier say-so.
	if order.PaymentStatus != models.PaymentPaid && target != models.StatusCancelled {
		r.logger.Warn("status advance rejected for unpaid order",
			"order_id", order.ID, "incoming", target)
		return OutcomeRejected, nil
	}

	moved, err := r.orders.UpdateStatus(ctx, order.ID, order.Status, target)
	if err != nil {
		return OutcomeRejected, fmt.Errorf("update status: %w", err)
	}
	if !moved {
		r.logger.Info("status update lost compare-and-swap",
			"order_id", order.ID, "incoming", target)
		return OutcomeConflict, nil
	}

	if missingAWB {
		if err := r.orders.SetTrackingNumber(ctx, order.ID, awb); err != nil {
			return OutcomeApplied, fmt.Errorf("store tracking number: %w", err)
		}
	}

	r.logger.Info("status reconciled",
		"order_id", order.ID, "from", order.Status, "to", target)
	return OutcomeApplied, nil
}
