package fulfillment

import (
	"context"
	"errors"
	"fmt"

	"fulfillment-service/models"
	"fulfillment-service/store"

	"github.com/google/uuid"
)

// OrderRefs holds every identifier a webhook payload might carry. Empty
// fields are skipped.
type OrderRefs struct {
	OrderID        string
	OrderNumber    string
	GatewayOrderID string
	CarrierRef     string
	TrackingNumber string
}

type lookupStrategy struct {
	name string
	find func(ctx context.Context) (*models.Order, error)
}

// ResolveOrder tries each reference in priority order: exact id, order
// number, gateway id, carrier ids, and tracking number last. It returns the
// strategy that matched, or store.ErrNotFound if nothing did.
func ResolveOrder(ctx context.Context, orders store.OrderStore, refs OrderRefs) (*models.Order, string, error) {
	var strategies []lookupStrategy

	if refs.OrderID != "" {
		if id, err := uuid.Parse(refs.OrderID); err == nil {
			strategies = append(strategies, lookupStrategy{"id", func(ctx context.Context) (*models.Order, error) {
				return orders.GetOrder(ctx, id)
			}})
		}
	}
	if refs.OrderNumber != "" {
		strategies = append(strategies, lookupStrategy{"order_number", func(ctx context.Context) (*models.Order, error) {
			return orders.GetOrderByNumber(ctx, refs.OrderNumber)
		}})
	}
	if refs.GatewayOrderID != "" {
		strategies = append(strategies, lookupStrategy{"gateway_order_id", func(ctx context.Context) (*models.Order, error) {
			return orders.GetOrderByGatewayOrderID(ctx, refs.GatewayOrderID)
		}})
	}
	if refs.CarrierRef != "" {
		strategies = append(strategies, lookupStrategy{"carrier_ref", func(ctx context.Context) (*models.Order, error) {
			return orders.GetOrderByCarrierRef(ctx, refs.CarrierRef)
		}})
	}
	if refs.TrackingNumber != "" {
		strategies = append(strategies, lookupStrategy{"tracking_number", func(ctx context.Context) (*models.Order, error) {
			return orders.GetOrderByTrackingNumber(ctx, refs.TrackingNumber)
		}})
	}

	for _, s := range strategies {
		order, err := s.find(ctx)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, s.name, fmt.Errorf("lookup by %s: %w", s.name, err)
		}
		return order, s.name, nil
	}

	return nil, "", store.ErrNotFound
}
