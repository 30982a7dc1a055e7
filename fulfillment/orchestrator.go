package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"fulfillment-service/carrier"
	"fulfillment-service/config"
	"fulfillment-service/middlewares"
	"fulfillment-service/models"
	"fulfillment-service/store"

	"github.com/google/uuid"
)

var ErrOrderNotPaid = errors.New("order is not paid")

// CarrierAPI is the slice of the carrier client the orchestrator uses.
type CarrierAPI interface {
	GetPickupLocations(ctx context.Context) ([]carrier.PickupLocation, error)
	CreateShipment(ctx context.Context, req carrier.ShipmentRequest) (carrier.Shipment, error)
	Serviceability(ctx context.Context, pickupPostcode, deliveryPostcode string, weightGrams int) ([]carrier.CourierOption, error)
	AssignCourier(ctx context.Context, shipmentID, courierID string) (carrier.Assignment, error)
}

// AssignmentError reports every courier tried before giving up.
type AssignmentError struct {
	Attempts []AttemptError
}

type AttemptError struct {
	CourierID   string
	CourierName string
	Err         error
}

func (e *AssignmentError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.CourierName, a.Err))
	}
	return "courier assignment failed: " + strings.Join(parts, "; ")
}

// Orchestrator drives shipment creation once payment is confirmed. It never
// advances the order's lifecycle status: shipped is driven by confirmed
// carrier events, so a shipment that is created but never picked up cannot
// fake a shipped order.
type Orchestrator struct {
	orders  store.OrderStore
	carrier CarrierAPI

	pickupLocation string
	pickupPostcode string
	maxAttempts    int
	logger         *slog.Logger
}

func NewOrchestrator(orders store.OrderStore, api CarrierAPI, cfg *config.Config) *Orchestrator {
	return &Orchestrator{
		orders:         orders,
		carrier:        api,
		pickupLocation: cfg.PickupLocation,
		pickupPostcode: cfg.PickupPostcode,
		maxAttempts:    cfg.MaxCourierAttempts,
		logger:         slog.With("component", "shipment"),
	}
}

// CreateShipment is idempotent: an order that already has a tracking number
// returns it without touching the carrier, and an order with a shipment but
// no courier yet skips creation and retries only the assignment. Failure to
// assign any courier leaves the order intact for a later manual retry.
func (o *Orchestrator) CreateShipment(ctx context.Context, orderID uuid.UUID) (string, error) {
	order, err := o.orders.GetOrder(ctx, orderID)
	if err != nil {
		return "", fmt.Errorf("get order: %w", err)
	}

	if order.TrackingNumber != nil && *order.TrackingNumber != "" {
		o.logger.Info("shipment already assigned", "order_id", orderID, "awb", *order.TrackingNumber)
		return *order.TrackingNumber, nil
	}

	if order.PaymentStatus != models.PaymentPaid {
		return "", fmt.Errorf("order %s: %w", orderID, ErrOrderNotPaid)
	}

	shipment, err := o.ensureShipment(ctx, order)
	if err != nil {
		return "", err
	}

	weight := 0
	for _, item := range order.Items {
		weight += item.WeightGrams * item.Quantity
	}

	couriers, err := o.carrier.Serviceability(ctx, o.pickupPostcode, order.ShippingAddress.Postcode, weight)
	if err != nil {
		return "", fmt.Errorf("serviceability %s->%s: %w", o.pickupPostcode, order.ShippingAddress.Postcode, err)
	}

	sort.Slice(couriers, func(i, j int) bool {
		return couriers[i].Rate.LessThan(couriers[j].Rate)
	})

	assignment, err := o.assignWithFallback(ctx, shipment.ShipmentID, couriers)
	if err != nil {
		return "", err
	}

	if err := o.orders.SetShipmentRefs(ctx, orderID, shipment.CarrierOrderID, shipment.ShipmentID, assignment.AWB); err != nil {
		return "", fmt.Errorf("persist shipment refs: %w", err)
	}

	o.logger.Info("shipment created",
		"order_id", orderID,
		"shipment_id", shipment.ShipmentID,
		"courier", assignment.CourierName,
		"awb", assignment.AWB)

	return assignment.AWB, nil
}

func (o *Orchestrator) ensureShipment(ctx context.Context, order *models.Order) (carrier.Shipment, error) {
	if order.CarrierShipmentID != nil && *order.CarrierShipmentID != "" {
		var carrierOrderID string
		if order.CarrierOrderID != nil {
			carrierOrderID = *order.CarrierOrderID
		}
		return carrier.Shipment{CarrierOrderID: carrierOrderID, ShipmentID: *order.CarrierShipmentID}, nil
	}

	if err := o.validatePickup(ctx); err != nil {
		return carrier.Shipment{}, err
	}

	items := make([]carrier.ShipmentItem, 0, len(order.Items))
	weight := 0
	for _, item := range order.Items {
		items = append(items, carrier.ShipmentItem{
			Name:      item.ProductName,
			SKU:       item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
		weight += item.WeightGrams * item.Quantity
	}

	shipment, err := o.carrier.CreateShipment(ctx, carrier.ShipmentRequest{
		OrderReference: order.OrderNumber,
		PickupLocation: o.pickupLocation,
		CustomerName:   order.CustomerName,
		CustomerEmail:  order.CustomerEmail,
		CustomerPhone:  order.CustomerPhone,
		AddressLine1:   order.ShippingAddress.Line1,
		AddressLine2:   order.ShippingAddress.Line2,
		City:           order.ShippingAddress.City,
		State:          order.ShippingAddress.State,
		Country:        order.ShippingAddress.Country,
		Postcode:       order.ShippingAddress.Postcode,
		PaymentMethod:  order.PaymentMethod,
		Amount:         order.Total,
		WeightGrams:    weight,
		Items:          items,
	})
	if err != nil {
		return carrier.Shipment{}, fmt.Errorf("create carrier shipment: %w", err)
	}

	// Persist carrier ids right away so a crash before courier assignment
	// does not create a second shipment on retry.
	if err := o.orders.SetShipmentRefs(ctx, order.ID, shipment.CarrierOrderID, shipment.ShipmentID, ""); err != nil {
		return carrier.Shipment{}, fmt.Errorf("persist carrier ids: %w", err)
	}

	return shipment, nil
}

func (o *Orchestrator) validatePickup(ctx context.Context) error {
	locations, err := o.carrier.GetPickupLocations(ctx)
	if err != nil {
		return fmt.Errorf("list pickup locations: %w", err)
	}
	for _, loc := range locations {
		if loc.Name == o.pickupLocation {
			return nil
		}
	}
	return fmt.Errorf("pickup %q: %w", o.pickupLocation, carrier.ErrPickupNotFound)
}

// assignWithFallback walks the cheapest couriers first and stops at the
// first one that produces an AWB, trying at most maxAttempts candidates.
func (o *Orchestrator) assignWithFallback(ctx context.Context, shipmentID string, couriers []carrier.CourierOption) (carrier.Assignment, error) {
	attempts := len(couriers)
	if attempts > o.maxAttempts {
		attempts = o.maxAttempts
	}

	assignErr := &AssignmentError{}
	for _, candidate := range couriers[:attempts] {
		assignment, err := o.carrier.AssignCourier(ctx, shipmentID, candidate.CourierID)
		if err == nil {
			middlewares.RecordCourierAssignment(true)
			return assignment, nil
		}

		middlewares.RecordCourierAssignment(false)
		o.logger.Warn("courier assignment attempt failed",
			"shipment_id", shipmentID,
			"courier", candidate.CourierName,
			"error", err)
		assignErr.Attempts = append(assignErr.Attempts, AttemptError{
			CourierID:   candidate.CourierID,
			CourierName: candidate.CourierName,
			Err:         err,
		})
	}

	return carrier.Assignment{}, assignErr
}
