package fulfillment_test

import (
	"context"
	"testing"

	"fulfillment-service/fulfillment"
	"fulfillment-service/models"
	"fulfillment-service/store"
	"fulfillment-service/store/storetest"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedLookupOrder(db *storetest.Store) *models.Order {
	orderID := uuid.New()
	gatewayID := "gw_order_1"
	shipmentID := "sh_1"
	awb := "AWB001"
	order := &models.Order{
		ID:                orderID,
		OrderNumber:       "ORD-ABC123",
		GatewayOrderID:    &gatewayID,
		CarrierShipmentID: &shipmentID,
		TrackingNumber:    &awb,
	}
	db.Orders[orderID] = order
	return order
}

func TestResolveOrderByEachReference(t *testing.T) {
	db := storetest.New()
	order := seedLookupOrder(db)

	tests := []struct {
		name         string
		refs         fulfillment.OrderRefs
		wantStrategy string
	}{
		{"by id", fulfillment.OrderRefs{OrderID: order.ID.String()}, "id"},
		{"by order number", fulfillment.OrderRefs{OrderNumber: "ORD-ABC123"}, "order_number"},
		{"by gateway id", fulfillment.OrderRefs{GatewayOrderID: "gw_order_1"}, "gateway_order_id"},
		{"by carrier ref", fulfillment.OrderRefs{CarrierRef: "sh_1"}, "carrier_ref"},
		{"by awb", fulfillment.OrderRefs{TrackingNumber: "AWB001"}, "tracking_number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, strategy, err := fulfillment.ResolveOrder(context.Background(), db, tt.refs)
			require.NoError(t, err)
			assert.Equal(t, order.ID, got.ID)
			assert.Equal(t, tt.wantStrategy, strategy)
		})
	}
}

func TestResolveOrderFallsThroughStaleReferences(t *testing.T) {
	db := storetest.New()
	order := seedLookupOrder(db)

	// The payload's order reference does not match anything; the AWB does.
	got, strategy, err := fulfillment.ResolveOrder(context.Background(), db, fulfillment.OrderRefs{
		OrderNumber:    "ORD-UNKNOWN",
		TrackingNumber: "AWB001",
	})
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)
	assert.Equal(t, "tracking_number", strategy)
}

func TestResolveOrderSkipsMalformedID(t *testing.T) {
	db := storetest.New()
	order := seedLookupOrder(db)

	got, strategy, err := fulfillment.ResolveOrder(context.Background(), db, fulfillment.OrderRefs{
		OrderID:     "not-a-uuid",
		OrderNumber: "ORD-ABC123",
	})
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)
	assert.Equal(t, "order_number", strategy)
}

func TestResolveOrderNotFound(t *testing.T) {
	db := storetest.New()

	_, _, err := fulfillment.ResolveOrder(context.Background(), db, fulfillment.OrderRefs{
		OrderNumber:    "ORD-MISSING",
		TrackingNumber: "AWB-MISSING",
	})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestResolveOrderNoReferences(t *testing.T) {
	db := storetest.New()
	seedLookupOrder(db)

	_, _, err := fulfillment.ResolveOrder(context.Background(), db, fulfillment.OrderRefs{})
	require.ErrorIs(t, err, store.ErrNotFound)
}
