package fulfillment_test

import (
	"context"
	"testing"

	"fulfillment-service/fulfillment"
	"fulfillment-service/models"
	"fulfillment-service/store/storetest"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedShippedOrder(db *storetest.Store) *models.Order {
	orderID := uuid.New()
	awb := "AWB001"
	order := &models.Order{
		ID:             orderID,
		OrderNumber:    "ORD-ABC123",
		Status:         models.StatusShipped,
		PaymentStatus:  models.PaymentPaid,
		TrackingNumber: &awb,
	}
	db.Orders[orderID] = order
	return order
}

func TestMapCarrierStatus(t *testing.T) {
	tests := []struct {
		raw    string
		want   models.OrderStatus
		wantOK bool
	}{
		{"DELIVERED", models.StatusDelivered, true},
		{"delivered", models.StatusDelivered, true},
		{"  In Transit ", models.StatusShipped, true},
		{"OUT_FOR_DELIVERY", models.StatusShipped, true},
		{"RTO_INITIATED", models.StatusReturnRequested, true},
		{"RTO DELIVERED", models.StatusReturned, true},
		{"CANCELED", models.StatusCancelled, true},
		{"LOST_IN_WAREHOUSE", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := fulfillment.MapCarrierStatus(tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestApplyAdvancesStatus(t *testing.T) {
	db := storetest.New()
	order := seedShippedOrder(db)
	reconciler := fulfillment.NewReconciler(db, db)

	outcome, err := reconciler.Apply(context.Background(), order, "DELIVERED", "AWB001", "Standard")
	require.NoError(t, err)
	assert.Equal(t, fulfillment.OutcomeApplied, outcome)
	assert.Equal(t, models.StatusDelivered, db.Orders[order.ID].Status)

	rec := db.Analytics["AWB001"]
	require.NotNil(t, rec)
	assert.Equal(t, models.StatusDelivered, rec.InternalStatus)
	assert.Equal(t, "Standard", rec.CourierName)
	assert.Equal(t, 1, rec.EventCount)
}

func TestApplyDuplicateEventNoChange(t *testing.T) {
	db := storetest.New()
	order := seedShippedOrder(db)
	reconciler := fulfillment.NewReconciler(db, db)

	outcome, err := reconciler.Apply(context.Background(), order, "IN_TRANSIT", "AWB001", "Standard")
	require.NoError(t, err)
	assert.Equal(t, fulfillment.OutcomeNoChange, outcome)
	assert.Equal(t, models.StatusShipped, db.Orders[order.ID].Status)
}

func TestApplyRejectsDowngrade(t *testing.T) {
	db := storetest.New()
	order := seedShippedOrder(db)
	order.Status = models.StatusDelivered
	db.Orders[order.ID].Status = models.StatusDelivered
	reconciler := fulfillment.NewReconciler(db, db)

	// A stale IN_TRANSIT arriving after DELIVERED must not move the order back.
	outcome, err := reconciler.Apply(context.Background(), order, "IN_TRANSIT", "AWB001", "Standard")
	require.NoError(t, err)
	assert.Equal(t, fulfillment.OutcomeRejected, outcome)
	assert.Equal(t, models.StatusDelivered, db.Orders[order.ID].Status)
}

func TestApplyAWBOnlyUpdate(t *testing.T) {
	db := storetest.New()
	order := seedShippedOrder(db)
	order.TrackingNumber = nil
	db.Orders[order.ID].TrackingNumber = nil
	reconciler := fulfillment.NewReconciler(db, db)

	// Status already shipped, but the AWB never made it to the order.
	outcome, err := reconciler.Apply(context.Background(), order, "PICKED_UP", "AWB777", "Standard")
	require.NoError(t, err)
	assert.Equal(t, fulfillment.OutcomeAWBOnly, outcome)

	stored := db.Orders[order.ID]
	require.NotNil(t, stored.TrackingNumber)
	assert.Equal(t, "AWB777", *stored.TrackingNumber)
	assert.Equal(t, models.StatusShipped, stored.Status)
}

func TestApplyUnknownStatusSkipped(t *testing.T) {
	db := storetest.New()
	order := seedShippedOrder(db)
	reconciler := fulfillment.NewReconciler(db, db)

	outcome, err := reconciler.Apply(context.Background(), order, "TELEPORTED", "AWB001", "Standard")
	require.NoError(t, err)
	assert.Equal(t, fulfillment.OutcomeUnknownStatus, outcome)
	assert.Empty(t, db.Analytics, "unrecognised events do not touch analytics")
}

func TestApplyRejectsAdvanceForUnpaidOrder(t *testing.T) {
	db := storetest.New()
	order := seedShippedOrder(db)
	order.Status = models.StatusPending
	order.PaymentStatus = models.PaymentPending
	db.Orders[order.ID].Status = models.StatusPending
	db.Orders[order.ID].PaymentStatus = models.PaymentPending
	reconciler := fulfillment.NewReconciler(db, db)

	outcome, err := reconciler.Apply(context.Background(), order, "PICKED_UP", "AWB001", "Standard")
	require.NoError(t, err)
	assert.Equal(t, fulfillment.OutcomeRejected, outcome)
	assert.Equal(t, models.StatusPending, db.Orders[order.ID].Status)
}

func TestApplyAllowsCancellationForUnpaidOrder(t *testing.T) {
	db := storetest.New()
	order := seedShippedOrder(db)
	order.Status = models.StatusPending
	order.PaymentStatus = models.PaymentPending
	db.Orders[order.ID].Status = models.StatusPending
	db.Orders[order.ID].PaymentStatus = models.PaymentPending
	reconciler := fulfillment.NewReconciler(db, db)

	outcome, err := reconciler.Apply(context.Background(), order, "CANCELLED", "AWB001", "Standard")
	require.NoError(t, err)
	assert.Equal(t, fulfillment.OutcomeApplied, outcome)
	assert.Equal(t, models.StatusCancelled, db.Orders[order.ID].Status)
}

func TestApplyConflictWhenConcurrentUpdateWins(t *testing.T) {
	db := storetest.New()
	snapshot := *seedShippedOrder(db)
	// Another event already advanced the stored order past our snapshot.
	db.Orders[snapshot.ID].Status = models.StatusDelivered
	reconciler := fulfillment.NewReconciler(db, db)

	outcome, err := reconciler.Apply(context.Background(), &snapshot, "DELIVERED", "AWB001", "Standard")
	require.NoError(t, err)
	assert.Equal(t, fulfillment.OutcomeConflict, outcome)
	assert.Empty(t, db.Analytics, "a stale snapshot must not overwrite the winner's analytics")
}

func TestApplyAnalyticsEventCount(t *testing.T) {
	db := storetest.New()
	order := seedShippedOrder(db)
	reconciler := fulfillment.NewReconciler(db, db)

	_, err := reconciler.Apply(context.Background(), order, "IN_TRANSIT", "AWB001", "Standard")
	require.NoError(t, err)
	_, err = reconciler.Apply(context.Background(), order, "OUT_FOR_DELIVERY", "AWB001", "Standard")
	require.NoError(t, err)

	rec := db.Analytics["AWB001"]
	require.NotNil(t, rec)
	assert.Equal(t, 2, rec.EventCount)
	assert.Equal(t, "OUT_FOR_DELIVERY", rec.CarrierStatus)
}
