// Package storetest provides an in-memory store.Store with the same guard
// semantics as the MySQL implementation, for use in tests.
package storetest

import (
	"context"
	"sync"
	"time"

	"fulfillment-service/models"
	"fulfillment-service/store"

	"github.com/google/uuid"
)

type Store struct {
	mu sync.Mutex

	Orders    map[uuid.UUID]*models.Order
	Products  map[string]*models.Product
	Coupons   map[string]*models.Coupon
	Events    map[int64]*models.WebhookEvent
	Analytics map[string]*models.ShipmentAnalyticsRecord

	nextEventID int64
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		Orders:    make(map[uuid.UUID]*models.Order),
		Products:  make(map[string]*models.Product),
		Coupons:   make(map[string]*models.Coupon),
		Events:    make(map[int64]*models.WebhookEvent),
		Analytics: make(map[string]*models.ShipmentAnalyticsRecord),
	}
}

func (s *Store) CreateOrder(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if order.CouponCode != nil {
		coupon, ok := s.Coupons[*order.CouponCode]
		if !ok || !coupon.Active {
			return store.ErrCouponExhausted
		}
		if coupon.UsageLimit != nil && coupon.UsageCount >= *coupon.UsageLimit {
			return store.ErrCouponExhausted
		}
		coupon.UsageCount++
	}

	copied := *order
	s.Orders[order.ID] = &copied
	return nil
}

func (s *Store) GetOrder(_ context.Context, id uuid.UUID) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.Orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *order
	return &copied, nil
}

func (s *Store) GetOrderByNumber(_ context.Context, number string) (*models.Order, error) {
	return s.findOrder(func(o *models.Order) bool { return o.OrderNumber == number })
}

func (s *Store) GetOrderByGatewayOrderID(_ context.Context, gatewayOrderID string) (*models.Order, error) {
	return s.findOrder(func(o *models.Order) bool {
		return o.GatewayOrderID != nil && *o.GatewayOrderID == gatewayOrderID
	})
}

func (s *Store) GetOrderByCarrierRef(_ context.Context, ref string) (*models.Order, error) {
	return s.findOrder(func(o *models.Order) bool {
		return (o.CarrierOrderID != nil && *o.CarrierOrderID == ref) ||
			(o.CarrierShipmentID != nil && *o.CarrierShipmentID == ref)
	})
}

func (s *Store) GetOrderByTrackingNumber(_ context.Context, awb string) (*models.Order, error) {
	return s.findOrder(func(o *models.Order) bool {
		return o.TrackingNumber != nil && *o.TrackingNumber == awb
	})
}

func (s *Store) findOrder(match func(*models.Order) bool) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, order := range s.Orders {
		if match(order) {
			copied := *order
			return &copied, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) SetGatewayOrderID(_ context.Context, id uuid.UUID, gatewayOrderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.Orders[id]
	if !ok {
		return store.ErrNotFound
	}
	order.GatewayOrderID = &gatewayOrderID
	return nil
}

func (s *Store) MarkPaid(_ context.Context, id uuid.UUID, gatewayPaymentID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.Orders[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if order.PaymentStatus == models.PaymentPaid || order.Status != models.StatusPending {
		return false, nil
	}
	order.PaymentStatus = models.PaymentPaid
	order.Status = models.StatusProcessing
	order.GatewayPaymentID = &gatewayPaymentID
	return true, nil
}

func (s *Store) MarkPaymentFailed(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.Orders[id]
	if !ok {
		return store.ErrNotFound
	}
	if order.PaymentStatus == models.PaymentPending {
		order.PaymentStatus = models.PaymentFailed
	}
	return nil
}

func (s *Store) SetShipmentRefs(_ context.Context, id uuid.UUID, carrierOrderID, carrierShipmentID, awb string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.Orders[id]
	if !ok {
		return store.ErrNotFound
	}
	order.CarrierOrderID = &carrierOrderID
	order.CarrierShipmentID = &carrierShipmentID
	if awb != "" {
		order.TrackingNumber = &awb
	}
	return nil
}

func (s *Store) SetTrackingNumber(_ context.Context, id uuid.UUID, awb string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.Orders[id]
	if !ok {
		return store.ErrNotFound
	}
	order.TrackingNumber = &awb
	return nil
}

func (s *Store) UpdateStatus(_ context.Context, id uuid.UUID, from, to models.OrderStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.Orders[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if order.Status != from {
		return false, nil
	}
	order.Status = to
	return true, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	product, ok := s.Products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *product
	return &copied, nil
}

func (s *Store) GetCoupon(_ context.Context, code string) (*models.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	coupon, ok := s.Coupons[code]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *coupon
	return &copied, nil
}

func (s *Store) AppendEvent(_ context.Context, event *models.WebhookEvent) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextEventID++
	copied := *event
	copied.ID = s.nextEventID
	copied.CreatedAt = time.Now()
	s.Events[copied.ID] = &copied
	return copied.ID, nil
}

func (s *Store) MarkEventProcessed(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.Events[id]
	if !ok {
		return store.ErrNotFound
	}
	event.Processed = true
	return nil
}

func (s *Store) UpsertShipmentAnalytics(_ context.Context, rec *models.ShipmentAnalyticsRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.Analytics[rec.TrackingNumber]
	if !ok {
		copied := *rec
		copied.EventCount = 1
		s.Analytics[rec.TrackingNumber] = &copied
		return nil
	}
	existing.CarrierStatus = rec.CarrierStatus
	existing.InternalStatus = rec.InternalStatus
	existing.CourierName = rec.CourierName
	existing.EventCount++
	existing.LastEventAt = rec.LastEventAt
	return nil
}
