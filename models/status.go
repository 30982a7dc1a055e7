package models

import "errors"

type OrderStatus string

// remember to add new statuses to the orderStatusRank map
const (
	StatusPending         OrderStatus = "pending"
	StatusProcessing      OrderStatus = "processing"
	StatusShipped         OrderStatus = "shipped"
	StatusDelivered       OrderStatus = "delivered"
	StatusReturnRequested OrderStatus = "return_requested"
	StatusReturned        OrderStatus = "returned"
	StatusCancelled       OrderStatus = "cancelled"
)

// Rank orders the lifecycle. A status update is valid only if it moves
// strictly forward; cancelled sits outside the progression and is reachable
// from any non-terminal state.
var orderStatusRank = map[OrderStatus]int{
	StatusPending:         0,
	StatusProcessing:      1,
	StatusShipped:         2,
	StatusDelivered:       3,
	StatusReturnRequested: 4,
	StatusReturned:        5,
	StatusCancelled:       6,
}

func ToOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(s)
	if _, ok := orderStatusRank[status]; ok {
		return status, nil
	}
	return "", errors.New("invalid order status")
}

func (s OrderStatus) Rank() int {
	return orderStatusRank[s]
}

func (s OrderStatus) Terminal() bool {
	return s == StatusReturned || s == StatusCancelled
}

// CanTransition reports whether an order may move from s to target. It does
// not cover the AWB-only exception, which writes a tracking number without a
// status change.
func (s OrderStatus) CanTransition(target OrderStatus) bool {
	if target == StatusCancelled {
		return !s.Terminal()
	}
	return target.Rank() > s.Rank()
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)
