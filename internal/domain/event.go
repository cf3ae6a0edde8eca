package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventOrderSubmitted       EventType = "order.submitted"
	EventPaymentStatusChanged EventType = "payment.status_changed"
	EventRefundRequired       EventType = "payment.refund_required"
)

type Event struct {
	Type          EventType     `json:"type"`
	OrderID       uuid.UUID     `json:"order_id"`
	BuyerID       string        `json:"buyer_id"`
	OrderStatus   OrderStatus   `json:"order_status,omitempty"`
	PaymentStatus PaymentStatus `json:"payment_status,omitempty"`
	OccurredAt    time.Time     `json:"occurred_at"`
}
