package domain

import (
	"time"

	"github.com/google/uuid"
)

// Order event types written to the outbox.
const (
	EventOrderCreated              = "order.created"
	EventOrderStatusChanged        = "order.status_changed"
	EventOrderPaymentStatusChanged = "order.payment_status_changed"
)

// OrderEvent is the payload published for every order change. Consumers key on
// EventID for deduplication; the relay delivers at least once.
type OrderEvent struct {
	EventID     uuid.UUID `json:"event_id"`
	Type        string    `json:"type"`
	OrderID     uuid.UUID `json:"order_id"`
	CheckoutID  uuid.UUID `json:"checkout_id"`
	CustomerID  uuid.UUID `json:"customer_id"`
	ShopID      uuid.UUID `json:"shop_id"`
	TotalAmount int64     `json:"total_amount"`
	Currency    string    `json:"currency"`

	OrderStatus           OrderStatus   `json:"order_status"`
	PaymentStatus         PaymentStatus `json:"payment_status"`
	PreviousOrderStatus   OrderStatus   `json:"previous_order_status,omitempty"`
	PreviousPaymentStatus PaymentStatus `json:"previous_payment_status,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}

// NewOrderEvent snapshots order into an event of the given type.
func NewOrderEvent(eventType string, order *Order, at time.Time) OrderEvent {
	return OrderEvent{
		EventID:       uuid.New(),
		Type:          eventType,
		OrderID:       order.ID,
		CheckoutID:    order.CheckoutID,
		CustomerID:    order.CustomerID,
		ShopID:        order.ShopID,
		TotalAmount:   order.TotalAmount,
		Currency:      Currency,
		OrderStatus:   order.OrderStatus,
		PaymentStatus: order.PaymentStatus,
		OccurredAt:    at,
	}
}
