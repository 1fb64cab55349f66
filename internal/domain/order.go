package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Order-related domain errors.
var (
	ErrOrderNotFound         = &Error{Code: ENOTFOUND, Message: "Order not found"}
	ErrInvalidOrderStatus    = &Error{Code: EINVALID, Message: "Unknown order status"}
	ErrInvalidPaymentStatus  = &Error{Code: EINVALID, Message: "Unknown payment status"}
	ErrIllegalTransition     = &Error{Code: EINVALID, Message: "Status transition not allowed"}
	ErrOrderStatusChanged    = &Error{Code: ECONFLICT, Message: "Order status changed concurrently, reload and retry"}
	ErrOrderNotCancellable   = &Error{Code: EINVALID, Message: "Order can no longer be cancelled"}
	ErrPaymentStatusConflict = &Error{Code: ECONFLICT, Message: "Payment status changed concurrently, reload and retry"}
	ErrTotalOverflow         = &Error{Code: EINVALID, Message: "Order total is too large"}
)

// OrderStatus is the fulfilment state of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "Pending"
	OrderStatusProcessing OrderStatus = "Processing"
	OrderStatusReady      OrderStatus = "Ready"
	OrderStatusDelivered  OrderStatus = "Delivered"
	OrderStatusCancelled  OrderStatus = "Cancelled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusReady, OrderStatusCancelled},
	OrderStatusReady:      {OrderStatusDelivered},
}

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusReady, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether next is a legal successor of s.
// Delivered and Cancelled are terminal.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PaymentStatus is the payment state of an order.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "Pending"
	PaymentStatusPaid     PaymentStatus = "Paid"
	PaymentStatusFailed   PaymentStatus = "Failed"
	PaymentStatusRefunded PaymentStatus = "Refunded"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending: {PaymentStatusPaid, PaymentStatusFailed},
	PaymentStatusPaid:    {PaymentStatusRefunded},
}

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// SelectedOption is a resolved customization with its authoritative price.
type SelectedOption struct {
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

// ResolvedSelection is the snapshot of customizations actually applied to a line.
// It is built from the catalog tables, never copied from client input, and is
// stored with the order for audits and disputes.
type ResolvedSelection struct {
	Size        *SelectedOption  `json:"size,omitempty"`
	Flavor      *SelectedOption  `json:"flavor,omitempty"`
	Toppings    []SelectedOption `json:"extra_toppings,omitempty"`
	CakeText    string           `json:"custom_message,omitempty"`
	SpecialNote string           `json:"special_note,omitempty"`
}

// Delta is the sum of every resolved option price.
func (s ResolvedSelection) Delta() int64 {
	var d int64
	if s.Size != nil {
		d += s.Size.Price
	}
	if s.Flavor != nil {
		d += s.Flavor.Price
	}
	for _, t := range s.Toppings {
		d += t.Price
	}
	return d
}

// OrderItem is a priced, resolved cart line.
type OrderItem struct {
	ProductID              uuid.UUID         `json:"product_id"`
	Quantity               int               `json:"quantity"`
	SelectedCustomizations ResolvedSelection `json:"selected_customizations"`
	Price                  int64             `json:"price"`
}

// Order is the persisted per-shop aggregate created by checkout.
type Order struct {
	ID              uuid.UUID     `json:"id"`
	CheckoutID      uuid.UUID     `json:"checkout_id"`
	CustomerID      uuid.UUID     `json:"customer_id"`
	ShopID          uuid.UUID     `json:"shop_id"`
	Items           []OrderItem   `json:"items"`
	TotalAmount     int64         `json:"total_amount"`
	DeliveryAddress string        `json:"delivery_address"`
	Instructions    string        `json:"instructions,omitempty"`
	PaymentType     PaymentType   `json:"payment_type"`
	OrderStatus     OrderStatus   `json:"order_status"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	DeliveryDate    *time.Time    `json:"delivery_date,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// NewOrder builds a pending order for one shop. TotalAmount is computed here
// from the items, so it always equals the sum of item prices. It returns
// ErrTotalOverflow when that sum does not fit in an int64.
func NewOrder(id, checkoutID, customerID, shopID uuid.UUID, items []OrderItem, delivery DeliveryInfo, now time.Time) (*Order, error) {
	prices := make([]int64, len(items))
	for i, item := range items {
		prices[i] = item.Price
	}
	total, ok := SumAmounts(prices...)
	if !ok {
		return nil, ErrTotalOverflow
	}

	return &Order{
		ID:              id,
		CheckoutID:      checkoutID,
		CustomerID:      customerID,
		ShopID:          shopID,
		Items:           items,
		TotalAmount:     total,
		DeliveryAddress: delivery.Address,
		Instructions:    delivery.Instructions,
		PaymentType:     delivery.PaymentType,
		OrderStatus:     OrderStatusPending,
		PaymentStatus:   PaymentStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// VisibleTo reports whether caller may read the order.
func (o *Order) VisibleTo(caller *Caller) bool {
	switch {
	case caller.Is(RoleAdmin):
		return true
	case caller.Is(RoleCustomer):
		return o.CustomerID == caller.ID
	case caller.Is(RoleShopOwner):
		return o.ShopID == caller.ID
	}
	return false
}

// UpdateOrderStatusParams describes a compare-and-set status change.
// The update applies only while the stored status still equals From.
type UpdateOrderStatusParams struct {
	ID           uuid.UUID
	From         OrderStatus
	To           OrderStatus
	DeliveryDate *time.Time
}

// UpdatePaymentStatusParams describes a compare-and-set payment status change.
type UpdatePaymentStatusParams struct {
	ID   uuid.UUID
	From PaymentStatus
	To   PaymentStatus
}

//go:generate mockgen -destination=mocks/order_store.go -package=mocks . OrderStore,Catalog

// OrderStore persists orders. CreateOrder is atomic per order (the order, its
// items and its outbox event are written together) and idempotent on Order.ID.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *Order) error
	GetOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	ListOrdersByCustomer(ctx context.Context, customerID uuid.UUID) ([]Order, error)
	ListOrdersByShop(ctx context.Context, shopID uuid.UUID) ([]Order, error)
	ListOrders(ctx context.Context) ([]Order, error)

	// UpdateOrderStatus returns ErrOrderStatusChanged when the stored status
	// no longer matches params.From.
	UpdateOrderStatus(ctx context.Context, params UpdateOrderStatusParams) (*Order, error)
	UpdatePaymentStatus(ctx context.Context, params UpdatePaymentStatusParams) (*Order, error)
}

// TxOrderStore is an OrderStore that can run several writes in one transaction.
type TxOrderStore interface {
	OrderStore
	WithinTx(ctx context.Context, fn func(OrderStore) error) error
}
