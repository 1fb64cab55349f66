package handler

import (
	"time"

	"github.com/dukerupert/cakery/internal/domain"
)

// OrderResponse is the wire shape of an order. Amounts are minor units with a
// display string alongside.
type OrderResponse struct {
	ID              string               `json:"id"`
	CheckoutID      string               `json:"checkout_id"`
	CustomerID      string               `json:"customer_id"`
	ShopID          string               `json:"shop_id"`
	Items           []OrderItemResponse  `json:"items"`
	TotalAmount     int64                `json:"total_amount"`
	TotalDisplay    string               `json:"total_display"`
	Currency        string               `json:"currency"`
	DeliveryAddress string               `json:"delivery_address"`
	Instructions    string               `json:"instructions,omitempty"`
	PaymentType     domain.PaymentType   `json:"payment_type"`
	OrderStatus     domain.OrderStatus   `json:"order_status"`
	PaymentStatus   domain.PaymentStatus `json:"payment_status"`
	DeliveryDate    *time.Time           `json:"delivery_date,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// OrderItemResponse is the wire shape of one priced line.
type OrderItemResponse struct {
	ProductID              string                   `json:"product_id"`
	Quantity               int                      `json:"quantity"`
	SelectedCustomizations domain.ResolvedSelection `json:"selected_customizations"`
	Price                  int64                    `json:"price"`
	PriceDisplay           string                   `json:"price_display"`
}

// NewOrderResponse converts an order for the API.
func NewOrderResponse(o domain.Order) OrderResponse {
	items := make([]OrderItemResponse, len(o.Items))
	for i, item := range o.Items {
		items[i] = OrderItemResponse{
			ProductID:              item.ProductID.String(),
			Quantity:               item.Quantity,
			SelectedCustomizations: item.SelectedCustomizations,
			Price:                  item.Price,
			PriceDisplay:           domain.FormatAmount(item.Price),
		}
	}

	return OrderResponse{
		ID:              o.ID.String(),
		CheckoutID:      o.CheckoutID.String(),
		CustomerID:      o.CustomerID.String(),
		ShopID:          o.ShopID.String(),
		Items:           items,
		TotalAmount:     o.TotalAmount,
		TotalDisplay:    domain.FormatAmount(o.TotalAmount),
		Currency:        domain.Currency,
		DeliveryAddress: o.DeliveryAddress,
		Instructions:    o.Instructions,
		PaymentType:     o.PaymentType,
		OrderStatus:     o.OrderStatus,
		PaymentStatus:   o.PaymentStatus,
		DeliveryDate:    o.DeliveryDate,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

// NewOrderResponses converts a list of orders. It never returns nil so empty
// lists encode as [].
func NewOrderResponses(orders []domain.Order) []OrderResponse {
	out := make([]OrderResponse, len(orders))
	for i, o := range orders {
		out[i] = NewOrderResponse(o)
	}
	return out
}
