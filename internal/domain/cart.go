package domain

import (
	"github.com/google/uuid"
)

// Customization is the customer's raw, untrusted selection for one cart line.
// Names are resolved against the product's tables at checkout; nothing here is
// trusted for pricing.
type Customization struct {
	Size        *string  `json:"size,omitempty"`
	Toppings    []string `json:"toppings,omitempty"`
	Flavor      *string  `json:"flavor,omitempty"`
	CakeText    *string  `json:"cakeText,omitempty"`
	SpecialNote *string  `json:"specialNote,omitempty"`
}

// CartLine is one customer-submitted request to buy Quantity units of a product.
type CartLine struct {
	ProductID     uuid.UUID
	Quantity      int
	Customization *Customization
}

// PaymentType is the payment method the customer picked at checkout.
type PaymentType string

const (
	PaymentTypeCard           PaymentType = "card"
	PaymentTypeCashOnDelivery PaymentType = "cod"
)

// Valid reports whether t is a supported payment type.
func (t PaymentType) Valid() bool {
	return t == PaymentTypeCard || t == PaymentTypeCashOnDelivery
}

// DeliveryInfo is the checkout-level delivery metadata copied onto every order.
type DeliveryInfo struct {
	Address      string
	PaymentType  PaymentType
	Instructions string
}
