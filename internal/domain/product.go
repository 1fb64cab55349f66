package domain

import (
	"context"

	"github.com/google/uuid"
)

// Option is one entry of a product customization table.
// Price is a signed delta in the smallest currency unit and may be negative.
type Option struct {
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

// OptionGroup is an ordered customization table. Names are unique within a group.
type OptionGroup []Option

// Lookup returns the option with the exact given name.
func (g OptionGroup) Lookup(name string) (Option, bool) {
	for _, o := range g {
		if o.Name == name {
			return o, true
		}
	}
	return Option{}, false
}

// Option group names as stored in the catalog.
const (
	GroupSize          = "size"
	GroupToppings      = "toppings"
	GroupFlavor        = "flavor"
	GroupCustomMessage = "custom_message"
)

// CustomizationTable holds every option group a product offers.
type CustomizationTable struct {
	Size          OptionGroup `json:"size,omitempty"`
	Toppings      OptionGroup `json:"toppings,omitempty"`
	Flavor        OptionGroup `json:"flavor,omitempty"`
	CustomMessage OptionGroup `json:"custom_message,omitempty"`
}

// Add appends an option to the named group. Unknown group names are ignored.
func (t *CustomizationTable) Add(group string, opt Option) {
	switch group {
	case GroupSize:
		t.Size = append(t.Size, opt)
	case GroupToppings:
		t.Toppings = append(t.Toppings, opt)
	case GroupFlavor:
		t.Flavor = append(t.Flavor, opt)
	case GroupCustomMessage:
		t.CustomMessage = append(t.CustomMessage, opt)
	}
}

// Product is the catalog view consumed by checkout. It is read-only here.
type Product struct {
	ID            uuid.UUID
	ShopID        uuid.UUID
	Name          string
	BasePrice     int64
	DiscountPrice *int64
	Customization CustomizationTable
}

// EffectivePrice is the discount price when one is set, otherwise the base price.
// A discount price of zero is still a discount price.
func (p *Product) EffectivePrice() int64 {
	if p.DiscountPrice != nil {
		return *p.DiscountPrice
	}
	return p.BasePrice
}

// Catalog resolves products by identifier.
// GetProduct returns an ENOTFOUND error when the product does not exist.
type Catalog interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*Product, error)
}
