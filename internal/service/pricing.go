package service

import (
	"fmt"
	"math"

	"github.com/dukerupert/cakery/internal/domain"
)

// ResolveCustomization matches the customer's selections against the product's
// option tables and returns the authoritative snapshot.
//
// Unknown names are dropped rather than rejected: they add nothing to the price
// and do not appear in the snapshot. Toppings are treated as a set. Free text is
// carried verbatim and never priced.
func ResolveCustomization(table domain.CustomizationTable, c *domain.Customization) domain.ResolvedSelection {
	var sel domain.ResolvedSelection
	if c == nil {
		return sel
	}

	if c.Size != nil {
		sel.Size = resolveOne(table.Size, *c.Size)
	}
	if c.Flavor != nil {
		sel.Flavor = resolveOne(table.Flavor, *c.Flavor)
	}

	if len(c.Toppings) > 0 {
		seen := make(map[string]struct{}, len(c.Toppings))
		for _, name := range c.Toppings {
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			if opt, ok := table.Toppings.Lookup(name); ok {
				sel.Toppings = append(sel.Toppings, domain.SelectedOption{Name: opt.Name, Price: opt.Price})
			}
		}
	}

	if c.CakeText != nil {
		sel.CakeText = *c.CakeText
	}
	if c.SpecialNote != nil {
		sel.SpecialNote = *c.SpecialNote
	}

	return sel
}

func resolveOne(group domain.OptionGroup, name string) *domain.SelectedOption {
	if name == "" {
		return nil
	}
	opt, ok := group.Lookup(name)
	if !ok {
		return nil
	}
	return &domain.SelectedOption{Name: opt.Name, Price: opt.Price}
}

// PriceLine produces the resolved, priced order item for one cart line:
// (effective price + resolved deltas) x quantity. The client never supplies a price.
func PriceLine(product *domain.Product, line domain.CartLine) (domain.OrderItem, error) {
	const op = "checkout.price_line"

	if line.Quantity < 1 {
		return domain.OrderItem{}, &domain.CheckoutError{
			Kind:      domain.KindInvalidQuantity,
			Op:        op,
			Message:   fmt.Sprintf("Quantity for product %s must be a positive whole number.", line.ProductID),
			ProductID: line.ProductID,
		}
	}

	sel := ResolveCustomization(product.Customization, line.Customization)
	unit := product.EffectivePrice() + sel.Delta()

	if unit != 0 && int64(line.Quantity) > math.MaxInt64/abs(unit) {
		return domain.OrderItem{}, &domain.CheckoutError{
			Kind:      domain.KindInvalidQuantity,
			Op:        op,
			Message:   fmt.Sprintf("Quantity for product %s is too large.", line.ProductID),
			ProductID: line.ProductID,
		}
	}

	return domain.OrderItem{
		ProductID:              line.ProductID,
		Quantity:               line.Quantity,
		SelectedCustomizations: sel,
		Price:                  unit * int64(line.Quantity),
	}, nil
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
