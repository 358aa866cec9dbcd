package purchase

import (
	"github.com/shopspring/decimal"
)

// Draft is the purchase being assembled by one checkout session.
// Totals are always recomputed from Items and ShippingCost.
type Draft struct {
	Client          Client          `json:"client"`
	ShippingMethod  ShippingMethod  `json:"shippingMethod"`
	ShippingAddress *Address        `json:"shippingAddress,omitempty"`
	PaymentMethod   PaymentMethod   `json:"paymentMethod"`
	Items           []Item          `json:"items"`
	ShippingCost    decimal.Decimal `json:"shippingCost"`
	Currency        string          `json:"currency,omitempty"`
}

// Subtotal sums the line totals.
func Subtotal(items []Item) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.LineTotal())
	}
	return sum
}

// Subtotal sums the line totals of the draft.
func (d Draft) Subtotal() decimal.Decimal { return Subtotal(d.Items) }

// EffectiveShippingCost is 0 for pickup and the stored cost otherwise.
func (d Draft) EffectiveShippingCost() decimal.Decimal {
	if d.ShippingMethod != ShippingShip || d.ShippingCost.IsNegative() {
		return decimal.Zero
	}
	return d.ShippingCost
}

// Total is subtotal plus shipping.
func (d Draft) Total() decimal.Decimal {
	return d.Subtotal().Add(d.EffectiveShippingCost())
}

// CurrencyOrDefault returns the draft currency, falling back to DefaultCurrency.
func (d Draft) CurrencyOrDefault() string {
	if d.Currency == "" {
		return DefaultCurrency
	}
	return d.Currency
}

// ShippingComplete reports whether the shipping data fits the chosen method.
func (d Draft) ShippingComplete() bool {
	switch d.ShippingMethod {
	case ShippingPickup:
		return true
	case ShippingShip:
		return d.ShippingAddress != nil && d.ShippingAddress.MissingField() == ""
	}
	return false
}

// Clone returns a deep copy, so later cart edits can't leak into a snapshot.
func (d Draft) Clone() Draft {
	out := d
	out.Items = CloneItems(d.Items)
	if d.ShippingAddress != nil {
		a := *d.ShippingAddress
		out.ShippingAddress = &a
	}
	return out
}

// CloneItems copies a slice of items.
func CloneItems(items []Item) []Item {
	if items == nil {
		return nil
	}
	out := make([]Item, len(items))
	copy(out, items)
	return out
}

// DefaultParcelGrams is used when no item declares a weight.
const DefaultParcelGrams = 1000

// ParcelWeight sums quantity*weight over the items.
func ParcelWeight(items []Item) int {
	total := 0
	for _, it := range items {
		q := it.Quantity
		if q < 1 {
			q = 1
		}
		if it.WeightGrams > 0 {
			total += q * it.WeightGrams
		}
	}
	if total <= 0 {
		return DefaultParcelGrams
	}
	return total
}
