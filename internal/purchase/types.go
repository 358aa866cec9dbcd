package purchase

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// ShippingMethod is how the purchaser receives the goods.
type ShippingMethod string

const (
	ShippingPickup ShippingMethod = "pickup"
	ShippingShip   ShippingMethod = "ship"
)

// PaymentMethod is how the purchaser pays.
type PaymentMethod string

const (
	PaymentGateway  PaymentMethod = "gateway"
	PaymentTransfer PaymentMethod = "transfer"
	PaymentCash     PaymentMethod = "cash"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	return m == PaymentGateway || m == PaymentTransfer || m == PaymentCash
}

// AllowedWith reports whether the payment method can be combined with the shipping method.
// Cash is settled at the counter, so it only works for pickup.
func (m PaymentMethod) AllowedWith(s ShippingMethod) bool {
	if m == PaymentCash {
		return s == ShippingPickup
	}
	return m.Valid()
}

// DefaultCurrency is used when a draft doesn't name one.
const DefaultCurrency = "ARS"

// Client is the purchaser's contact data.
type Client struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// Trimmed returns a copy with surrounding whitespace removed from every field.
func (c Client) Trimmed() Client {
	return Client{
		FirstName: strings.TrimSpace(c.FirstName),
		LastName:  strings.TrimSpace(c.LastName),
		Email:     strings.TrimSpace(c.Email),
		Phone:     strings.TrimSpace(c.Phone),
	}
}

// MissingField returns the JSON name of the first empty field, or "".
func (c Client) MissingField() string {
	t := c.Trimmed()
	switch {
	case t.FirstName == "":
		return "client.firstName"
	case t.LastName == "":
		return "client.lastName"
	case t.Email == "":
		return "client.email"
	case t.Phone == "":
		return "client.phone"
	}
	return ""
}

// Complete reports whether every client field is filled.
func (c Client) Complete() bool { return c.MissingField() == "" }

// Address is a shipping destination.
type Address struct {
	Country    string `json:"country"`
	Province   string `json:"province"`
	City       string `json:"city"`
	Street     string `json:"street"`
	Number     string `json:"number"`
	PostalCode string `json:"postalCode"`
	Notes      string `json:"notes,omitempty"`
}

// Trimmed returns a copy with whitespace removed and the country defaulted to AR.
func (a Address) Trimmed() Address {
	out := Address{
		Country:    strings.TrimSpace(a.Country),
		Province:   strings.TrimSpace(a.Province),
		City:       strings.TrimSpace(a.City),
		Street:     strings.TrimSpace(a.Street),
		Number:     strings.TrimSpace(a.Number),
		PostalCode: strings.TrimSpace(a.PostalCode),
		Notes:      strings.TrimSpace(a.Notes),
	}
	if out.Country == "" {
		out.Country = "AR"
	}
	return out
}

// MissingField returns the JSON path of the first empty required field, or "".
func (a Address) MissingField() string {
	t := a.Trimmed()
	required := []struct{ name, value string }{
		{"shippingAddress.country", t.Country},
		{"shippingAddress.province", t.Province},
		{"shippingAddress.city", t.City},
		{"shippingAddress.street", t.Street},
		{"shippingAddress.number", t.Number},
		{"shippingAddress.postalCode", t.PostalCode},
	}
	for _, r := range required {
		if r.value == "" {
			return r.name
		}
	}
	return ""
}

// PickupAddress is the placeholder sent upstream for orders collected in store.
var PickupAddress = Address{
	Country:    "AR",
	Province:   "N/A",
	City:       "N/A",
	Street:     "Pickup",
	Number:     "0",
	PostalCode: "N/A",
	Notes:      "pickup",
}

// Item is one cart line.
type Item struct {
	VariantID   json.Number     `json:"variantId"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Title       string          `json:"title,omitempty"`
	WeightGrams int             `json:"weightGrams,omitempty"`
}

// LineTotal is unitPrice * quantity.
func (it Item) LineTotal() decimal.Decimal {
	return it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
}
