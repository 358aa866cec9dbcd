package validation

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/imrishuroy/storefront-checkout/internal/payment"
	"github.com/imrishuroy/storefront-checkout/internal/purchase"
	"github.com/imrishuroy/storefront-checkout/internal/shipping"
)

// Dimensions of the parcel. Weight is in grams.
type Dimensions struct {
	Weight float64 `json:"weight" validate:"gte=0"`
}

// QuoteRequest is the payload for POST /shipping/quote
type QuoteRequest struct {
	PostalCodeOrigin      string      `json:"postalCodeOrigin" validate:"max=16"`
	PostalCodeDestination string      `json:"postalCodeDestination" validate:"required,max=16"` // digits are extracted later
	DeliveredType         string      `json:"deliveredType" validate:"omitempty,oneof=D S d s"`
	Dimensions            *Dimensions `json:"dimensions,omitempty"`
}

// ToShipping converts the request to a carrier quote request.
func (r QuoteRequest) ToShipping() shipping.Request {
	req := shipping.Request{
		Origin:       r.PostalCodeOrigin,
		Destination:  r.PostalCodeDestination,
		DeliveryKind: shipping.DeliveryKindFromCode(r.DeliveredType),
	}
	if r.Dimensions != nil {
		req.WeightGrams = int(math.Round(r.Dimensions.Weight))
	}
	return req
}

// Payer of a card payment.
type Payer struct {
	Email          string                  `json:"email" validate:"required"`
	Identification *payment.Identification `json:"identification,omitempty"`
}

// CardData is the tokenized card produced by the gateway's browser SDK.
type CardData struct {
	Token             string          `json:"token" validate:"required"`
	IssuerID          string          `json:"issuer_id,omitempty"`
	PaymentMethodID   string          `json:"payment_method_id" validate:"required"`
	TransactionAmount decimal.Decimal `json:"transaction_amount"` // > 0, checked at struct level
	Installments      int             `json:"installments" validate:"required,min=1"`
	Payer             Payer           `json:"payer"`
}

// Expected is what the client believes the payment must match.
type Expected struct {
	Amount       decimal.NullDecimal `json:"amount"`
	Currency     string              `json:"currency" validate:"omitempty,len=3"`
	Installments int                 `json:"installments" validate:"omitempty,min=1"`
}

// CardPaymentRequest is the payload for POST /payments/card
type CardPaymentRequest struct {
	CardData          CardData            `json:"cardData"`
	ExternalReference string              `json:"external_reference" validate:"required"`
	Description       string              `json:"description,omitempty"`
	Metadata          map[string]any      `json:"metadata,omitempty"`
	Expected          *Expected           `json:"expected,omitempty"`
	Order             *CreateOrderRequest `json:"order,omitempty" validate:"omitempty"` // draft committed after verification
}

// Card converts the card block for the gateway client.
func (r CardPaymentRequest) Card() payment.CardData {
	return payment.CardData{
		Token:             r.CardData.Token,
		PaymentMethodID:   r.CardData.PaymentMethodID,
		IssuerID:          r.CardData.IssuerID,
		TransactionAmount: r.CardData.TransactionAmount,
		Installments:      r.CardData.Installments,
		PayerEmail:        r.CardData.Payer.Email,
		Identification:    r.CardData.Payer.Identification,
	}
}

// Client is the purchaser block of an order.
type Client struct {
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone" validate:"required"`
}

// Address is a shipping destination.
type Address struct {
	Country    string `json:"country"`
	Province   string `json:"province" validate:"required"`
	City       string `json:"city" validate:"required"`
	Street     string `json:"street" validate:"required"`
	Number     string `json:"number" validate:"required"`
	PostalCode string `json:"postalCode" validate:"required"`
	Notes      string `json:"notes,omitempty"`
}

// Item represents a single order line item.
type Item struct {
	VariantID json.Number      `json:"variantId" validate:"required"`
	Quantity  int              `json:"quantity" validate:"required,min=1"`
	UnitPrice *decimal.Decimal `json:"unitPrice,omitempty"` // >= 0 when present, checked at struct level
}

// CreateOrderRequest is the payload for POST /orders
type CreateOrderRequest struct {
	Client          Client          `json:"client"`
	Items           []Item          `json:"items" validate:"required,min=1,dive"`
	ShippingMethod  string          `json:"shippingMethod" validate:"required,oneof=pickup ship shipping"`
	ShippingAddress *Address        `json:"shippingAddress,omitempty"`
	ShippingCost    decimal.Decimal `json:"shippingCost"`
	PaymentMethod   string          `json:"paymentMethod" validate:"required,oneof=gateway transfer cash"`
	Currency        string          `json:"currency,omitempty" validate:"omitempty,len=3"`
}

// shippingMethod maps the storefront's "shipping" alias to ship.
func (r CreateOrderRequest) shippingMethod() purchase.ShippingMethod {
	if r.ShippingMethod == "shipping" {
		return purchase.ShippingShip
	}
	return purchase.ShippingMethod(r.ShippingMethod)
}

// ToDraft converts the request to a purchase draft.
func (r CreateOrderRequest) ToDraft() purchase.Draft {
	d := purchase.Draft{
		Client: purchase.Client{
			FirstName: r.Client.FirstName,
			LastName:  r.Client.LastName,
			Email:     r.Client.Email,
			Phone:     r.Client.Phone,
		}.Trimmed(),
		ShippingMethod: r.shippingMethod(),
		PaymentMethod:  purchase.PaymentMethod(r.PaymentMethod),
		ShippingCost:   r.ShippingCost,
		Currency:       strings.ToUpper(strings.TrimSpace(r.Currency)),
	}
	if a := r.ShippingAddress; a != nil && d.ShippingMethod == purchase.ShippingShip {
		addr := purchase.Address(*a).Trimmed()
		d.ShippingAddress = &addr
	}
	d.Items = make([]purchase.Item, 0, len(r.Items))
	for _, it := range r.Items {
		item := purchase.Item{VariantID: it.VariantID, Quantity: it.Quantity}
		if it.UnitPrice != nil {
			item.UnitPrice = *it.UnitPrice
		}
		d.Items = append(d.Items, item)
	}
	return d
}
