package shipping

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// DeliveryKind is where the carrier leaves the parcel.
type DeliveryKind string

const (
	HomeDelivery DeliveryKind = "home-delivery"
	Agency       DeliveryKind = "agency"
)

// Provider names.
const (
	ProviderMock    = "mock"
	ProviderCarrier = "correo-argentino"
)

// Request asks for the price of one parcel.
type Request struct {
	Origin       string
	Destination  string
	WeightGrams  int
	DeliveryKind DeliveryKind
}

// Quoter prices a shipment.
type Quoter interface {
	Quote(ctx context.Context, req Request) (*Quote, error)
}

// Line is one component of a quoted total.
type Line struct {
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
}

// ETA is the delivery window in days.
type ETA struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Quote is the normalized result of one quoting attempt.
type Quote struct {
	Provider     string          `json:"provider"`
	Currency     string          `json:"currency"`
	Total        decimal.Decimal `json:"total"`
	Breakdown    []Line          `json:"breakdown"`
	ServiceType  string          `json:"serviceType"`
	DeliveryType string          `json:"deliveryType"` // homeDelivery | agency
	ETADays      ETA             `json:"etaDays"`
	Raw          json.RawMessage `json:"raw,omitempty"`
}

// MarshalJSON writes amounts as JSON numbers.
func (q Quote) MarshalJSON() ([]byte, error) {
	type line struct {
		Label  string  `json:"label"`
		Amount float64 `json:"amount"`
	}
	lines := make([]line, 0, len(q.Breakdown))
	for _, l := range q.Breakdown {
		lines = append(lines, line{Label: l.Label, Amount: l.Amount.InexactFloat64()})
	}
	return json.Marshal(struct {
		Provider     string          `json:"provider"`
		Currency     string          `json:"currency"`
		Total        float64         `json:"total"`
		Breakdown    []line          `json:"breakdown"`
		ServiceType  string          `json:"serviceType"`
		DeliveryType string          `json:"deliveryType"`
		ETADays      ETA             `json:"etaDays"`
		Raw          json.RawMessage `json:"raw,omitempty"`
	}{
		Provider:     q.Provider,
		Currency:     q.Currency,
		Total:        q.Total.InexactFloat64(),
		Breakdown:    lines,
		ServiceType:  q.ServiceType,
		DeliveryType: q.DeliveryType,
		ETADays:      q.ETADays,
		Raw:          q.Raw,
	})
}

// Rate is one priced offer as returned by the carrier.
type Rate struct {
	Price           decimal.NullDecimal `json:"price"`
	Amount          decimal.NullDecimal `json:"amount"`
	Total           decimal.NullDecimal `json:"total"`
	DeliveredType   string              `json:"deliveredType"`
	ProductType     string              `json:"productType"`
	ProductName     string              `json:"productName"`
	DeliveryTimeMin flexInt             `json:"deliveryTimeMin"`
	DeliveryTimeMax flexInt             `json:"deliveryTimeMax"`
}

// Value is the first of price, amount, total that is set.
func (r Rate) Value() decimal.Decimal {
	for _, v := range []decimal.NullDecimal{r.Price, r.Amount, r.Total} {
		if v.Valid {
			return v.Decimal
		}
	}
	return decimal.Zero
}

// UnmarshalJSON reads price, amount and total leniently: a present value that
// is not a number decodes as zero, so Select drops the rate instead of the
// whole list failing.
func (r *Rate) UnmarshalJSON(b []byte) error {
	type plain Rate
	var aux struct {
		plain
		Price  json.RawMessage `json:"price"`
		Amount json.RawMessage `json:"amount"`
		Total  json.RawMessage `json:"total"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*r = Rate(aux.plain)
	r.Price = lenientDecimal(aux.Price)
	r.Amount = lenientDecimal(aux.Amount)
	r.Total = lenientDecimal(aux.Total)
	return nil
}

func lenientDecimal(raw json.RawMessage) decimal.NullDecimal {
	var d decimal.NullDecimal
	if len(raw) == 0 {
		return d
	}
	if err := d.UnmarshalJSON(raw); err != nil {
		return decimal.NullDecimal{Decimal: decimal.Zero, Valid: true}
	}
	return d
}

// flexInt accepts a JSON number or a quoted number; anything else decodes as 0.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		*f = 0
		return nil
	}
	v, err := n.Float64()
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexInt(v)
	return nil
}
