package shipping

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// MockQuoter returns the same quote for every request. It is used when no
// carrier credentials are configured.
type MockQuoter struct{}

var mockRaw = json.RawMessage(`{"simulated":true}`)

// Quote returns base 5900 + handling 990 + insurance 600.
func (MockQuoter) Quote(_ context.Context, req Request) (*Quote, error) {
	breakdown := []Line{
		{Label: "base", Amount: decimal.NewFromInt(5900)},
		{Label: "handling", Amount: decimal.NewFromInt(990)},
		{Label: "insurance", Amount: decimal.NewFromInt(600)},
	}
	total := decimal.Zero
	for _, l := range breakdown {
		total = total.Add(l.Amount)
	}
	return &Quote{
		Provider:     ProviderMock,
		Currency:     "ARS",
		Total:        total,
		Breakdown:    breakdown,
		ServiceType:  "CP",
		DeliveryType: NormalizeDeliveryKind(req.DeliveryKind).responseName(),
		ETADays:      ETA{Min: 2, Max: 5},
		Raw:          mockRaw,
	}, nil
}
