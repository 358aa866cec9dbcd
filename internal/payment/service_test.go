package payment

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/storefront-checkout/internal/apperrors"
	"github.com/imrishuroy/storefront-checkout/internal/orders"
	"github.com/imrishuroy/storefront-checkout/internal/purchase"
)

type fakeOrders struct {
	reqs []orders.CreateRequest
	err  error
}

func (f *fakeOrders) Create(ctx context.Context, req orders.CreateRequest) (*orders.OrderRef, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &orders.OrderRef{ID: "order-1", PublicID: "1001", Key: req.Key}, nil
}

func cardDraft() purchase.Draft {
	return purchase.Draft{
		Client:         purchase.Client{FirstName: "Ana", LastName: "Paz", Email: "ana@example.com", Phone: "1"},
		ShippingMethod: purchase.ShippingPickup,
		PaymentMethod:  purchase.PaymentGateway,
		Items:          []purchase.Item{{VariantID: "1", Quantity: 1, UnitPrice: decimal.NewFromInt(10000)}},
	}
}

func TestPayAndCommit_MismatchCreatesNoOrder(t *testing.T) {
	g := &fakeGateway{body: approvedBody("9999")}
	fo := &fakeOrders{}
	svc := NewService(NewVerifier(newGateway(t, g, 0), nil, zerolog.Nop()), fo, zerolog.Nop())

	res, err := svc.PayAndCommit(context.Background(), CardCheckout{Submission: submission(), Expected: expect10000, Draft: cardDraft()})
	assert.Nil(t, res)
	assert.Equal(t, ReasonAmountMismatch, ReasonOf(err))
	assert.Empty(t, fo.reqs)
}

func TestPayAndCommit_CommitsKeyedByPaymentID(t *testing.T) {
	g := &fakeGateway{body: approvedBody("10000")}
	fo := &fakeOrders{}
	svc := NewService(NewVerifier(newGateway(t, g, 0), nil, zerolog.Nop()), fo, zerolog.Nop())

	res, err := svc.PayAndCommit(context.Background(), CardCheckout{Submission: submission(), Expected: expect10000, Draft: cardDraft()})
	require.NoError(t, err)
	assert.Equal(t, "order-1", res.Order.ID)
	assert.Equal(t, "123456789", res.Payment.ID)

	require.Len(t, fo.reqs, 1)
	req := fo.reqs[0]
	assert.Equal(t, "123456789", req.Key)
	require.NotNil(t, req.Payment)
	assert.Equal(t, "ref-1", req.Payment.ExternalReference)
	assert.Equal(t, "ref-1", req.ExternalReference())
	assert.Equal(t, purchase.PaymentGateway, req.Draft.PaymentMethod)
}

func TestPayAndCommit_OrderFailureKeepsPayment(t *testing.T) {
	g := &fakeGateway{body: approvedBody("10000")}
	fo := &fakeOrders{err: &orders.PlatformError{Status: http.StatusInternalServerError}}
	svc := NewService(NewVerifier(newGateway(t, g, 0), nil, zerolog.Nop()), fo, zerolog.Nop())

	res, err := svc.PayAndCommit(context.Background(), CardCheckout{Submission: submission(), Expected: expect10000, Draft: cardDraft()})
	var oe *OrderError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, "123456789", oe.Payment.ID)
	require.NotNil(t, res)
	assert.Nil(t, res.Order)
	assert.Equal(t, apperrors.KindUpstreamRejected, apperrors.KindOf(err))

	var pe *orders.PlatformError
	assert.True(t, errors.As(err, &pe))
}

func TestPayAndCommit_InvalidDraftNeverCharges(t *testing.T) {
	cases := map[string]func(d *purchase.Draft){
		"non numeric variant": func(d *purchase.Draft) { d.Items[0].VariantID = "sku-abc" },
		"zero variant":        func(d *purchase.Draft) { d.Items[0].VariantID = "0" },
		"blank client field":  func(d *purchase.Draft) { d.Client.Phone = "   " },
		"no items":            func(d *purchase.Draft) { d.Items = nil },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			g := &fakeGateway{body: approvedBody("10000")}
			fo := &fakeOrders{}
			svc := NewService(NewVerifier(newGateway(t, g, 0), nil, zerolog.Nop()), fo, zerolog.Nop())
			d := cardDraft()
			mutate(&d)

			res, err := svc.PayAndCommit(context.Background(), CardCheckout{Submission: submission(), Expected: expect10000, Draft: d})
			assert.Nil(t, res)
			assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
			var oe *OrderError
			assert.False(t, errors.As(err, &oe))
			assert.Empty(t, g.keys)
			assert.Empty(t, fo.reqs)
		})
	}
}

func TestPayAndCommit_RequiresExternalReference(t *testing.T) {
	fo := &fakeOrders{}
	svc := NewService(NewVerifier(nil, nil, zerolog.Nop()), fo, zerolog.Nop())
	s := submission()
	s.ExternalReference = "  "

	_, err := svc.PayAndCommit(context.Background(), CardCheckout{Submission: s, Expected: expect10000})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestResolveExpected(t *testing.T) {
	card := CardData{TransactionAmount: decimal.NewFromInt(1)}
	d := cardDraft()
	d.ShippingMethod = purchase.ShippingShip
	d.ShippingCost = decimal.NewFromInt(7490)

	exp := ResolveExpected(&d, decimal.NewNullDecimal(decimal.NewFromInt(5)), "", 0, card)
	assert.True(t, decimal.NewFromInt(17490).Equal(exp.Amount), "draft wins over client amount")
	assert.Equal(t, "ARS", exp.Currency)
	assert.Equal(t, 1, exp.Installments)

	exp = ResolveExpected(nil, decimal.NewNullDecimal(decimal.NewFromInt(5)), "USD", 3, card)
	assert.True(t, decimal.NewFromInt(5).Equal(exp.Amount))
	assert.Equal(t, "USD", exp.Currency)
	assert.Equal(t, 3, exp.Installments)

	exp = ResolveExpected(nil, decimal.NullDecimal{}, "", 1, card)
	assert.True(t, decimal.NewFromInt(1).Equal(exp.Amount))
}
