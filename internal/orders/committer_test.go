package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/storefront-checkout/internal/apperrors"
	"github.com/imrishuroy/storefront-checkout/internal/idempotency"
	"github.com/imrishuroy/storefront-checkout/internal/purchase"
)

// fakePlatform is an httptest commerce platform. With honorKey it returns
// the same order for a repeated Idempotency-Key.
type fakePlatform struct {
	honorKey bool
	status   int

	mu       sync.Mutex
	next     int
	byKey    map[string]int
	calls    int
	keys     []string
	headers  http.Header
	payloads []Payload
}

func (f *fakePlatform) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.headers = r.Header.Clone()
	key := r.Header.Get("Idempotency-Key")
	f.keys = append(f.keys, key)

	var p Payload
	_ = json.NewDecoder(r.Body).Decode(&p)
	f.payloads = append(f.payloads, p)

	if f.status != 0 {
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(`{"code":500,"message":"boom"}`))
		return
	}
	if f.byKey == nil {
		f.byKey = map[string]int{}
	}
	id, seen := f.byKey[key]
	if !seen || !f.honorKey {
		f.next++
		id = 900 + f.next
		f.byKey[key] = id
	}
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write([]byte(`{"id":` + strconv.Itoa(id) + `,"number":` + strconv.Itoa(id+100) + `}`))
}

func (f *fakePlatform) seen() (calls int, keys []string, headers http.Header) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, append([]string(nil), f.keys...), f.headers
}

func (f *fakePlatform) last() Payload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.payloads[len(f.payloads)-1]
}

type recordingEvents struct {
	mu     sync.Mutex
	events []CommittedEvent
}

func (r *recordingEvents) Publish(ctx context.Context, eventType string, payload any, attrs map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ev, ok := payload.(CommittedEvent); ok && eventType == EventOrderCommitted {
		r.events = append(r.events, ev)
	}
	return nil
}

func newPlatform(t *testing.T, f *fakePlatform) *PlatformClient {
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return NewPlatformClient(PlatformConfig{
		Domain:      srv.URL,
		Version:     "2025-03",
		StoreID:     "123",
		AccessToken: "tok",
		UserAgent:   "checkout-test",
	}, srv.Client())
}

func shipDraft() purchase.Draft {
	return purchase.Draft{
		Client:         purchase.Client{FirstName: "Ana", LastName: "Paz", Email: "ana@example.com", Phone: "351000"},
		ShippingMethod: purchase.ShippingShip,
		ShippingAddress: &purchase.Address{
			Province: "Córdoba", City: "Córdoba", Street: "Colón", Number: "100", PostalCode: "5000",
		},
		PaymentMethod: purchase.PaymentTransfer,
		Items: []purchase.Item{
			{VariantID: "101", Quantity: 2, UnitPrice: decimal.NewFromInt(3000)},
			{VariantID: "102", Quantity: 1, UnitPrice: decimal.NewFromInt(4000)},
		},
		ShippingCost: decimal.RequireFromString("7490.40"),
	}
}

func TestCreate_SameKeyTwiceReturnsSameOrder(t *testing.T) {
	f := &fakePlatform{honorKey: true}
	ledger := idempotency.NewMemoryStore()
	events := &recordingEvents{}
	c := NewCommitter(newPlatform(t, f), WithLedger(ledger), WithEvents(events), WithLogger(zerolog.Nop()))

	req := CreateRequest{Key: "ref-1", Draft: shipDraft()}
	first, err := c.Create(context.Background(), req)
	require.NoError(t, err)
	second, err := c.Create(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.PublicID, second.PublicID)
	_, keys, _ := f.seen()
	assert.Equal(t, []string{"ref-1", "ref-1"}, keys)

	rec, err := ledger.Get(context.Background(), "ref-1")
	require.NoError(t, err)
	assert.Equal(t, idempotency.StatusDone, rec.Status)
	assert.Equal(t, first.ID, rec.OrderID)

	require.Len(t, events.events, 2)
	assert.Equal(t, first.ID, events.events[0].OrderID)
	assert.True(t, decimal.RequireFromString("17490.40").Equal(events.events[0].Total))
}

func TestCreate_DifferentOrderForKnownKeyIsConflict(t *testing.T) {
	f := &fakePlatform{honorKey: false}
	ledger := idempotency.NewMemoryStore()
	c := NewCommitter(newPlatform(t, f), WithLedger(ledger))

	req := CreateRequest{Key: "ref-2", Draft: shipDraft()}
	_, err := c.Create(context.Background(), req)
	require.NoError(t, err)

	_, err = c.Create(context.Background(), req)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "901", conflict.Recorded)
	assert.Equal(t, "902", conflict.Returned)
	assert.Equal(t, apperrors.KindIdempotencyConflict, apperrors.KindOf(err))
}

func TestCreate_ValidationHappensBeforeNetwork(t *testing.T) {
	f := &fakePlatform{honorKey: true}
	c := NewCommitter(newPlatform(t, f))

	cases := []struct {
		field  string
		mutate func(*CreateRequest)
	}{
		{"idempotencyKey", func(r *CreateRequest) { r.Key = " " }},
		{"client.email", func(r *CreateRequest) { r.Draft.Client.Email = "" }},
		{"items", func(r *CreateRequest) { r.Draft.Items = nil }},
		{"items[1].variantId", func(r *CreateRequest) { r.Draft.Items[1].VariantID = "abc" }},
		{"items[0].quantity", func(r *CreateRequest) { r.Draft.Items[0].Quantity = 0 }},
		{"shippingAddress", func(r *CreateRequest) { r.Draft.ShippingAddress = nil }},
		{"shippingAddress.street", func(r *CreateRequest) { r.Draft.ShippingAddress.Street = "" }},
		{"shippingMethod", func(r *CreateRequest) { r.Draft.ShippingMethod = "drone" }},
		{"paymentMethod", func(r *CreateRequest) { r.Draft.PaymentMethod = purchase.PaymentCash }},
		{"shippingCost", func(r *CreateRequest) { r.Draft.ShippingCost = decimal.NewFromInt(-1) }},
	}
	for _, tc := range cases {
		t.Run(tc.field, func(t *testing.T) {
			req := CreateRequest{Key: "ref", Draft: shipDraft().Clone()}
			tc.mutate(&req)
			_, err := c.Create(context.Background(), req)

			var ae *apperrors.Error
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, apperrors.KindValidation, ae.Kind)
			assert.Equal(t, tc.field, ae.Field)
		})
	}
	calls, _, _ := f.seen()
	assert.Zero(t, calls)
}

func TestCreate_PayloadShape(t *testing.T) {
	f := &fakePlatform{honorKey: true}
	c := NewCommitter(newPlatform(t, f))

	_, err := c.Create(context.Background(), CreateRequest{Key: "ref-ship", Draft: shipDraft()})
	require.NoError(t, err)

	p := f.last()
	assert.Equal(t, "transfer", p.Gateway)
	assert.Equal(t, "open", p.Status)
	assert.Equal(t, "pending", p.PaymentStatus)
	assert.Equal(t, "Ana Paz", p.Customer.Name)
	assert.Equal(t, "ship", p.ShippingPickupType)
	assert.Equal(t, "Envío", p.ShippingOption)
	assert.Equal(t, int64(7490), p.ShippingCostCustomer)
	assert.Equal(t, "AR", p.ShippingAddress.Country)
	assert.Equal(t, "5000", p.ShippingAddress.Zipcode)
	assert.Equal(t, p.ShippingAddress, p.BillingAddress)
	assert.Equal(t, []Product{{VariantID: 101, Quantity: 2, Price: "3000"}, {VariantID: 102, Quantity: 1, Price: "4000"}}, p.Products)
	assert.Equal(t, "bypass", p.InventoryBehaviour)
	assert.False(t, p.SendConfirmationEmail)
	assert.Nil(t, p.Payment)

	_, _, h := f.seen()
	assert.Equal(t, "bearer tok", h.Get("Authentication"))
	assert.Equal(t, "checkout-test", h.Get("User-Agent"))
}

func TestCreate_PickupUsesPlaceholderAndIgnoresShippingCost(t *testing.T) {
	f := &fakePlatform{honorKey: true}
	c := NewCommitter(newPlatform(t, f))

	d := shipDraft()
	d.ShippingMethod = purchase.ShippingPickup
	d.ShippingAddress = nil
	d.PaymentMethod = purchase.PaymentCash

	_, err := c.Create(context.Background(), CreateRequest{Key: "ref-pickup", Draft: d})
	require.NoError(t, err)

	p := f.last()
	assert.Equal(t, "Retiro", p.ShippingOption)
	assert.Equal(t, "pickup", p.ShippingPickupType)
	assert.Equal(t, int64(0), p.ShippingCostCustomer)
	assert.Equal(t, "Pickup", p.ShippingAddress.Address)
	assert.Equal(t, "N/A", p.ShippingAddress.Zipcode)
	assert.Equal(t, "pickup", p.ShippingAddress.Comment)
}

func TestCreate_WithPaymentMetadata(t *testing.T) {
	f := &fakePlatform{honorKey: true}
	events := &recordingEvents{}
	c := NewCommitter(newPlatform(t, f), WithEvents(events))

	d := shipDraft()
	d.PaymentMethod = purchase.PaymentGateway
	pm := &PaymentMetadata{
		ID: "555", Status: "approved", StatusDetail: "accredited",
		Amount: decimal.NewFromInt(17490), Currency: "ARS", Installments: 1,
		PaymentType: "credit_card", PaymentMethod: "visa", ExternalReference: "ref-card",
	}
	ref, err := c.Create(context.Background(), CreateRequest{Key: "555", Draft: d, Payment: pm})
	require.NoError(t, err)
	assert.Equal(t, "555", ref.Key)

	p := f.last()
	assert.Equal(t, "paid", p.PaymentStatus)
	require.NotNil(t, p.Payment)
	assert.Equal(t, "555", p.Payment.ID)
	assert.Equal(t, 17490.0, p.Payment.TransactionAmount)
	assert.Equal(t, "ref-card", p.Payment.ExternalReference)

	require.Len(t, events.events, 1)
	assert.Equal(t, "555", events.events[0].PaymentID)
	assert.Equal(t, "ref-card", events.events[0].ExternalReference)
}

func TestCreate_UpstreamFailureMarksLedgerFailed(t *testing.T) {
	f := &fakePlatform{status: http.StatusInternalServerError}
	ledger := idempotency.NewMemoryStore()
	c := NewCommitter(newPlatform(t, f), WithLedger(ledger))

	_, err := c.Create(context.Background(), CreateRequest{Key: "ref-3", Draft: shipDraft()})
	var pe *PlatformError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusInternalServerError, pe.Status)
	assert.JSONEq(t, `{"code":500,"message":"boom"}`, string(pe.Body))
	assert.Equal(t, apperrors.KindUpstreamRejected, apperrors.KindOf(err))

	rec, _ := ledger.Get(context.Background(), "ref-3")
	require.NotNil(t, rec)
	assert.Equal(t, idempotency.StatusFailed, rec.Status)
}

func TestPlatformClient_MissingConfig(t *testing.T) {
	p := NewPlatformClient(PlatformConfig{}, nil)
	_, err := p.CreateOrder(context.Background(), "k", Payload{})
	assert.Equal(t, apperrors.KindUnavailable, apperrors.KindOf(err))
}
