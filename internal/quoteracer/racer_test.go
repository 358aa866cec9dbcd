package quoteracer

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/storefront-checkout/internal/apperrors"
	"github.com/imrishuroy/storefront-checkout/internal/purchase"
	"github.com/imrishuroy/storefront-checkout/internal/shipping"
)

// gatedQuoter prices a destination at its numeric code. Destinations with a
// gate block until the gate is closed.
type gatedQuoter struct {
	mu     sync.Mutex
	gates  map[string]chan struct{}
	calls  []string
	failOn string
	called chan string
}

func newGatedQuoter() *gatedQuoter {
	return &gatedQuoter{gates: map[string]chan struct{}{}, called: make(chan string, 16)}
}

func (g *gatedQuoter) gate(dest string) chan struct{} {
	ch := make(chan struct{})
	g.mu.Lock()
	g.gates[dest] = ch
	g.mu.Unlock()
	return ch
}

func (g *gatedQuoter) Quote(ctx context.Context, req shipping.Request) (*shipping.Quote, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req.Destination)
	gate := g.gates[req.Destination]
	fail := g.failOn == req.Destination
	g.mu.Unlock()
	g.called <- req.Destination

	if gate != nil {
		<-gate
	}
	if fail {
		return nil, &shipping.QuoteError{Provider: "stub", Status: 502, Message: "No valid rate", Kind: apperrors.KindUpstreamRejected}
	}
	return &shipping.Quote{Provider: "stub", Total: decimal.RequireFromString(req.Destination)}, nil
}

func (g *gatedQuoter) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func ship(dest string) Input {
	return Input{Method: purchase.ShippingShip, Origin: "1406", Destination: dest}
}

func waitCalled(t *testing.T, g *gatedQuoter, dest string) {
	t.Helper()
	select {
	case got := <-g.called:
		require.Equal(t, dest, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("quoter was not called for %s", dest)
	}
}

func settledOn(r *Racer, total int64) func() bool {
	return func() bool {
		s := r.State()
		return s.Kind == Ready && s.Quote.Total.Equal(decimal.NewFromInt(total))
	}
}

func TestRacer_StaleResponseNeverWins(t *testing.T) {
	g := newGatedQuoter()
	slow := g.gate("5000")
	r := New(g, WithDebounce(time.Millisecond))

	r.Update(ship("5000"))
	waitCalled(t, g, "5000")

	r.Update(ship("5001"))
	waitCalled(t, g, "5001")
	require.Eventually(t, settledOn(r, 5001), time.Second, 5*time.Millisecond)

	// the first request resolves last in wall-clock time
	close(slow)
	time.Sleep(30 * time.Millisecond)

	s := r.State()
	assert.Equal(t, Ready, s.Kind)
	assert.True(t, decimal.NewFromInt(5001).Equal(s.Quote.Total))
	assert.Equal(t, "5001", s.Destination)
}

func TestRacer_InFlightResponseDroppedAfterInputChange(t *testing.T) {
	g := newGatedQuoter()
	first := g.gate("5000")
	second := g.gate("5001")
	r := New(g, WithDebounce(time.Millisecond))

	r.Update(ship("5000"))
	waitCalled(t, g, "5000")
	r.Update(ship("5001"))
	waitCalled(t, g, "5001")

	// the stale response lands before the current one
	close(first)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, Loading, r.State().Kind)

	close(second)
	require.Eventually(t, settledOn(r, 5001), time.Second, 5*time.Millisecond)
}

func TestRacer_DebounceCollapsesRapidEdits(t *testing.T) {
	g := newGatedQuoter()
	r := New(g, WithDebounce(40*time.Millisecond))

	for _, d := range []string{"5", "50", "500", "5000"} {
		r.Update(ship(d))
		assert.Equal(t, Loading, r.State().Kind)
	}
	require.Eventually(t, settledOn(r, 5000), time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, g.callCount())

	// same input again does not re-quote
	r.Update(ship("5000"))
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, g.callCount())
}

func TestRacer_LeavingShipResetsAndDropsInFlight(t *testing.T) {
	g := newGatedQuoter()
	gate := g.gate("5000")
	r := New(g, WithDebounce(time.Millisecond))

	r.Update(ship("5000"))
	waitCalled(t, g, "5000")

	r.Update(Input{Method: purchase.ShippingPickup, Origin: "1406", Destination: "5000"})
	assert.Equal(t, Idle, r.State().Kind)

	close(gate)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, Idle, r.State().Kind)
	_, ok := r.ShippingCost()
	assert.False(t, ok)
	assert.True(t, decimal.NewFromInt(990).Equal(r.EffectiveCost(decimal.NewFromInt(990))))
}

func TestRacer_UpdateAfterStopQuotesAgain(t *testing.T) {
	g := newGatedQuoter()
	gate := g.gate("5000")
	r := New(g, WithDebounce(time.Millisecond))

	r.Update(ship("5000"))
	waitCalled(t, g, "5000")
	r.Stop()
	assert.Equal(t, Idle, r.State().Kind)

	close(gate)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, Idle, r.State().Kind)

	r.Update(ship("5000"))
	waitCalled(t, g, "5000")
	require.Eventually(t, settledOn(r, 5000), time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, g.callCount())
}

func TestRacer_NeedsBothPostalCodes(t *testing.T) {
	g := newGatedQuoter()
	r := New(g, WithDebounce(time.Millisecond))

	r.Update(Input{Method: purchase.ShippingShip, Origin: "1406", Destination: "abc"})
	s := r.State()
	assert.Equal(t, Idle, s.Kind)
	assert.Equal(t, HintNeedPostalCode, s.Hint)

	r.Update(Input{Method: purchase.ShippingShip, Destination: "5000"})
	assert.Equal(t, Idle, r.State().Kind, "no origin and no default origin")

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, g.callCount())

	r2 := New(g, WithDebounce(time.Millisecond), WithDefaultOrigin("1406"))
	r2.Update(Input{Method: purchase.ShippingShip, Destination: "5000"})
	waitCalled(t, g, "5000")
	require.Eventually(t, settledOn(r2, 5000), time.Second, 5*time.Millisecond)
}

func TestRacer_FailureDegradesToMessage(t *testing.T) {
	g := newGatedQuoter()
	g.failOn = "9999"
	r := New(g, WithDebounce(time.Millisecond))

	r.Update(ship("9999"))
	require.Eventually(t, func() bool { return r.State().Kind == Failed }, time.Second, 5*time.Millisecond)
	s := r.State()
	assert.Equal(t, MessageFailed+": No valid rate", s.Message)
	assert.Equal(t, apperrors.KindUpstreamRejected, apperrors.KindOf(s.Err))
}

func TestRacer_OnChangeSeesEveryTransition(t *testing.T) {
	var mu sync.Mutex
	var kinds []Kind
	var last atomic.Uint64
	g := newGatedQuoter()
	r := New(g, WithDebounce(time.Millisecond), WithOnChange(func(s State) {
		mu.Lock()
		kinds = append(kinds, s.Kind)
		mu.Unlock()
		last.Store(s.Seq)
	}))

	r.Update(ship("5000"))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(kinds) == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Kind{Loading, Ready}, kinds)
	assert.Equal(t, r.State().Seq, last.Load())
}

func TestRacer_MockScenario(t *testing.T) {
	r := New(shipping.MockQuoter{}, WithDebounce(time.Millisecond))
	r.Update(Input{Method: purchase.ShippingShip, Origin: "1406", Destination: "5000"})
	require.Eventually(t, settledOn(r, 7490), time.Second, 5*time.Millisecond)
	assert.Equal(t, shipping.ETA{Min: 2, Max: 5}, r.State().Quote.ETADays)
}
