// Package quoteracer keeps a displayed shipping quote in step with the latest
// checkout input. Requests are debounced and tagged with a sequence number;
// a response is applied only if its tag is still the latest one issued.
package quoteracer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/storefront-checkout/internal/purchase"
	"github.com/imrishuroy/storefront-checkout/internal/shipping"
)

const (
	DefaultDebounce = 450 * time.Millisecond
	DefaultTimeout  = 15 * time.Second
)

// Hints and messages shown while no quote is displayed.
const (
	HintNeedPostalCode = "enter a postal code to calculate shipping"
	MessageFailed      = "couldn't calculate shipping"
)

// Kind is the racer's display state.
type Kind int

const (
	Idle Kind = iota
	Loading
	Ready
	Failed
)

func (k Kind) String() string {
	switch k {
	case Loading:
		return "loading"
	case Ready:
		return "ok"
	case Failed:
		return "error"
	}
	return "idle"
}

// Input is everything that can change the quote.
type Input struct {
	Method       purchase.ShippingMethod
	Origin       string
	Destination  string
	WeightGrams  int
	DeliveryKind shipping.DeliveryKind
}

// State is a snapshot of what the checkout should display.
type State struct {
	Kind        Kind
	Hint        string
	Origin      string
	Destination string
	Quote       *shipping.Quote
	Message     string
	Err         error
	// Seq is the tag the state belongs to.
	Seq uint64
}

// Racer is safe for concurrent use.
type Racer struct {
	quoter        shipping.Quoter
	debounce      time.Duration
	timeout       time.Duration
	defaultOrigin string
	onChange      func(State)
	log           zerolog.Logger

	mu      sync.Mutex
	seq     uint64
	timer   *time.Timer
	pending shipping.Request
	state   State
}

type Option func(*Racer)

func WithDebounce(d time.Duration) Option { return func(r *Racer) { r.debounce = d } }

func WithTimeout(d time.Duration) Option { return func(r *Racer) { r.timeout = d } }

// WithDefaultOrigin is used when an input has no origin postal code.
func WithDefaultOrigin(code string) Option { return func(r *Racer) { r.defaultOrigin = code } }

// WithOnChange registers a callback run, outside the racer's lock, after every
// state transition.
func WithOnChange(fn func(State)) Option { return func(r *Racer) { r.onChange = fn } }

func WithLogger(l zerolog.Logger) Option { return func(r *Racer) { r.log = l } }

func New(q shipping.Quoter, opts ...Option) *Racer {
	r := &Racer{
		quoter:   q,
		debounce: DefaultDebounce,
		timeout:  DefaultTimeout,
		log:      zerolog.Nop(),
	}
	for _, o := range opts {
		o(r)
	}
	r.log = r.log.With().Str("component", "quote_racer").Logger()
	return r
}

// State returns the current snapshot.
func (r *Racer) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// ShippingCost returns the displayed quote total, if a quote is displayed.
func (r *Racer) ShippingCost() (decimal.Decimal, bool) {
	s := r.State()
	if s.Kind != Ready || s.Quote == nil {
		return decimal.Zero, false
	}
	return s.Quote.Total, true
}

// EffectiveCost is the displayed quote total, else fallback.
func (r *Racer) EffectiveCost(fallback decimal.Decimal) decimal.Decimal {
	if c, ok := r.ShippingCost(); ok {
		return c
	}
	return fallback
}

// Update feeds a new input. Every relevant change invalidates the tag of any
// request in flight, so its response can never be displayed.
func (r *Racer) Update(in Input) {
	r.mu.Lock()

	if in.Method != purchase.ShippingShip {
		r.resetLocked("")
		s := r.state
		r.mu.Unlock()
		r.notify(s)
		return
	}

	req := shipping.Normalize(shipping.Request{
		Origin:       in.Origin,
		Destination:  in.Destination,
		WeightGrams:  in.WeightGrams,
		DeliveryKind: in.DeliveryKind,
	}, r.defaultOrigin)
	if req.Origin == "" || req.Destination == "" {
		r.resetLocked(HintNeedPostalCode)
		s := r.state
		r.mu.Unlock()
		r.notify(s)
		return
	}

	// same request as the one loading or displayed
	if (r.state.Kind == Loading || r.state.Kind == Ready) && req == r.pending {
		r.mu.Unlock()
		return
	}

	r.seq++
	tag := r.seq
	r.pending = req
	r.stopTimerLocked()
	r.state = State{Kind: Loading, Origin: req.Origin, Destination: req.Destination, Seq: tag}
	r.timer = time.AfterFunc(r.debounce, func() { r.fire(tag, req) })
	s := r.state
	r.mu.Unlock()
	r.notify(s)
}

// Stop cancels any pending request, drops in-flight responses and returns
// the racer to idle, so a later Update quotes again.
func (r *Racer) Stop() {
	r.mu.Lock()
	r.resetLocked("")
	r.mu.Unlock()
}

func (r *Racer) resetLocked(hint string) {
	r.stopTimerLocked()
	r.seq++
	r.pending = shipping.Request{}
	r.state = State{Kind: Idle, Hint: hint, Seq: r.seq}
}

func (r *Racer) stopTimerLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Racer) fire(tag uint64, req shipping.Request) {
	r.mu.Lock()
	stale := tag != r.seq
	r.mu.Unlock()
	if stale {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	q, err := r.quoter.Quote(ctx, req)
	cancel()

	r.mu.Lock()
	if tag != r.seq {
		r.mu.Unlock()
		r.log.Debug().Uint64("seq", tag).Str("destination", req.Destination).Msg("dropping stale quote")
		return
	}
	next := State{Origin: req.Origin, Destination: req.Destination, Seq: tag}
	if err != nil {
		next.Kind = Failed
		next.Message = MessageFailed
		next.Err = err
		var qe *shipping.QuoteError
		if errors.As(err, &qe) && qe.Message != "" {
			next.Message = MessageFailed + ": " + qe.Message
		}
	} else {
		next.Kind = Ready
		next.Quote = q
	}
	r.state = next
	r.mu.Unlock()

	if err != nil {
		r.log.Warn().Err(err).Str("destination", req.Destination).Msg("quote failed")
	}
	r.notify(next)
}

func (r *Racer) notify(s State) {
	if r.onChange != nil {
		r.onChange(s)
	}
}
