package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/storefront-checkout/internal/apperrors"
	"github.com/imrishuroy/storefront-checkout/internal/orders"
	"github.com/imrishuroy/storefront-checkout/internal/payment"
	"github.com/imrishuroy/storefront-checkout/internal/purchase"
)

// Stage is the outer checkout stage.
type Stage string

const (
	StageCart     Stage = "cart"
	StageCheckout Stage = "checkout"
	StageConfirm  Stage = "confirm"
)

// ConfirmStage is the step inside StageConfirm.
type ConfirmStage string

const (
	ConfirmNone     ConfirmStage = ""
	ConfirmReview   ConfirmStage = "review"
	ConfirmGateway  ConfirmStage = "gateway"
	ConfirmTransfer ConfirmStage = "transfer"
	ConfirmCash     ConfirmStage = "cash"
	ConfirmSuccess  ConfirmStage = "success"
	ConfirmError    ConfirmStage = "error"
)

const (
	MessageTransfer = "order placed, pay by bank transfer to complete it"
	MessageCash     = "order placed, pay in cash when you pick it up"
	MessageSuccess  = "payment approved, order confirmed"
)

// OrderCreator commits transfer and cash orders.
type OrderCreator interface {
	Create(ctx context.Context, req orders.CreateRequest) (*orders.OrderRef, error)
}

// CardPayer verifies a card payment and commits its order.
type CardPayer interface {
	PayAndCommit(ctx context.Context, req payment.CardCheckout) (*payment.Result, error)
}

// ShippingCostSource supplies the quoted shipping cost, if one is displayed.
type ShippingCostSource interface {
	ShippingCost() (decimal.Decimal, bool)
}

// Config holds store-wide checkout rules.
type Config struct {
	// MinimumPurchase is the smallest subtotal allowed into checkout. Zero disables it.
	MinimumPurchase decimal.Decimal
	Currency        string
}

// View is a read-only snapshot of a session.
type View struct {
	Stage    Stage
	Confirm  ConfirmStage
	Placing  bool
	Total    decimal.Decimal
	Message  string
	OrderKey string
	Order    *orders.OrderRef
	Payment  *payment.VerifiedPayment
	Err      error
}

// Session drives one purchaser through cart, checkout and confirm.
// The lock is released during order and payment calls; the placing flag
// refuses every transition until they return.
type Session struct {
	cfg      Config
	orders   OrderCreator
	cards    CardPayer
	shipping ShippingCostSource
	newKey   func() string
	log      zerolog.Logger

	mu       sync.Mutex
	placing  bool
	stage    Stage
	confirm  ConfirmStage
	cart     []purchase.Item
	draft    purchase.Draft
	snapshot *purchase.Draft
	orderKey string
	orderRef *orders.OrderRef
	payment  *payment.VerifiedPayment
	message  string
	lastErr  error
}

type Option func(*Session)

func WithOrders(o OrderCreator) Option { return func(s *Session) { s.orders = o } }

func WithCardPayer(c CardPayer) Option { return func(s *Session) { s.cards = c } }

func WithShippingCostSource(src ShippingCostSource) Option {
	return func(s *Session) { s.shipping = src }
}

// WithKeyFunc replaces the order key generator.
func WithKeyFunc(fn func() string) Option { return func(s *Session) { s.newKey = fn } }

func WithLogger(l zerolog.Logger) Option { return func(s *Session) { s.log = l } }

func NewSession(cfg Config, opts ...Option) *Session {
	if cfg.Currency == "" {
		cfg.Currency = purchase.DefaultCurrency
	}
	s := &Session{
		cfg:    cfg,
		newKey: uuid.NewString,
		log:    zerolog.Nop(),
		stage:  StageCart,
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With().Str("component", "checkout_session").Logger()
	return s
}

// View returns the current state.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		Stage:    s.stage,
		Confirm:  s.confirm,
		Placing:  s.placing,
		Total:    s.totalLocked(),
		Message:  s.message,
		OrderKey: s.orderKey,
		Order:    s.orderRef,
		Payment:  s.payment,
		Err:      s.lastErr,
	}
}

// DisplayTotal is items only in the cart, items plus shipping afterwards.
func (s *Session) DisplayTotal() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalLocked()
}

// ParcelWeight is the weight in grams to quote the current cart with.
func (s *Session) ParcelWeight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return purchase.ParcelWeight(s.cart)
}

func (s *Session) totalLocked() decimal.Decimal {
	switch s.stage {
	case StageCheckout:
		return purchase.Subtotal(s.cart).Add(s.shippingCostLocked())
	case StageConfirm:
		if s.snapshot != nil {
			return s.snapshot.Total()
		}
	}
	return purchase.Subtotal(s.cart)
}

// shippingCostLocked is the quote if one is displayed, else the listed price.
func (s *Session) shippingCostLocked() decimal.Decimal {
	if s.draft.ShippingMethod != purchase.ShippingShip {
		return decimal.Zero
	}
	if s.shipping != nil {
		if c, ok := s.shipping.ShippingCost(); ok {
			return c
		}
	}
	return s.draft.ShippingCost
}

// --- cart ---

// SetCart replaces the live cart. A draft already in confirm keeps its snapshot.
func (s *Session) SetCart(items []purchase.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.placing {
		return ErrBusy
	}
	s.cart = purchase.CloneItems(items)
	s.cartChangedLocked()
	return nil
}

// AddItem adds quantity to a variant already in the cart, or appends it.
func (s *Session) AddItem(it purchase.Item) error {
	if it.Quantity < 1 {
		return apperrors.Validation("quantity", "quantity must be >= 1")
	}
	if it.UnitPrice.IsNegative() {
		return apperrors.Validation("unitPrice", "unitPrice must be >= 0")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.placing {
		return ErrBusy
	}
	for i := range s.cart {
		if s.cart[i].VariantID == it.VariantID {
			s.cart[i].Quantity += it.Quantity
			return nil
		}
	}
	s.cart = append(s.cart, it)
	return nil
}

// RemoveItem drops a variant from the cart.
func (s *Session) RemoveItem(variantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.placing {
		return ErrBusy
	}
	out := s.cart[:0]
	for _, it := range s.cart {
		if it.VariantID.String() != variantID {
			out = append(out, it)
		}
	}
	s.cart = out
	s.cartChangedLocked()
	return nil
}

func (s *Session) cartChangedLocked() {
	if s.stage == StageCheckout && len(s.cart) == 0 {
		s.stage = StageCart
	}
}

// ProceedToCheckout enters the checkout stage.
func (s *Session) ProceedToCheckout() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.placing {
		return ErrBusy
	}
	if s.stage != StageCart {
		return ErrWrongStage
	}
	if err := s.cartReadyLocked(); err != nil {
		return err
	}
	s.stage = StageCheckout
	return nil
}

func (s *Session) cartReadyLocked() error {
	if len(s.cart) == 0 {
		return ErrCartEmpty
	}
	if s.cfg.MinimumPurchase.IsPositive() && purchase.Subtotal(s.cart).LessThan(s.cfg.MinimumPurchase) {
		return ErrBelowMinimum
	}
	return nil
}

// --- checkout details ---

func (s *Session) SetClient(c purchase.Client) error {
	return s.editDraft(func(d *purchase.Draft) error {
		d.Client = c
		return nil
	})
}

// SetShippingMethod switches pickup/ship. Ship drops a cash selection back to
// transfer; pickup zeroes the shipping cost.
func (s *Session) SetShippingMethod(m purchase.ShippingMethod) error {
	if m != purchase.ShippingPickup && m != purchase.ShippingShip {
		return apperrors.Validation("shippingMethod", "shippingMethod must be pickup or ship")
	}
	return s.editDraft(func(d *purchase.Draft) error {
		d.ShippingMethod = m
		switch m {
		case purchase.ShippingShip:
			if d.PaymentMethod == purchase.PaymentCash {
				d.PaymentMethod = purchase.PaymentTransfer
			}
		case purchase.ShippingPickup:
			d.ShippingCost = decimal.Zero
		}
		return nil
	})
}

func (s *Session) SetShippingAddress(a purchase.Address) error {
	return s.editDraft(func(d *purchase.Draft) error {
		d.ShippingAddress = &a
		return nil
	})
}

// SetShippingCost stores a listed carrier price, used when no quote is displayed.
func (s *Session) SetShippingCost(cost decimal.Decimal) error {
	if cost.IsNegative() {
		return apperrors.Validation("shippingCost", "shippingCost must be >= 0")
	}
	return s.editDraft(func(d *purchase.Draft) error {
		if d.ShippingMethod == purchase.ShippingShip {
			d.ShippingCost = cost
		}
		return nil
	})
}

// SelectPaymentMethod rejects cash while shipping.
func (s *Session) SelectPaymentMethod(m purchase.PaymentMethod) error {
	if !m.Valid() {
		return apperrors.Validation("paymentMethod", "unknown payment method")
	}
	return s.editDraft(func(d *purchase.Draft) error {
		if !m.AllowedWith(d.ShippingMethod) {
			return ErrCashRequiresPickup
		}
		d.PaymentMethod = m
		return nil
	})
}

func (s *Session) editDraft(fn func(*purchase.Draft) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.placing {
		return ErrBusy
	}
	if s.stage != StageCheckout {
		return ErrWrongStage
	}
	return fn(&s.draft)
}

// OpenConfirm freezes the draft and opens the review step with a new order key.
func (s *Session) OpenConfirm() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.placing {
		return ErrBusy
	}
	if s.stage != StageCheckout {
		return ErrWrongStage
	}
	if err := s.cartReadyLocked(); err != nil {
		return err
	}
	d := s.draft
	if f := d.Client.MissingField(); f != "" {
		return fmt.Errorf("%w: %s", ErrIncompleteClient, f)
	}
	if !d.ShippingComplete() {
		field := "shippingMethod"
		if d.ShippingMethod == purchase.ShippingShip {
			field = "shippingAddress"
			if d.ShippingAddress != nil {
				field = d.ShippingAddress.MissingField()
			}
		}
		return fmt.Errorf("%w: %s", ErrIncompleteShipping, field)
	}
	if !d.PaymentMethod.Valid() {
		return ErrNoPaymentMethod
	}
	if !d.PaymentMethod.AllowedWith(d.ShippingMethod) {
		return ErrCashRequiresPickup
	}

	snap := d.Clone()
	snap.Items = purchase.CloneItems(s.cart)
	snap.ShippingCost = s.shippingCostLocked()
	snap.Currency = s.cfg.Currency
	if err := orders.ValidateDraft(snap); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDraft, err)
	}
	s.snapshot = &snap
	s.orderKey = s.newKey()
	s.orderRef = nil
	s.payment = nil
	s.lastErr = nil
	s.message = ""
	s.stage = StageConfirm
	s.confirm = ConfirmReview
	s.log.Info().Str("external_reference", s.orderKey).Str("payment_method", string(snap.PaymentMethod)).Msg("confirm opened")
	return nil
}

// --- confirm ---

// PlaceOrder leaves review. The gateway method moves to the card step without
// creating an order; transfer and cash commit the order now.
func (s *Session) PlaceOrder(ctx context.Context) error {
	s.mu.Lock()
	if s.placing {
		s.mu.Unlock()
		return ErrBusy
	}
	if s.stage != StageConfirm || s.confirm != ConfirmReview || s.snapshot == nil {
		s.mu.Unlock()
		return ErrWrongStage
	}
	if s.snapshot.PaymentMethod == purchase.PaymentGateway {
		s.confirm = ConfirmGateway
		s.mu.Unlock()
		return nil
	}
	if s.orders == nil {
		s.mu.Unlock()
		return ErrNotConfigured
	}
	s.placing = true
	req := orders.CreateRequest{Key: s.orderKey, Draft: s.snapshot.Clone()}
	s.mu.Unlock()

	ref, err := s.orders.Create(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.placing = false
	if err != nil {
		s.failLocked(err)
		return err
	}
	s.orderRef = ref
	if req.Draft.PaymentMethod == purchase.PaymentCash {
		s.confirm, s.message = ConfirmCash, MessageCash
	} else {
		s.confirm, s.message = ConfirmTransfer, MessageTransfer
	}
	s.log.Info().Str("external_reference", req.Key).Str("order_id", ref.ID).Msg("order placed")
	return nil
}

// SubmitCard pays the frozen draft with a tokenized card. Success clears the cart.
func (s *Session) SubmitCard(ctx context.Context, card payment.CardData) error {
	s.mu.Lock()
	if s.placing {
		s.mu.Unlock()
		return ErrBusy
	}
	if s.stage != StageConfirm || s.confirm != ConfirmGateway || s.snapshot == nil {
		s.mu.Unlock()
		return ErrWrongStage
	}
	if s.cards == nil {
		s.mu.Unlock()
		return ErrNotConfigured
	}
	s.placing = true
	draft := s.snapshot.Clone()
	req := payment.CardCheckout{
		Submission: payment.Submission{Card: card, ExternalReference: s.orderKey},
		Expected:   payment.ResolveExpected(&draft, decimal.NullDecimal{}, draft.CurrencyOrDefault(), card.Installments, card),
		Draft:      draft,
	}
	s.mu.Unlock()

	res, err := s.cards.PayAndCommit(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.placing = false
	if res != nil {
		s.payment = res.Payment
	}
	if err != nil {
		s.failLocked(err)
		return err
	}
	s.orderRef = res.Order
	s.succeedLocked(MessageSuccess)
	return nil
}

// Finish acknowledges a transfer or cash order.
func (s *Session) Finish() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.placing {
		return ErrBusy
	}
	if s.stage != StageConfirm || (s.confirm != ConfirmTransfer && s.confirm != ConfirmCash) {
		return ErrWrongStage
	}
	s.succeedLocked(s.message)
	return nil
}

// Retry goes from error back to review, keeping the snapshot and order key.
func (s *Session) Retry() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.placing {
		return ErrBusy
	}
	if s.stage != StageConfirm || s.confirm != ConfirmError {
		return ErrWrongStage
	}
	s.confirm = ConfirmReview
	s.lastErr = nil
	s.message = ""
	return nil
}

// BackToCheckout leaves review (or an idle card step) to edit the draft.
// The snapshot and order key are dropped.
func (s *Session) BackToCheckout() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.placing {
		return ErrBusy
	}
	if s.stage != StageConfirm || (s.confirm != ConfirmReview && s.confirm != ConfirmGateway) {
		return ErrWrongStage
	}
	s.dropConfirmLocked()
	s.stage = StageCheckout
	s.cartChangedLocked()
	return nil
}

// Abandon goes from error back to the cart.
func (s *Session) Abandon() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.placing {
		return ErrBusy
	}
	if s.stage != StageConfirm || s.confirm != ConfirmError {
		return ErrWrongStage
	}
	s.dropConfirmLocked()
	s.stage = StageCart
	return nil
}

// Close dismisses the checkout. Before confirm it resets the draft; a placed
// transfer or cash order is finished first. Refused while placing.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.placing {
		return ErrBusy
	}
	if s.stage == StageConfirm && (s.confirm == ConfirmTransfer || s.confirm == ConfirmCash) {
		s.succeedLocked(s.message)
	}
	s.dropConfirmLocked()
	s.draft = purchase.Draft{}
	s.stage = StageCart
	return nil
}

func (s *Session) failLocked(err error) {
	s.confirm = ConfirmError
	s.lastErr = err
	s.message = userMessage(err)
	s.log.Warn().Err(err).Str("external_reference", s.orderKey).Msg("confirm failed")
}

func (s *Session) succeedLocked(msg string) {
	s.confirm = ConfirmSuccess
	s.message = msg
	s.cart = nil
	s.draft = purchase.Draft{}
	s.snapshot = nil
}

func (s *Session) dropConfirmLocked() {
	s.confirm = ConfirmNone
	s.snapshot = nil
	s.orderKey = ""
	s.orderRef = nil
	s.payment = nil
	s.lastErr = nil
	s.message = ""
}

func userMessage(err error) string {
	var pe *payment.Error
	if errors.As(err, &pe) {
		switch pe.Reason {
		case payment.ReasonNotApproved:
			return "the payment was not approved"
		case payment.ReasonUnreachable:
			return "the payment service did not answer, try again"
		case payment.ReasonCurrencyMismatch, payment.ReasonAmountMismatch, payment.ReasonInstallmentsMismatch:
			return "the payment did not match the order"
		}
		return "the payment could not be processed"
	}
	var oe *payment.OrderError
	if errors.As(err, &oe) {
		return "the payment was approved but the order could not be created"
	}
	switch apperrors.KindOf(err) {
	case apperrors.KindValidation:
		return err.Error()
	case apperrors.KindUpstreamTimeout, apperrors.KindUnavailable:
		return "the store did not answer, try again"
	}
	return "the order could not be created"
}
