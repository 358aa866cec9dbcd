package checkout

import "errors"

// Guard failures returned by Session transitions.
var (
	ErrBusy               = errors.New("checkout: an order or payment is in flight")
	ErrCartEmpty          = errors.New("checkout: cart is empty")
	ErrBelowMinimum       = errors.New("checkout: subtotal below minimum purchase")
	ErrIncompleteClient   = errors.New("checkout: client data incomplete")
	ErrIncompleteShipping = errors.New("checkout: shipping data incomplete")
	ErrNoPaymentMethod    = errors.New("checkout: no payment method selected")
	ErrCashRequiresPickup = errors.New("checkout: cash is only available for pickup")
	ErrInvalidDraft       = errors.New("checkout: draft cannot be committed")
	ErrWrongStage         = errors.New("checkout: transition not allowed from this stage")
	ErrNotConfigured      = errors.New("checkout: collaborator not configured")
)
