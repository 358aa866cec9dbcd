package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/imrishuroy/storefront-checkout/internal/aws"
	"github.com/imrishuroy/storefront-checkout/internal/orders"
	"github.com/imrishuroy/storefront-checkout/internal/payment"
	"github.com/imrishuroy/storefront-checkout/internal/purchase"
	"github.com/imrishuroy/storefront-checkout/internal/shipping"
)

// OrderCreator commits an order under an idempotency key.
type OrderCreator interface {
	Create(ctx context.Context, req orders.CreateRequest) (*orders.OrderRef, error)
}

// CardPayer verifies a card payment and commits its order.
type CardPayer interface {
	PayAndCommit(ctx context.Context, req payment.CardCheckout) (*payment.Result, error)
}

// PaymentVerifier verifies a card payment without committing an order.
type PaymentVerifier interface {
	Verify(ctx context.Context, s payment.Submission, exp payment.Expected) (*payment.VerifiedPayment, error)
}

// HandlerConfig groups dependencies for the API routes.
type HandlerConfig struct {
	Quoter       shipping.Quoter
	QuoteLimiter *IPRateLimiter
	Verifier     PaymentVerifier
	Cards        CardPayer
	Orders       OrderCreator
	Metrics      aws.Counter
	// Currency fills order drafts that don't name one.
	Currency string
	Logger   zerolog.Logger
}

func (cfg HandlerConfig) withDefaults() HandlerConfig {
	if cfg.Metrics == nil {
		cfg.Metrics = aws.NopCounter{}
	}
	if cfg.Currency == "" {
		cfg.Currency = purchase.DefaultCurrency
	}
	return cfg
}

// RegisterRoutes registers the quote, card payment and order routes.
func RegisterRoutes(r *gin.Engine, cfg HandlerConfig) {
	cfg = cfg.withDefaults()
	RegisterQuoteRoutes(r, cfg)
	RegisterPaymentRoutes(r, cfg)
	RegisterOrdersRoutes(r, cfg)
}

// errorBody is the common failure shape.
func errorBody(code string, extra gin.H) gin.H {
	out := gin.H{"ok": false, "error": code}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
