package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/storefront-checkout/internal/apperrors"
	"github.com/imrishuroy/storefront-checkout/internal/aws"
	"github.com/imrishuroy/storefront-checkout/internal/shipping"
	"github.com/imrishuroy/storefront-checkout/internal/validation"
)

// RegisterQuoteRoutes registers POST /shipping/quote.
func RegisterQuoteRoutes(r *gin.Engine, cfg HandlerConfig) {
	cfg = cfg.withDefaults()
	v := validation.New()
	log := cfg.Logger.With().Str("component", "quote_handler").Logger()

	r.POST("/shipping/quote", RateLimit(cfg.QuoteLimiter), func(c *gin.Context) {
		ctx := c.Request.Context()

		var req validation.QuoteRequest
		if err := validation.BindAndValidate(c, &req, v, http.StatusBadRequest); err != nil {
			return
		}

		q, err := cfg.Quoter.Quote(ctx, req.ToShipping())
		if err != nil {
			outcome := "error"
			if apperrors.Is(err, apperrors.KindUnavailable) {
				outcome = "unavailable"
			}
			cfg.Metrics.Count(ctx, aws.MetricQuoteResult, outcome)

			status, body := quoteErrorBody(err)
			log.Warn().Err(err).Int("status", status).Msg("quote failed")
			c.JSON(status, body)
			return
		}

		cfg.Metrics.Count(ctx, aws.MetricQuoteResult, "ok")
		c.JSON(http.StatusOK, quoteBody(q))
	})
}

func quoteErrorBody(err error) (int, gin.H) {
	var qe *shipping.QuoteError
	if errors.As(err, &qe) {
		status := qe.Status
		if status == 0 {
			status = http.StatusBadGateway
		}
		body := gin.H{"ok": false, "provider": qe.Provider, "message": qe.Message, "status": status}
		if len(qe.Raw) > 0 {
			body["raw"] = qe.Raw
		}
		return status, body
	}
	status := apperrors.HTTPStatus(apperrors.KindOf(err))
	return status, gin.H{"ok": false, "message": "Quote request failed", "status": status}
}

func quoteBody(q *shipping.Quote) gin.H {
	lines := make([]gin.H, 0, len(q.Breakdown))
	for _, l := range q.Breakdown {
		lines = append(lines, gin.H{"label": l.Label, "amount": l.Amount.InexactFloat64()})
	}
	return gin.H{
		"ok":           true,
		"provider":     q.Provider,
		"currency":     q.Currency,
		"total":        q.Total.InexactFloat64(),
		"breakdown":    lines,
		"serviceType":  q.ServiceType,
		"deliveryType": q.DeliveryType,
		"etaDays":      q.ETADays,
	}
}
