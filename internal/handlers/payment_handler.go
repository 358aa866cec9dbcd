package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/storefront-checkout/internal/apperrors"
	"github.com/imrishuroy/storefront-checkout/internal/payment"
	"github.com/imrishuroy/storefront-checkout/internal/purchase"
	"github.com/imrishuroy/storefront-checkout/internal/validation"
)

// RegisterPaymentRoutes registers POST /payments/card.
func RegisterPaymentRoutes(r *gin.Engine, cfg HandlerConfig) {
	cfg = cfg.withDefaults()
	v := validation.New()
	log := cfg.Logger.With().Str("component", "payment_handler").Logger()

	r.POST("/payments/card", func(c *gin.Context) {
		ctx := c.Request.Context()

		var req validation.CardPaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorBody("invalid_request_body", gin.H{"msg": err.Error()}))
			return
		}
		if err := v.Struct(req); err != nil {
			fields := validation.FieldErrors(err)
			code := "validation_failed"
			switch {
			case validation.HasPrefix(fields, "CardPaymentRequest.CardData."):
				code = "missing_card_data"
			case validation.HasPrefix(fields, "CardPaymentRequest.ExternalReference"):
				code = "external_reference_required"
			}
			c.JSON(http.StatusBadRequest, errorBody(code, gin.H{"fields": fields}))
			return
		}

		sub := payment.Submission{
			Card:              req.Card(),
			ExternalReference: strings.TrimSpace(req.ExternalReference),
			Description:       req.Description,
			Metadata:          req.Metadata,
		}
		var draft *purchase.Draft
		if req.Order != nil {
			d := req.Order.ToDraft()
			if d.Currency == "" {
				d.Currency = cfg.Currency
			}
			draft = &d
		}
		exp := resolveExpected(draft, req)

		// no draft, nothing to commit: verify only
		if draft == nil {
			vp, err := cfg.Verifier.Verify(ctx, sub, exp)
			if err != nil {
				status, body := paymentErrorBody(err)
				c.JSON(status, body)
				return
			}
			c.JSON(http.StatusOK, gin.H{"ok": true, "payment": paymentSummary(vp.ID, vp.Status, vp.StatusDetail), "orderRef": nil})
			return
		}

		res, err := cfg.Cards.PayAndCommit(ctx, payment.CardCheckout{Submission: sub, Expected: exp, Draft: *draft})
		if err != nil {
			status, body := paymentErrorBody(err)
			log.Warn().Err(err).Str("external_reference", sub.ExternalReference).Int("status", status).Msg("card checkout failed")
			c.JSON(status, body)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"ok":       true,
			"payment":  paymentSummary(res.Payment.ID, res.Payment.Status, res.Payment.StatusDetail),
			"orderRef": res.Order,
		})
	})
}

func resolveExpected(draft *purchase.Draft, req validation.CardPaymentRequest) payment.Expected {
	var e validation.Expected
	if req.Expected != nil {
		e = *req.Expected
	}
	return payment.ResolveExpected(draft, e.Amount, e.Currency, e.Installments, req.Card())
}

func paymentSummary(id, status, detail string) gin.H {
	return gin.H{"id": id, "status": status, "status_detail": detail}
}

func paymentErrorBody(err error) (int, gin.H) {
	var oe *payment.OrderError
	if errors.As(err, &oe) {
		return http.StatusBadGateway, errorBody("store_order_create_failed", gin.H{
			"details": oe.Err.Error(),
			"payment": paymentSummary(oe.Payment.ID, oe.Payment.Status, oe.Payment.StatusDetail),
		})
	}

	var pe *payment.Error
	if errors.As(err, &pe) {
		extra := gin.H{}
		if pe.Expected != "" || pe.Got != "" {
			extra["expected"] = pe.Expected
			extra["got"] = pe.Got
		}
		if p := pe.Payment; p != nil && p.ID != "" {
			extra["payment"] = paymentSummary(p.ID, p.Status, p.StatusDetail)
		}
		if len(pe.Details) > 0 {
			extra["details"] = pe.Details
		}
		return pe.HTTPStatus(), errorBody(pe.Code(), extra)
	}

	var ae *apperrors.Error
	if errors.As(err, &ae) && ae.Kind == apperrors.KindValidation {
		code := "validation_failed"
		if ae.Field == "external_reference" {
			code = "external_reference_required"
		}
		return http.StatusBadRequest, errorBody(code, gin.H{"field": ae.Field})
	}
	return apperrors.HTTPStatus(apperrors.KindOf(err)), errorBody("payment_failed", nil)
}
