package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/storefront-checkout/internal/apperrors"
	"github.com/imrishuroy/storefront-checkout/internal/orders"
	"github.com/imrishuroy/storefront-checkout/internal/validation"
)

// RegisterOrdersRoutes registers POST /orders.
func RegisterOrdersRoutes(r *gin.Engine, cfg HandlerConfig) {
	cfg = cfg.withDefaults()
	v := validation.New()
	log := cfg.Logger.With().Str("component", "orders_handler").Logger()

	r.POST("/orders", func(c *gin.Context) {
		ctx := c.Request.Context()

		// Require idempotency key header
		key := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		if key == "" {
			c.JSON(http.StatusBadRequest, errorBody("missing_idempotency_key", nil))
			return
		}

		var req validation.CreateOrderRequest
		if err := validation.BindAndValidate(c, &req, v, http.StatusUnprocessableEntity); err != nil {
			return
		}

		draft := req.ToDraft()
		if draft.Currency == "" {
			draft.Currency = cfg.Currency
		}

		ref, err := cfg.Orders.Create(ctx, orders.CreateRequest{Key: key, Draft: draft})
		if err != nil {
			status, body := orderErrorBody(err)
			log.Warn().Err(err).Str("idempotency_key", key).Int("status", status).Msg("order create failed")
			c.JSON(status, body)
			return
		}

		c.Header("Location", fmt.Sprintf("/orders/%s", ref.ID))
		c.JSON(http.StatusCreated, gin.H{"ok": true, "order": ref})
	})
}

func orderErrorBody(err error) (int, gin.H) {
	status := apperrors.HTTPStatus(apperrors.KindOf(err))

	var ce *orders.ConflictError
	if errors.As(err, &ce) {
		return status, errorBody("idempotency_conflict", gin.H{"recorded": ce.Recorded, "returned": ce.Returned})
	}
	var ae *apperrors.Error
	if errors.As(err, &ae) {
		extra := gin.H{"message": ae.Msg}
		if ae.Field != "" {
			extra["field"] = ae.Field
		}
		return status, errorBody(ae.Kind.String(), extra)
	}
	var pe *orders.PlatformError
	if errors.As(err, &pe) {
		return status, errorBody("store_order_create_failed", gin.H{"status": pe.Status, "details": pe.Body})
	}
	return status, errorBody("order_create_failed", nil)
}
