package validation

import (
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/storefront-checkout/internal/purchase"
)

// New returns a configured validator with the struct-level rules registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	v.RegisterStructValidation(createOrderStructValidation, CreateOrderRequest{})
	v.RegisterStructValidation(itemStructValidation, Item{})
	v.RegisterStructValidation(cardDataStructValidation, CardData{})
	v.RegisterStructValidation(cardPaymentStructValidation, CardPaymentRequest{})

	return v
}

// createOrderStructValidation enforces cross-field rules: shipping needs an
// address, cash is pickup-only, shipping cost is never negative.
func createOrderStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CreateOrderRequest)

	method := req.shippingMethod()
	if method == purchase.ShippingShip && req.ShippingAddress == nil {
		sl.ReportError(req.ShippingAddress, "shippingAddress", "ShippingAddress", "required_for_ship", "")
	}
	if purchase.PaymentMethod(req.PaymentMethod) == purchase.PaymentCash && method != purchase.ShippingPickup {
		sl.ReportError(req.PaymentMethod, "paymentMethod", "PaymentMethod", "cash_requires_pickup", "")
	}
	if req.ShippingCost.IsNegative() {
		sl.ReportError(req.ShippingCost, "shippingCost", "ShippingCost", "gte", "0")
	}
}

func itemStructValidation(sl validatorv10.StructLevel) {
	it := sl.Current().Interface().(Item)
	if it.UnitPrice != nil && it.UnitPrice.IsNegative() {
		sl.ReportError(it.UnitPrice, "unitPrice", "UnitPrice", "gte", "0")
	}
}

func cardDataStructValidation(sl validatorv10.StructLevel) {
	cd := sl.Current().Interface().(CardData)
	if !cd.TransactionAmount.IsPositive() {
		sl.ReportError(cd.TransactionAmount, "transaction_amount", "TransactionAmount", "gt", "0")
	}
}

// cardPaymentStructValidation rejects a blank external reference.
func cardPaymentStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CardPaymentRequest)
	if req.ExternalReference != "" && strings.TrimSpace(req.ExternalReference) == "" {
		sl.ReportError(req.ExternalReference, "external_reference", "ExternalReference", "required", "")
	}
}
