package orders

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/imrishuroy/storefront-checkout/internal/apperrors"
	"github.com/imrishuroy/storefront-checkout/internal/purchase"
)

// Payload is the order document sent to the commerce platform.
type Payload struct {
	Gateway               string          `json:"gateway"`
	Status                string          `json:"status"`
	PaymentStatus         string          `json:"payment_status"`
	Customer              Customer        `json:"customer"`
	BillingAddress        PlatformAddress `json:"billing_address"`
	ShippingAddress       PlatformAddress `json:"shipping_address"`
	ShippingPickupType    string          `json:"shipping_pickup_type"`
	Shipping              string          `json:"shipping"`
	ShippingOption        string          `json:"shipping_option"`
	ShippingCostCustomer  int64           `json:"shipping_cost_customer"`
	Products              []Product       `json:"products"`
	InventoryBehaviour    string          `json:"inventory_behaviour"`
	SendConfirmationEmail bool            `json:"send_confirmation_email"`
	SendFulfillmentEmail  bool            `json:"send_fulfillment_email"`
	Payment               *PaymentInfo    `json:"payment,omitempty"`
}

type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type PlatformAddress struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Address   string `json:"address"`
	Number    string `json:"number"`
	City      string `json:"city"`
	Province  string `json:"province"`
	Zipcode   string `json:"zipcode"`
	Country   string `json:"country"`
	Phone     string `json:"phone"`
	Comment   string `json:"comment"`
}

type Product struct {
	VariantID int64  `json:"variant_id"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price,omitempty"`
}

// PaymentInfo mirrors PaymentMetadata on the wire.
type PaymentInfo struct {
	ID                string  `json:"id"`
	Status            string  `json:"status"`
	StatusDetail      string  `json:"status_detail"`
	TransactionAmount float64 `json:"transaction_amount"`
	CurrencyID        string  `json:"currency_id"`
	Installments      int     `json:"installments"`
	PaymentTypeID     string  `json:"payment_type_id"`
	PaymentMethodID   string  `json:"payment_method_id,omitempty"`
	AuthorizationCode string  `json:"authorization_code,omitempty"`
	DateApproved      string  `json:"date_approved,omitempty"`
	ExternalReference string  `json:"external_reference"`
}

// ValidateDraft checks that d can be committed as an order. Every failure is
// a validation error naming the offending field.
func ValidateDraft(d purchase.Draft) error {
	if f := d.Client.MissingField(); f != "" {
		return apperrors.Validation(f, f+" is required")
	}
	if len(d.Items) == 0 {
		return apperrors.Validation("items", "at least one item is required")
	}
	for i, it := range d.Items {
		if _, ok := numericVariant(it.VariantID); !ok {
			f := fmt.Sprintf("items[%d].variantId", i)
			return apperrors.Validation(f, f+" must be numeric")
		}
		if it.Quantity <= 0 {
			f := fmt.Sprintf("items[%d].quantity", i)
			return apperrors.Validation(f, f+" must be > 0")
		}
		if it.UnitPrice.IsNegative() {
			f := fmt.Sprintf("items[%d].unitPrice", i)
			return apperrors.Validation(f, f+" must be >= 0")
		}
	}

	switch d.ShippingMethod {
	case purchase.ShippingShip:
		if d.ShippingAddress == nil {
			return apperrors.Validation("shippingAddress", "shippingAddress is required when shipping")
		}
		if f := d.ShippingAddress.MissingField(); f != "" {
			return apperrors.Validation(f, f+" is required")
		}
	case purchase.ShippingPickup:
	default:
		return apperrors.Validation("shippingMethod", "shippingMethod must be pickup or ship")
	}

	if !d.PaymentMethod.Valid() {
		return apperrors.Validation("paymentMethod", "paymentMethod must be gateway, transfer or cash")
	}
	if !d.PaymentMethod.AllowedWith(d.ShippingMethod) {
		return apperrors.Validation("paymentMethod", "cash is only available for pickup")
	}
	if d.ShippingCost.IsNegative() {
		return apperrors.Validation("shippingCost", "shippingCost must be >= 0")
	}
	return nil
}

// BuildPayload validates req and shapes the platform document.
func BuildPayload(req CreateRequest) (Payload, error) {
	const op = "orders.build"
	d := req.Draft

	if strings.TrimSpace(req.Key) == "" {
		return Payload{}, apperrors.Validation("idempotencyKey", "idempotency key is required")
	}
	if err := ValidateDraft(d); err != nil {
		return Payload{}, err
	}

	products := make([]Product, 0, len(d.Items))
	for _, it := range d.Items {
		id, _ := numericVariant(it.VariantID)
		p := Product{VariantID: id, Quantity: it.Quantity}
		if it.UnitPrice.IsPositive() {
			p.Price = it.UnitPrice.Truncate(0).String()
		}
		products = append(products, p)
	}

	addr := purchase.PickupAddress
	if d.ShippingMethod == purchase.ShippingShip {
		addr = d.ShippingAddress.Trimmed()
	}

	c := d.Client.Trimmed()
	platformAddr := PlatformAddress{
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Address:   addr.Street,
		Number:    addr.Number,
		City:      addr.City,
		Province:  addr.Province,
		Zipcode:   addr.PostalCode,
		Country:   addr.Country,
		Phone:     c.Phone,
		Comment:   addr.Notes,
	}

	out := Payload{
		Gateway:       string(d.PaymentMethod),
		Status:        "open",
		PaymentStatus: "pending",
		Customer: Customer{
			Name:  strings.TrimSpace(c.FirstName + " " + c.LastName),
			Email: c.Email,
			Phone: c.Phone,
		},
		BillingAddress:       platformAddr,
		ShippingAddress:      platformAddr,
		ShippingPickupType:   string(d.ShippingMethod),
		Shipping:             "not-provided",
		ShippingOption:       "Envío",
		ShippingCostCustomer: d.EffectiveShippingCost().Round(0).IntPart(),
		Products:             products,
		InventoryBehaviour:   "bypass",
	}
	if d.ShippingMethod == purchase.ShippingPickup {
		out.ShippingOption = "Retiro"
	}

	if pm := req.Payment; pm != nil {
		if pm.ID == "" {
			return Payload{}, apperrors.New(apperrors.KindValidation, op, "payment metadata without payment id", nil)
		}
		out.PaymentStatus = "paid"
		out.Payment = &PaymentInfo{
			ID:                pm.ID,
			Status:            pm.Status,
			StatusDetail:      pm.StatusDetail,
			TransactionAmount: pm.Amount.InexactFloat64(),
			CurrencyID:        pm.Currency,
			Installments:      pm.Installments,
			PaymentTypeID:     pm.PaymentType,
			PaymentMethodID:   pm.PaymentMethod,
			AuthorizationCode: pm.AuthorizationCode,
			DateApproved:      pm.DateApproved,
			ExternalReference: req.ExternalReference(),
		}
	}
	return out, nil
}

func numericVariant(n json.Number) (int64, bool) {
	s := strings.TrimSpace(string(n))
	if s == "" {
		return 0, false
	}
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return id, id > 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || !(f >= 1 && f < 1e18) {
		return 0, false
	}
	return int64(f), true
}
