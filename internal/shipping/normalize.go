package shipping

import "strings"

const (
	maxPostalCodeLen   = 8
	defaultWeightGrams = 100
)

// NormalizePostalCode keeps the digits of s, at most eight of them.
func NormalizePostalCode(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			if b.Len() == maxPostalCodeLen {
				break
			}
		}
	}
	return b.String()
}

// NormalizeWeight floors unset or invalid weights to 100g, never below 1g.
func NormalizeWeight(grams int) int {
	if grams <= 0 {
		return defaultWeightGrams
	}
	return max(1, grams)
}

// NormalizeDeliveryKind collapses anything that isn't agency to home delivery.
func NormalizeDeliveryKind(k DeliveryKind) DeliveryKind {
	if DeliveryKind(strings.ToLower(strings.TrimSpace(string(k)))) == Agency {
		return Agency
	}
	return HomeDelivery
}

// DeliveryKindFromCode maps the carrier's deliveredType code ("S" agency, "D" home).
func DeliveryKindFromCode(code string) DeliveryKind {
	if strings.EqualFold(strings.TrimSpace(code), "S") {
		return Agency
	}
	return HomeDelivery
}

// Code is the carrier's deliveredType code for k.
func (k DeliveryKind) Code() string {
	if NormalizeDeliveryKind(k) == Agency {
		return "S"
	}
	return "D"
}

// responseName is the deliveryType value used in quotes.
func (k DeliveryKind) responseName() string {
	if NormalizeDeliveryKind(k) == Agency {
		return "agency"
	}
	return "homeDelivery"
}

// Normalize applies every input rule. An empty origin takes defaultOrigin.
func Normalize(req Request, defaultOrigin string) Request {
	origin := NormalizePostalCode(req.Origin)
	if origin == "" {
		origin = NormalizePostalCode(defaultOrigin)
	}
	return Request{
		Origin:       origin,
		Destination:  NormalizePostalCode(req.Destination),
		WeightGrams:  NormalizeWeight(req.WeightGrams),
		DeliveryKind: NormalizeDeliveryKind(req.DeliveryKind),
	}
}
