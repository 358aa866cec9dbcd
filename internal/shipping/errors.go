package shipping

import (
	"encoding/json"
	"fmt"

	"github.com/imrishuroy/storefront-checkout/internal/apperrors"
)

// QuoteError is a failed quoting attempt. Status is the HTTP status to surface.
type QuoteError struct {
	Provider string
	Status   int
	Message  string
	Raw      json.RawMessage
	Kind     apperrors.Kind
	Err      error
}

func (e *QuoteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s quote: %s (status %d): %v", e.Provider, e.Message, e.Status, e.Err)
	}
	return fmt.Sprintf("%s quote: %s (status %d)", e.Provider, e.Message, e.Status)
}

func (e *QuoteError) Unwrap() error { return e.Err }

// ErrorKind implements apperrors.Kinded.
func (e *QuoteError) ErrorKind() apperrors.Kind { return e.Kind }
