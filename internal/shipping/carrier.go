package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/imrishuroy/storefront-checkout/internal/apperrors"
)

const (
	DefaultTimeout = 15 * time.Second
	DefaultBaseURL = "https://apitest.correoargentino.com.ar/micorreo/v1"
	DefaultOrigin  = "1406"

	maxBodyBytes = 1 << 20
)

// CarrierConfig holds the live carrier credentials.
type CarrierConfig struct {
	BaseURL  string
	User     string
	Password string
	// CustomerID skips the account validation call when set.
	CustomerID      string
	AccountEmail    string
	AccountPassword string
	Timeout         time.Duration
	DefaultOrigin   string
}

// HasCredentials reports whether live quoting is possible.
func (c CarrierConfig) HasCredentials() bool {
	return c.User != "" && c.Password != ""
}

// CarrierClient quotes against the live carrier API:
// token -> customer id -> rates -> best rate -> Quote.
type CarrierClient struct {
	cfg     CarrierConfig
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*Quote]
	log     zerolog.Logger
}

// CarrierOption customizes a CarrierClient.
type CarrierOption func(*CarrierClient)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) CarrierOption {
	return func(c *CarrierClient) { c.http = h }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) CarrierOption {
	return func(c *CarrierClient) { c.log = l }
}

// NewCarrierClient builds a live client. Defaults fill empty fields of cfg.
func NewCarrierClient(cfg CarrierConfig, opts ...CarrierOption) *CarrierClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.DefaultOrigin == "" {
		cfg.DefaultOrigin = DefaultOrigin
	}
	if cfg.AccountEmail == "" {
		cfg.AccountEmail = cfg.User
	}
	if cfg.AccountPassword == "" {
		cfg.AccountPassword = cfg.Password
	}

	c := &CarrierClient{
		cfg:  cfg,
		http: &http.Client{},
		log:  zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	c.breaker = gobreaker.NewCircuitBreaker[*Quote](gobreaker.Settings{
		Name:    "carrier-quote",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// a carrier that answers 4xx is up; only outages count
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			switch apperrors.KindOf(err) {
			case apperrors.KindUpstreamTimeout, apperrors.KindUnavailable:
				return false
			}
			var qe *QuoteError
			if errors.As(err, &qe) && qe.Status >= 500 {
				return false
			}
			return true
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("carrier breaker state change")
		},
	})
	return c
}

// Quote runs the live quoting pipeline.
func (c *CarrierClient) Quote(ctx context.Context, req Request) (*Quote, error) {
	req = Normalize(req, c.cfg.DefaultOrigin)
	if req.Destination == "" {
		return nil, &QuoteError{
			Provider: ProviderCarrier,
			Status:   http.StatusBadRequest,
			Message:  "Missing postalCodeDestination",
			Kind:     apperrors.KindValidation,
		}
	}

	q, err := c.breaker.Execute(func() (*Quote, error) {
		return c.quote(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &QuoteError{
			Provider: ProviderCarrier,
			Status:   http.StatusServiceUnavailable,
			Message:  "Carrier temporarily unavailable",
			Kind:     apperrors.KindUnavailable,
			Err:      err,
		}
	}
	return q, err
}

func (c *CarrierClient) quote(ctx context.Context, req Request) (*Quote, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}
	customerID, err := c.customerID(ctx, token)
	if err != nil {
		return nil, err
	}

	body := rateRequest{
		CustomerID:            customerID,
		PostalCodeOrigin:      req.Origin,
		PostalCodeDestination: req.Destination,
		DeliveredType:         req.DeliveryKind.Code(),
		Dimensions:            dimensions{Weight: req.WeightGrams},
	}
	status, raw, err := c.post(ctx, "/rates", "Bearer "+token, body)
	if err != nil {
		return nil, c.transportError("Quote request failed", err)
	}
	if status < 200 || status > 299 {
		return nil, &QuoteError{Provider: ProviderCarrier, Status: status, Message: "Quote request failed", Raw: raw, Kind: apperrors.KindUpstreamRejected}
	}

	rates, err := decodeRates(raw)
	if err != nil {
		return nil, &QuoteError{Provider: ProviderCarrier, Status: http.StatusBadGateway, Message: "Invalid rates response", Raw: raw, Kind: apperrors.KindUpstreamRejected, Err: err}
	}
	best, ok := Select(rates)
	if !ok {
		return nil, &QuoteError{Provider: ProviderCarrier, Status: http.StatusBadGateway, Message: "No valid rate", Raw: raw, Kind: apperrors.KindUpstreamRejected}
	}

	return mapRate(best, req, raw), nil
}

type rateRequest struct {
	CustomerID            string     `json:"customerId"`
	PostalCodeOrigin      string     `json:"postalCodeOrigin"`
	PostalCodeDestination string     `json:"postalCodeDestination"`
	DeliveredType         string     `json:"deliveredType"`
	Dimensions            dimensions `json:"dimensions"`
}

type dimensions struct {
	Weight int `json:"weight"`
}

func (c *CarrierClient) token(ctx context.Context) (string, error) {
	status, raw, err := c.post(ctx, "/token", basicAuth(c.cfg.User, c.cfg.Password), nil)
	if err != nil {
		return "", c.transportError("Auth failed", err)
	}
	if status < 200 || status > 299 {
		return "", &QuoteError{Provider: ProviderCarrier, Status: status, Message: "Auth failed", Raw: raw, Kind: apperrors.KindUpstreamAuth}
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(raw, &out); err != nil || out.Token == "" {
		return "", &QuoteError{Provider: ProviderCarrier, Status: http.StatusInternalServerError, Message: "Auth failed", Raw: raw, Kind: apperrors.KindUpstreamAuth}
	}
	return out.Token, nil
}

func (c *CarrierClient) customerID(ctx context.Context, bearer string) (string, error) {
	if c.cfg.CustomerID != "" {
		return c.cfg.CustomerID, nil
	}
	creds := map[string]string{"email": c.cfg.AccountEmail, "password": c.cfg.AccountPassword}
	status, raw, err := c.post(ctx, "/users/validate", "Bearer "+bearer, creds)
	if err != nil {
		return "", c.transportError("Customer validation failed", err)
	}
	if status < 200 || status > 299 {
		return "", &QuoteError{Provider: ProviderCarrier, Status: status, Message: "Customer validation failed", Raw: raw, Kind: apperrors.KindUpstreamAuth}
	}
	id := customerIDFrom(raw)
	if id == "" {
		return "", &QuoteError{Provider: ProviderCarrier, Status: http.StatusInternalServerError, Message: "Customer validation failed", Raw: raw, Kind: apperrors.KindUpstreamAuth}
	}
	return id, nil
}

// customerIDFrom reads customerId whether the carrier sends it as a number or a string.
func customerIDFrom(raw json.RawMessage) string {
	var out struct {
		CustomerID any `json:"customerId"`
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil || out.CustomerID == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(out.CustomerID))
}

// post sends one bounded request and returns the status and body.
func (c *CarrierClient) post(ctx context.Context, path, authorization string, payload any) (int, json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal %s body: %w", path, err)
		}
		body = bytes.NewReader(b)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("build %s request: %w", path, err)
	}
	httpReq.Header.Set("Authorization", authorization)
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, rawJSON(b), nil
}

func (c *CarrierClient) transportError(msg string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		c.log.Warn().Err(err).Msg(msg + ": timeout")
		return &QuoteError{Provider: ProviderCarrier, Status: http.StatusGatewayTimeout, Message: msg, Kind: apperrors.KindUpstreamTimeout, Err: err}
	}
	c.log.Warn().Err(err).Msg(msg)
	return &QuoteError{Provider: ProviderCarrier, Status: http.StatusBadGateway, Message: msg, Kind: apperrors.KindUnavailable, Err: err}
}

// decodeRates accepts a bare array or {"rates": [...]}.
func decodeRates(raw json.RawMessage) ([]Rate, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var rates []Rate
		if err := json.Unmarshal(trimmed, &rates); err != nil {
			return nil, err
		}
		return rates, nil
	}
	var wrapped struct {
		Rates []Rate `json:"rates"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Rates, nil
}

func mapRate(best Rate, req Request, raw json.RawMessage) *Quote {
	total := best.Value()

	kind := req.DeliveryKind
	if best.DeliveredType != "" {
		kind = DeliveryKindFromCode(best.DeliveredType)
	}

	eta := ETA{Min: int(best.DeliveryTimeMin), Max: int(best.DeliveryTimeMax)}
	if eta.Min <= 0 {
		eta.Min = 2
	}
	if eta.Max <= 0 {
		eta.Max = 5
	}

	service := best.ProductType
	if service == "" {
		service = best.ProductName
	}
	if service == "" {
		service = "CP"
	}

	return &Quote{
		Provider:     ProviderCarrier,
		Currency:     "ARS",
		Total:        total,
		Breakdown:    []Line{{Label: "total", Amount: total}},
		ServiceType:  service,
		DeliveryType: kind.responseName(),
		ETADays:      eta,
		Raw:          raw,
	}
}

// rawJSON keeps b if it is JSON and wraps it as a JSON string otherwise.
func rawJSON(b []byte) json.RawMessage {
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	if json.Valid(b) {
		return json.RawMessage(b)
	}
	s, _ := json.Marshal(string(b))
	return s
}
