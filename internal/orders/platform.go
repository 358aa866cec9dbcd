package orders

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

	"github.com/imrishuroy/storefront-checkout/internal/apperrors"
)

const (
	DefaultPlatformDomain  = "https://api.tiendanube.com"
	DefaultPlatformVersion = "2025-03"
	DefaultUserAgent       = "storefront-checkout"
	defaultPlatformTimeout = 15 * time.Second
)

// PlatformConfig locates the store on the commerce platform.
type PlatformConfig struct {
	Domain      string
	Version     string
	StoreID     string
	AccessToken string
	UserAgent   string
	Timeout     time.Duration
}

// PlatformError is a non-2xx answer from the platform.
type PlatformError struct {
	Status int
	Body   json.RawMessage
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("platform rejected order (status %d)", e.Status)
}

// ErrorKind implements apperrors.Kinded.
func (e *PlatformError) ErrorKind() apperrors.Kind {
	if e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden {
		return apperrors.KindUpstreamAuth
	}
	return apperrors.KindUpstreamRejected
}

// PlatformClient creates orders over the platform's REST API.
type PlatformClient struct {
	cfg  PlatformConfig
	http *http.Client
}

func NewPlatformClient(cfg PlatformConfig, httpClient *http.Client) *PlatformClient {
	if cfg.Domain == "" {
		cfg.Domain = DefaultPlatformDomain
	}
	if cfg.Version == "" {
		cfg.Version = DefaultPlatformVersion
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultPlatformTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &PlatformClient{cfg: cfg, http: httpClient}
}

func (p *PlatformClient) ordersURL() string {
	return fmt.Sprintf("%s/%s/%s/orders/", strings.TrimRight(p.cfg.Domain, "/"), p.cfg.Version, p.cfg.StoreID)
}

// CreateOrder posts payload once with key as the Idempotency-Key header.
func (p *PlatformClient) CreateOrder(ctx context.Context, key string, payload Payload) (*OrderRef, error) {
	const op = "orders.platform"
	if p.cfg.StoreID == "" || p.cfg.AccessToken == "" {
		return nil, apperrors.New(apperrors.KindUnavailable, op, "platform store id or access token not configured", nil)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal order payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.ordersURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build order request: %w", err)
	}
	req.Header.Set("Authentication", "bearer "+p.cfg.AccessToken)
	req.Header.Set("User-Agent", p.cfg.UserAgent)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Idempotency-Key", key)

	resp, err := p.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.New(apperrors.KindUpstreamTimeout, op, "order creation timed out", err)
		}
		return nil, apperrors.New(apperrors.KindUnavailable, op, "platform unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperrors.New(apperrors.KindUnavailable, op, "read platform response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &PlatformError{Status: resp.StatusCode, Body: jsonOrString(raw)}
	}

	ref, err := parseOrderRef(raw)
	if err != nil {
		return nil, apperrors.New(apperrors.KindUpstreamRejected, op, "unreadable order response", err)
	}
	ref.Key = key
	return ref, nil
}

func parseOrderRef(raw []byte) (*OrderRef, error) {
	var out struct {
		ID     any `json:"id"`
		Number any `json:"number"`
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if out.ID == nil {
		return nil, errors.New("order response has no id")
	}
	ref := &OrderRef{ID: fmt.Sprint(out.ID), Raw: json.RawMessage(raw)}
	if out.Number != nil {
		ref.PublicID = fmt.Sprint(out.Number)
	}
	return ref, nil
}

func jsonOrString(b []byte) json.RawMessage {
	if json.Valid(b) {
		return json.RawMessage(b)
	}
	s, _ := json.Marshal(string(b))
	return s
}
