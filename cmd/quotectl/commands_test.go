package main

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/storefront-checkout/internal/config"
	"github.com/imrishuroy/storefront-checkout/internal/shipping"
)

// recordingQuoter prices like the mock but remembers every request.
type recordingQuoter struct {
	mu   sync.Mutex
	reqs []shipping.Request
}

func (r *recordingQuoter) Quote(ctx context.Context, req shipping.Request) (*shipping.Quote, error) {
	r.mu.Lock()
	r.reqs = append(r.reqs, req)
	r.mu.Unlock()
	return shipping.MockQuoter{}.Quote(ctx, req)
}

func (r *recordingQuoter) seen() []shipping.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]shipping.Request(nil), r.reqs...)
}

func run(t *testing.T, q shipping.Quoter, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand(func(*config.Config, bool, zerolog.Logger) shipping.Quoter { return q })
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestQuoteText(t *testing.T) {
	q := &recordingQuoter{}
	out, err := run(t, q, "quote", "B5000XYZ", "--weight", "1200", "--delivered", "S")
	require.NoError(t, err)

	assert.Contains(t, out, "total:     7490.00 ARS")
	assert.Contains(t, out, "handling")

	reqs := q.seen()
	require.Len(t, reqs, 1)
	assert.Equal(t, "5000", reqs[0].Destination)
	assert.Equal(t, shipping.DefaultOrigin, reqs[0].Origin)
	assert.Equal(t, 1200, reqs[0].WeightGrams)
	assert.Equal(t, shipping.Agency, reqs[0].DeliveryKind)
}

func TestQuoteJSON(t *testing.T) {
	out, err := run(t, &recordingQuoter{}, "quote", "5000", "--format", "json")
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	assert.Equal(t, "mock", body["provider"])
	assert.EqualValues(t, 7490, body["total"])
}

func TestInvalidFormat(t *testing.T) {
	_, err := run(t, &recordingQuoter{}, "quote", "5000", "--format", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestQuoteRequiresDestination(t *testing.T) {
	_, err := run(t, &recordingQuoter{}, "quote")
	require.Error(t, err)
}

func TestRaceSettlesOnLastDestination(t *testing.T) {
	q := &recordingQuoter{}
	out, err := run(t, q, "race", "50", "500", "5000", "--debounce", "50ms")
	require.NoError(t, err)

	assert.Contains(t, out, "7490.00")
	reqs := q.seen()
	require.Len(t, reqs, 1)
	assert.Equal(t, "5000", reqs[0].Destination)
}
