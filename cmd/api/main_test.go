package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/storefront-checkout/internal/aws"
	"github.com/imrishuroy/storefront-checkout/internal/config"
)

type nopCloudWatch struct{}

func (nopCloudWatch) PutMetricData(context.Context, *cloudwatch.PutMetricDataInput, ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	return &cloudwatch.PutMetricDataOutput{}, nil
}

type nopSQS struct{}

func (nopSQS) SendMessage(context.Context, *sqs.SendMessageInput, ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	return &sqs.SendMessageOutput{}, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("CARRIER_USER", "")
	t.Setenv("CARRIER_PASSWORD", "")
	t.Setenv("IDEMPOTENCY_TABLE", "")
	t.Setenv("ORDERS_QUEUE_URL", "")
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func TestRouter_HealthAndMockQuote(t *testing.T) {
	gin.SetMode(gin.TestMode)
	clients := &aws.AWSClients{CloudWatch: nopCloudWatch{}, SQS: nopSQS{}}
	r := setupRouter(buildHandlerConfig(testConfig(t), clients, zerolog.Nop()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/shipping/quote", strings.NewReader(`{"postalCodeDestination":"5000"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":7490`)
}

func TestRouter_OrdersWithoutPlatformConfig(t *testing.T) {
	gin.SetMode(gin.TestMode)
	t.Setenv("PLATFORM_STORE_ID", "")
	t.Setenv("PLATFORM_ACCESS_TOKEN", "")
	clients := &aws.AWSClients{CloudWatch: nopCloudWatch{}, SQS: nopSQS{}}
	r := setupRouter(buildHandlerConfig(testConfig(t), clients, zerolog.Nop()))

	body := `{"client":{"firstName":"Ana","lastName":"Paz","email":"ana@example.com","phone":"1"},` +
		`"items":[{"variantId":101,"quantity":1,"unitPrice":10000}],"shippingMethod":"pickup","paymentMethod":"cash"}`
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", "key-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
