package aws

import (
	"context"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/rs/zerolog"
)

// Metric names.
const (
	MetricQuoteResult         = "QuoteResult"
	MetricPaymentVerification = "PaymentVerification"
	MetricOrderCommit         = "OrderCommit"
	MetricOrderReconciled     = "OrderReconciled"
)

const DefaultNamespace = "StorefrontCheckout"

// Counter records one occurrence of metric with an outcome dimension.
type Counter interface {
	Count(ctx context.Context, metric, outcome string)
}

// NopCounter drops everything.
type NopCounter struct{}

func (NopCounter) Count(context.Context, string, string) {}

// Metrics writes counters to CloudWatch. Failures are logged and swallowed.
type Metrics struct {
	cw        CloudWatchAPI
	namespace string
	log       zerolog.Logger
	nowFunc   func() time.Time
}

// NewMetrics returns a CloudWatch-backed Counter.
func NewMetrics(cw CloudWatchAPI, namespace string, log zerolog.Logger) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Metrics{
		cw:        cw,
		namespace: namespace,
		log:       log.With().Str("component", "metrics").Logger(),
		nowFunc:   time.Now,
	}
}

// Count implements Counter. A nil receiver or client is a no-op.
func (m *Metrics) Count(ctx context.Context, metric, outcome string) {
	if m == nil || m.cw == nil {
		return
	}
	_, err := m.cw.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: sdkaws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{{
			MetricName: sdkaws.String(metric),
			Dimensions: []cwtypes.Dimension{{Name: sdkaws.String("Outcome"), Value: sdkaws.String(outcome)}},
			Timestamp:  sdkaws.Time(m.nowFunc()),
			Unit:       cwtypes.StandardUnitCount,
			Value:      sdkaws.Float64(1),
		}},
	})
	if err != nil {
		m.log.Warn().Err(err).Str("metric", metric).Str("outcome", outcome).Msg("put metric data failed")
	}
}
