package main

import (
	"context"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/imrishuroy/storefront-checkout/internal/aws"
	"github.com/imrishuroy/storefront-checkout/internal/config"
	"github.com/imrishuroy/storefront-checkout/internal/handlers"
	"github.com/imrishuroy/storefront-checkout/internal/idempotency"
	"github.com/imrishuroy/storefront-checkout/internal/logging"
	"github.com/imrishuroy/storefront-checkout/internal/orders"
	"github.com/imrishuroy/storefront-checkout/internal/payment"
	"github.com/imrishuroy/storefront-checkout/internal/shipping"
)

func setupRouter(cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterRoutes(r, cfg)

	return r
}

// buildHandlerConfig wires the checkout services. Without a table the ledger
// lives in memory; without a queue no events are published.
func buildHandlerConfig(cfg *config.Config, clients *aws.AWSClients, log zerolog.Logger) handlers.HandlerConfig {
	metrics := aws.NewMetrics(clients.CloudWatch, cfg.AWS.MetricsNamespace, log)

	var ledger orders.Ledger = idempotency.NewMemoryStore()
	if cfg.AWS.IdempotencyTable != "" {
		ledger = idempotency.NewStore(clients.DynamoDB, cfg.AWS.IdempotencyTable, cfg.AWS.IdempotencyTTL)
	} else {
		log.Warn().Msg("IDEMPOTENCY_TABLE not set, using in-memory ledger")
	}

	opts := []orders.Option{
		orders.WithLedger(ledger),
		orders.WithMetrics(metrics),
		orders.WithLogger(log),
	}
	if cfg.AWS.QueueURL != "" {
		opts = append(opts, orders.WithEvents(aws.NewPublisher(clients.SQS, cfg.AWS.QueueURL)))
	}
	committer := orders.NewCommitter(orders.NewPlatformClient(cfg.Platform, nil), opts...)

	verifier := payment.NewVerifier(payment.NewGatewayClient(cfg.Gateway, nil), metrics, log)

	return handlers.HandlerConfig{
		Quoter:       shipping.NewQuoter(cfg.Carrier, cfg.Quote.Mock, log),
		QuoteLimiter: handlers.NewIPRateLimiter(cfg.Quote.RateLimitRPS, cfg.Quote.RateLimitBurst),
		Verifier:     verifier,
		Cards:        payment.NewService(verifier, committer, log),
		Orders:       committer,
		Metrics:      metrics,
		Currency:     cfg.Checkout.Currency,
		Logger:       log,
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("info")
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}
	log := logging.New(cfg.Server.LogLevel).With().Str("service", "api").Logger()

	clients, err := aws.NewAWSClients(context.Background(), cfg.AWS.Region, cfg.AWS.Endpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init aws clients")
	}

	if !cfg.Server.RunLocal {
		gin.SetMode(gin.ReleaseMode)
	}
	r := setupRouter(buildHandlerConfig(cfg, clients, log))

	// if environment variable RUN_LOCAL is set to "true", run local HTTP server for development.
	if cfg.Server.RunLocal {
		addr := ":" + cfg.Server.Port
		log.Info().Str("addr", addr).Msg("running local server")
		if err := r.Run(addr); err != nil {
			log.Fatal().Err(err).Msg("failed to run local server")
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
