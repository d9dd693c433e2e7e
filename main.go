package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/gin-gonic/gin"
	"github.com/yashrajoria/graphql-gateway/auth"
	"github.com/yashrajoria/graphql-gateway/awsutil"
	"github.com/yashrajoria/graphql-gateway/backends"
	"github.com/yashrajoria/graphql-gateway/cache"
	"github.com/yashrajoria/graphql-gateway/clients"
	"github.com/yashrajoria/graphql-gateway/config"
	"github.com/yashrajoria/graphql-gateway/controllers"
	apperrors "github.com/yashrajoria/graphql-gateway/errors"
	"github.com/yashrajoria/graphql-gateway/graph"
	"github.com/yashrajoria/graphql-gateway/logger"
	"github.com/yashrajoria/graphql-gateway/metrics"
	"github.com/yashrajoria/graphql-gateway/middleware"
	"github.com/yashrajoria/graphql-gateway/pagination"
	"github.com/yashrajoria/graphql-gateway/pricing"
	"github.com/yashrajoria/graphql-gateway/reporting"
	"github.com/yashrajoria/graphql-gateway/requestctx"
	"github.com/yashrajoria/graphql-gateway/routes"
	"go.uber.org/zap"
)

const serviceName = "graphql-gateway"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Gateway] %v", err)
	}

	ctx := context.Background()

	// AWS is only needed for CloudWatch, SNS error reports and Secrets Manager.
	var awsCfg aws.Config
	awsEnabled := cfg.CloudWatchEnabled || cfg.ErrorReportTopicArn != "" || cfg.JWT.KeySecretName != ""
	if awsEnabled {
		awsCfg, err = awsutil.LoadAWSConfig(ctx)
		if err != nil {
			log.Fatalf("[Gateway] failed to load AWS config: %v", err)
		}
	}

	// ── CloudWatch Logs ──
	var sink io.Writer
	if cfg.CloudWatchEnabled {
		cwLogs, err := awsutil.NewCloudWatchLogsClient(ctx, awsCfg, serviceName)
		if err != nil {
			log.Printf("[Gateway] CloudWatch Logs init failed: %v", err)
		} else {
			sink = cwLogs
			log.Println("[Gateway] CloudWatch Logs enabled")
		}
	}
	logger.InitializeWithWriter(cfg.Env, sink)
	defer func() { _ = logger.Log.Sync() }()

	// ── Metrics ──
	gatewayMetrics := metrics.NewGatewayMetrics()
	metricsClient := awsutil.NewMetricsClient(awsCfg, cfg.CloudWatchEnabled)

	var reporter reporting.Reporter = reporting.Noop{}
	if cfg.ErrorReportTopicArn != "" {
		reporter = reporting.NewSNSReporter(awsutil.NewSNSClient(awsCfg), cfg.ErrorReportTopicArn, logger.Log)
		logger.Log.Info("Internal errors are reported to SNS", zap.String("topic_arn", cfg.ErrorReportTopicArn))
	}

	var secrets auth.SecretSource
	if cfg.JWT.KeySecretName != "" {
		secrets = awsutil.NewSecretsClient(awsCfg)
	}
	verifier, err := auth.FromConfig(ctx, cfg.JWT, secrets)
	if err != nil {
		logger.Log.Fatal("Failed to build JWT verifier", zap.Error(err))
	}

	// Redis is optional. Without it exchange rates are fetched on every use.
	var store cache.Store
	if cfg.RedisURL != "" {
		redisClient, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		store = redisClient
		logger.Log.Info("Connected to Redis")
	}
	rates := cache.NewRateCache(store, cfg.ExchangeRateTTL, logger.Log, gatewayMetrics)

	client := clients.NewBackendClient(cfg.BackendTimeout,
		clients.WithObserver(gatewayMetrics),
		clients.WithObserver(metrics.CloudWatchBackendObserver{Client: metricsClient}),
	)

	shared := &requestctx.Shared{
		Config:   cfg,
		Client:   client,
		Verifier: verifier,
		Log:      logger.Log,
	}

	b := backends.New(cfg.Backends, rates)
	engine := pricing.NewEngine(b, b, b)

	resolver := graph.NewResolver(b, engine, pagination.Settings{
		MaxPageSize:        cfg.MaxPageSize,
		DefaultPageSize:    cfg.DefaultPageSize,
		LegacyPreviousPage: cfg.LegacyHasPreviousPage,
	}, graph.WithErrorObserver(gatewayMetrics), graph.WithReporter(reporter))

	schema, err := graph.NewSchema(resolver)
	if err != nil {
		logger.Log.Fatal("Failed to build GraphQL schema", zap.Error(err))
	}
	gql := graph.NewHandler(schema, gatewayMetrics, logger.Log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.SetHTMLTemplate(controllers.Templates())

	stop := make(chan struct{})
	limiter := middleware.NewRateLimiter(middleware.PerMinute(cfg.RateLimitPerMinute), cfg.RateLimitBurst, 10*time.Minute)
	go limiter.Run(stop)

	r.Use(
		gin.Recovery(),
		middleware.RequestLogger(logger.Log),
		middleware.SecurityHeaders(),
		middleware.CORS(cfg.AllowedOrigins),
		middleware.RateLimit(limiter),
		middleware.WorkerPool(cfg.WorkerPoolSize, gatewayMetrics),
		middleware.Prometheus(gatewayMetrics),
		middleware.CloudWatchMetrics(metricsClient, serviceName),
		middleware.RequestContext(shared),
		apperrors.Middleware(func(c *gin.Context, err *apperrors.Error) {
			reporter.Report(c.Request.Context(), err, c.Request.URL.Path, logger.Correlation(c))
		}),
	)

	pages := controllers.NewPagesController(b, logger.Log)
	handlers := routes.Handlers{
		routes.GraphQL:       func(c *gin.Context, _ routes.Route) { gql.Serve(c) },
		routes.Healthcheck:   pages.Healthcheck,
		routes.VerifyEmail:   pages.TokenPage,
		routes.ResetPassword: pages.TokenPage,
		routes.AddDevice:     pages.TokenPage,
	}
	if cfg.PlaygroundEnabled {
		handlers[routes.Root] = controllers.Playground(cfg.GraphQLPath)
	}
	routes.RegisterRoutes(r, routes.DefaultRouter(cfg.GraphQLPath), handlers, gatewayMetrics.Handler())

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Log.Info("Gateway listening", zap.String("port", cfg.Port), zap.String("graphql_path", cfg.GraphQLPath))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("Server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	close(stop)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Shutdown error", zap.Error(err))
	}
	logger.Log.Info("Gateway stopped")
}
