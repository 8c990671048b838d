package app

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/QualityUnit/flowbatch/internal/executor"
	"github.com/QualityUnit/flowbatch/internal/metrics"
	"github.com/QualityUnit/flowbatch/internal/middleware"
	"github.com/QualityUnit/flowbatch/internal/providers"
	"github.com/QualityUnit/flowbatch/internal/ratelimit"
	"github.com/QualityUnit/flowbatch/internal/repository"
	"github.com/QualityUnit/flowbatch/internal/services"
	"github.com/QualityUnit/flowbatch/internal/tracing"
	"github.com/QualityUnit/flowbatch/pkg/auth"
	"github.com/QualityUnit/flowbatch/pkg/config"
	"github.com/QualityUnit/flowbatch/pkg/flowhunt"

	"github.com/gin-gonic/gin"

	_ "github.com/QualityUnit/flowbatch/pkg/auth/jwks"
	_ "github.com/QualityUnit/flowbatch/pkg/auth/static"
)

type Application struct {
	Config      *config.Config
	Engine      *gin.Engine
	Batches     services.BatchService
	Logger      *slog.Logger
	Validator   auth.Validator
	RateLimiter ratelimit.Limiter

	// TracingShutdown flushes the trace exporter; nil until NewApplication.
	TracingShutdown func(context.Context) error

	invoker flowhunt.Invoker
}

// ApplicationOption configures the Application
type ApplicationOption func(*Application) error

// WithValidator sets a custom token validator
func WithValidator(validator auth.Validator) ApplicationOption {
	return func(app *Application) error {
		app.Validator = validator
		return nil
	}
}

// WithInvoker sets a custom flow invoker (tests stub the remote service here)
func WithInvoker(invoker flowhunt.Invoker) ApplicationOption {
	return func(app *Application) error {
		app.invoker = invoker
		return nil
	}
}

func NewApplication(cfg *config.Config, opts ...ApplicationOption) (*Application, error) {
	redisClient := providers.NewRedisProvider(cfg.RedisAddr, cfg.RedisPassword)
	limiter := ratelimit.NewTokenBucketLimiter(redisClient)

	level := new(slog.LevelVar)
	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	logger := slog.New(handler).With("service", "flowbatch", "env", cfg.Env)
	slog.SetDefault(logger)

	tracingShutdown, err := tracing.Setup(context.Background(), tracing.Config{
		Enabled:      cfg.TracingEnabled,
		ServiceName:  "flowbatch",
		OTLPEndpoint: cfg.TracingEndpoint,
		OTLPInsecure: cfg.TracingInsecure,
		SampleRatio:  cfg.TracingSampleRatio,
	}, logger)
	if err != nil {
		// Tracing is best effort; a broken exporter must not block startup.
		logger.Warn("tracing setup failed", "err", err)
		tracingShutdown = func(context.Context) error { return nil }
	}

	engine := gin.New()
	engine.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware(),
		middleware.LoggerMiddleware(logger),
		middleware.TracingMiddleware("flowbatch"),
	)

	app := &Application{
		Config:          cfg,
		Engine:          engine,
		Logger:          logger,
		RateLimiter:     limiter,
		TracingShutdown: tracingShutdown,
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	if app.invoker == nil {
		app.invoker = flowhunt.NewClient(cfg.FlowHuntBaseURL, cfg.FlowHuntAPIKey)
	}

	repo := repository.NewBatchRepository(redisClient)
	execCfg := executor.Config{
		PollInterval:      time.Duration(cfg.PollIntervalSeconds) * time.Second,
		PollMaxDelay:      time.Duration(cfg.PollMaxDelaySeconds) * time.Second,
		PollPolicy:        cfg.PollBackoffPolicy,
		MaxPollIterations: cfg.PollMaxIterations,
		Logger:            logger,
	}
	app.Batches = services.NewBatchService(repo, app.invoker, execCfg, logger)
	metrics.RegisterBatchCollector(app.Batches)

	if app.Validator == nil {
		validator, err := middleware.NewValidatorFromConfig(cfg)
		if err != nil {
			return nil, err
		}
		app.Validator = validator
	}

	return app, nil
}
