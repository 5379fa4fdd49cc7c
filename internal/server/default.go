package server

import (
	"github.com/sirupsen/logrus"
	"github.com/ulule/limiter/v3"

	"github.com/iota-uz/tenancy/modules/tenancy/presentation/controllers"
	"github.com/iota-uz/tenancy/pkg/application"
	"github.com/iota-uz/tenancy/pkg/configuration"
	"github.com/iota-uz/tenancy/pkg/metrics"
	"github.com/iota-uz/tenancy/pkg/middleware"
	"github.com/iota-uz/tenancy/pkg/server"
)

type DefaultOptions struct {
	Logger        *logrus.Logger
	Configuration *configuration.Configuration
	Application   application.Application
	Entrypoint    string
}

func Default(options *DefaultOptions) (*server.HTTPServer, error) {
	app := options.Application
	conf := options.Configuration

	loggerOpts := middleware.DefaultLoggerOptions()
	loggerOpts.RequestIDHeader = conf.RequestIDHeader
	loggerOpts.RealIPHeader = conf.RealIPHeader
	loggerOpts.Entrypoint = options.Entrypoint
	loggerOpts.AllowlistPath = conf.RoutingAllowlistPath

	// Core middleware stack with tracing capabilities
	app.RegisterMiddleware(
		middleware.WithLogger(options.Logger, loggerOpts), // creates the root span for each request

		middleware.TracedMiddleware("opsGuard"),
		middleware.OpsGuard(conf, options.Entrypoint),
	)

	if conf.Prometheus.Enabled {
		app.RegisterControllers(metrics.NewPrometheusController(conf.Prometheus.Path))
	}

	handlerOpts := controllers.ErrorHandlersOptions{
		Entrypoint:    options.Entrypoint,
		AllowlistPath: conf.RoutingAllowlistPath,
	}
	serverInstance := server.NewHTTPServer(
		app,
		controllers.NotFound(handlerOpts),
		controllers.MethodNotAllowed(handlerOpts),
	)
	return serverInstance, nil
}

// TenantControllerOptions picks the rate limit store for on-demand verification checks.
func TenantControllerOptions(conf *configuration.Configuration, logger *logrus.Logger) controllers.TenantControllerOptions {
	opts := controllers.TenantControllerOptions{
		RealIPHeader: conf.RealIPHeader,
	}
	if !conf.RateLimit.Enabled {
		return opts
	}

	var store limiter.Store
	var err error

	// Choose storage backend
	switch conf.RateLimit.Storage {
	case "redis":
		store, err = middleware.NewRedisStore(conf.RedisURL)
		if err != nil {
			logger.WithError(err).Warn("Failed to create Redis store for rate limiting, falling back to memory")
			store = middleware.NewMemoryStore()
		}
	default:
		store = middleware.NewMemoryStore()
	}
	opts.CheckNowLimit = conf.RateLimit.CheckNowLimit
	opts.CheckNowPeriod = conf.RateLimit.CheckNowPeriod
	opts.RateLimitStore = store
	return opts
}
