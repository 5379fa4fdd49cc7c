package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/tenancy/internal/bootstrap"
	"github.com/iota-uz/tenancy/internal/server"
	"github.com/iota-uz/tenancy/modules"
	"github.com/iota-uz/tenancy/modules/tenancy/infrastructure/persistence"
	"github.com/iota-uz/tenancy/pkg/application"
	"github.com/iota-uz/tenancy/pkg/configuration"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			log.Println(r)
			debug.PrintStack()
			os.Exit(1)
		}
	}()

	conf := configuration.Use()
	logger := conf.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := bootstrap.OpenPool(ctx, conf)
	if err != nil {
		panic(err)
	}
	defer pool.Close()

	if err := persistence.Migrate(ctx, pool, logrus.NewEntry(logger).WithField("component", "migrate")); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}

	stack := bootstrap.NewStack(conf, pool, logger)
	app := application.New(&application.ApplicationOptions{
		DB:     pool,
		Logger: logger,
	})
	if err := modules.Load(app, stack.Module(server.TenantControllerOptions(conf, logger))); err != nil {
		log.Fatalf("failed to load modules: %v", err)
	}

	if conf.TenantCache.WarmOnStart {
		go func() {
			res := stack.Cache.WarmAll(ctx)
			if !res.Success {
				logger.WithField("error", res.Error).Warn("tenant cache warm-up incomplete")
			}
		}()
	}

	if conf.DomainVerification.JobEnabled {
		go func() {
			if err := stack.Job.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.WithError(err).Error("verification job stopped")
			}
		}()
	}

	serverInstance, err := server.Default(&server.DefaultOptions{
		Logger:        logger,
		Configuration: conf,
		Application:   app,
		Entrypoint:    "server",
	})
	if err != nil {
		log.Fatalf("failed to create server: %v", err)
	}
	log.Printf("Listening on: %s\n", conf.SocketAddress)
	if err := serverInstance.Serve(ctx, conf.SocketAddress); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}
