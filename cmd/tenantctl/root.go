package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/iota-uz/tenancy/internal/bootstrap"
	"github.com/iota-uz/tenancy/pkg/configuration"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "tenantctl",
		Short:         "Operator tool for tenant cache and custom domain verification",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newWarmCmd())
	cmd.AddCommand(newVerifyCmd())
	return cmd
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

type env struct {
	conf   *configuration.Configuration
	logger *logrus.Logger
	pool   *pgxpool.Pool
}

func connect(ctx context.Context) (*env, error) {
	conf, err := configuration.Load([]string{".env", ".env.local"})
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	pool, err := bootstrap.OpenPool(ctx, conf)
	if err != nil {
		return nil, err
	}
	return &env{conf: conf, logger: conf.Logger(), pool: pool}, nil
}

// withStack connects to the record store and hands a wired stack to fn.
func withStack(ctx context.Context, fn func(*bootstrap.Stack) error) error {
	e, err := connect(ctx)
	if err != nil {
		return err
	}
	defer e.pool.Close()
	return fn(bootstrap.NewStack(e.conf, e.pool, e.logger))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
