// Command migrate applies the embedded schema migrations and exits.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/consent-app/consent_api/internal/infra"
	"github.com/consent-app/consent_api/internal/logging"
	"github.com/consent-app/consent_api/internal/store"
)

func main() {
	databaseURL := pflag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
	timeout := pflag.Duration("timeout", time.Minute, "overall migration timeout")
	logLevel := pflag.String("log-level", "info", "log level")
	pflag.Parse()

	logger := logging.New(logging.Options{Level: *logLevel, App: "consent-migrate"})
	if *databaseURL == "" {
		fmt.Fprintln(os.Stderr, "migrate: --database-url or DATABASE_URL is required")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := infra.NewPostgresPool(ctx, *databaseURL, infra.PoolOptions{MaxConns: 1, ApplicationName: "consent-migrate"})
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := store.Migrate(ctx, db, logger); err != nil {
		logger.Error("migrate", "error", err)
		os.Exit(1)
	}
	logger.Info("migrations applied")
}
