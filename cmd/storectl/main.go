// Command storectl is the back-office CLI for the storefront: catalog edits,
// discount definitions and order moderation against the live tables.
package main

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/imrishuroy/go-phone-storefront/internal/app"
	"github.com/imrishuroy/go-phone-storefront/internal/config"
	"github.com/imrishuroy/go-phone-storefront/internal/logger"
)

func main() {
	open := func(ctx context.Context) (*app.App, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		lg, err := logger.New(cfg.Stage, cfg.LogLevel)
		if err != nil {
			return nil, err
		}
		a, err := app.New(ctx, cfg, lg)
		if err != nil {
			lg.Error("failed to init app", zap.Error(err))
			return nil, err
		}
		return a, nil
	}

	if err := newRootCmd(open, os.Stdout).Execute(); err != nil {
		// cobra already printed the error
		os.Exit(1)
	}
}
