package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/upb/hsn-classifier/app"
	"github.com/upb/hsn-classifier/auth"
	"github.com/upb/hsn-classifier/cli"
	"github.com/upb/hsn-classifier/config"
	"github.com/upb/hsn-classifier/internal/observability"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "hsnctl: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.New(ctx)
	if err != nil {
		return err
	}

	// Logs go to stderr so batch exports can stream to stdout
	logger, err := observability.NewLoggerTo(os.Stderr, cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync()

	pipeline, err := app.NewPipeline(cfg, logger)
	if err != nil {
		return err
	}

	services := cli.Services{
		Predictor: pipeline.Predictor,
		Batch:     pipeline.Batch,
		Schema:    pipeline.LookupSchema,
	}
	if cfg.AuthEnabled() {
		validator, err := auth.NewHMACValidator(auth.Config{
			Secret:   cfg.Auth.JWTSecret,
			Issuer:   cfg.Auth.Issuer,
			Audience: cfg.Auth.Audience,
		})
		if err != nil {
			return err
		}
		services.Tokens = validator
	}

	cli.SetServices(services)
	cli.SetVersion(app.Version)

	return cli.Execute(ctx)
}
