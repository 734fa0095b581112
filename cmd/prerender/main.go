// Command prerender prints the product detail pages to build ahead of time
// as a JSON array of {"id": "..."} objects. It prints [] when the product
// API cannot be reached so a static build never fails on it.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/handelsg/dojo-storefront/internal/app"
	"github.com/handelsg/dojo-storefront/internal/config"
	"github.com/handelsg/dojo-storefront/internal/service"
	"github.com/handelsg/dojo-storefront/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// stdout carries the result.
	log := logger.NewWithWriter("storefront-prerender", cfg.LogLevel, cfg.LogFormat, os.Stderr)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	products := service.NewProductService(app.NewFetcher(cfg, log), log)
	params := products.GetStaticParams(ctx)
	log.Info("static params resolved", slog.Int("count", len(params)))

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(params); err != nil {
		log.Error("failed to write static params", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
