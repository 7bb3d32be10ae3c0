package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sandeepkv93/crudguard/internal/config"
	"github.com/sandeepkv93/crudguard/internal/di"
	"github.com/sandeepkv93/crudguard/internal/tools/common"
)

func main() {
	if err := common.LoadEnvFile(".env"); err != nil {
		slog.Error("load env file", "error", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, cleanup, err := di.InitializeApp(ctx, cfg)
	if err != nil {
		slog.Error("initialize app", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	if err := application.Run(ctx); err != nil {
		application.Logger.Error("server stopped", "error", err)
		cleanup()
		os.Exit(1)
	}
}
