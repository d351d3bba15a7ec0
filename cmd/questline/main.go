package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aviklund/questline/internal/bot"
	"github.com/aviklund/questline/internal/config"
	"github.com/aviklund/questline/internal/engine"
	"github.com/aviklund/questline/internal/engine/mock"
	"github.com/aviklund/questline/internal/engine/openai"
	"github.com/aviklund/questline/internal/session"
	"github.com/aviklund/questline/internal/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	st, err := store.Open(cfg.Store.DBPath)
	if err != nil {
		slog.Error("open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	var eng engine.Engine
	switch cfg.Engine.Backend {
	case "mock":
		eng = mock.New()
	default:
		eng = openai.New(cfg.Engine)
	}

	sessions := session.NewManager(cfg.Session)

	b, err := bot.New(cfg, sessions, eng, st)
	if err != nil {
		slog.Error("create bot", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go b.RunSweeper(ctx)

	slog.Info("questline starting",
		"engine", eng.Name(),
		"warning_threshold", cfg.Session.WarningThreshold,
		"timeout_threshold", cfg.Session.TimeoutThreshold)

	b.Start(ctx)
	slog.Info("questline stopped")
}
