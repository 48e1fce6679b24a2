package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"upstox-data/internal/app"
	"upstox-data/internal/slogx"
)

func init() {
	slog.SetDefault(slogx.NewDefault("info"))
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-config file] [run|status]\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	configPath := flag.String("config", "", "YAML config file (default $CONFIG_FILE)")
	flag.Usage = usage
	flag.Parse()

	cmd := "run"
	if flag.NArg() > 0 {
		cmd = flag.Arg(0)
	}
	if cmd != "run" && cmd != "status" {
		usage()
		os.Exit(2)
	}

	a, cleanup, err := InitializeApp(app.ConfigPath(*configPath))
	if err != nil {
		slog.Error("failed to initialize app", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	cfg := a.Config
	slog.SetDefault(a.Logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cmd == "status" {
		if err := app.PrintStatus(ctx, os.Stdout, cfg, a.Recorder); err != nil {
			slog.Error("status failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		slog.Error("failed to create data dir", "error", err)
		os.Exit(1)
	}
	slog.Info("save dir", "dir", cfg.DataDir, "export", cfg.ExportFormat, "workers", cfg.MaxConcurrency, "rps", cfg.RequestsPerSecond)

	if err := app.RunFlow(ctx, a); err != nil {
		slog.Error("run failed", "error", err)
		cleanup()
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}
