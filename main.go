package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/topi314/clubhouse/internal/middlewares"
	"github.com/topi314/clubhouse/internal/xslog"
	"github.com/topi314/clubhouse/server"
	"github.com/topi314/clubhouse/server/web"
)

func main() {
	cfgPath := flag.String("config", "", "path to the clubhouse.toml config file")
	flag.Parse()

	cfg, err := server.LoadConfig(*cfgPath)
	if err != nil {
		slog.Error("Failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	setupLogger(cfg.Log, cfg.Dev)
	slog.Info("Starting clubhouse", slog.String("config", *cfgPath))
	slog.Debug("Config", slog.String("config", cfg.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	srv, err := server.New(ctx, cfg)
	cancel()
	if err != nil {
		slog.Error("Failed to create server", slog.Any("err", err))
		os.Exit(1)
	}

	srv.Start(web.Routes(srv))
	defer srv.Stop()

	slog.Info("Server started", slog.String("addr", cfg.Server.Addr), slog.String("store", string(cfg.Store.Type)))

	s := make(chan os.Signal, 1)
	signal.Notify(s, syscall.SIGTERM, syscall.SIGINT)
	<-s
}

func setupLogger(cfg server.LogConfig, dev bool) {
	opts := &slog.HandlerOptions{
		AddSource: cfg.AddSource || dev,
		Level:     cfg.Level,
	}
	if dev {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Format == server.LogFormatJSON {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(xslog.NewFilterHandler(handler, middlewares.QuietPaths(cfg.QuietPaths))))
}
