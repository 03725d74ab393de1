// Copyright 2026 The SyncSketch Authors
// SPDX-License-Identifier: Apache-2.0

// Syncsketch-relay is the websocket fan-out server that rooms run on.
// One process serves any number of independent rooms.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/syncsketch/syncsketch/lib/clock"
	"github.com/syncsketch/syncsketch/lib/version"
	"github.com/syncsketch/syncsketch/relay"
)

// shutdownGrace bounds how long in-flight connections get on SIGTERM.
const shutdownGrace = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		listen      string
		logLevel    string
		logFormat   string
		showVersion bool
	)
	pflag.StringVar(&configPath, "config", "", "path to YAML config file")
	pflag.StringVar(&listen, "listen", "", "listen address, overrides the config file")
	pflag.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	pflag.StringVar(&logFormat, "log-format", "", "log format: text or json")
	pflag.BoolVar(&showVersion, "version", false, "print version information and exit")
	pflag.Parse()

	if showVersion {
		fmt.Printf("syncsketch-relay %s\n", version.Full())
		return nil
	}

	cfg, err := relay.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.Listen = listen
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	server := relay.New(cfg, clock.Real(), logger)
	httpServer := &http.Server{
		Addr:    cfg.Listen,
		Handler: server.Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		logger.Info("relay listening",
			"addr", cfg.Listen,
			"ended-room-retention", cfg.EndedRoomRetention,
			"version", version.Info(),
		)
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

func newLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("parsing log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	default:
		return nil, errors.New("log format must be text or json")
	}
}
