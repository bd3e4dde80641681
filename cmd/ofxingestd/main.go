package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/granafin/ofxingest/internal/config"
	"github.com/granafin/ofxingest/internal/logger"
	"github.com/granafin/ofxingest/internal/server"
)

const version = "0.1.0"

var (
	versionFlag = flag.Bool("version", false, "Show version")

	configFile = flag.String("config", "", "YAML config file (optional)")
	listenAddr = flag.String("listen", "", "Listen address (overrides config)")
)

func main() {
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, `ofxingestd - OFX bank statement ingestion server

Usage:
  ofxingestd [flags]

Flags:
`)
		flag.PrintDefaults()
		fmt.Fprint(os.Stderr, `
Examples:
  # Start with the in-memory backend on :8080
  ofxingestd

  # Start with a config file
  ofxingestd -config ofxingest.yaml

  # Override the listen address
  ofxingestd -config ofxingest.yaml -listen :9090

`)
	}

	flag.Parse()

	if *versionFlag {
		fmt.Printf("ofxingestd version %s\n", version)
		os.Exit(0)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}

	log := logger.New(cfg.LogLevel)

	srv, err := server.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer srv.Close()

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", cfg.ListenAddr).
			Str("backend", cfg.Storage.Backend).
			Msg("server listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
