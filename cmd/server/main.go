package main

import (
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/omochice/event-relay/internal/config"
	"github.com/omochice/event-relay/internal/server"
)

func main() {
	envFile := flag.String("env-file", ".env", "Optional .env file providing PORT")
	host := flag.String("host", "", "Host to bind (empty for all interfaces)")
	static := flag.String("static", "", "Directory of pages served on non-WebSocket requests")
	path := flag.String("path", server.DefaultPath, "WebSocket upgrade path")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*envFile)
	if err != nil {
		logger.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	cfg.Host = *host

	opts := []server.Option{server.WithLogger(logger), server.WithPath(*path)}
	if *static != "" {
		opts = append(opts, server.WithPages(http.FileServer(http.Dir(*static))))
	}
	srv := server.New(cfg.Addr(), opts...)

	if err := srv.Listen(); err != nil {
		logger.Error("failed to listen", "addr", cfg.Addr(), "err", err)
		os.Exit(1)
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve()
	}()

	select {
	case err := <-errChan:
		if err != nil {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	case sig := <-sigChan:
		logger.Info("shutting down", "signal", sig.String())
		srv.Stop()
	}

	logger.Info("server stopped")
}
