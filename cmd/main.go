package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/harborchat/relay/internal/config"
	"github.com/harborchat/relay/internal/handler"
	"github.com/harborchat/relay/internal/hub"
	"github.com/harborchat/relay/internal/ident"
	"github.com/harborchat/relay/internal/relay"
	pkglog "github.com/harborchat/relay/pkg/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Initialize structured logger
	pkglog.Init(pkglog.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, ServiceName: "chat-relay"})
	logger := pkglog.L()

	logger.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("starting chat-relay")

	// Message ID generator
	gen, err := ident.New(cfg.Relay.IDScheme)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create id generator")
	}
	logger.Info().Str("id_scheme", gen.Scheme()).Msg("id generator ready")

	// Transport hub
	h := hub.NewHub()

	// Relay core: one goroutine owns all room and registry state.
	rly := relay.New(cfg.Relay, gen, logger)
	h.OnDisconnect(rly.Disconnect)

	ctx, cancel := context.WithCancel(context.Background())

	go h.Run()
	go rly.Run(ctx)

	// Create handlers
	wsHandler := handler.NewWSHandler(h, rly, cfg.WebSocket)
	httpHandler := handler.NewHTTPHandler(rly)

	// Setup routes
	router := mux.NewRouter()

	// WebSocket endpoint
	router.HandleFunc("/ws", wsHandler.HandleWebSocket)

	// HTTP API endpoints
	router.HandleFunc("/api/v1/users", httpHandler.GetUsers).Methods("GET")
	router.HandleFunc("/api/v1/rooms", httpHandler.GetRooms).Methods("GET")
	router.HandleFunc("/api/v1/rooms/{roomId}/history", httpHandler.GetRoomHistory).Methods("GET")
	router.HandleFunc("/health", httpHandler.HealthCheck).Methods("GET")

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      pkglog.HTTPMiddleware(logger)(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().Str("addr", addr).Msg("chat-relay listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down chat-relay")

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)

		h.Stop() // 1. close all websocket clients, stop Hub.Run()

		cancel()      // 2. stop the relay event loop
		<-rly.Done()  // 3. wait for in-flight event handling to finish

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown error")
		}
	}()

	select {
	case <-shutdownDone:
		logger.Info().Msg("chat-relay stopped")
	case <-time.After(30 * time.Second):
		logger.Warn().Msg("shutdown timed out after 30s")
	}
}
