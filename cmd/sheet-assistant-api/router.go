// Package main provides the API router setup.
package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/spherical-ai/spherical/libs/sheet-assistant/cmd/sheet-assistant-api/handlers"
	"github.com/spherical-ai/spherical/libs/sheet-assistant/cmd/sheet-assistant-api/middleware"
	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/api/grpc"
	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/config"
	"github.com/spherical-ai/spherical/libs/sheet-assistant/internal/observability"
)

// Pinger reports whether the backing database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// AppConfig holds router configuration.
type AppConfig struct {
	RequestTimeout time.Duration
	AllowedOrigins []string
	AuthConfig     middleware.AuthConfig
}

// AppConfigFrom derives router settings from the loaded configuration.
func AppConfigFrom(cfg *config.Config) *AppConfig {
	return &AppConfig{
		RequestTimeout: cfg.Server.WriteTimeout,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AuthConfig: middleware.AuthConfig{
			Enabled: cfg.Auth.Enabled,
			APIKeys: cfg.Auth.APIKeys,
		},
	}
}

// NewRouter creates the main API router with all routes configured.
func NewRouter(logger *observability.Logger, cfg *AppConfig, a handlers.Assistant, db Pinger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Trace)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	if cfg.RequestTimeout > 0 {
		r.Use(chimiddleware.Timeout(cfg.RequestTimeout))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"sheet-assistant"}`))
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if db != nil {
			if err := db.Ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		w.Write([]byte(`{"status":"ready"}`))
	})

	chatHandler := handlers.NewChatHandler(logger, a)
	adminHandler := handlers.NewAdminHandler(logger, a)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.AuthConfig))

		r.Post("/chat", chatHandler.Chat)
		r.Post("/admin-help", chatHandler.AdminHelp)
		r.Get("/popular", chatHandler.Popular)
		r.Get("/history", chatHandler.History)
		r.Delete("/memory", chatHandler.ClearMemory)

		r.Get("/settings", adminHandler.GetSettings)
		r.Post("/settings", adminHandler.UpdateSettings)
		r.Post("/test-connection", adminHandler.TestConnection)
		r.Post("/refresh", adminHandler.Refresh)
	})

	path, connectHandler := grpc.NewChatService(logger, a).Handler()
	r.With(middleware.Auth(cfg.AuthConfig)).Handle(path+"*", connectHandler)

	return r
}
