package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/sentinel/internal/auth"
	"github.com/haasonsaas/sentinel/internal/config"
	"github.com/haasonsaas/sentinel/internal/observability"
)

// buildMetrics registers the Prometheus collector set, or returns nil
// when metrics are disabled — every call site must tolerate a nil
// *observability.Metrics.
func buildMetrics(cfg *config.Config) *observability.Metrics {
	if !cfg.Observability.Metrics.Enabled {
		return nil
	}
	return observability.NewMetrics()
}

// buildTracer starts the OTLP tracer, or returns a no-op shutdown when
// tracing is disabled (empty endpoint).
func buildTracer(cfg *config.Config) (*observability.Tracer, func(context.Context) error, error) {
	if !cfg.Observability.Tracing.Enabled || cfg.Observability.Tracing.Endpoint == "" {
		return nil, func(context.Context) error { return nil }, nil
	}
	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
		ServiceName:  "sentinel",
		Endpoint:     cfg.Observability.Tracing.Endpoint,
		SamplingRate: cfg.Observability.Tracing.SamplingRate,
	})
	return tracer, shutdown, nil
}

// buildJWTService builds the control plane's JWT verifier, or a
// disabled one (Enabled() == false) when no secret is configured.
func buildJWTService(cfg *config.Config) *auth.JWTService {
	secret := config.ResolveSecret(cfg.Auth.JWTSecretEnv)
	return auth.NewJWTService(secret, cfg.Auth.TokenExpiry)
}

// startControlPlane serves /healthz and, when metrics are enabled,
// /metrics on security.control_plane_addr — behind auth.RequireBearer
// whenever a JWT secret is configured. Returns nil if no control-plane
// address is configured, so callers can unconditionally defer Close.
func startControlPlane(cfg *config.Config, jwtService *auth.JWTService) *http.Server {
	if cfg.Security.ControlPlaneAddr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if cfg.Observability.Metrics.Enabled {
		mux.Handle("/metrics", promhttp.Handler())
	}

	var handler http.Handler = mux
	if jwtService.Enabled() {
		handler = auth.RequireBearer(jwtService, slog.Default(), mux)
	}

	server := &http.Server{
		Addr:              cfg.Security.ControlPlaneAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("control plane server stopped", "error", err)
		}
	}()
	return server
}
