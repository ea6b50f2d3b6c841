package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"perfhrm/internal/transport/http/api"
	audithandler "perfhrm/internal/transport/http/handlers/audit"
	evaluationhandler "perfhrm/internal/transport/http/handlers/evaluation"
	notificationshandler "perfhrm/internal/transport/http/handlers/notifications"
	"perfhrm/internal/transport/http/middleware"
)

func (a *App) routes() http.Handler {
	cfg := a.Config

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	if cfg.MetricsEnabled {
		router.Use(middleware.Logger(a.Metrics))
	} else {
		router.Use(middleware.Logger(nil))
	}
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.SecurityHeaders)
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	router.Use(middleware.Auth(cfg.JWTSecret))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if a.DB != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := a.DB.Ping(ctx); err != nil {
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if cfg.MetricsEnabled {
		router.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			api.Success(w, a.Metrics.Snapshot(), middleware.GetRequestID(r.Context()))
		})
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute))
		r.Use(middleware.TransitionRateLimit(cfg.RateLimitPerMinute, time.Minute))

		evaluationHandler := evaluationhandler.NewHandler(a.Evaluation, a.perms, a.recorder, a.Notifications)
		evaluationHandler.Reports = a
		evaluationHandler.RegisterRoutes(r)
		notificationshandler.NewHandler(a.Notifications).RegisterRoutes(r)
		if a.auditReader != nil {
			audithandler.NewHandler(a.auditReader, a.perms).RegisterRoutes(r)
		}
	})

	return router
}
