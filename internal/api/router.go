/**
 * @description
 * This file sets up the HTTP router for the kyc-service. It wires the public health,
 * metrics and webhook endpoints and the authenticated user, reviewer and admin routes.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: routing and standard middleware.
 * - github.com/go-chi/cors: CORS handling.
 * - github.com/prometheus/client_golang: /metrics exposition.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/transfa/kyc-service/internal/domain"
)

// RouterConfig carries the HTTP-level settings for NewRouter.
type RouterConfig struct {
	Auth           AuthMiddlewareConfig
	AllowedOrigins []string
}

// NewRouter creates the kyc-service router.
func NewRouter(cfg RouterConfig, service Service, webhook http.Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"https://*", "http://*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})
	r.Handle("/metrics", promhttp.Handler())

	if webhook != nil {
		r.Method(http.MethodPost, "/webhooks/sumsub", webhook)
	}

	kyc := NewKYCHandler(service)
	profiles := NewProfileHandler(service)

	requireReviewer := RequireRole(domain.Actor.CanReview, "Employee or admin role required")
	requireAdmin := RequireRole(domain.Actor.IsAdmin, "Admin role required")

	r.Group(func(r chi.Router) {
		r.Use(ClerkAuthMiddleware(cfg.Auth))

		r.Group(func(r chi.Router) {
			r.Use(RequireAuthenticated)

			r.Post("/kyc/start", kyc.StartVerification)
			r.Get("/kyc/status", kyc.Status)

			r.Post("/user/profile", profiles.Submit)
			r.Get("/user/profile-requests", profiles.ListOwn)
			r.Delete("/profile-updates/{requestId}", profiles.Cancel)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireReviewer)

			r.Get("/kyc-users", kyc.ListApplicants)
			r.Get("/kyc-users/{userId}", kyc.GetApplicant)
			r.Get("/kyc-users/{userId}/history", kyc.History)
			r.Post("/kyc/manual-decision/{userId}", kyc.ManualDecision)
			r.Post("/kyc/manual-override/{userId}", kyc.ManualOverride)
			r.Patch("/clients/{id}/kyc", kyc.ManualDecision)
			r.Get("/clients/{id}/profile-requests", profiles.ListForClient)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAdmin)

			r.Patch("/clients/{id}/profile-request/{requestId}", profiles.Review)
		})
	})

	return r
}
