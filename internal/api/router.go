/**
 * @description
 * This file sets up the HTTP router for the pass-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies
 * the necessary middleware. Import endpoints stream Server-Sent Events, so
 * they live outside the request-timeout group.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/prometheus/client_golang: Metrics exposition.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PassRoutes creates and returns the router for the pass service.
func PassRoutes(h *PassHandlers, apiKey string, metricsEnabled bool) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging and panic recovery.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	// Group routes that require the internal API key.
	r.Group(func(r chi.Router) {
		r.Use(InternalAuthMiddleware(apiKey))

		// Non-streaming endpoints get a request timeout.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			// Query endpoints
			r.Post("/passes/query", h.QueryPassesHandler)
			r.Post("/passes/export", h.ExportPassesHandler)
			r.Post("/passes/lookup", h.LookupPassesHandler)
			r.Get("/passes/due-in/{days}", h.DueInDaysHandler)
			r.Get("/passes/{universityID}/{careerID}/{uid}", h.GetPassHandler)

			// Single-pass mutations
			r.Post("/passes", h.CreatePassHandler)
			r.Put("/passes/{universityID}/{careerID}/{uid}/wallet", h.LinkWalletHandler)

			// Bulk mutation endpoints
			r.Post("/passes/bulk/status", h.BulkSetStatusHandler)
			r.Post("/passes/bulk/paid", h.BulkMarkPaidHandler)
			r.Post("/passes/bulk/overdue", h.BulkMarkOverdueHandler)
			r.Post("/passes/bulk/cashback", h.BulkSetCashbackHandler)
			r.Post("/passes/bulk/notify", h.BulkNotifyHandler)
			r.Post("/passes/bulk/due", h.BulkMarkDueHandler)
		})

		// Streaming import endpoints hold the response open for the whole
		// pipeline run, so no timeout middleware here.
		r.Post("/passes/import", h.ImportPassesHandler)
		r.Post("/passes/import/spreadsheet", h.ImportSpreadsheetHandler)
	})

	return r
}
