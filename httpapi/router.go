package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/marketlake/lake/middleware"
)

// NewRouter returns a configured chi Router with the full middleware chain
// and every route in §6 of the design mounted.
func NewRouter(d *Deps) http.Handler {
	r := chi.NewRouter()

	// --- Middleware chain (order matters) ---
	r.Use(middleware.CORS([]string{"*"}))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger(d))
	r.Use(maxBodySize(d.Config.MaxBodyBytes))

	// --- Health / metrics (no auth) ---
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if d.Metrics != nil {
		r.Get("/metrics", d.Metrics.Handler().ServeHTTP)
	}

	authMW := middleware.NewAuthMiddleware(d.Log, d.Config.APIKeyHeader, d.Config.APIKey)
	rateLimiter := middleware.NewRateLimiter(d.Log, d.Config.RateLimitEnabled, d.Config.RateLimitRPM)
	headerNorm := middleware.NewHeaderNormalization(d.Log)
	timeoutMW := middleware.NewTimeoutMiddleware(d.Log, d.Config)

	q := &queryHandler{d: d}
	ds := &datasetsHandler{d: d}
	ing := &ingestHandler{d: d}
	exp := &exportHandler{d: d}
	feat := &featuresHandler{d: d}

	r.Group(func(r chi.Router) {
		r.Use(authMW.Handler)
		r.Use(rateLimiter.Handler)
		r.Use(headerNorm.Handler)
		r.Use(timeoutMW.Handler)

		r.Get("/list", q.List)
		r.Get("/read", q.Read)

		r.Get("/datasets", ds.List)
		r.Get("/datasets/{id}/preview", ds.Preview)
		r.Get("/datasets/{id}/export", ds.Export)
		r.Delete("/datasets/{id}", ds.Delete)

		r.Post("/ingest/download", ing.Download)
		r.Post("/ingest/bulk-download", ing.BulkDownload)
		r.Get("/ingest/status", ing.Status)
		r.Delete("/ingest/exchanges/{exchange}/markets/{market}/history", ing.DeleteHistory)
		r.Get("/ingest/exchanges", ing.ListExchanges)
		r.Get("/ingest/exchanges/{exchange}/markets", ing.ListMarkets)
		r.Get("/ingest/exchanges/{exchange}/symbols", ing.ListSymbols)

		r.Get("/export/{exchange}/{symbol}", exp.Aggregate)

		r.Post("/features/upload", feat.Upload)
		r.Get("/features", feat.List)
		r.Get("/features/sets", feat.Sets)
		r.Get("/features/{id}", feat.Get)
		r.Get("/features/{id}/download", feat.Download)
		r.Delete("/features/{id}", feat.Delete)
	})

	return r
}

func maxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = 10 * 1024 * 1024
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > 0 && r.ContentLength > maxBytes {
				writeDetail(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

func requestLogger(d *Deps) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(rw, r)
			d.Log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("req_id", r.Header.Get("X-Request-ID")).
				Int("status", rw.Status()).
				Msg("request completed")
		})
	}
}
