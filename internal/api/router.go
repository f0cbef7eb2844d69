package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/eodsnap/internal/api/handlers"
	"github.com/wonny/eodsnap/pkg/logger"
)

// Handlers groups every endpoint handler of the read API
type Handlers struct {
	Snapshots *handlers.SnapshotHandler
	Runs      *handlers.RunsHandler
	Universe  *handlers.UniverseHandler
	Metrics   http.Handler // nil = /metrics not exposed
}

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(h Handlers, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")
	if h.Metrics != nil {
		r.Handle("/metrics", h.Metrics).Methods("GET")
	}

	// /api 라우트는 루트 라우터에 등록 (메서드 불일치 = 405)
	// Snapshot endpoints (final documents only)
	r.HandleFunc("/api/snapshots/{symbol}/close", h.Snapshots.GetClose).Methods("GET")
	r.HandleFunc("/api/snapshots/{symbol}/calls", h.Snapshots.GetCalls).Methods("GET")
	r.HandleFunc("/api/snapshots/{symbol}/leaps", h.Snapshots.GetLeaps).Methods("GET")

	// Run endpoints
	r.HandleFunc("/api/runs/latest", h.Runs.GetLatest).Methods("GET")
	r.HandleFunc("/api/runs/{runID}/records", h.Runs.GetRecords).Methods("GET")

	if h.Universe != nil {
		r.HandleFunc("/api/universe/latest", h.Universe.GetLatest).Methods("GET")
	}

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "eodsnap-api",
	})
}

// statusRecorder keeps the status code for the access log
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
