package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/RAHAT11790/RS-ANIME-02-sub000/internal/dispatch"
	"github.com/RAHAT11790/RS-ANIME-02-sub000/internal/registry"
	"github.com/RAHAT11790/RS-ANIME-02-sub000/pkg/metrics"
)

// New creates the service router: the dispatch and registration endpoints
// plus health and metrics.
func New(engine *dispatch.Engine, reg *registry.Registry, m *metrics.Metrics, logger *slog.Logger) *mux.Router {
	h := &handlers{engine: engine, registry: reg, logger: logger}
	started := time.Now()

	r := mux.NewRouter()
	r.HandleFunc("/api/notifications/dispatch", h.dispatch).Methods(http.MethodPost)
	r.HandleFunc("/api/notifications/register", h.register).Methods(http.MethodPost)
	r.HandleFunc("/api/notifications/tokens", h.deleteTokens).Methods(http.MethodDelete)
	r.HandleFunc("/health", healthHandler(started)).Methods(http.MethodGet)
	r.Handle("/metrics", m.Handler()).Methods(http.MethodGet)
	return r
}

func healthHandler(started time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"message": "notification service healthy",
			"meta": map[string]interface{}{
				"uptime_seconds": int(time.Since(started).Seconds()),
				"timestamp":      time.Now().UTC(),
			},
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error":   code,
		"message": message,
	})
}
