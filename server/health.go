package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ar-conmit/hedera-mirror-node/ingest"
	"github.com/ar-conmit/hedera-mirror-node/logging"
	"github.com/ar-conmit/hedera-mirror-node/metrics"
)

// StatusProvider exposes pipeline progress
type StatusProvider interface {
	Stats() ingest.Stats
	Healthy() bool
}

// Pinger checks store connectivity
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthServer provides health, readiness, stats and metrics endpoints
type HealthServer struct {
	port      int
	startTime time.Time
	pipeline  StatusProvider
	db        Pinger
	metrics   *metrics.Collector
	logger    *logging.ComponentLogger
	server    *http.Server
}

// HealthResponse is the JSON response for /health
type HealthResponse struct {
	Status       string `json:"status"`
	Uptime       string `json:"uptime"`
	Running      bool   `json:"running"`
	LastIndex    int64  `json:"last_index"`
	LastCommitAt string `json:"last_commit_at,omitempty"`
	LastError    string `json:"last_error,omitempty"`
}

func NewHealthServer(port int, pipeline StatusProvider, db Pinger, m *metrics.Collector, logger *logging.ComponentLogger) *HealthServer {
	if logger == nil {
		logger = logging.Nop()
	}
	return &HealthServer{
		port:      port,
		startTime: time.Now(),
		pipeline:  pipeline,
		db:        db,
		metrics:   m,
		logger:    logger.With("health"),
	}
}

// Router builds the HTTP routes.
func (hs *HealthServer) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/health", hs.handleHealth).Methods("GET")
	router.HandleFunc("/ready", hs.handleReady).Methods("GET")
	router.HandleFunc("/stats", hs.handleStats).Methods("GET")
	if hs.metrics != nil {
		router.Handle("/metrics", hs.metrics.Handler()).Methods("GET")
	}
	return router
}

// Start serves in the background
func (hs *HealthServer) Start() error {
	hs.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", hs.port),
		Handler:           hs.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := hs.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			hs.logger.Error().Err(err).Msg("Health server error")
		}
	}()

	hs.logger.Info().Int("port", hs.port).Msg("Health server listening")
	return nil
}

// Stop gracefully stops the health server
func (hs *HealthServer) Stop(ctx context.Context) error {
	if hs.server == nil {
		return nil
	}
	return hs.server.Shutdown(ctx)
}

func (hs *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := hs.pipeline.Stats()
	resp := HealthResponse{
		Status:    "healthy",
		Uptime:    time.Since(hs.startTime).String(),
		Running:   stats.Running,
		LastIndex: stats.LastIndex,
		LastError: stats.LastError,
	}
	if !stats.LastCommitAt.IsZero() {
		resp.LastCommitAt = stats.LastCommitAt.Format(time.RFC3339)
	}

	code := http.StatusOK
	if !hs.pipeline.Healthy() {
		resp.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (hs *HealthServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := hs.db.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (hs *HealthServer) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, hs.pipeline.Stats())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
