// Package chi exposes the usage read surface over HTTP: the latest usage
// snapshot, a health endpoint and Prometheus metrics.
package chi

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/WDelesposti/tokie/internal/domain/usage"
	logpkg "github.com/WDelesposti/tokie/internal/logger"
	"github.com/WDelesposti/tokie/internal/version"
)

// SnapshotSource yields the latest usage snapshot.
type SnapshotSource interface {
	Snapshot() (usage.Record, bool)
}

// Server serves the usage API.
type Server struct {
	src    SnapshotSource
	logger *zap.Logger
}

// NewServer creates an HTTP API server over a snapshot source.
func NewServer(src SnapshotSource, logger *zap.Logger) *Server {
	return &Server{src: src, logger: logger}
}

type usageResponse struct {
	SessionID    string `json:"sessionId"`
	SessionStart int64  `json:"sessionStart"`
	PlanType     string `json:"planType"`
	InputTokens  int    `json:"inputTokens"`
	OutputTokens int    `json:"outputTokens"`
	TotalTokens  int    `json:"totalTokens"`
	MaxTokens    int    `json:"maxTokens"`
	Remaining    int    `json:"remaining"`
	Syncing      bool   `json:"syncing"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// GetUsage handles GET /usage.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.src.Snapshot()
	if !ok {
		logpkg.FromContext(r.Context()).Debug("usage requested before first snapshot")
		writeError(w, http.StatusNotFound, "no_session", "No session tracked yet")
		return
	}

	writeJSON(w, http.StatusOK, usageResponse{
		SessionID:    snap.SessionID(),
		SessionStart: snap.SessionStart(),
		PlanType:     string(snap.Plan()),
		InputTokens:  snap.InputTokens(),
		OutputTokens: snap.OutputTokens(),
		TotalTokens:  snap.TotalTokens(),
		MaxTokens:    snap.MaxTokens(),
		Remaining:    snap.Remaining(),
		Syncing:      snap.Syncing(),
	})
}

// HealthCheck handles GET /healthz.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}
