// Package api exposes recovery state, manual recovery requests and
// Prometheus metrics over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/zraid/internal/domain"
	zerrors "github.com/zzenonn/zraid/internal/errors"
	"github.com/zzenonn/zraid/internal/monitor"
)

// Recoveries is the orchestrator as seen by the API.
type Recoveries interface {
	RequestRecovery(node string) (domain.NodeState, error)
	Nodes() []domain.NodeRecord
	Sessions() []domain.RecoverySession
	Queue() []string
}

// HealthSource reports the last observed node health.
type HealthSource interface {
	AllNodeHealth() []monitor.NodeHealth
}

type Handler struct {
	recoveries Recoveries
	health     HealthSource
	logger     log.FieldLogger
}

// NewHandler builds the router. health may be nil when no monitor runs.
func NewHandler(recoveries Recoveries, health HealthSource, gatherer prometheus.Gatherer, logger log.FieldLogger) http.Handler {
	if logger == nil {
		logger = log.StandardLogger()
	}
	h := &Handler{
		recoveries: recoveries,
		health:     health,
		logger:     logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", h.healthz)
	r.Get("/nodes", h.listNodes)
	r.Post("/nodes/{node}/recover", h.recoverNode)
	r.Get("/sessions", h.listSessions)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}

type nodesResponse struct {
	Nodes  []domain.NodeRecord  `json:"nodes"`
	Health []monitor.NodeHealth `json:"health,omitempty"`
}

type sessionsResponse struct {
	Sessions []domain.RecoverySession `json:"sessions"`
	Queue    []string                 `json:"queue"`
}

type recoverResponse struct {
	Node  string           `json:"node"`
	State domain.NodeState `json:"state"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) listNodes(w http.ResponseWriter, r *http.Request) {
	resp := nodesResponse{Nodes: h.recoveries.Nodes()}
	if h.health != nil {
		resp.Health = h.health.AllNodeHealth()
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, sessionsResponse{
		Sessions: h.recoveries.Sessions(),
		Queue:    h.recoveries.Queue(),
	})
}

func (h *Handler) recoverNode(w http.ResponseWriter, r *http.Request) {
	node := chi.URLParam(r, "node")
	state, err := h.recoveries.RequestRecovery(node)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, zerrors.ErrInvalidKey):
			status = http.StatusBadRequest
		case errors.Is(err, zerrors.ErrStopped):
			status = http.StatusServiceUnavailable
		}
		h.writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}
	h.logger.WithField("node", node).Infof("Recovery requested over HTTP, node is %s", state)
	h.writeJSON(w, http.StatusAccepted, recoverResponse{Node: node, State: state})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Errorf("Failed to write response: %v", err)
	}
}
