package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/upb/hsn-classifier/internal/observability"
	"github.com/upb/hsn-classifier/services/audit"
	"github.com/upb/hsn-classifier/utils"
	"go.uber.org/zap"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// StatusResponse describes the running service
type StatusResponse struct {
	Version        string                         `json:"version"`
	Environment    string                         `json:"environment"`
	Providers      []string                       `json:"providers"`
	HistoryEnabled bool                           `json:"history_enabled"`
	AuthEnabled    bool                           `json:"auth_enabled"`
	Metrics        *observability.MetricsSnapshot `json:"metrics,omitempty"`
	History        *audit.Stats                   `json:"history,omitempty"`
}

// ProviderLister reports the configured providers in resolution order
type ProviderLister interface {
	Providers() []string
}

// HistoryStats reports the history writer state
type HistoryStats interface {
	GetStats() audit.Stats
}

// StatusInfo is the static part of the status report
type StatusInfo struct {
	Version     string
	Environment string
	AuthEnabled bool
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	db        *sql.DB
	providers ProviderLister
	metrics   *observability.Metrics
	history   HistoryStats
	info      StatusInfo
	logger    *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. db, metrics and history may be nil.
func NewHealthHandler(db *sql.DB, providers ProviderLister, metrics *observability.Metrics, history HistoryStats, info StatusInfo, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:        db,
		providers: providers,
		metrics:   metrics,
		history:   history,
		info:      info,
		logger:    logger,
	}
}

// HandleHealth handles GET /healthz
// Basic health check - always returns 200 if service is running
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	_ = utils.WriteOK(w, response)
}

// HandleReadiness handles GET /readyz
// Readiness check - validates that all dependencies are available
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	if h.db == nil {
		checks["database"] = "disabled"
	} else if err := h.checkDatabase(ctx); err != nil {
		h.logger.Warn("database health check failed", zap.Error(err))
		checks["database"] = "unhealthy"
		allHealthy = false
	} else {
		checks["database"] = "healthy"
	}

	if h.providers == nil || len(h.providers.Providers()) == 0 {
		checks["providers"] = "none_configured"
		allHealthy = false
	} else {
		checks["providers"] = "configured"
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !allHealthy {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	if err := utils.WriteJSON(w, httpStatus, utils.SuccessResponse{Data: response}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

// HandleStatus handles GET /api/v1/status
func (h *HealthHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	response := StatusResponse{
		Version:        h.info.Version,
		Environment:    h.info.Environment,
		Providers:      []string{},
		HistoryEnabled: h.history != nil,
		AuthEnabled:    h.info.AuthEnabled,
	}
	if h.providers != nil {
		response.Providers = h.providers.Providers()
	}
	if h.metrics != nil {
		snap := h.metrics.Snapshot()
		response.Metrics = &snap
	}
	if h.history != nil {
		stats := h.history.GetStats()
		response.History = &stats
	}

	_ = utils.WriteOK(w, response)
}

// checkDatabase checks database connectivity
func (h *HealthHandler) checkDatabase(ctx context.Context) error {
	if err := h.db.PingContext(ctx); err != nil {
		return err
	}

	var result int
	return h.db.QueryRowContext(ctx, "SELECT 1").Scan(&result)
}
