package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/upb/hsn-classifier/models"
	"github.com/upb/hsn-classifier/repositories"
	"github.com/upb/hsn-classifier/services"
	"github.com/upb/hsn-classifier/utils"
	"go.uber.org/zap"
)

// HistoryService defines the interface for reading the prediction history
type HistoryService interface {
	List(ctx context.Context, filter repositories.PredictionLogFilter, limit, offset int) ([]*models.PredictionLog, error)
	Get(ctx context.Context, id uuid.UUID) (*models.PredictionLog, error)
}

// HistoryEntry is one history item as returned by the API
type HistoryEntry struct {
	*models.PredictionLog
	Record models.PredictionRecord `json:"record"`
}

// HistoryListResponse is the body of GET /api/v1/predictions
type HistoryListResponse struct {
	Predictions []HistoryEntry `json:"predictions"`
	Limit       int            `json:"limit"`
	Offset      int            `json:"offset"`
}

// HistoryHandler serves the prediction history. A nil service means history is disabled.
type HistoryHandler struct {
	service HistoryService
	logger  *zap.Logger
}

// NewHistoryHandler creates a new HistoryHandler
func NewHistoryHandler(service HistoryService, logger *zap.Logger) *HistoryHandler {
	return &HistoryHandler{
		service: service,
		logger:  logger,
	}
}

// HandleList handles GET /api/v1/predictions
func (h *HistoryHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		HandleServiceError(w, services.ErrHistoryDisabled, h.logger)
		return
	}

	query := r.URL.Query()

	limit, err := intParam(query.Get("limit"), 0)
	if err != nil {
		_ = utils.WriteBadRequest(w, "limit must be an integer", nil)
		return
	}
	offset, err := intParam(query.Get("offset"), 0)
	if err != nil {
		_ = utils.WriteBadRequest(w, "offset must be an integer", nil)
		return
	}

	filter := repositories.PredictionLogFilter{
		Provider: query.Get("provider"),
		HSNCode:  query.Get("hsn_code"),
	}
	if channel := query.Get("channel"); channel != "" {
		allowed := []string{string(models.PredictionChannelInteractive), string(models.PredictionChannelBatch)}
		if err := utils.ValidateOneOf(channel, "channel", allowed); err != nil {
			_ = utils.WriteBadRequest(w, err.Error(), nil)
			return
		}
		filter.Channel = models.PredictionChannel(channel)
	}
	if region := query.Get("region"); region != "" {
		allowed := []string{string(models.RegionIndia), string(models.RegionInternational)}
		if err := utils.ValidateOneOf(region, "region", allowed); err != nil {
			_ = utils.WriteBadRequest(w, err.Error(), nil)
			return
		}
		filter.Region = models.Region(region)
	}

	logs, err := h.service.List(r.Context(), filter, limit, offset)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	entries := make([]HistoryEntry, 0, len(logs))
	for _, log := range logs {
		entries = append(entries, HistoryEntry{PredictionLog: log, Record: log.Record()})
	}

	_ = utils.WriteOK(w, HistoryListResponse{
		Predictions: entries,
		Limit:       limit,
		Offset:      offset,
	})
}

// HandleGet handles GET /api/v1/predictions/{id}
func (h *HistoryHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		HandleServiceError(w, services.ErrHistoryDisabled, h.logger)
		return
	}

	idParam := chi.URLParam(r, "id")
	if err := utils.ValidateUUID(idParam); err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	log, err := h.service.Get(r.Context(), uuid.MustParse(idParam))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, HistoryEntry{PredictionLog: log, Record: log.Record()})
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
