package handlers

import (
	"context"
	"encoding/json"
	"mime"
	"net/http"

	"github.com/upb/hsn-classifier/middleware"
	"github.com/upb/hsn-classifier/models"
	"github.com/upb/hsn-classifier/services/prediction"
	"github.com/upb/hsn-classifier/utils"
	"go.uber.org/zap"
)

// PredictRequest is the body of POST /api/v1/predict, as JSON or form fields
type PredictRequest struct {
	ProductName string `json:"product_name" validate:"required"`
	Description string `json:"description"`
	Region      string `json:"region" validate:"omitempty,oneof=India International"`
}

// PredictionService defines the interface for resolving predictions
type PredictionService interface {
	Predict(ctx context.Context, channel models.PredictionChannel, req models.ClassificationRequest) prediction.Result
}

// PredictionHandler handles interactive prediction requests
type PredictionHandler struct {
	service PredictionService
	logger  *zap.Logger
}

// NewPredictionHandler creates a new PredictionHandler
func NewPredictionHandler(service PredictionService, logger *zap.Logger) *PredictionHandler {
	return &PredictionHandler{
		service: service,
		logger:  logger,
	}
}

// HandlePredict handles POST /api/v1/predict
func (h *PredictionHandler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	predictReq, err := decodePredictRequest(r)
	if err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(&predictReq); err != nil {
		h.logger.Warn("request validation failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleValidationError(w, err, h.logger)
		return
	}

	req := models.NewClassificationRequest(predictReq.ProductName, predictReq.Description, predictReq.Region)
	result := h.service.Predict(ctx, models.PredictionChannelInteractive, req)

	h.logger.Info("prediction served",
		zap.String("request_id", requestID),
		zap.String("provider", result.Provider),
		zap.String("hsn_code", result.Record.HSNCode),
		zap.Duration("latency", result.Latency))

	if err := utils.WriteJSON(w, http.StatusOK, result.Record); err != nil {
		h.logger.Error("failed to write response",
			zap.String("request_id", requestID),
			zap.Error(err))
	}
}

// decodePredictRequest accepts a JSON body or url-encoded/multipart form fields
func decodePredictRequest(r *http.Request) (PredictRequest, error) {
	var req PredictRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if mediaType == "multipart/form-data" {
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				return req, err
			}
		} else if err := r.ParseForm(); err != nil {
			return req, err
		}
		req.ProductName = r.PostFormValue("product_name")
		req.Description = r.PostFormValue("description")
		req.Region = r.PostFormValue("region")
		return req, nil

	default:
		err := json.NewDecoder(r.Body).Decode(&req)
		return req, err
	}
}
