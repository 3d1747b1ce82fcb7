package handlers

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/upb/hsn-classifier/middleware"
	"github.com/upb/hsn-classifier/models"
	"github.com/upb/hsn-classifier/services"
	"github.com/upb/hsn-classifier/utils"
	"go.uber.org/zap"
)

const (
	// BatchFormField is the multipart field carrying the uploaded file
	BatchFormField = "csv_file"
	// BatchResultFilename is the name of the downloaded export
	BatchResultFilename = "hsn_predictions.csv"
	// SampleFilename is the name of the downloadable template
	SampleFilename = "sample_products.csv"

	csvContentType = "text/csv"
)

//go:embed sample_products.csv
var sampleProducts []byte

// BatchService defines the interface for processing batch files
type BatchService interface {
	Process(ctx context.Context, in io.Reader, out io.Writer) ([]models.BatchRow, error)
}

// BatchHandler handles bulk prediction uploads
type BatchHandler struct {
	service        BatchService
	maxUploadBytes int64
	logger         *zap.Logger
}

// NewBatchHandler creates a new BatchHandler
func NewBatchHandler(service BatchService, maxUploadBytes int64, logger *zap.Logger) *BatchHandler {
	return &BatchHandler{
		service:        service,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// HandleBulkPredict handles POST /api/v1/predict/bulk
func (h *BatchHandler) HandleBulkPredict(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	// A batch outlives the server read and write timeouts; the row deadline bounds it instead.
	clearConnDeadlines(w)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			_ = utils.WriteError(w, http.StatusRequestEntityTooLarge, "Uploaded file is too large", map[string]interface{}{
				"limit_bytes": tooLarge.Limit,
			})
			return
		}
		HandleServiceError(w, services.ErrMissingFile, h.logger)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(BatchFormField)
	if err != nil {
		HandleServiceError(w, services.ErrMissingFile, h.logger)
		return
	}
	defer file.Close()

	if header.Filename == "" || !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
		h.logger.Warn("rejected batch upload",
			zap.String("request_id", requestID),
			zap.String("filename", header.Filename))
		HandleServiceError(w, services.ErrInvalidFile, h.logger)
		return
	}

	var out bytes.Buffer
	rows, err := h.service.Process(ctx, file, &out)
	if err != nil {
		h.logger.Warn("batch rejected",
			zap.String("request_id", requestID),
			zap.String("filename", header.Filename),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("batch served",
		zap.String("request_id", requestID),
		zap.String("filename", header.Filename),
		zap.Int("rows", len(rows)))

	if err := utils.WriteAttachment(w, csvContentType, BatchResultFilename, out.Bytes()); err != nil {
		h.logger.Error("failed to write batch export",
			zap.String("request_id", requestID),
			zap.Error(err))
	}
}

// HandleSample handles GET /api/v1/predict/sample
func (h *BatchHandler) HandleSample(w http.ResponseWriter, r *http.Request) {
	if err := utils.WriteAttachment(w, csvContentType, SampleFilename, sampleProducts); err != nil {
		h.logger.Error("failed to write sample file", zap.Error(err))
	}
}

// SampleProducts returns the bundled template file
func SampleProducts() []byte {
	return append([]byte(nil), sampleProducts...)
}

func clearConnDeadlines(w http.ResponseWriter) {
	rc := http.NewResponseController(w)
	// ErrNotSupported is expected from recorders and wrapped writers.
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})
}
