package batch

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/upb/hsn-classifier/internal/observability"
	"github.com/upb/hsn-classifier/models"
	"github.com/upb/hsn-classifier/services"
	"github.com/upb/hsn-classifier/services/prediction"
)

// CancelledExplanation is recorded for rows that were not started because the batch was cancelled
const CancelledExplanation = "Batch was cancelled before this row was processed."

// Predictor resolves a single request
type Predictor interface {
	Predict(ctx context.Context, channel models.PredictionChannel, req models.ClassificationRequest) prediction.Result
}

// Runner classifies batches of requests one row at a time
type Runner struct {
	predictor  Predictor
	rowTimeout time.Duration
	logger     *zap.Logger
}

// NewRunner creates a new batch runner. A zero rowTimeout disables the per-row deadline.
func NewRunner(predictor Predictor, rowTimeout time.Duration, logger *zap.Logger) *Runner {
	return &Runner{
		predictor:  predictor,
		rowTimeout: rowTimeout,
		logger:     logger,
	}
}

// ReadRequests parses a batch file. The first row is a header and is
// skipped. Each data row holds product_name, description and an optional
// region; a row with fewer than two columns fails the whole read.
func ReadRequests(r io.Reader) ([]models.ClassificationRequest, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	requests := []models.ClassificationRequest{}
	header := true

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, services.WrapError(services.ErrorTypeValidation, "invalid CSV file", err)
		}

		if header {
			header = false
			continue
		}

		if len(record) < 2 {
			line, _ := reader.FieldPos(0)
			return nil, services.NewMalformedBatchRowError(line, len(record))
		}

		region := ""
		if len(record) > 2 {
			region = record[2]
		}

		requests = append(requests, models.NewClassificationRequest(
			record[0],
			record[1],
			region,
		))
	}

	return requests, nil
}

// Run resolves every request in order, starting each row only after the
// previous one finished. The output has one row per request, in input order.
func (r *Runner) Run(ctx context.Context, requests []models.ClassificationRequest) []models.BatchRow {
	start := time.Now()
	rows := make([]models.BatchRow, len(requests))
	logger := observability.WithRequestID(ctx, r.logger)

	logger.Info("batch started", zap.Int("rows", len(requests)))

	for i, req := range requests {
		rows[i] = models.BatchRow{Ordinal: i + 1, Request: req}

		if ctx.Err() != nil {
			rows[i].Record = models.SentinelRecord(models.HSNError, CancelledExplanation)
			continue
		}

		result := r.resolveRow(ctx, req)
		rows[i].Record = result.Record

		logger.Debug("batch row resolved",
			zap.Int("ordinal", i+1),
			zap.String("provider", result.Provider),
			zap.String("hsn_code", result.Record.HSNCode),
			zap.Duration("latency", result.Latency),
		)
	}

	logger.Info("batch finished",
		zap.Int("rows", len(rows)),
		zap.Duration("duration", time.Since(start)),
		zap.Bool("cancelled", ctx.Err() != nil),
	)

	return rows
}

func (r *Runner) resolveRow(ctx context.Context, req models.ClassificationRequest) prediction.Result {
	if r.rowTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.rowTimeout)
		defer cancel()
	}

	return r.predictor.Predict(ctx, models.PredictionChannelBatch, req)
}

// WriteCSV writes the six-column export: the header followed by one line per row
func WriteCSV(w io.Writer, rows []models.BatchRow) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(models.BatchHeader); err != nil {
		return services.WrapInternal("failed to write CSV header", err)
	}

	for _, row := range rows {
		if err := writer.Write(row.Columns()); err != nil {
			return services.WrapInternal("failed to write CSV row", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return services.WrapInternal("failed to flush CSV", err)
	}

	return nil
}

// Process reads a batch file, resolves it and writes the export.
// Nothing is written when the input is rejected.
func (r *Runner) Process(ctx context.Context, in io.Reader, out io.Writer) ([]models.BatchRow, error) {
	requests, err := ReadRequests(in)
	if err != nil {
		return nil, err
	}

	rows := r.Run(ctx, requests)

	if err := WriteCSV(out, rows); err != nil {
		return rows, err
	}

	return rows, nil
}
