package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/upb/hsn-classifier/models"
	"github.com/upb/hsn-classifier/repositories"
	"go.uber.org/zap"
)

const predictionLogColumns = `id, request_id, channel, product_name, description, region,
		       hsn_code, confidence_score, explanation, similar_products,
		       provider, latency_ms, created_at`

// PredictionLogRepository implements the repositories.PredictionLogRepository interface
type PredictionLogRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewPredictionLogRepository creates a new prediction history repository
func NewPredictionLogRepository(db *DB, logger *zap.Logger) repositories.PredictionLogRepository {
	return &PredictionLogRepository{
		db:     db,
		logger: logger,
	}
}

// Insert inserts a new history entry
func (r *PredictionLogRepository) Insert(ctx context.Context, log *models.PredictionLog) error {
	query := `
		INSERT INTO prediction_logs (
			id, request_id, channel, product_name, description, region,
			hsn_code, confidence_score, explanation, similar_products,
			provider, latency_ms, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
	`

	similar := []byte(log.SimilarProducts)
	if len(similar) == 0 {
		similar = []byte("[]")
	}

	executor := r.db.Executor(ctx)
	_, err := executor.ExecContext(ctx, query,
		log.ID,
		log.RequestID,
		string(log.Channel),
		log.ProductName,
		log.Description,
		string(log.Region),
		log.HSNCode,
		log.ConfidenceScore,
		log.Explanation,
		similar,
		log.Provider,
		log.LatencyMs,
		log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert prediction log: %w", err)
	}

	r.logger.Debug("prediction log inserted",
		zap.String("id", log.ID.String()),
		zap.String("hsn_code", log.HSNCode))
	return nil
}

// InsertMany inserts several entries in a single transaction
func (r *PredictionLogRepository) InsertMany(ctx context.Context, logs []*models.PredictionLog) error {
	if len(logs) == 0 {
		return nil
	}

	return r.db.WithTx(ctx, func(txCtx context.Context) error {
		for _, log := range logs {
			if err := r.Insert(txCtx, log); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetByID retrieves a history entry by ID
func (r *PredictionLogRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PredictionLog, error) {
	query := `
		SELECT ` + predictionLogColumns + `
		FROM prediction_logs
		WHERE id = $1
	`

	executor := r.db.Executor(ctx)
	log, err := scanPredictionLog(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("prediction log %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get prediction log: %w", err)
	}

	return log, nil
}

// GetByRequestID retrieves every entry produced by one HTTP request or batch
func (r *PredictionLogRepository) GetByRequestID(ctx context.Context, requestID string) ([]*models.PredictionLog, error) {
	query := `
		SELECT ` + predictionLogColumns + `
		FROM prediction_logs
		WHERE request_id = $1
		ORDER BY created_at ASC
	`

	return r.queryPredictionLogs(ctx, query, requestID)
}

// List retrieves entries, newest first, with pagination
func (r *PredictionLogRepository) List(ctx context.Context, filter repositories.PredictionLogFilter, limit, offset int) ([]*models.PredictionLog, error) {
	var (
		conditions []string
		args       []interface{}
	)

	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("channel", string(filter.Channel))
	add("region", string(filter.Region))
	add("provider", filter.Provider)
	add("hsn_code", filter.HSNCode)

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`
		SELECT %s
		FROM prediction_logs
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, predictionLogColumns, where, len(args)-1, len(args))

	return r.queryPredictionLogs(ctx, query, args...)
}

func (r *PredictionLogRepository) queryPredictionLogs(ctx context.Context, query string, args ...interface{}) ([]*models.PredictionLog, error) {
	executor := r.db.Executor(ctx)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query prediction logs: %w", err)
	}
	defer rows.Close()

	logs := []*models.PredictionLog{}
	for rows.Next() {
		log, err := scanPredictionLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prediction log: %w", err)
		}
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating prediction logs: %w", err)
	}

	return logs, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPredictionLog(row rowScanner) (*models.PredictionLog, error) {
	var (
		log        models.PredictionLog
		channel    string
		region     string
		confidence sql.NullFloat64
		similar    []byte
	)

	err := row.Scan(
		&log.ID,
		&log.RequestID,
		&channel,
		&log.ProductName,
		&log.Description,
		&region,
		&log.HSNCode,
		&confidence,
		&log.Explanation,
		&similar,
		&log.Provider,
		&log.LatencyMs,
		&log.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	log.Channel = models.PredictionChannel(channel)
	log.Region = models.Region(region)
	if confidence.Valid {
		score := confidence.Float64
		log.ConfidenceScore = &score
	}
	log.SimilarProducts = append([]byte(nil), similar...)

	return &log, nil
}
