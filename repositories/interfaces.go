package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/upb/hsn-classifier/models"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("record not found")

// PredictionLogFilter narrows a history listing. Zero values match everything.
type PredictionLogFilter struct {
	Channel  models.PredictionChannel
	Region   models.Region
	Provider string
	HSNCode  string
}

// PredictionLogRepository handles prediction history data operations
type PredictionLogRepository interface {
	// Insert inserts a new history entry
	Insert(ctx context.Context, log *models.PredictionLog) error

	// InsertMany inserts several entries in a single transaction
	InsertMany(ctx context.Context, logs []*models.PredictionLog) error

	// GetByID retrieves a history entry by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.PredictionLog, error)

	// GetByRequestID retrieves every entry produced by one HTTP request or batch
	GetByRequestID(ctx context.Context, requestID string) ([]*models.PredictionLog, error)

	// List retrieves entries, newest first, with pagination
	List(ctx context.Context, filter PredictionLogFilter, limit, offset int) ([]*models.PredictionLog, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	PredictionLogs PredictionLogRepository
}
