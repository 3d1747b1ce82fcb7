package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/hsn-classifier/models"
	"github.com/upb/hsn-classifier/repositories"
	"github.com/upb/hsn-classifier/services"
	"github.com/upb/hsn-classifier/services/prediction"
)

const (
	// DefaultListLimit is used when a history listing asks for no limit
	DefaultListLimit = 50
	// MaxListLimit caps a single history page
	MaxListLimit = 500
)

// AuditEvent is one prediction waiting to be persisted
type AuditEvent struct {
	Log *models.PredictionLog
}

// AuditService persists the prediction history asynchronously
type AuditService struct {
	repo        repositories.PredictionLogRepository
	logger      *zap.Logger
	eventChan   chan *AuditEvent
	workerCount int
	bufferSize  int
	flushSize   int
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	started     bool
	stopped     bool
	dropped     int
	mu          sync.Mutex
}

// Config holds configuration for the AuditService
type Config struct {
	BufferSize  int // Size of the event buffer channel
	WorkerCount int // Number of concurrent workers
	FlushSize   int // Max entries written per transaction
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  10000,
		WorkerCount: 2,
		FlushSize:   50,
	}
}

// NewAuditService creates a new AuditService instance
func NewAuditService(repo repositories.PredictionLogRepository, logger *zap.Logger, config Config) *AuditService {
	ctx, cancel := context.WithCancel(context.Background())

	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}
	if config.FlushSize <= 0 {
		config.FlushSize = 1
	}

	return &AuditService{
		repo:        repo,
		logger:      logger,
		eventChan:   make(chan *AuditEvent, config.BufferSize),
		workerCount: config.WorkerCount,
		bufferSize:  config.BufferSize,
		flushSize:   config.FlushSize,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start starts the background workers
func (s *AuditService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("audit service already started")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started prediction history service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize))

	return nil
}

// Stop gracefully stops the service
// Waits for all pending entries to be written
func (s *AuditService) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("audit service not started")
	}
	s.stopped = true
	pending := len(s.eventChan)
	close(s.eventChan)
	s.mu.Unlock()

	s.logger.Info("stopping prediction history service", zap.Int("pending_events", pending))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("prediction history service stopped gracefully")
		s.cancel()
		return nil
	case <-time.After(timeout):
		s.cancel()
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// LogEvent queues an entry (non-blocking)
func (s *AuditService) LogEvent(event *AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.stopped {
		return fmt.Errorf("audit service not started")
	}

	select {
	case s.eventChan <- event:
		return nil
	default:
		s.dropped++
		s.logger.Warn("prediction history buffer full, dropping entry",
			zap.String("request_id", event.Log.RequestID),
			zap.String("hsn_code", event.Log.HSNCode))
		return fmt.Errorf("audit event buffer full")
	}
}

// RecordPrediction implements prediction.Recorder
func (s *AuditService) RecordPrediction(ctx context.Context, channel models.PredictionChannel, req models.ClassificationRequest, result prediction.Result) {
	requestID := middleware.GetReqID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	log := models.NewPredictionLog(requestID, channel, req, result.Record, result.Provider, result.Latency)
	if err := s.LogEvent(&AuditEvent{Log: log}); err != nil {
		s.logger.Debug("prediction not recorded",
			zap.String("request_id", requestID),
			zap.Error(err))
	}
}

// worker drains the channel, writing up to flushSize entries per transaction
func (s *AuditService) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("audit worker started", zap.Int("worker_id", id))

	for event := range s.eventChan {
		batch := []*models.PredictionLog{event.Log}
	collect:
		for len(batch) < s.flushSize {
			select {
			case next, ok := <-s.eventChan:
				if !ok {
					break collect
				}
				batch = append(batch, next.Log)
			default:
				break collect
			}
		}

		if err := s.flush(batch); err != nil {
			s.logger.Error("failed to persist prediction history",
				zap.Int("worker_id", id),
				zap.Int("entries", len(batch)),
				zap.Error(err))
		}
	}

	s.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}

// flush writes under the service context, so a Stop that times out aborts in-flight writes
func (s *AuditService) flush(batch []*models.PredictionLog) error {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()

	if len(batch) == 1 {
		return s.repo.Insert(ctx, batch[0])
	}
	return s.repo.InsertMany(ctx, batch)
}

// List returns recent history entries, newest first
func (s *AuditService) List(ctx context.Context, filter repositories.PredictionLogFilter, limit, offset int) ([]*models.PredictionLog, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	logs, err := s.repo.List(ctx, filter, limit, offset)
	if err != nil {
		return nil, services.WrapInternal("failed to list predictions", err)
	}
	return logs, nil
}

// Get returns a single history entry
func (s *AuditService) Get(ctx context.Context, id uuid.UUID) (*models.PredictionLog, error) {
	log, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrPredictionNotFound
		}
		return nil, services.WrapInternal("failed to get prediction", err)
	}
	return log, nil
}

// GetStats returns statistics about the audit service
func (s *AuditService) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		BufferSize:    s.bufferSize,
		PendingEvents: len(s.eventChan),
		WorkerCount:   s.workerCount,
		Dropped:       s.dropped,
		Started:       s.started && !s.stopped,
	}
}

// Stats represents audit service statistics
type Stats struct {
	BufferSize    int  `json:"buffer_size"`
	PendingEvents int  `json:"pending_events"`
	WorkerCount   int  `json:"worker_count"`
	Dropped       int  `json:"dropped"`
	Started       bool `json:"started"`
}
