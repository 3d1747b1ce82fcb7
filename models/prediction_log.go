package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PredictionChannel identifies which entry point produced a prediction
type PredictionChannel string

const (
	PredictionChannelInteractive PredictionChannel = "interactive"
	PredictionChannelBatch       PredictionChannel = "batch"
)

// PredictionLog is one entry of the prediction history
type PredictionLog struct {
	ID        uuid.UUID         `json:"id" db:"id"`
	RequestID string            `json:"request_id" db:"request_id"` // HTTP request or batch id
	Channel   PredictionChannel `json:"channel" db:"channel"`

	// Request
	ProductName string `json:"product_name" db:"product_name"`
	Description string `json:"description" db:"description"`
	Region      Region `json:"region" db:"region"`

	// Result
	HSNCode         string          `json:"hsn_code" db:"hsn_code"`
	ConfidenceScore *float64        `json:"confidence_score,omitempty" db:"confidence_score"` // nil when N/A
	Explanation     string          `json:"explanation" db:"explanation"`
	SimilarProducts json.RawMessage `json:"similar_products" db:"similar_products"`
	Provider        string          `json:"provider" db:"provider"` // empty when no provider answered
	LatencyMs       int             `json:"latency_ms" db:"latency_ms"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}


// NewPredictionLog creates a history entry for a resolved request
func NewPredictionLog(requestID string, channel PredictionChannel, req ClassificationRequest, rec PredictionRecord, provider string, latency time.Duration) *PredictionLog {
	log := &PredictionLog{
		ID:          uuid.New(),
		RequestID:   requestID,
		Channel:     channel,
		ProductName: req.ProductName,
		Description: req.Description,
		Region:      req.Region,
		HSNCode:     rec.HSNCode,
		Explanation: rec.Explanation,
		Provider:    provider,
		LatencyMs:   int(latency.Milliseconds()),
		CreatedAt:   time.Now(),
	}

	if rec.ConfidenceScore.Known {
		score := rec.ConfidenceScore.Value
		log.ConfidenceScore = &score
	}

	similar := rec.SimilarProducts
	if similar == nil {
		similar = []SimilarProduct{}
	}
	if data, err := json.Marshal(similar); err == nil {
		log.SimilarProducts = data
	}

	return log
}

// Record rebuilds the canonical record stored in the entry
func (l *PredictionLog) Record() PredictionRecord {
	rec := PredictionRecord{
		HSNCode:         l.HSNCode,
		ConfidenceScore: UnknownConfidence(),
		Explanation:     l.Explanation,
		SimilarProducts: []SimilarProduct{},
	}
	if l.ConfidenceScore != nil {
		rec.ConfidenceScore = Confidence(*l.ConfidenceScore)
	}
	if len(l.SimilarProducts) > 0 {
		_ = json.Unmarshal(l.SimilarProducts, &rec.SimilarProducts)
	}
	return rec
}
