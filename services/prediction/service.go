package prediction

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/upb/hsn-classifier/models"
	"github.com/upb/hsn-classifier/services/providers"
)

const (
	// ProductNameRequiredExplanation is returned for requests without a product name
	ProductNameRequiredExplanation = "Product name is required."

	// NoProviderExplanation is returned when every tier of the chain failed
	NoProviderExplanation = "No classification provider produced a prediction."
)

// Result is the outcome of resolving one request
type Result struct {
	Record   models.PredictionRecord
	Provider string
	Latency  time.Duration
}

// Recorder receives every resolved prediction. Implementations must not block the caller.
type Recorder interface {
	RecordPrediction(ctx context.Context, channel models.PredictionChannel, req models.ClassificationRequest, result Result)
}

// Recorders fans a result out to several recorders in order
type Recorders []Recorder

// RecordPrediction implements Recorder
func (rs Recorders) RecordPrediction(ctx context.Context, channel models.PredictionChannel, req models.ClassificationRequest, result Result) {
	for _, r := range rs {
		if r != nil {
			r.RecordPrediction(ctx, channel, req, result)
		}
	}
}

// Service resolves classification requests against an ordered provider chain
type Service struct {
	chain      *providers.Chain
	normalizer *Normalizer
	recorder   Recorder
	logger     *zap.Logger
}

// NewService creates a new prediction service. recorder may be nil.
func NewService(chain *providers.Chain, normalizer *Normalizer, recorder Recorder, logger *zap.Logger) *Service {
	return &Service{
		chain:      chain,
		normalizer: normalizer,
		recorder:   recorder,
		logger:     logger,
	}
}

// Resolve walks the chain in order. The first tier that answers without an
// error wins and its reply is normalized; a failing tier hands over to the
// next one exactly once. Resolve never returns an error.
func (s *Service) Resolve(ctx context.Context, req models.ClassificationRequest) Result {
	start := time.Now()

	if strings.TrimSpace(req.ProductName) == "" {
		return Result{
			Record:  models.SentinelRecord(models.HSNError, ProductNameRequiredExplanation),
			Latency: time.Since(start),
		}
	}

	tiers := s.chain.Tiers()
	for i, tier := range tiers {
		reply, err := tier.Classify(ctx, req)
		if err != nil {
			fields := []zap.Field{
				zap.String("provider", tier.Name()),
				zap.String("product_name", req.ProductName),
				zap.Error(err),
			}
			if i+1 < len(tiers) {
				fields = append(fields, zap.String("fallback", tiers[i+1].Name()))
			}
			s.logger.Warn("classification provider failed", fields...)
			continue
		}

		return Result{
			Record:   s.normalizer.Normalize(reply),
			Provider: tier.Name(),
			Latency:  time.Since(start),
		}
	}

	s.logger.Error("no classification provider produced a prediction",
		zap.Strings("providers", s.chain.Names()),
		zap.String("product_name", req.ProductName),
	)

	return Result{
		Record:  models.SentinelRecord(models.HSNError, NoProviderExplanation),
		Latency: time.Since(start),
	}
}

// Predict resolves a request and hands the result to the recorder
func (s *Service) Predict(ctx context.Context, channel models.PredictionChannel, req models.ClassificationRequest) Result {
	result := s.Resolve(ctx, req)

	if s.recorder != nil {
		s.recorder.RecordPrediction(ctx, channel, req, result)
	}

	return result
}

// Providers returns the provider names in resolution order
func (s *Service) Providers() []string {
	return s.chain.Names()
}
