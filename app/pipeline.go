package app

import (
	"context"
	"fmt"

	"github.com/upb/hsn-classifier/config"
	"github.com/upb/hsn-classifier/internal/observability"
	"github.com/upb/hsn-classifier/models"
	"github.com/upb/hsn-classifier/services/batch"
	"github.com/upb/hsn-classifier/services/prediction"
	"github.com/upb/hsn-classifier/services/providers"
	"github.com/upb/hsn-classifier/services/providers/cleartax"
	"github.com/upb/hsn-classifier/services/providers/openai"
	"go.uber.org/zap"
)

// Pipeline is the classification core shared by the API server and the CLI
type Pipeline struct {
	Chain      *providers.Chain
	Normalizer *prediction.Normalizer
	Metrics    *observability.Metrics
	Predictor  *prediction.Service
	Batch      *batch.Runner

	// LookupSchema is the reply shape the fallback client decodes
	LookupSchema cleartax.ReplySchema
}

// configurable is implemented by tiers that can report missing credentials
type configurable interface {
	Configured() bool
}

// NewPipeline builds the provider chain (primary classifier, then lookup
// fallback) and the services on top of it. extra recorders receive every
// prediction after the metrics collector.
func NewPipeline(cfg *config.Config, logger *zap.Logger, extra ...prediction.Recorder) (*Pipeline, error) {
	chat := openai.NewAdapter(providers.ProviderConfig{
		APIKey:  cfg.Providers.OpenAI.APIKey,
		BaseURL: cfg.Providers.OpenAI.BaseURL,
		Timeout: cfg.Providers.OpenAI.Timeout,
		Headers: openAIHeaders(cfg.Providers.OpenAI),
	})
	temperature := cfg.Providers.OpenAI.Temperature
	classifier := openai.NewClassifier(chat, openai.ClassifierConfig{
		Model:             cfg.Providers.OpenAI.Model,
		MaxTokens:         cfg.Providers.OpenAI.MaxTokens,
		Temperature:       &temperature,
		RequestsPerSecond: cfg.Providers.OpenAI.RateLimit,
		Burst:             cfg.Providers.OpenAI.RateBurst,
	}, logger)
	if !chat.Configured() {
		logger.Warn("primary classifier not configured, every request will use the lookup fallback")
	} else if err := chat.ValidateModel(cfg.Providers.OpenAI.Model); err != nil {
		logger.Warn("configured model is not supported, every request will use the lookup fallback",
			zap.String("model", cfg.Providers.OpenAI.Model),
			zap.Strings("supported", chat.ListModels()))
	}

	schema := cleartax.DefaultReplySchema()
	if path := cfg.Providers.ClearTax.SchemaFile; path != "" {
		loaded, err := cleartax.LoadReplySchema(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load lookup reply schema: %w", err)
		}
		schema = loaded
	}
	lookup := cleartax.NewClient(cleartax.Config{
		APIKey:      cfg.Providers.ClearTax.APIKey,
		URL:         cfg.Providers.ClearTax.URL,
		ServiceName: cfg.Providers.ClearTax.ServiceName,
		Timeout:     cfg.Providers.ClearTax.Timeout,
		Schema:      schema,
	}, logger)
	if !lookup.Configured() {
		logger.Warn("lookup fallback not configured", zap.String("service", cfg.Providers.ClearTax.ServiceName))
	}

	chain, err := providers.NewChain(classifier, lookup)
	if err != nil {
		return nil, fmt.Errorf("failed to build provider chain: %w", err)
	}

	metrics := observability.NewMetrics(models.HSNNotFound, models.HSNError, models.NotAvailable)
	recorders := prediction.Recorders{MetricsRecorder{Metrics: metrics}}
	recorders = append(recorders, extra...)

	normalizer := prediction.NewNormalizer(logger)
	predictor := prediction.NewService(chain, normalizer, recorders, logger)

	return &Pipeline{
		Chain:      chain,
		Normalizer: normalizer,
		Metrics:    metrics,
		Predictor:  predictor,
		Batch:      batch.NewRunner(predictor, cfg.Batch.RowTimeout, logger),

		LookupSchema: schema,
	}, nil
}

// Providers returns the names of the tiers that have credentials, in resolution order
func (p *Pipeline) Providers() []string {
	names := []string{}
	for _, tier := range p.Chain.Tiers() {
		if c, ok := tier.(configurable); ok && !c.Configured() {
			continue
		}
		names = append(names, tier.Name())
	}
	return names
}

// MetricsRecorder feeds resolved predictions into the in-process counters
type MetricsRecorder struct {
	Metrics *observability.Metrics
}

// RecordPrediction implements prediction.Recorder
func (r MetricsRecorder) RecordPrediction(_ context.Context, channel models.PredictionChannel, _ models.ClassificationRequest, result prediction.Result) {
	r.Metrics.Observe(observability.PredictionLabels{
		Channel:  string(channel),
		Provider: result.Provider,
		HSNCode:  result.Record.HSNCode,
	}, result.Latency)
}

func openAIHeaders(cfg config.OpenAIConfig) map[string]string {
	headers := map[string]string{}
	if cfg.OrgID != "" {
		headers["OpenAI-Organization"] = cfg.OrgID
	}
	return headers
}
