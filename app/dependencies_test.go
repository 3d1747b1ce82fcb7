package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/hsn-classifier/config"
	"github.com/upb/hsn-classifier/internal/observability"
	"github.com/upb/hsn-classifier/models"
	"github.com/upb/hsn-classifier/services/prediction"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

const chatCompletion = `{"id":"c1","model":"gpt-3.5-turbo","choices":[{"index":0,"message":{"role":"assistant","content":"{\"hsn_code\":\"84716070\",\"confidence_score\":0.9,\"explanation\":\"Input unit.\",\"similar_products\":[]}"},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":20,"total_tokens":30}}`

func TestNewDependencies(t *testing.T) {
	t.Run("stateless without database or auth", func(t *testing.T) {
		ctx := context.Background()
		deps, err := NewDependencies(ctx, testConfig(t), zaptest.NewLogger(t))
		require.NoError(t, err)
		defer deps.Close(ctx)

		assert.Nil(t, deps.History)
		assert.Nil(t, deps.DB)
		assert.False(t, deps.AuthMiddleware.Enabled())
		assert.NotNil(t, deps.PredictionHandler)
		assert.NotNil(t, deps.BatchHandler)
		assert.NotNil(t, deps.HistoryHandler)
		assert.NotNil(t, deps.HealthHandler)
		assert.Equal(t, []string{"openai", "cleartax"}, deps.Pipeline.Chain.Names())
		assert.Empty(t, deps.Pipeline.Providers())
	})

	t.Run("auth enabled with secret", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t)
		cfg.Auth.JWTSecret = "0123456789abcdef0123"

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		defer deps.Close(ctx)

		assert.True(t, deps.AuthMiddleware.Enabled())
	})

	t.Run("missing lookup schema file", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Providers.ClearTax.SchemaFile = filepath.Join(t.TempDir(), "missing.toml")

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize classification pipeline")
	})

	t.Run("database connection failure", func(t *testing.T) {
		if testing.Short() {
			t.Skip("skipping database dial")
		}
		cfg := testConfig(t)
		cfg.Database = &config.DatabaseConfig{
			Host:            "127.0.0.1",
			Port:            1,
			User:            "hsn",
			Database:        "hsn",
			SSLMode:         "disable",
			MaxOpenConns:    1,
			MaxIdleConns:    1,
			ConnMaxLifetime: time.Minute,
		}

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize prediction history")
	})
}

func TestNewPipeline(t *testing.T) {
	t.Run("configured providers in resolution order", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Providers.OpenAI.APIKey = "sk-test"
		cfg.Providers.ClearTax.APIKey = "ct-test"
		cfg.Providers.ClearTax.URL = "https://lookup.invalid/search"

		pipeline, err := NewPipeline(cfg, zap.NewNop())
		require.NoError(t, err)

		assert.Equal(t, []string{"openai", "cleartax"}, pipeline.Providers())
	})

	t.Run("primary classifier answers and metrics observe it", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/chat/completions", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(chatCompletion))
		}))
		defer server.Close()

		cfg := testConfig(t)
		cfg.Providers.OpenAI.APIKey = "sk-test"
		cfg.Providers.OpenAI.BaseURL = server.URL

		pipeline, err := NewPipeline(cfg, zap.NewNop())
		require.NoError(t, err)

		result := pipeline.Predictor.Predict(context.Background(), models.PredictionChannelInteractive,
			models.NewClassificationRequest("Wireless Mouse", "optical", "India"))

		assert.Equal(t, "openai", result.Provider)
		assert.Equal(t, "84716070", result.Record.HSNCode)

		snap := pipeline.Metrics.Snapshot()
		assert.Equal(t, int64(1), snap.Predictions)
		assert.Equal(t, int64(1), snap.ByProvider["openai"])
		assert.Equal(t, int64(1), snap.ByChannel["interactive"])
	})

	t.Run("organization id reaches the primary classifier", func(t *testing.T) {
		var org string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			org = r.Header.Get("OpenAI-Organization")
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(chatCompletion))
		}))
		defer server.Close()

		cfg := testConfig(t)
		cfg.Providers.OpenAI.APIKey = "sk-test"
		cfg.Providers.OpenAI.BaseURL = server.URL
		cfg.Providers.OpenAI.OrgID = "org-hsn"

		pipeline, err := NewPipeline(cfg, zap.NewNop())
		require.NoError(t, err)

		pipeline.Predictor.Predict(context.Background(), models.PredictionChannelInteractive,
			models.NewClassificationRequest("Wireless Mouse", "", ""))

		assert.Equal(t, "org-hsn", org)
	})

	t.Run("unconfigured chain falls through to lookup sentinel", func(t *testing.T) {
		pipeline, err := NewPipeline(testConfig(t), zap.NewNop())
		require.NoError(t, err)

		result := pipeline.Predictor.Predict(context.Background(), models.PredictionChannelBatch,
			models.NewClassificationRequest("Laptop", "", ""))

		assert.Equal(t, "cleartax", result.Provider)
		assert.Equal(t, models.NotAvailable, result.Record.HSNCode)
		assert.Equal(t, "ClearTax API not configured.", result.Record.Explanation)
	})

	t.Run("extra recorders receive predictions", func(t *testing.T) {
		rec := &countingRecorder{}
		pipeline, err := NewPipeline(testConfig(t), zap.NewNop(), rec)
		require.NoError(t, err)

		pipeline.Predictor.Predict(context.Background(), models.PredictionChannelBatch,
			models.NewClassificationRequest("Laptop", "", ""))

		assert.Equal(t, 1, rec.calls)
	})

	t.Run("lookup schema loaded from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "schema.toml")
		require.NoError(t, os.WriteFile(path, []byte("results_field = \"items\"\ncode_field = \"code\"\n"), 0o600))

		cfg := testConfig(t)
		cfg.Providers.ClearTax.SchemaFile = path

		pipeline, err := NewPipeline(cfg, zap.NewNop())
		require.NoError(t, err)
		assert.Equal(t, "items", pipeline.LookupSchema.ResultsField)
		assert.Equal(t, "code", pipeline.LookupSchema.CodeField)
		assert.Equal(t, "description", pipeline.LookupSchema.DescriptionField)
	})
}

func TestMetricsRecorder(t *testing.T) {
	metrics := observability.NewMetrics(models.HSNNotFound, models.HSNError, models.NotAvailable)
	recorder := MetricsRecorder{Metrics: metrics}

	recorder.RecordPrediction(context.Background(), models.PredictionChannelBatch, models.ClassificationRequest{}, prediction.Result{
		Record:  models.SentinelRecord(models.HSNError, "boom"),
		Latency: 10 * time.Millisecond,
	})

	snap := metrics.Snapshot()
	assert.Equal(t, int64(1), snap.Predictions)
	assert.Equal(t, int64(1), snap.Outcomes[models.HSNError])
	assert.Equal(t, int64(1), snap.ByProvider["none"])
}

type countingRecorder struct {
	calls int
}

func (r *countingRecorder) RecordPrediction(context.Context, models.PredictionChannel, models.ClassificationRequest, prediction.Result) {
	r.calls++
}

// Test helpers

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			Host:            "localhost",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			RequestTimeout:  30 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Providers: config.ProvidersConfig{
			OpenAI: config.OpenAIConfig{
				BaseURL:     "https://api.openai.com/v1",
				Model:       "gpt-3.5-turbo",
				Timeout:     5 * time.Second,
				MaxTokens:   250,
				Temperature: 0.7,
			},
			ClearTax: config.ClearTaxConfig{
				ServiceName: "ClearTax API",
				Timeout:     5 * time.Second,
			},
		},
		Batch: config.BatchConfig{
			MaxUploadBytes: 1 << 20,
		},
		Observability: config.ObservabilityConfig{
			LogLevel:  "error",
			LogFormat: "json",
		},
	}
}
