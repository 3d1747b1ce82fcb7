package openai

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/upb/hsn-classifier/models"
	"github.com/upb/hsn-classifier/services/providers"
)

const (
	DefaultModel       = "gpt-3.5-turbo"
	DefaultMaxTokens   = 250
	DefaultTemperature = 0.7

	systemPrompt = "You are a helpful assistant designed to output JSON."
)

// ClassifierConfig holds the completion parameters used for classification
type ClassifierConfig struct {
	Model     string
	MaxTokens int
	// Temperature is sent as configured, including 0. Nil uses DefaultTemperature.
	Temperature *float64

	// RequestsPerSecond throttles completion calls. Zero disables throttling.
	RequestsPerSecond float64
	Burst             int
}

// Classifier asks a chat model for an HSN prediction
type Classifier struct {
	chat    providers.ChatProvider
	config  ClassifierConfig
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewClassifier creates a classifier on top of a chat provider
func NewClassifier(chat providers.ChatProvider, config ClassifierConfig, logger *zap.Logger) *Classifier {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = DefaultMaxTokens
	}
	if config.Temperature == nil {
		temperature := DefaultTemperature
		config.Temperature = &temperature
	}

	c := &Classifier{
		chat:   chat,
		config: config,
		logger: logger,
	}
	if config.RequestsPerSecond > 0 {
		if config.Burst <= 0 {
			config.Burst = 1
		}
		c.config.Burst = config.Burst
		c.limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst)
	}
	return c
}

// Name returns the provider name
func (c *Classifier) Name() string {
	return c.chat.Name()
}

// Classify sends one completion request and returns the model text untouched.
// Any provider failure is returned so the caller can fall back.
func (c *Classifier) Classify(ctx context.Context, req models.ClassificationRequest) (*providers.Reply, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, providers.NewProviderError(c.Name(), providers.CodeRateLimited, "Rate limit wait aborted", 0, err)
		}
	}

	resp, err := c.chat.ChatCompletion(ctx, &providers.ChatRequest{
		Model: c.config.Model,
		Messages: []providers.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: BuildPrompt(req)},
		},
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
		JSONMode:    true,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, providers.NewProviderError(c.Name(), providers.CodeEmptyResponse, "Response contained no choices", 0, nil)
	}

	c.logger.Debug("classification completion received",
		zap.String("provider", c.Name()),
		zap.String("model", resp.Model),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Duration("latency", resp.Latency),
	)

	return providers.RawReply(c.Name(), resp.Choices[0].Message.Content), nil
}

// regionInstruction names the code length expected for the target region
func regionInstruction(region models.Region) string {
	if region == models.RegionIndia {
		return fmt.Sprintf("Provide the %d-digit HSN code applicable in India.", region.CodeDigits())
	}
	return fmt.Sprintf("Provide the internationally recognized %d-digit HSN code.", region.CodeDigits())
}

// BuildPrompt renders the user message for a classification request
func BuildPrompt(req models.ClassificationRequest) string {
	return fmt.Sprintf(`You are an expert in international trade and logistics, with a specialization in HSN codes for different regions.

Product Name: %q
Description: %q
Target Region: %q

Based on the product information, provide the following:
1.  %s
2.  A confidence score for your prediction (from 0 to 1).
3.  A brief explanation for your choice, mentioning the target region.
4.  A list of 3 similar products and their relevant HSN codes.

Format your response as a JSON object with the following keys: "hsn_code", "confidence_score", "explanation", and "similar_products" (which should be a list of objects, each with "name" and "hsn" keys).`,
		req.ProductName, req.Description, string(req.Region), regionInstruction(req.Region))
}
