package providers

import (
	"context"
	"time"

	"github.com/upb/hsn-classifier/models"
)

// Classifier is one tier of the classification chain
type Classifier interface {
	// Name returns the provider name (e.g., "openai", "cleartax")
	Name() string

	// Classify classifies a product. An error means this tier failed and the
	// next tier should be consulted.
	Classify(ctx context.Context, req models.ClassificationRequest) (*Reply, error)
}

// Reply is what a classifier hands back: either undecoded model text or an
// already canonical record. Exactly one of Raw and Record is meaningful.
type Reply struct {
	// Provider that produced the reply
	Provider string

	// Raw is the provider's text, expected to be a JSON prediction object
	Raw string

	// Record is set when the provider already produced a canonical record
	Record *models.PredictionRecord
}

// RawReply builds a reply carrying undecoded provider text
func RawReply(provider, raw string) *Reply {
	return &Reply{Provider: provider, Raw: raw}
}

// RecordReply builds a reply carrying a canonical record
func RecordReply(provider string, rec models.PredictionRecord) *Reply {
	return &Reply{Provider: provider, Record: &rec}
}

// ChatProvider is a chat-completion backend used by the primary classifier
type ChatProvider interface {
	// Name returns the provider name
	Name() string

	// ChatCompletion performs a chat completion request
	ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}

// ChatRequest represents a unified chat completion request
type ChatRequest struct {
	// Model identifier (e.g., "gpt-3.5-turbo")
	Model string `json:"model"`

	// Messages in the conversation
	Messages []Message `json:"messages"`

	// MaxTokens limits the response length
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness (0.0 to 2.0). Nil leaves the provider default.
	Temperature *float64 `json:"temperature,omitempty"`

	// JSONMode asks the provider to constrain output to a JSON object when the model supports it
	JSONMode bool `json:"json_mode,omitempty"`
}

// Message represents a single message in a conversation
type Message struct {
	// Role can be "system", "user", or "assistant"
	Role string `json:"role"`

	// Content is the message text
	Content string `json:"content"`
}

// ChatResponse represents a unified chat completion response
type ChatResponse struct {
	ID       string        `json:"id"`
	Model    string        `json:"model"`
	Choices  []Choice      `json:"choices"`
	Usage    Usage         `json:"usage"`
	Provider string        `json:"provider"`
	Latency  time.Duration `json:"latency"`
	Created  time.Time     `json:"created"`
}

// Choice represents a completion choice
type Choice struct {
	Index int `json:"index"`

	Message Message `json:"message"`

	// Values: "stop", "length", "content_filter"
	FinishReason string `json:"finish_reason"`
}

// Usage represents token usage statistics
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ModelInfo contains metadata about a model
type ModelInfo struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	MaxTokens     int    `json:"max_tokens"`
	ContextWindow int    `json:"context_window"`
	SupportsJSON  bool   `json:"supports_json"`
}

// ProviderConfig holds common configuration for providers
type ProviderConfig struct {
	// APIKey for authentication
	APIKey string

	// BaseURL for the API (optional override)
	BaseURL string

	// Timeout for requests
	Timeout time.Duration

	// Headers are added to every request (e.g. OpenAI-Organization)
	Headers map[string]string
}

// DefaultProviderConfig returns a sensible default configuration
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Timeout: 60 * time.Second,
		Headers: make(map[string]string),
	}
}

// ProviderError represents a failure calling a provider (transport, auth or provider-side)
type ProviderError struct {
	// Provider that generated the error
	Provider string

	// Code is the error code
	Code string

	// Message is the error message
	Message string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a new provider error
func NewProviderError(provider, code, message string, statusCode int, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Cause:      cause,
	}
}

// Error codes shared by provider adapters
const (
	CodeNotConfigured = "NOT_CONFIGURED"
	CodeInvalidModel  = "INVALID_MODEL"
	CodeHTTPError     = "HTTP_ERROR"
	CodeEmptyResponse = "EMPTY_RESPONSE"
	CodeRateLimited   = "RATE_LIMITED"

	CodeResponseTooLarge = "RESPONSE_TOO_LARGE"
)
