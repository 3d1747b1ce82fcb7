package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/upb/hsn-classifier/services/providers"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	providerName   = "openai"

	// defaultMaxResponseBytes bounds a completion body; classification replies are a few hundred bytes
	defaultMaxResponseBytes = 1 << 20
)

// Adapter is a chat-completions client for the OpenAI API
type Adapter struct {
	config           providers.ProviderConfig
	httpClient       *http.Client
	models           map[string]*providers.ModelInfo
	maxResponseBytes int64
}

// NewAdapter creates a new OpenAI adapter
func NewAdapter(config providers.ProviderConfig) *Adapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}

	if config.Timeout == 0 {
		config.Timeout = providers.DefaultProviderConfig().Timeout
	}

	adapter := &Adapter{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		maxResponseBytes: defaultMaxResponseBytes,
	}

	adapter.initModels()

	return adapter
}

// Name returns the provider name
func (a *Adapter) Name() string {
	return providerName
}

// Configured reports whether an API key is present
func (a *Adapter) Configured() bool {
	return a.config.APIKey != ""
}

// ChatCompletion performs a single chat completion request. It never retries.
func (a *Adapter) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	startTime := time.Now()

	if !a.Configured() {
		return nil, providers.NewProviderError(a.Name(), providers.CodeNotConfigured, "OpenAI API key not configured", 0, nil)
	}

	if err := a.ValidateModel(req.Model); err != nil {
		return nil, providers.NewProviderError(a.Name(), providers.CodeInvalidModel, err.Error(), http.StatusBadRequest, err)
	}

	reqBody, err := json.Marshal(a.buildChatRequest(req))
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "MARSHAL_ERROR", "Failed to marshal request", 0, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "REQUEST_ERROR", "Failed to create request", 0, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.config.APIKey)
	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), providers.CodeHTTPError, "HTTP request failed", 0, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, a.maxResponseBytes+1))
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "READ_ERROR", "Failed to read response", httpResp.StatusCode, err)
	}
	if int64(len(respBody)) > a.maxResponseBytes {
		return nil, providers.NewProviderError(a.Name(), providers.CodeResponseTooLarge,
			fmt.Sprintf("Response exceeds %d bytes", a.maxResponseBytes), httpResp.StatusCode, nil)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, a.handleErrorResponse(httpResp.StatusCode, respBody)
	}

	var chatResp ChatCompletionResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, providers.NewProviderError(a.Name(), "UNMARSHAL_ERROR", "Failed to unmarshal response", httpResp.StatusCode, err)
	}

	if len(chatResp.Choices) == 0 {
		return nil, providers.NewProviderError(a.Name(), providers.CodeEmptyResponse, "Response contained no choices", httpResp.StatusCode, nil)
	}

	return a.convertToUnifiedResponse(&chatResp, time.Since(startTime)), nil
}

// ValidateModel checks if a model is supported
func (a *Adapter) ValidateModel(model string) error {
	if _, exists := a.models[model]; !exists {
		return fmt.Errorf("model %s is not supported by OpenAI provider", model)
	}
	return nil
}

// GetModelInfo returns information about a specific model
func (a *Adapter) GetModelInfo(model string) (*providers.ModelInfo, error) {
	info, exists := a.models[model]
	if !exists {
		return nil, fmt.Errorf("model %s not found", model)
	}
	return info, nil
}

// ListModels returns the supported model ids, sorted
func (a *Adapter) ListModels() []string {
	models := make([]string, 0, len(a.models))
	for model := range a.models {
		models = append(models, model)
	}
	sort.Strings(models)
	return models
}

func (a *Adapter) initModels() {
	a.models = map[string]*providers.ModelInfo{
		"gpt-3.5-turbo": {
			ID:            "gpt-3.5-turbo",
			Name:          "GPT-3.5 Turbo",
			MaxTokens:     4096,
			ContextWindow: 16385,
			SupportsJSON:  true,
		},
		"gpt-4": {
			ID:            "gpt-4",
			Name:          "GPT-4",
			MaxTokens:     8192,
			ContextWindow: 8192,
			SupportsJSON:  false,
		},
		"gpt-4-turbo": {
			ID:            "gpt-4-turbo",
			Name:          "GPT-4 Turbo",
			MaxTokens:     4096,
			ContextWindow: 128000,
			SupportsJSON:  true,
		},
		"gpt-4o": {
			ID:            "gpt-4o",
			Name:          "GPT-4o",
			MaxTokens:     4096,
			ContextWindow: 128000,
			SupportsJSON:  true,
		},
		"gpt-4o-mini": {
			ID:            "gpt-4o-mini",
			Name:          "GPT-4o Mini",
			MaxTokens:     16384,
			ContextWindow: 128000,
			SupportsJSON:  true,
		},
	}
}

// buildChatRequest converts a unified request to the OpenAI wire format
func (a *Adapter) buildChatRequest(req *providers.ChatRequest) *ChatCompletionRequest {
	chatReq := &ChatCompletionRequest{
		Model:    req.Model,
		Messages: make([]ChatMessage, len(req.Messages)),
	}

	for i, msg := range req.Messages {
		chatReq.Messages[i] = ChatMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	if req.MaxTokens > 0 {
		chatReq.MaxTokens = &req.MaxTokens
	}
	if req.Temperature != nil {
		temperature := *req.Temperature
		chatReq.Temperature = &temperature
	}
	if req.JSONMode {
		if info, err := a.GetModelInfo(req.Model); err == nil && info.SupportsJSON {
			chatReq.ResponseFormat = &ResponseFormat{Type: "json_object"}
		}
	}

	return chatReq
}

func (a *Adapter) convertToUnifiedResponse(chatResp *ChatCompletionResponse, latency time.Duration) *providers.ChatResponse {
	resp := &providers.ChatResponse{
		ID:       chatResp.ID,
		Model:    chatResp.Model,
		Provider: a.Name(),
		Choices:  make([]providers.Choice, len(chatResp.Choices)),
		Usage: providers.Usage{
			PromptTokens:     chatResp.Usage.PromptTokens,
			CompletionTokens: chatResp.Usage.CompletionTokens,
			TotalTokens:      chatResp.Usage.TotalTokens,
		},
		Latency: latency,
		Created: time.Unix(chatResp.Created, 0),
	}

	for i, choice := range chatResp.Choices {
		resp.Choices[i] = providers.Choice{
			Index: choice.Index,
			Message: providers.Message{
				Role:    choice.Message.Role,
				Content: choice.Message.Content,
			},
			FinishReason: choice.FinishReason,
		}
	}

	return resp
}

func (a *Adapter) handleErrorResponse(statusCode int, body []byte) error {
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return providers.NewProviderError(a.Name(), "UNKNOWN_ERROR", fmt.Sprintf("OpenAI returned status %d", statusCode), statusCode, errors.New(string(body)))
	}

	return providers.NewProviderError(
		a.Name(),
		errResp.Error.Type,
		fmt.Sprintf("OpenAI returned status %d", statusCode),
		statusCode,
		errors.New(errResp.Error.Message),
	)
}

// OpenAI wire types

type ChatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []ChatMessage   `json:"messages"`
	MaxTokens      *int            `json:"max_tokens,omitempty"`
	Temperature    *float64        `json:"temperature,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

type ResponseFormat struct {
	Type string `json:"type"`
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatCompletionResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   ChatUsage    `json:"usage"`
}

type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}

type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}
