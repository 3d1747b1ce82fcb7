package cleartax

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/upb/hsn-classifier/models"
	"github.com/upb/hsn-classifier/services"
	"github.com/upb/hsn-classifier/services/providers"
)

const (
	providerName       = "cleartax"
	DefaultServiceName = "ClearTax API"
	defaultTimeout     = 30 * time.Second

	noResultsExplanation = "No HSN code found for the given description."
	explanationPrefix    = "Provided by fallback: "
)

// Config holds the lookup service settings
type Config struct {
	APIKey      string
	URL         string
	ServiceName string
	Timeout     time.Duration
	Schema      ReplySchema
}

// Client is the secondary classifier. It queries a keyword lookup service
// by product description and always answers with a canonical record.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new lookup client
func NewClient(config Config, logger *zap.Logger) *Client {
	if config.ServiceName == "" {
		config.ServiceName = DefaultServiceName
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.Schema.Validate() != nil {
		config.Schema = DefaultReplySchema()
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger,
	}
}

// Name returns the provider name
func (c *Client) Name() string {
	return providerName
}

// Configured reports whether both the API key and URL are present
func (c *Client) Configured() bool {
	return c.config.APIKey != "" && c.config.URL != ""
}

// Classify implements providers.Classifier. It never returns an error:
// every failure is reported in-band as a sentinel record.
func (c *Client) Classify(ctx context.Context, req models.ClassificationRequest) (*providers.Reply, error) {
	return providers.RecordReply(c.Name(), c.Lookup(ctx, req.Description)), nil
}

// Lookup queries the service for a description
func (c *Client) Lookup(ctx context.Context, description string) models.PredictionRecord {
	if !c.Configured() {
		return models.SentinelRecord(models.NotAvailable, c.config.ServiceName+" not configured.")
	}

	body, err := c.fetch(ctx, description)
	if err == nil {
		var record models.PredictionRecord
		if record, err = c.parse(body); err == nil {
			return record
		}
	}

	if services.IsSchemaParseError(err) {
		c.logger.Error("lookup reply did not match schema",
			zap.String("service", c.config.ServiceName),
			zap.Error(err),
		)
		return models.SentinelRecord(models.HSNError, fmt.Sprintf("%s returned an unexpected response: %v", c.config.ServiceName, unwrapCause(err)))
	}

	c.logger.Error("lookup request failed",
		zap.String("service", c.config.ServiceName),
		zap.Error(err),
	)
	return models.SentinelRecord(models.HSNError, fmt.Sprintf("%s request failed: %v", c.config.ServiceName, unwrapCause(err)))
}

func (c *Client) fetch(ctx context.Context, description string) (map[string]any, error) {
	endpoint, err := url.Parse(c.config.URL)
	if err != nil {
		return nil, services.WrapError(services.ErrorTypeLookupTransport, "invalid lookup URL", err)
	}
	query := endpoint.Query()
	query.Set("query", description)
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), http.NoBody)
	if err != nil {
		return nil, services.WrapError(services.ErrorTypeLookupTransport, "failed to create request", err)
	}
	req.Header.Set("x-api-key", c.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.WrapError(services.ErrorTypeLookupTransport, "failed to send request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, services.WrapError(services.ErrorTypeLookupTransport, "unexpected status",
			fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody)))
	}

	var payload any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, services.WrapError(services.ErrorTypeLookupTransport, "failed to decode response", err)
	}

	object, ok := payload.(map[string]any)
	if !ok {
		return nil, services.WrapError(services.ErrorTypeSchemaParse, "unexpected reply",
			fmt.Errorf("reply is %s, not an object", jsonKind(payload)))
	}

	return object, nil
}

// parse maps the reply onto a record using the configured schema
func (c *Client) parse(body map[string]any) (models.PredictionRecord, error) {
	schema := c.config.Schema

	raw, present := body[schema.ResultsField]
	if !present || raw == nil {
		return models.SentinelRecord(models.HSNNotFound, noResultsExplanation), nil
	}

	results, ok := raw.([]any)
	if !ok {
		return models.PredictionRecord{}, services.WrapError(services.ErrorTypeSchemaParse, "unexpected reply",
			fmt.Errorf("%q is %s, not an array", schema.ResultsField, jsonKind(raw)))
	}
	if len(results) == 0 {
		return models.SentinelRecord(models.HSNNotFound, noResultsExplanation), nil
	}

	first, ok := results[0].(map[string]any)
	if !ok {
		return models.PredictionRecord{}, services.WrapError(services.ErrorTypeSchemaParse, "unexpected reply",
			fmt.Errorf("first result is %s, not an object", jsonKind(results[0])))
	}

	code, _ := first[schema.CodeField].(string)
	if code == "" {
		return models.PredictionRecord{}, services.WrapError(services.ErrorTypeSchemaParse, "unexpected reply",
			fmt.Errorf("first result has no %q", schema.CodeField))
	}

	description, _ := first[schema.DescriptionField].(string)

	return models.PredictionRecord{
		HSNCode:         code,
		ConfidenceScore: models.UnknownConfidence(),
		Explanation:     explanationPrefix + description,
		SimilarProducts: []models.SimilarProduct{},
	}, nil
}

func unwrapCause(err error) error {
	if domainErr, ok := err.(*services.DomainError); ok && domainErr.Err != nil {
		return domainErr.Err
	}
	return err
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "a boolean"
	case float64:
		return "a number"
	case string:
		return "a string"
	case []any:
		return "an array"
	case map[string]any:
		return "an object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
