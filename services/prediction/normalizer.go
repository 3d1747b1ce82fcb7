package prediction

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/upb/hsn-classifier/models"
	"github.com/upb/hsn-classifier/services"
	"github.com/upb/hsn-classifier/services/providers"
	"github.com/upb/hsn-classifier/utils"
)

// ParseFailureExplanation is the explanation of the record returned for any reply that cannot be used
const ParseFailureExplanation = "Could not parse the prediction from the model. Please try again."

// maxLoggedReply bounds how much of an unusable reply is written to the log
const maxLoggedReply = 2048

// ParseFailureRecord returns the fixed record for unusable replies
func ParseFailureRecord() models.PredictionRecord {
	return models.SentinelRecord(models.HSNError, ParseFailureExplanation)
}

// Normalizer turns a provider reply into exactly one canonical record
type Normalizer struct {
	logger *zap.Logger
}

// NewNormalizer creates a new normalizer
func NewNormalizer(logger *zap.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// Normalize never fails: a reply that does not match the record schema
// yields ParseFailureRecord.
func (n *Normalizer) Normalize(reply *providers.Reply) models.PredictionRecord {
	if reply == nil {
		n.logger.Warn("provider returned no reply")
		return ParseFailureRecord()
	}

	if reply.Record != nil {
		record := *reply.Record
		if record.SimilarProducts == nil {
			record.SimilarProducts = []models.SimilarProduct{}
		}
		return record
	}

	record, err := ParseRecord(reply.Raw)
	if err != nil {
		n.logger.Warn("could not parse provider reply",
			zap.String("provider", reply.Provider),
			zap.Error(err),
			zap.String("raw", truncate(reply.Raw, maxLoggedReply)),
		)
		return ParseFailureRecord()
	}

	return record
}

// recordKeys are the keys every raw reply must carry
var recordKeys = []string{"hsn_code", "confidence_score", "explanation", "similar_products"}

// ParseRecord strictly decodes a raw reply. The reply must be a single JSON
// object holding all four record keys with the right value kinds.
func ParseRecord(raw string) (models.PredictionRecord, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return models.PredictionRecord{}, schemaError("reply is not a JSON object", err)
	}
	if fields == nil {
		return models.PredictionRecord{}, schemaError("reply is not a JSON object", errors.New("got null"))
	}

	for _, key := range recordKeys {
		value, ok := fields[key]
		if !ok {
			return models.PredictionRecord{}, schemaError(fmt.Sprintf("reply is missing %q", key), nil)
		}
		if bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
			return models.PredictionRecord{}, schemaError(fmt.Sprintf("%q is null", key), nil)
		}
	}

	var record models.PredictionRecord
	if err := json.Unmarshal(fields["hsn_code"], &record.HSNCode); err != nil {
		return models.PredictionRecord{}, schemaError(`"hsn_code" must be a string`, err)
	}
	if err := json.Unmarshal(fields["confidence_score"], &record.ConfidenceScore); err != nil {
		return models.PredictionRecord{}, schemaError(`invalid "confidence_score"`, err)
	}
	if err := json.Unmarshal(fields["explanation"], &record.Explanation); err != nil {
		return models.PredictionRecord{}, schemaError(`"explanation" must be a string`, err)
	}
	if err := json.Unmarshal(fields["similar_products"], &record.SimilarProducts); err != nil {
		return models.PredictionRecord{}, schemaError(`"similar_products" must be a list of {name, hsn} objects`, err)
	}
	if record.SimilarProducts == nil {
		record.SimilarProducts = []models.SimilarProduct{}
	}

	if err := utils.ValidateStruct(record); err != nil {
		return models.PredictionRecord{}, schemaError("reply failed validation", err)
	}

	return record, nil
}

func schemaError(message string, err error) error {
	return services.WrapError(services.ErrorTypeSchemaParse, message, err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
