package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Region is the customs jurisdiction a product is classified for
type Region string

const (
	RegionIndia         Region = "India"
	RegionInternational Region = "International"
)

// ParseRegion maps free text onto a Region. Anything that is not India
// (case-insensitive) is treated as International.
func ParseRegion(s string) Region {
	if strings.EqualFold(strings.TrimSpace(s), string(RegionIndia)) {
		return RegionIndia
	}
	return RegionInternational
}

// CodeDigits returns the HSN code length requested for the region
func (r Region) CodeDigits() int {
	if r == RegionIndia {
		return 8
	}
	return 6
}

// Sentinel values used in place of unknown or unobtainable fields
const (
	HSNNotFound  = "Not Found"
	HSNError     = "Error"
	NotAvailable = "N/A"
)

// ClassificationRequest is one product to classify. It is created per call and never mutated.
type ClassificationRequest struct {
	ProductName string `json:"product_name" validate:"required"`
	Description string `json:"description"`
	Region      Region `json:"region" validate:"oneof=India International"`
}

// NewClassificationRequest builds a request, defaulting the region to International
func NewClassificationRequest(productName, description, region string) ClassificationRequest {
	return ClassificationRequest{
		ProductName: productName,
		Description: description,
		Region:      ParseRegion(region),
	}
}

// ConfidenceScore is either a number in [0,1] or the N/A sentinel
type ConfidenceScore struct {
	Value float64
	Known bool
}

// Confidence returns a known confidence score
func Confidence(v float64) ConfidenceScore {
	return ConfidenceScore{Value: v, Known: true}
}

// UnknownConfidence returns the N/A confidence score
func UnknownConfidence() ConfidenceScore {
	return ConfidenceScore{}
}

// String renders the score for tabular output
func (c ConfidenceScore) String() string {
	if !c.Known {
		return NotAvailable
	}
	return strconv.FormatFloat(c.Value, 'f', -1, 64)
}

// MarshalJSON implements json.Marshaler
func (c ConfidenceScore) MarshalJSON() ([]byte, error) {
	if !c.Known {
		return json.Marshal(NotAvailable)
	}
	return json.Marshal(c.Value)
}

// UnmarshalJSON accepts a number in [0,1] or the string "N/A"
func (c *ConfidenceScore) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s != NotAvailable {
			return fmt.Errorf("confidence score must be a number or %q, got %q", NotAvailable, s)
		}
		*c = UnknownConfidence()
		return nil
	}

	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("confidence score must be a number or %q: %w", NotAvailable, err)
	}
	if v < 0 || v > 1 {
		return fmt.Errorf("confidence score %v is outside [0,1]", v)
	}
	*c = Confidence(v)
	return nil
}

// SimilarProduct is a related product with its own HSN code
type SimilarProduct struct {
	Name string `json:"name" validate:"required"`
	HSN  string `json:"hsn" validate:"required"`
}

// PredictionRecord is the canonical result every provider reply is normalized into
type PredictionRecord struct {
	HSNCode         string           `json:"hsn_code" validate:"required"`
	ConfidenceScore ConfidenceScore  `json:"confidence_score"`
	Explanation     string           `json:"explanation" validate:"required"`
	SimilarProducts []SimilarProduct `json:"similar_products" validate:"dive"`
}

// SentinelRecord builds a record that carries no prediction, only a diagnostic
func SentinelRecord(hsnCode, explanation string) PredictionRecord {
	return PredictionRecord{
		HSNCode:         hsnCode,
		ConfidenceScore: UnknownConfidence(),
		Explanation:     explanation,
		SimilarProducts: []SimilarProduct{},
	}
}

// IsSentinel reports whether the record carries a sentinel code instead of a prediction
func (p PredictionRecord) IsSentinel() bool {
	switch p.HSNCode {
	case HSNNotFound, HSNError, NotAvailable:
		return true
	}
	return false
}

// BatchHeader is the header row of the tabular batch export.
// similar_products is deliberately left out of the flattened projection.
var BatchHeader = []string{"product_name", "description", "region", "hsn_code", "confidence_score", "explanation"}

// BatchRow pairs one input row with its prediction
type BatchRow struct {
	Ordinal int                   `json:"ordinal"`
	Request ClassificationRequest `json:"request"`
	Record  PredictionRecord      `json:"record"`
}

// Columns projects the row onto BatchHeader
func (r BatchRow) Columns() []string {
	return []string{
		r.Request.ProductName,
		r.Request.Description,
		string(r.Request.Region),
		r.Record.HSNCode,
		r.Record.ConfidenceScore.String(),
		r.Record.Explanation,
	}
}
