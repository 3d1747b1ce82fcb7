// Package cli implements the hsnctl command line client. It runs the same
// classification pipeline as the API server, without the HTTP layer.
package cli

import (
	"context"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/upb/hsn-classifier/models"
	"github.com/upb/hsn-classifier/services/prediction"
)

// Predictor resolves a single request
type Predictor interface {
	Predict(ctx context.Context, channel models.PredictionChannel, req models.ClassificationRequest) prediction.Result
}

// BatchProcessor classifies a CSV stream into a CSV export
type BatchProcessor interface {
	Process(ctx context.Context, in io.Reader, out io.Writer) ([]models.BatchRow, error)
}

// TokenIssuer signs API bearer tokens
type TokenIssuer interface {
	IssueToken(subject, scope string, ttl time.Duration) (string, error)
}

// SchemaRenderer renders the lookup reply schema as TOML
type SchemaRenderer interface {
	Marshal() ([]byte, error)
}

// Services are the backends the commands run against. Nil members disable
// the commands that need them.
type Services struct {
	Predictor Predictor
	Batch     BatchProcessor
	Tokens    TokenIssuer
	Schema    SchemaRenderer
}

var (
	version = "dev"

	predictorService Predictor
	batchService     BatchProcessor
	tokenService     TokenIssuer
	schemaService    SchemaRenderer
)

var rootCmd = &cobra.Command{
	Use:   "hsnctl",
	Short: "Classify products into HSN tariff codes",
	Long: `hsnctl predicts Harmonized System of Nomenclature codes for products,
one at a time or from a CSV file, using the configured classifier with
the lookup service as fallback.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// SetServices installs the command backends
func SetServices(s Services) {
	predictorService = s.Predictor
	batchService = s.Batch
	tokenService = s.Tokens
	schemaService = s.Schema
}

// SetVersion sets the version printed by the version command
func SetVersion(v string) {
	version = v
}

// Execute runs the root command
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
