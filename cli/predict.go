package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/upb/hsn-classifier/models"
)

var (
	predictName        string
	predictDescription string
	predictRegion      string
	predictJSON        bool
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Predict the HSN code of one product",
	Long: `Classifies a single product. The region selects the code length:
India asks for an 8-digit code, anything else for a 6-digit international code.`,
	Args: cobra.NoArgs,
	RunE: runPredict,
}

func init() {
	predictCmd.Flags().StringVarP(&predictName, "name", "n", "", "product name (required)")
	predictCmd.Flags().StringVarP(&predictDescription, "description", "d", "", "product description")
	predictCmd.Flags().StringVarP(&predictRegion, "region", "r", string(models.RegionInternational), "India or International")
	predictCmd.Flags().BoolVar(&predictJSON, "json", false, "output the prediction as JSON")
	rootCmd.AddCommand(predictCmd)
}

func runPredict(cmd *cobra.Command, _ []string) error {
	if predictorService == nil {
		return errors.New("prediction service not configured")
	}
	if strings.TrimSpace(predictName) == "" {
		return errors.New("--name is required")
	}

	req := models.NewClassificationRequest(predictName, predictDescription, predictRegion)
	result := predictorService.Predict(cmd.Context(), models.PredictionChannelInteractive, req)

	if predictJSON {
		data, err := json.MarshalIndent(result.Record, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal prediction: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	printRecord(cmd.OutOrStdout(), req, result.Record, result.Provider)
	return nil
}

func printRecord(w io.Writer, req models.ClassificationRequest, rec models.PredictionRecord, provider string) {
	fmt.Fprintf(w, "Product:     %s (%s)\n", req.ProductName, req.Region)
	fmt.Fprintf(w, "HSN code:    %s\n", rec.HSNCode)
	fmt.Fprintf(w, "Confidence:  %s\n", rec.ConfidenceScore)
	fmt.Fprintf(w, "Explanation: %s\n", rec.Explanation)
	if provider != "" {
		fmt.Fprintf(w, "Provider:    %s\n", provider)
	}
	if len(rec.SimilarProducts) > 0 {
		fmt.Fprintln(w, "Similar products:")
		for _, p := range rec.SimilarProducts {
			fmt.Fprintf(w, "  - %s (%s)\n", p.Name, p.HSN)
		}
	}
}
