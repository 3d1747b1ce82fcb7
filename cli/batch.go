package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/upb/hsn-classifier/models"
)

const stdStream = "-"

var (
	batchInput  string
	batchOutput string
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Classify every product in a CSV file",
	Long: `Reads a CSV file with a header row and product_name, description and an
optional region column, classifies each row in order and writes the
six-column export. A failing row is reported in its own line and does not
stop the batch. Use "-" for stdin or stdout.`,
	Args: cobra.NoArgs,
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().StringVarP(&batchInput, "input", "i", "", "input CSV file (required)")
	batchCmd.Flags().StringVarP(&batchOutput, "output", "o", "hsn_predictions.csv", "output CSV file")
	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, _ []string) error {
	if batchService == nil {
		return errors.New("batch service not configured")
	}
	if batchInput == "" {
		return errors.New("--input is required")
	}

	in, closeIn, err := openInput(cmd, batchInput)
	if err != nil {
		return err
	}
	defer closeIn()

	// The export is held in memory so a rejected input never truncates an existing file.
	var out bytes.Buffer
	rows, err := batchService.Process(cmd.Context(), in, &out)
	if err != nil {
		return fmt.Errorf("batch failed: %w", err)
	}
	if err := writeOutput(cmd, batchOutput, out.Bytes()); err != nil {
		return err
	}

	if batchOutput != stdStream {
		cmd.Printf("Classified %d rows (%d without a code) -> %s\n", len(rows), countSentinels(rows), batchOutput)
	}
	return nil
}

func openInput(cmd *cobra.Command, path string) (io.Reader, func(), error) {
	if path == stdStream {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open input: %w", err)
	}
	return f, func() { f.Close() }, nil
}

func writeOutput(cmd *cobra.Command, path string, data []byte) error {
	if path == stdStream {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func countSentinels(rows []models.BatchRow) int {
	n := 0
	for _, row := range rows {
		if row.Record.IsSentinel() {
			n++
		}
	}
	return n
}
