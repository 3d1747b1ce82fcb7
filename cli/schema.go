package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the lookup reply schema in effect",
	Long: `Print, as TOML, the field names used to decode the lookup service reply.
The output is a valid CLEARTAX_SCHEMA_FILE and can be edited to match
another reply shape.`,
	RunE: runSchema,
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}

func runSchema(cmd *cobra.Command, _ []string) error {
	if schemaService == nil {
		return errors.New("lookup schema not configured")
	}

	data, err := schemaService.Marshal()
	if err != nil {
		return fmt.Errorf("failed to render schema: %w", err)
	}

	_, err = cmd.OutOrStdout().Write(data)
	return err
}
