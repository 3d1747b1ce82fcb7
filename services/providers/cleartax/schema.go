package cleartax

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// ReplySchema names the fields of the lookup service reply. The service
// returns an object whose ResultsField holds an array of result objects.
type ReplySchema struct {
	ResultsField     string `toml:"results_field"`
	CodeField        string `toml:"code_field"`
	DescriptionField string `toml:"description_field"`
}

// DefaultReplySchema returns the reply shape the lookup service is known to use
func DefaultReplySchema() ReplySchema {
	return ReplySchema{
		ResultsField:     "results",
		CodeField:        "hsn_code",
		DescriptionField: "description",
	}
}

// LoadReplySchema reads a schema from a TOML file. Fields left out of the
// file keep their default names.
func LoadReplySchema(path string) (ReplySchema, error) {
	schema := DefaultReplySchema()
	if path == "" {
		return schema, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return schema, fmt.Errorf("failed to read reply schema: %w", err)
	}

	if err := toml.Unmarshal(data, &schema); err != nil {
		return schema, fmt.Errorf("failed to parse reply schema %s: %w", path, err)
	}

	if err := schema.Validate(); err != nil {
		return schema, err
	}

	return schema, nil
}

// Validate checks that every field name is set
func (s ReplySchema) Validate() error {
	if s.ResultsField == "" {
		return fmt.Errorf("reply schema: results_field is required")
	}
	if s.CodeField == "" {
		return fmt.Errorf("reply schema: code_field is required")
	}
	if s.DescriptionField == "" {
		return fmt.Errorf("reply schema: description_field is required")
	}
	return nil
}

// Marshal renders the schema as TOML
func (s ReplySchema) Marshal() ([]byte, error) {
	return toml.Marshal(s)
}
