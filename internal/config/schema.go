package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// columnsSchema validates the columns section before it reaches the
// planner. Marker and layout mistakes fail fast in Validate; this
// catches shape errors (wrong types, unknown fields) in hand-edited
// config files.
const columnsSchema = `{
	"type": "object",
	"patternProperties": {
		"^[A-Za-z]{1,3}$": {
			"type": "object",
			"properties": {
				"service":  {"type": "string"},
				"model":    {"type": "string"},
				"mode":     {"type": "string"},
				"features": {
					"type": "object",
					"additionalProperties": {"type": "boolean"}
				}
			},
			"additionalProperties": false
		}
	},
	"additionalProperties": false
}`

// ValidateColumnsJSON checks a raw columns document against the schema.
func ValidateColumnsJSON(raw json.RawMessage) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(columnsSchema),
		gojsonschema.NewBytesLoader(raw),
	)
	if err != nil {
		return fmt.Errorf("validate columns: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("columns configuration invalid: %s", strings.Join(msgs, "; "))
}
