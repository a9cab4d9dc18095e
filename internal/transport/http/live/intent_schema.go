package livehttp

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Manual intents are validated against a schema before anything touches the
// pipeline, so malformed payloads are rejected with a field-level message
// instead of a decode panic deeper down.
const intentSchemaJSON = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["symbol", "side", "entry", "stop"],
	"additionalProperties": false,
	"properties": {
		"symbol":     {"type": "string", "minLength": 1},
		"side":       {"type": "string", "enum": ["BUY", "SELL"]},
		"quantity":   {"type": "number", "exclusiveMinimum": 0},
		"order_type": {"type": "string", "enum": ["MARKET", "LIMIT"]},
		"entry":      {"type": "number", "exclusiveMinimum": 0},
		"stop":       {"type": "number", "exclusiveMinimum": 0},
		"target":     {"type": "number", "minimum": 0},
		"strategy":   {"type": "string"}
	}
}`

var intentSchema = jsonschema.MustCompileString("intent.json", intentSchemaJSON)

func validateIntentBody(raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := intentSchema.Validate(doc); err != nil {
		return err
	}
	return nil
}
