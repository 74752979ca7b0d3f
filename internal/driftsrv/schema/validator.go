package schema

import (
	"github.com/driftline/driftline-internal/internal/common/apperrors"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// snapshotSchema is the wire contract for snapshot documents. Structural
// rejection happens here; semantic rules (unique sibling names) live in
// Validate.
const snapshotSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"fields": {
			"type": "array",
			"minItems": 1,
			"items": { "$ref": "#/$defs/field" }
		}
	},
	"required": ["fields"],
	"additionalProperties": false,
	"$defs": {
		"field": {
			"type": "object",
			"properties": {
				"name": { "type": "string", "minLength": 1 },
				"type": {
					"type": "string",
					"enum": ["string", "integer", "float", "boolean", "timestamp", "object", "array"]
				},
				"nullable": { "type": "boolean" },
				"fields": {
					"type": "array",
					"items": { "$ref": "#/$defs/field" }
				}
			},
			"required": ["name", "type"],
			"additionalProperties": false
		}
	}
}`

var snapshotValidator = jsonschema.MustCompileString("snapshot.json", snapshotSchema)

// ValidateSnapshotDoc checks a raw snapshot document against the wire
// contract before it is parsed.
func ValidateSnapshotDoc(doc []byte) apperrors.Error {
	var v any
	if err := json.Unmarshal(doc, &v); err != nil {
		return ErrInvalidSnapshot.Err(err)
	}
	if err := snapshotValidator.Validate(v); err != nil {
		return ErrInvalidSnapshot.Msg("snapshot validation failed: " + err.Error())
	}
	return nil
}
