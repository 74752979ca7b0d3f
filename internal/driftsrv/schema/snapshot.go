// Package schema models source schema snapshots as a closed tree of typed
// fields, and provides the order-insensitive fingerprint and the structural
// diff the drift classifier runs on. A snapshot is a tagged variant: a leaf
// is a named, typed, optionally nullable field; a node is a named object
// whose children are again fields. Arrays carry their element shape in the
// same children slot.
package schema

import (
	"sort"

	"github.com/driftline/driftline-internal/internal/common/apperrors"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type FieldType string

const (
	FieldTypeString    FieldType = "string"
	FieldTypeInteger   FieldType = "integer"
	FieldTypeFloat     FieldType = "float"
	FieldTypeBoolean   FieldType = "boolean"
	FieldTypeTimestamp FieldType = "timestamp"
	FieldTypeObject    FieldType = "object"
	FieldTypeArray     FieldType = "array"
)

func (t FieldType) IsValid() bool {
	switch t {
	case FieldTypeString, FieldTypeInteger, FieldTypeFloat, FieldTypeBoolean,
		FieldTypeTimestamp, FieldTypeObject, FieldTypeArray:
		return true
	}
	return false
}

// IsScalar reports whether the type is a leaf type with no children.
func (t FieldType) IsScalar() bool {
	return t != FieldTypeObject && t != FieldTypeArray
}

// Field is one node of the snapshot tree. Fields is populated only for
// object and array types.
type Field struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Nullable bool      `json:"nullable,omitempty"`
	Fields   []Field   `json:"fields,omitempty"`
}

// Snapshot is an observed source schema: an unordered collection of fields.
type Snapshot struct {
	Fields []Field `json:"fields"`
}

// ParseSnapshot decodes and validates a snapshot document.
func ParseSnapshot(doc []byte) (Snapshot, apperrors.Error) {
	var s Snapshot
	if err := json.Unmarshal(doc, &s); err != nil {
		return Snapshot{}, ErrInvalidSnapshot.Err(err)
	}
	if err := s.Validate(); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

// Validate checks the snapshot invariants: at least one field, non-empty
// unique sibling names, known types, children only under composite types.
func (s Snapshot) Validate() apperrors.Error {
	if len(s.Fields) == 0 {
		return ErrEmptySnapshot
	}
	return validateFields(s.Fields)
}

func validateFields(fields []Field) apperrors.Error {
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f.Name == "" {
			return ErrInvalidSnapshot.Msg("field name cannot be empty")
		}
		if seen[f.Name] {
			return ErrDuplicateField.Suffix(f.Name)
		}
		seen[f.Name] = true
		if !f.Type.IsValid() {
			return ErrUnknownType.Suffix(string(f.Type))
		}
		if f.Type.IsScalar() && len(f.Fields) > 0 {
			return ErrInvalidSnapshot.Msg("scalar field cannot have children").Suffix(f.Name)
		}
		if len(f.Fields) > 0 {
			if err := validateFields(f.Fields); err != nil {
				return err
			}
		}
	}
	return nil
}

// Canonical returns a deep copy of the snapshot with every level of the
// tree sorted by field name. Two snapshots that differ only in enumeration
// order have identical canonical forms.
func (s Snapshot) Canonical() Snapshot {
	return Snapshot{Fields: canonicalFields(s.Fields)}
}

func canonicalFields(fields []Field) []Field {
	out := make([]Field, len(fields))
	for i, f := range fields {
		out[i] = Field{
			Name:     f.Name,
			Type:     f.Type,
			Nullable: f.Nullable,
		}
		if len(f.Fields) > 0 {
			out[i].Fields = canonicalFields(f.Fields)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Serialize converts the snapshot to a JSON byte array.
func (s Snapshot) Serialize() ([]byte, apperrors.Error) {
	j, err := json.Marshal(s)
	if err != nil {
		return nil, ErrSerialization
	}
	return j, nil
}

// FieldCount returns the number of leaf fields in the snapshot.
func (s Snapshot) FieldCount() int {
	return countLeaves(s.Fields)
}

func countLeaves(fields []Field) int {
	n := 0
	for _, f := range fields {
		if len(f.Fields) == 0 {
			n++
		} else {
			n += countLeaves(f.Fields)
		}
	}
	return n
}
