package schema

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sigs.k8s.io/yaml"
)

var customerSchemaYaml = `
fields:
  - name: id
    type: integer
  - name: name
    type: string
  - name: email
    type: string
    nullable: true
  - name: address
    type: object
    fields:
      - name: city
        type: string
      - name: zip
        type: string
        nullable: true
`

func loadSnapshot(t *testing.T, doc string) Snapshot {
	t.Helper()
	jsonData, err := yaml.YAMLToJSON([]byte(doc))
	require.NoError(t, err)
	s, perr := ParseSnapshot(jsonData)
	require.NoError(t, perr)
	return s
}

func TestFingerprintOrderInvariance(t *testing.T) {
	s := loadSnapshot(t, customerSchemaYaml)
	want, err := Fingerprint(s)
	require.NoError(t, err)
	require.NotEmpty(t, want)

	// Any permutation of the field enumeration must hash identically,
	// including nested levels.
	for i := 0; i < 20; i++ {
		shuffled := Snapshot{Fields: shuffleFields(s.Fields)}
		got, err := Fingerprint(shuffled)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func shuffleFields(fields []Field) []Field {
	out := make([]Field, len(fields))
	copy(out, fields)
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	for i := range out {
		if len(out[i].Fields) > 0 {
			out[i].Fields = shuffleFields(out[i].Fields)
		}
	}
	return out
}

func TestFingerprintSensitivity(t *testing.T) {
	base := loadSnapshot(t, customerSchemaYaml)
	baseFp, err := Fingerprint(base)
	require.NoError(t, err)

	t.Run("rename changes fingerprint", func(t *testing.T) {
		s := loadSnapshot(t, customerSchemaYaml)
		s.Fields[1].Name = "full_name"
		fp, err := Fingerprint(s)
		require.NoError(t, err)
		assert.NotEqual(t, baseFp, fp)
	})

	t.Run("retype changes fingerprint", func(t *testing.T) {
		s := loadSnapshot(t, customerSchemaYaml)
		s.Fields[0].Type = FieldTypeString
		fp, err := Fingerprint(s)
		require.NoError(t, err)
		assert.NotEqual(t, baseFp, fp)
	})

	t.Run("added field changes fingerprint", func(t *testing.T) {
		s := loadSnapshot(t, customerSchemaYaml)
		s.Fields = append(s.Fields, Field{Name: "phone", Type: FieldTypeString})
		fp, err := Fingerprint(s)
		require.NoError(t, err)
		assert.NotEqual(t, baseFp, fp)
	})

	t.Run("removed field changes fingerprint", func(t *testing.T) {
		s := loadSnapshot(t, customerSchemaYaml)
		s.Fields = s.Fields[:len(s.Fields)-1]
		fp, err := Fingerprint(s)
		require.NoError(t, err)
		assert.NotEqual(t, baseFp, fp)
	})

	t.Run("nested change changes fingerprint", func(t *testing.T) {
		s := loadSnapshot(t, customerSchemaYaml)
		s.Fields[3].Fields[0].Type = FieldTypeInteger
		fp, err := Fingerprint(s)
		require.NoError(t, err)
		assert.NotEqual(t, baseFp, fp)
	})
}

func TestParseSnapshotValidation(t *testing.T) {
	_, err := ParseSnapshot([]byte(`{"fields":[]}`))
	assert.ErrorIs(t, err, ErrEmptySnapshot)

	_, err = ParseSnapshot([]byte(`{"fields":[{"name":"a","type":"string"},{"name":"a","type":"integer"}]}`))
	assert.ErrorIs(t, err, ErrDuplicateField)

	_, err = ParseSnapshot([]byte(`{"fields":[{"name":"a","type":"decimal"}]}`))
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = ParseSnapshot([]byte(`{"fields":[{"name":"a","type":"string","fields":[{"name":"b","type":"string"}]}]}`))
	assert.ErrorIs(t, err, ErrInvalidSnapshot)
}
