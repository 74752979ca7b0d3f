package canonical

import (
	"testing"
	"time"

	"github.com/driftline/driftline-internal/pkg/types"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchIDDeterminism(t *testing.T) {
	cycle := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	a := BatchID("salesforce", cycle, 0)
	b := BatchID("salesforce", cycle, 0)
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)

	// any component change yields a different id
	assert.NotEqual(t, a, BatchID("hubspot", cycle, 0))
	assert.NotEqual(t, a, BatchID("salesforce", cycle.Add(time.Second), 0))
	assert.NotEqual(t, a, BatchID("salesforce", cycle, 1))

	// sub-second offsets within the same cycle second do not change the id
	assert.Equal(t, a, BatchID("salesforce", cycle.Add(500*time.Millisecond), 0))
}

func TestStreamAndGroupNames(t *testing.T) {
	tenantID := types.TenantId("T123ABC")
	assert.Equal(t, "canonical:T123ABC:salesforce", StreamKey("canonical", tenantID, "salesforce"))
	assert.Equal(t, "materializer:T123ABC", GroupName("materializer", tenantID))
}

func TestEnvelopeRoundTrip(t *testing.T) {
	cycle := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	in := &Envelope{
		BatchID:           BatchID("salesforce", cycle, 0),
		Connector:         "salesforce",
		ConnectorConfigID: "cfg-1",
		SchemaVersion:     3,
		Tables: []Table{{
			Name:    "contacts",
			Schema:  TableSchema{Columns: []Column{{Name: "id", Type: "string"}, {Name: "email", Type: "string"}}},
			Samples: []jsoniter.RawMessage{jsoniter.RawMessage(`{"id":"c1","email":"a@b.co"}`)},
			Stats:   TableStats{TotalCount: 420, SampleCount: 1},
		}},
		EmittedAt: cycle,
	}

	data, err := in.Serialize()
	require.NoError(t, err)

	out, err := ParseEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, in.BatchID, out.BatchID)
	assert.Equal(t, in.SchemaVersion, out.SchemaVersion)
	require.Len(t, out.Tables, 1)
	assert.Equal(t, "contacts", out.Tables[0].Name)
	assert.Equal(t, 420, out.Tables[0].Stats.TotalCount)
	assert.JSONEq(t, `{"id":"c1","email":"a@b.co"}`, string(out.Tables[0].Samples[0]))
}

func TestParseEnvelopeRejectsMissingBatchID(t *testing.T) {
	_, err := ParseEnvelope([]byte(`{"connector":"salesforce","tables":[]}`))
	require.Error(t, err)

	_, err = ParseEnvelope([]byte(`not json`))
	require.Error(t, err)
}
