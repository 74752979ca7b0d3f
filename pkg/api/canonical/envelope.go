// Package canonical defines the wire format of the event bridge: the
// envelope carrying transformed records from a sync cycle to the
// materializer, and the deterministic batch id that makes redelivery
// detectable.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/driftline/driftline-internal/pkg/types"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Column is one typed column of a table's schema as shipped on the wire.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TableSchema is the flat column list for one table.
type TableSchema struct {
	Columns []Column `json:"columns"`
}

// TableStats reports how much of the cycle's data this envelope carries
// for one table.
type TableStats struct {
	TotalCount  int `json:"total_count"`
	SampleCount int `json:"sample_count"`
}

// Table is one table's worth of records in an envelope. Samples are raw
// record documents; the materializer extracts the natural key from each.
type Table struct {
	Name    string                `json:"name"`
	Schema  TableSchema           `json:"schema"`
	Samples []jsoniter.RawMessage `json:"samples"`
	Stats   TableStats            `json:"stats"`
}

// Envelope is the unit of transport between emitter and materializer.
// BatchID doubles as the idempotency key: it is deterministic for a given
// (connector, sync cycle, chunk), so a re-run of the same cycle reproduces
// the same ids and the materializer can recognize redeliveries.
type Envelope struct {
	BatchID           string    `json:"batch_id"`
	Connector         string    `json:"connector"`
	ConnectorConfigID string    `json:"connector_config_id"`
	SchemaVersion     int       `json:"schema_version"`
	Tables            []Table   `json:"tables"`
	EmittedAt         time.Time `json:"emitted_at"`
}

// BatchID derives the deterministic idempotency key for one chunk of one
// sync cycle.
func BatchID(connector string, cycle time.Time, chunk int) string {
	seed := fmt.Sprintf("%s:%d:%d", connector, cycle.Unix(), chunk)
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])[:32]
}

// StreamKey is the transport key for a tenant's connector:
// {namespace}:{tenant_id}:{connector}.
func StreamKey(namespace string, tenantID types.TenantId, connector string) string {
	return fmt.Sprintf("%s:%s:%s", namespace, tenantID, connector)
}

// GroupName is the consumer group for a tenant's materializers:
// {materializer_namespace}:{tenant_id}.
func GroupName(namespace string, tenantID types.TenantId) string {
	return fmt.Sprintf("%s:%s", namespace, tenantID)
}

// Serialize encodes the envelope for transport.
func (e *Envelope) Serialize() ([]byte, error) {
	return json.Marshal(e)
}

// ParseEnvelope decodes a transport payload.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if e.BatchID == "" {
		return nil, fmt.Errorf("envelope has no batch id")
	}
	return &e, nil
}
