package models

import (
	"database/sql"
	"time"

	"github.com/driftline/driftline-internal/pkg/types"
	"github.com/google/uuid"
	"github.com/jackc/pgtype"
)

/*
  Table "public.drift_events"
      Column      |           Type           | Collation | Nullable |  Default
------------------+--------------------------+-----------+----------+------------
 drift_id         | uuid                     |           | not null | gen_random_uuid()
 connection_id    | uuid                     |           | not null |
 tenant_id        | character varying(10)    |           | not null |
 base_version     | integer                  |           | not null |
 observed_schema  | bytea                    |           | not null |
 observed_fingerprint | character varying(128) |         | not null |
 diff             | jsonb                    |           | not null |
 change_type      | character varying(16)    |           | not null |
 confidence       | double precision         |           | not null |
 status           | character varying(20)    |           | not null | 'pending'
 created_at       | timestamp with time zone |           |          | now()
 resolved_at      | timestamp with time zone |           |          |
Indexes:
    "drift_events_pkey" PRIMARY KEY, btree (drift_id, tenant_id)
    "drift_events_connection_status_idx" btree (connection_id, status, tenant_id)
Check constraints:
    "drift_events_confidence_check" CHECK (confidence >= 0.0 AND confidence <= 1.0)
    "drift_events_status_check" CHECK (status IN ('pending','awaiting_approval','auto_repaired','repaired','rejected'))
Foreign-key constraints:
    "drift_events_connection_id_tenant_id_fkey" FOREIGN KEY (connection_id, tenant_id) REFERENCES connections(connection_id, tenant_id)
*/

// DriftEvent is one detected discrepancy between an observed snapshot and
// the connection's current catalog version. Once resolved it is immutable.
type DriftEvent struct {
	DriftID             uuid.UUID             `db:"drift_id"`
	ConnectionID        uuid.UUID             `db:"connection_id"`
	TenantID            types.TenantId        `db:"tenant_id"`
	BaseVersion         int                   `db:"base_version"`
	ObservedSchema      []byte                `db:"observed_schema"`
	ObservedFingerprint types.Hash            `db:"observed_fingerprint"`
	Diff                pgtype.JSONB          `db:"diff"`
	ChangeType          types.DriftChangeType `db:"change_type"`
	Confidence          float64               `db:"confidence"`
	Status              types.DriftStatus     `db:"status"`
	CreatedAt           time.Time             `db:"created_at"`
	ResolvedAt          sql.NullTime          `db:"resolved_at"`
}
