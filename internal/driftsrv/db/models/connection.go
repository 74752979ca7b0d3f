package models

import (
	"time"

	"github.com/driftline/driftline-internal/pkg/types"
	"github.com/google/uuid"
)

/*
  Table "public.connections"
      Column      |           Type           | Collation | Nullable |  Default
------------------+--------------------------+-----------+----------+------------
 connection_id    | uuid                     |           | not null | gen_random_uuid()
 tenant_id        | character varying(10)    |           | not null |
 source_type      | character varying(64)    |           | not null |
 source_ref       | character varying(256)   |           | not null |
 destination_ref  | character varying(256)   |           | not null |
 status           | character varying(16)    |           | not null | 'ACTIVE'
 active_version   | integer                  |           | not null | 0
 created_at       | timestamp with time zone |           |          | now()
 updated_at       | timestamp with time zone |           |          | now()
Indexes:
    "connections_pkey" PRIMARY KEY, btree (connection_id, tenant_id)
Check constraints:
    "connections_status_check" CHECK (status IN ('ACTIVE','HEALING','FAILED','RETIRED'))
Triggers:
    update_connections_updated_at BEFORE UPDATE ON connections FOR EACH ROW EXECUTE FUNCTION set_updated_at()
*/

// Connection is one source-to-destination pairing. Rows are never deleted;
// a decommissioned connection is soft-retired via status.
type Connection struct {
	ConnectionID   uuid.UUID              `db:"connection_id"`
	TenantID       types.TenantId         `db:"tenant_id"`
	SourceType     string                 `db:"source_type"`
	SourceRef      string                 `db:"source_ref"`
	DestinationRef string                 `db:"destination_ref"`
	Status         types.ConnectionStatus `db:"status"`
	ActiveVersion  int                    `db:"active_version"`
	CreatedAt      time.Time              `db:"created_at"`
	UpdatedAt      time.Time              `db:"updated_at"`
}
