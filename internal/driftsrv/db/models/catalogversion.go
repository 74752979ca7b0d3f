package models

import (
	"time"

	"github.com/driftline/driftline-internal/pkg/types"
	"github.com/google/uuid"
)

/*
  Table "public.catalog_versions"
     Column     |           Type           | Collation | Nullable |  Default
----------------+--------------------------+-----------+----------+------------
 connection_id  | uuid                     |           | not null |
 version_num    | integer                  |           | not null |
 tenant_id      | character varying(10)    |           | not null |
 schema_doc     | bytea                    |           | not null |
 fingerprint    | character varying(128)   |           | not null |
 created_at     | timestamp with time zone |           |          | now()
Indexes:
    "catalog_versions_pkey" PRIMARY KEY, btree (connection_id, version_num, tenant_id)
Check constraints:
    "catalog_versions_version_num_check" CHECK (version_num > 0)
Foreign-key constraints:
    "catalog_versions_connection_id_tenant_id_fkey" FOREIGN KEY (connection_id, tenant_id) REFERENCES connections(connection_id, tenant_id)
*/

// CatalogVersion is an immutable accepted schema for one connection. The
// table is the audit trail: rows are appended with contiguous version
// numbers starting at 1 and never updated or deleted. SchemaDoc holds the
// snapshot JSON (snappy-compressed at rest when configured).
type CatalogVersion struct {
	ConnectionID uuid.UUID      `db:"connection_id"`
	VersionNum   int            `db:"version_num"`
	TenantID     types.TenantId `db:"tenant_id"`
	SchemaDoc    []byte         `db:"schema_doc"`
	Fingerprint  types.Hash     `db:"fingerprint"`
	CreatedAt    time.Time      `db:"created_at"`
}
