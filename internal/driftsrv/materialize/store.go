// Package materialize is the destination side of the bridge: it upserts
// delivered records into the downstream store keyed by each record's
// natural key, and applies accepted schemas to the live destination on
// behalf of the repair executor.
package materialize

import (
	"context"
	"net/http"

	"github.com/driftline/driftline-internal/internal/common/apperrors"
	"github.com/driftline/driftline-internal/internal/driftsrv/config"
	"github.com/driftline/driftline-internal/internal/driftsrv/db"
	"github.com/driftline/driftline-internal/internal/driftsrv/db/dberror"
	"github.com/driftline/driftline-internal/internal/driftsrv/db/models"
	"github.com/driftline/driftline-internal/internal/driftsrv/driftcommon"
	"github.com/driftline/driftline-internal/internal/driftsrv/schema"
	"github.com/driftline/driftline-internal/pkg/api/canonical"
	"github.com/driftline/driftline-internal/pkg/types"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	ErrMaterialize       apperrors.Error = apperrors.New("materialization error").SetStatusCode(http.StatusInternalServerError)
	ErrUnsupportedSchema apperrors.Error = ErrMaterialize.New("schema cannot be applied to destination").SetStatusCode(http.StatusBadRequest)
)

/*
  Table "public.materialized_records"
     Column      |           Type           | Collation | Nullable | Default
-----------------+--------------------------+-----------+----------+---------
 tenant_id       | character varying(10)    |           | not null |
 connector       | character varying(64)    |           | not null |
 table_name      | character varying(128)   |           | not null |
 natural_key     | character varying(256)   |           | not null |
 record          | jsonb                    |           | not null |
 schema_version  | integer                  |           | not null |
 batch_id        | character varying(32)    |           | not null |
 updated_at      | timestamp with time zone |           |          | now()
Indexes:
    "materialized_records_pkey" PRIMARY KEY, btree (tenant_id, connector, table_name, natural_key)
*/

// Store writes to the destination tables. It satisfies both the stream
// consumer's Materializer and the repair executor's LiveApplier.
type Store struct {
	naturalKeyField string
}

func NewStore() *Store {
	return &Store{naturalKeyField: config.Config().Materialize.NaturalKeyField}
}

// Materialize upserts every record of the envelope. The upsert keys on the
// record's natural key, never the batch id, so re-applying the same
// envelope rewrites identical values instead of duplicating rows.
func (s *Store) Materialize(ctx context.Context, tenantID types.TenantId, envelope *canonical.Envelope) error {
	ctx = driftcommon.SetTenantIdInContext(ctx, tenantID)
	conn, err := db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	if err := conn.AddScope(ctx, db.Scope_TenantId, string(tenantID)); err != nil {
		return err
	}

	query := `
		INSERT INTO materialized_records (tenant_id, connector, table_name, natural_key, record, schema_version, batch_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id, connector, table_name, natural_key)
		DO UPDATE SET record = EXCLUDED.record, schema_version = EXCLUDED.schema_version, batch_id = EXCLUDED.batch_id, updated_at = now();
	`

	upserts := 0
	for _, table := range envelope.Tables {
		for _, sample := range table.Samples {
			key := gjson.GetBytes(sample, s.naturalKeyField).String()
			if key == "" {
				log.Ctx(ctx).Warn().
					Str("batch_id", envelope.BatchID).
					Str("table", table.Name).
					Str("key_field", s.naturalKeyField).
					Msg("record has no natural key, skipping")
				continue
			}
			_, goerr := conn.Conn().ExecContext(ctx, query,
				tenantID, envelope.Connector, table.Name, key, []byte(sample), envelope.SchemaVersion, envelope.BatchID)
			if goerr != nil {
				log.Ctx(ctx).Error().Err(goerr).Str("batch_id", envelope.BatchID).Str("table", table.Name).Msg("upsert failed")
				return dberror.ErrDatabase.Err(goerr)
			}
			upserts++
		}
	}

	log.Ctx(ctx).Info().
		Str("batch_id", envelope.BatchID).
		Str("connector", envelope.Connector).
		Int("records", upserts).
		Msg("batch materialized")

	return nil
}

// destinationType maps a snapshot field type to the destination column
// type. An unmappable type fails the live apply, which parks the
// connection in FAILED.
func destinationType(t schema.FieldType) (string, bool) {
	switch t {
	case schema.FieldTypeString:
		return "text", true
	case schema.FieldTypeInteger:
		return "bigint", true
	case schema.FieldTypeFloat:
		return "double precision", true
	case schema.FieldTypeBoolean:
		return "boolean", true
	case schema.FieldTypeTimestamp:
		return "timestamptz", true
	case schema.FieldTypeObject, schema.FieldTypeArray:
		return "jsonb", true
	}
	return "", false
}

/*
  Table "public.destination_schemas"
     Column      |           Type           | Collation | Nullable | Default
-----------------+--------------------------+-----------+----------+---------
 tenant_id       | character varying(10)    |           | not null |
 connection_id   | uuid                     |           | not null |
 columns         | jsonb                    |           | not null |
 updated_at      | timestamp with time zone |           |          | now()
Indexes:
    "destination_schemas_pkey" PRIMARY KEY, btree (tenant_id, connection_id)
*/

type destinationColumn struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ApplySchema pushes an accepted snapshot to the live destination: every
// leaf field must map to a destination column type, and the resulting
// column set replaces the destination's active schema record.
func (s *Store) ApplySchema(ctx context.Context, connection *models.Connection, snap schema.Snapshot) apperrors.Error {
	leaves := snap.Canonical()
	var columns []destinationColumn
	for _, f := range flatten("", leaves.Fields) {
		dt, ok := destinationType(f.Type)
		if !ok {
			log.Ctx(ctx).Error().Str("field", f.Name).Str("type", string(f.Type)).Msg("destination cannot represent field type")
			return ErrUnsupportedSchema.Suffix(f.Name)
		}
		columns = append(columns, destinationColumn{Name: f.Name, Type: dt})
	}

	doc, goerr := json.Marshal(columns)
	if goerr != nil {
		return ErrMaterialize.Err(goerr)
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return ErrMaterialize.Err(err)
	}
	defer conn.Close(ctx)
	if goerr := conn.AddScope(ctx, db.Scope_TenantId, string(connection.TenantID)); goerr != nil {
		return ErrMaterialize.Err(goerr)
	}

	query := `
		INSERT INTO destination_schemas (tenant_id, connection_id, columns)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, connection_id)
		DO UPDATE SET columns = EXCLUDED.columns, updated_at = now();
	`

	_, goerr = conn.Conn().ExecContext(ctx, query, connection.TenantID, connection.ConnectionID, doc)
	if goerr != nil {
		log.Ctx(ctx).Error().Err(goerr).Str("connection_id", connection.ConnectionID.String()).Msg("failed to apply destination schema")
		return dberror.ErrDatabase.Err(goerr)
	}

	log.Ctx(ctx).Info().
		Str("connection_id", connection.ConnectionID.String()).
		Int("columns", len(columns)).
		Msg("destination schema applied")

	return nil
}

// flatten returns the leaf fields with dotted paths as names.
func flatten(prefix string, fields []schema.Field) []schema.Field {
	var out []schema.Field
	for _, f := range fields {
		name := f.Name
		if prefix != "" {
			name = prefix + "." + f.Name
		}
		if len(f.Fields) == 0 {
			out = append(out, schema.Field{Name: name, Type: f.Type, Nullable: f.Nullable})
			continue
		}
		out = append(out, flatten(name, f.Fields)...)
	}
	return out
}
