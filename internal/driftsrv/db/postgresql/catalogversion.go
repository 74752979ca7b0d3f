package postgresql

import (
	"context"
	"database/sql"

	"github.com/driftline/driftline-internal/internal/common/apperrors"
	"github.com/driftline/driftline-internal/internal/driftsrv/config"
	"github.com/driftline/driftline-internal/internal/driftsrv/db/dberror"
	"github.com/driftline/driftline-internal/internal/driftsrv/db/models"
	"github.com/golang/snappy"
	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/rs/zerolog/log"
)

// AppendCatalogVersion persists the next accepted schema for a connection.
// The connection row is locked for the duration of the transaction so two
// concurrent appends serialize and version numbers stay contiguous with no
// gaps. The assigned version number is written back into version.VersionNum.
func (mm *metadataManager) AppendCatalogVersion(ctx context.Context, version *models.CatalogVersion) (err apperrors.Error) {
	tenantID, err := tenantFromContext(ctx)
	if err != nil {
		return err
	}
	version.TenantID = tenantID

	if version.ConnectionID == uuid.Nil {
		return dberror.ErrInvalidInput.Msg("connection ID is required")
	}
	if len(version.SchemaDoc) == 0 {
		return dberror.ErrInvalidInput.Msg("schema doc cannot be empty")
	}
	if version.Fingerprint == "" {
		return dberror.ErrInvalidInput.Msg("fingerprint is required")
	}

	var docZ []byte
	if config.Config().CompressSchemaDocs {
		docZ = snappy.Encode(nil, version.SchemaDoc)
		log.Ctx(ctx).Debug().Msgf("raw: %d, compressed: %d", len(version.SchemaDoc), len(docZ))
	} else {
		docZ = version.SchemaDoc
	}

	tx, goerr := mm.conn().BeginTx(ctx, nil)
	if goerr != nil {
		log.Ctx(ctx).Error().Err(goerr).Msg("failed to begin transaction")
		return dberror.ErrDatabase.Err(goerr)
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				log.Ctx(ctx).Error().Err(rollbackErr).Msg("failed to rollback transaction")
			}
		}
	}()

	lockQuery := `
		SELECT active_version
		FROM connections
		WHERE connection_id = $1 AND tenant_id = $2
		FOR UPDATE;
	`

	var activeVersion int
	goerr = tx.QueryRowContext(ctx, lockQuery, version.ConnectionID, tenantID).Scan(&activeVersion)
	if goerr != nil {
		if goerr == sql.ErrNoRows {
			log.Ctx(ctx).Info().Str("connection_id", version.ConnectionID.String()).Msg("connection not found")
			return dberror.ErrNotFound.Msg("connection not found")
		}
		log.Ctx(ctx).Error().Err(goerr).Msg("failed to lock connection row")
		return dberror.ErrDatabase.Err(goerr)
	}

	insertQuery := `
		INSERT INTO catalog_versions (connection_id, version_num, tenant_id, schema_doc, fingerprint)
		VALUES ($1,
			(SELECT COALESCE(MAX(version_num), 0) + 1 FROM catalog_versions WHERE connection_id = $1 AND tenant_id = $2),
			$2, $3, $4)
		RETURNING version_num, created_at;
	`

	goerr = tx.QueryRowContext(ctx, insertQuery, version.ConnectionID, tenantID, docZ, version.Fingerprint).
		Scan(&version.VersionNum, &version.CreatedAt)
	if goerr != nil {
		if pgErr, ok := goerr.(*pgconn.PgError); ok {
			if pgErr.Code == "23505" && pgErr.ConstraintName == "catalog_versions_pkey" {
				log.Ctx(ctx).Error().Str("connection_id", version.ConnectionID.String()).Msg("concurrent version append collided")
				return dberror.ErrConflict.Msg("concurrent version append collided")
			}
			if pgErr.ConstraintName == "catalog_versions_connection_id_tenant_id_fkey" {
				return dberror.ErrInvalidConnection
			}
		}
		log.Ctx(ctx).Error().Err(goerr).Msg("failed to insert catalog version")
		return dberror.ErrDatabase.Err(goerr)
	}

	if goerr := tx.Commit(); goerr != nil {
		log.Ctx(ctx).Error().Err(goerr).Msg("failed to commit transaction")
		return dberror.ErrDatabase.Err(goerr)
	}

	return nil
}

func (mm *metadataManager) GetCurrentCatalogVersion(ctx context.Context, connectionID uuid.UUID) (*models.CatalogVersion, apperrors.Error) {
	tenantID, goerr := tenantFromContext(ctx)
	if goerr != nil {
		return nil, goerr
	}

	query := `
		SELECT connection_id, version_num, tenant_id, schema_doc, fingerprint, created_at
		FROM catalog_versions
		WHERE connection_id = $1 AND tenant_id = $2
		ORDER BY version_num DESC
		LIMIT 1;
	`

	return mm.scanCatalogVersion(ctx, mm.conn().QueryRowContext(ctx, query, connectionID, tenantID))
}

func (mm *metadataManager) GetCatalogVersion(ctx context.Context, connectionID uuid.UUID, versionNum int) (*models.CatalogVersion, apperrors.Error) {
	tenantID, goerr := tenantFromContext(ctx)
	if goerr != nil {
		return nil, goerr
	}

	query := `
		SELECT connection_id, version_num, tenant_id, schema_doc, fingerprint, created_at
		FROM catalog_versions
		WHERE connection_id = $1 AND version_num = $2 AND tenant_id = $3;
	`

	return mm.scanCatalogVersion(ctx, mm.conn().QueryRowContext(ctx, query, connectionID, versionNum, tenantID))
}

func (mm *metadataManager) scanCatalogVersion(ctx context.Context, row *sql.Row) (*models.CatalogVersion, apperrors.Error) {
	version := &models.CatalogVersion{}
	err := row.Scan(
		&version.ConnectionID,
		&version.VersionNum,
		&version.TenantID,
		&version.SchemaDoc,
		&version.Fingerprint,
		&version.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			log.Ctx(ctx).Info().Msg("catalog version not found")
			return nil, dberror.ErrNotFound.Msg("catalog version not found")
		}
		log.Ctx(ctx).Error().Err(err).Msg("failed to retrieve catalog version")
		return nil, dberror.ErrDatabase.Err(err)
	}

	if config.Config().CompressSchemaDocs {
		version.SchemaDoc, err = snappy.Decode(nil, version.SchemaDoc)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("failed to uncompress schema doc")
			return nil, dberror.ErrDatabase.Err(err)
		}
	}

	return version, nil
}

func (mm *metadataManager) CountCatalogVersions(ctx context.Context, connectionID uuid.UUID) (int, apperrors.Error) {
	tenantID, goerr := tenantFromContext(ctx)
	if goerr != nil {
		return 0, goerr
	}

	query := `
		SELECT COUNT(*)
		FROM catalog_versions
		WHERE connection_id = $1 AND tenant_id = $2;
	`

	var count int
	err := mm.conn().QueryRowContext(ctx, query, connectionID, tenantID).Scan(&count)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to count catalog versions")
		return 0, dberror.ErrDatabase.Err(err)
	}

	return count, nil
}
