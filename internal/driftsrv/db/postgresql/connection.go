package postgresql

import (
	"context"
	"database/sql"
	"time"

	"github.com/driftline/driftline-internal/internal/common/apperrors"
	"github.com/driftline/driftline-internal/internal/driftsrv/db/dberror"
	"github.com/driftline/driftline-internal/internal/driftsrv/db/models"
	"github.com/driftline/driftline-internal/pkg/types"
	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/rs/zerolog/log"
)

func (mm *metadataManager) CreateConnection(ctx context.Context, conn *models.Connection) apperrors.Error {
	tenantID, goerr := tenantFromContext(ctx)
	if goerr != nil {
		return goerr
	}
	conn.TenantID = tenantID

	if conn.SourceType == "" || conn.SourceRef == "" || conn.DestinationRef == "" {
		return dberror.ErrInvalidInput.Msg("source type, source ref and destination ref are required")
	}
	if conn.Status == "" {
		conn.Status = types.ConnectionStatusActive
	}
	if !conn.Status.IsValid() {
		return dberror.ErrInvalidInput.Msg("invalid connection status")
	}
	if conn.ConnectionID == uuid.Nil {
		conn.ConnectionID = uuid.New()
	}

	query := `
		INSERT INTO connections (connection_id, tenant_id, source_type, source_ref, destination_ref, status, active_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at;
	`

	err := mm.conn().QueryRowContext(ctx, query,
		conn.ConnectionID, conn.TenantID, conn.SourceType, conn.SourceRef, conn.DestinationRef, conn.Status, conn.ActiveVersion).
		Scan(&conn.CreatedAt, &conn.UpdatedAt)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok {
			if pgErr.Code == "23505" && pgErr.ConstraintName == "connections_pkey" {
				log.Ctx(ctx).Info().Str("connection_id", conn.ConnectionID.String()).Msg("connection already exists")
				return dberror.ErrAlreadyExists.Msg("connection already exists")
			}
			if pgErr.Code == "23514" && pgErr.ConstraintName == "connections_status_check" {
				return dberror.ErrInvalidInput.Msg("invalid connection status")
			}
			if pgErr.ConstraintName == "connections_tenant_id_fkey" {
				return dberror.ErrInvalidInput.Msg("tenant not found")
			}
		}
		log.Ctx(ctx).Error().Err(err).Msg("failed to insert connection")
		return dberror.ErrDatabase.Err(err)
	}

	return nil
}

func (mm *metadataManager) GetConnection(ctx context.Context, connectionID uuid.UUID) (*models.Connection, apperrors.Error) {
	tenantID, goerr := tenantFromContext(ctx)
	if goerr != nil {
		return nil, goerr
	}

	query := `
		SELECT connection_id, tenant_id, source_type, source_ref, destination_ref, status, active_version, created_at, updated_at
		FROM connections
		WHERE connection_id = $1 AND tenant_id = $2;
	`

	conn := &models.Connection{}
	err := mm.conn().QueryRowContext(ctx, query, connectionID, tenantID).Scan(
		&conn.ConnectionID,
		&conn.TenantID,
		&conn.SourceType,
		&conn.SourceRef,
		&conn.DestinationRef,
		&conn.Status,
		&conn.ActiveVersion,
		&conn.CreatedAt,
		&conn.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			log.Ctx(ctx).Info().Str("connection_id", connectionID.String()).Msg("connection not found")
			return nil, dberror.ErrNotFound.Msg("connection not found")
		}
		log.Ctx(ctx).Error().Err(err).Msg("failed to retrieve connection")
		return nil, dberror.ErrDatabase.Err(err)
	}

	return conn, nil
}

// TransitionConnectionStatus flips status only when the row is currently in
// the expected state. A zero row count means another actor got there first
// and the caller must back off.
func (mm *metadataManager) TransitionConnectionStatus(ctx context.Context, connectionID uuid.UUID, from, to types.ConnectionStatus) apperrors.Error {
	tenantID, goerr := tenantFromContext(ctx)
	if goerr != nil {
		return goerr
	}

	if !from.IsValid() || !to.IsValid() {
		return dberror.ErrInvalidInput.Msg("invalid connection status")
	}

	query := `
		UPDATE connections
		SET status = $1
		WHERE connection_id = $2 AND tenant_id = $3 AND status = $4;
	`

	result, err := mm.conn().ExecContext(ctx, query, to, connectionID, tenantID, from)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to update connection status")
		return dberror.ErrDatabase.Err(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to retrieve result information")
		return dberror.ErrDatabase.Err(err)
	}

	if rowsAffected == 0 {
		log.Ctx(ctx).Info().
			Str("connection_id", connectionID.String()).
			Str("from", string(from)).
			Str("to", string(to)).
			Msg("connection not in expected status")
		return dberror.ErrConflict.Msg("connection not in expected status")
	}

	return nil
}

func (mm *metadataManager) SetActiveVersion(ctx context.Context, connectionID uuid.UUID, versionNum int) apperrors.Error {
	tenantID, goerr := tenantFromContext(ctx)
	if goerr != nil {
		return goerr
	}

	if versionNum <= 0 {
		return dberror.ErrInvalidInput.Msg("version number must be positive")
	}

	query := `
		UPDATE connections
		SET active_version = $1
		WHERE connection_id = $2 AND tenant_id = $3
		  AND EXISTS (
			SELECT 1 FROM catalog_versions
			WHERE connection_id = $2 AND tenant_id = $3 AND version_num = $1
		  );
	`

	result, err := mm.conn().ExecContext(ctx, query, versionNum, connectionID, tenantID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to set active version")
		return dberror.ErrDatabase.Err(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to retrieve result information")
		return dberror.ErrDatabase.Err(err)
	}

	if rowsAffected == 0 {
		log.Ctx(ctx).Info().Str("connection_id", connectionID.String()).Int("version_num", versionNum).Msg("connection or version not found")
		return dberror.ErrNotFound.Msg("connection or version not found")
	}

	return nil
}

func (mm *metadataManager) RetireConnection(ctx context.Context, connectionID uuid.UUID) apperrors.Error {
	tenantID, goerr := tenantFromContext(ctx)
	if goerr != nil {
		return goerr
	}

	query := `
		UPDATE connections
		SET status = $1
		WHERE connection_id = $2 AND tenant_id = $3 AND status != $1;
	`

	result, err := mm.conn().ExecContext(ctx, query, types.ConnectionStatusRetired, connectionID, tenantID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to retire connection")
		return dberror.ErrDatabase.Err(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to retrieve result information")
		return dberror.ErrDatabase.Err(err)
	}

	if rowsAffected == 0 {
		log.Ctx(ctx).Info().Str("connection_id", connectionID.String()).Msg("connection not found or already retired")
		return dberror.ErrNotFound.Msg("connection not found or already retired")
	}

	return nil
}

// ListStaleHealingConnections is a maintenance query for the repair
// supervisor. It deliberately runs without a tenant scope so a single
// supervisor can sweep every tenant's stuck repairs.
func (mm *metadataManager) ListStaleHealingConnections(ctx context.Context, cutoff time.Time) ([]models.Connection, apperrors.Error) {
	query := `
		SELECT connection_id, tenant_id, source_type, source_ref, destination_ref, status, active_version, created_at, updated_at
		FROM connections
		WHERE status = $1 AND updated_at < $2;
	`

	rows, err := mm.conn().QueryContext(ctx, query, types.ConnectionStatusHealing, cutoff)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to list stale healing connections")
		return nil, dberror.ErrDatabase.Err(err)
	}
	defer rows.Close()

	var conns []models.Connection
	for rows.Next() {
		var conn models.Connection
		err = rows.Scan(
			&conn.ConnectionID,
			&conn.TenantID,
			&conn.SourceType,
			&conn.SourceRef,
			&conn.DestinationRef,
			&conn.Status,
			&conn.ActiveVersion,
			&conn.CreatedAt,
			&conn.UpdatedAt,
		)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("failed to scan connection row")
			return nil, dberror.ErrDatabase.Err(err)
		}
		conns = append(conns, conn)
	}

	if err = rows.Err(); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("error after scanning connections")
		return nil, dberror.ErrDatabase.Err(err)
	}

	return conns, nil
}
