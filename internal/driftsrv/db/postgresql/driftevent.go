package postgresql

import (
	"context"
	"database/sql"

	"github.com/driftline/driftline-internal/internal/common/apperrors"
	"github.com/driftline/driftline-internal/internal/driftsrv/db/dberror"
	"github.com/driftline/driftline-internal/internal/driftsrv/db/models"
	"github.com/driftline/driftline-internal/pkg/types"
	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/rs/zerolog/log"
)

func (mm *metadataManager) CreateDriftEvent(ctx context.Context, event *models.DriftEvent) apperrors.Error {
	tenantID, goerr := tenantFromContext(ctx)
	if goerr != nil {
		return goerr
	}
	event.TenantID = tenantID

	if event.ConnectionID == uuid.Nil {
		return dberror.ErrInvalidInput.Msg("connection ID is required")
	}
	if event.BaseVersion <= 0 {
		return dberror.ErrInvalidInput.Msg("base version must be positive")
	}
	if len(event.ObservedSchema) == 0 {
		return dberror.ErrInvalidInput.Msg("observed schema cannot be empty")
	}
	if event.Status == "" {
		event.Status = types.DriftStatusPending
	}
	if event.DriftID == uuid.Nil {
		event.DriftID = uuid.New()
	}

	query := `
		INSERT INTO drift_events (drift_id, connection_id, tenant_id, base_version, observed_schema, observed_fingerprint, diff, change_type, confidence, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at;
	`

	err := mm.conn().QueryRowContext(ctx, query,
		event.DriftID, event.ConnectionID, event.TenantID, event.BaseVersion,
		event.ObservedSchema, event.ObservedFingerprint, &event.Diff,
		event.ChangeType, event.Confidence, event.Status).
		Scan(&event.CreatedAt)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok {
			if pgErr.Code == "23505" && pgErr.ConstraintName == "drift_events_pkey" {
				log.Ctx(ctx).Info().Str("drift_id", event.DriftID.String()).Msg("drift event already exists")
				return dberror.ErrAlreadyExists.Msg("drift event already exists")
			}
			if pgErr.Code == "23514" && pgErr.ConstraintName == "drift_events_confidence_check" {
				return dberror.ErrInvalidInput.Msg("confidence must be between 0 and 1")
			}
			if pgErr.Code == "23514" && pgErr.ConstraintName == "drift_events_status_check" {
				return dberror.ErrInvalidInput.Msg("invalid drift status")
			}
			if pgErr.ConstraintName == "drift_events_connection_id_tenant_id_fkey" {
				return dberror.ErrInvalidConnection
			}
		}
		log.Ctx(ctx).Error().Err(err).Msg("failed to insert drift event")
		return dberror.ErrDatabase.Err(err)
	}

	return nil
}

func (mm *metadataManager) GetDriftEvent(ctx context.Context, driftID uuid.UUID) (*models.DriftEvent, apperrors.Error) {
	tenantID, goerr := tenantFromContext(ctx)
	if goerr != nil {
		return nil, goerr
	}

	query := `
		SELECT drift_id, connection_id, tenant_id, base_version, observed_schema, observed_fingerprint, diff, change_type, confidence, status, created_at, resolved_at
		FROM drift_events
		WHERE drift_id = $1 AND tenant_id = $2;
	`

	event := &models.DriftEvent{}
	err := mm.conn().QueryRowContext(ctx, query, driftID, tenantID).Scan(
		&event.DriftID,
		&event.ConnectionID,
		&event.TenantID,
		&event.BaseVersion,
		&event.ObservedSchema,
		&event.ObservedFingerprint,
		&event.Diff,
		&event.ChangeType,
		&event.Confidence,
		&event.Status,
		&event.CreatedAt,
		&event.ResolvedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			log.Ctx(ctx).Info().Str("drift_id", driftID.String()).Msg("drift event not found")
			return nil, dberror.ErrNotFound.Msg("drift event not found")
		}
		log.Ctx(ctx).Error().Err(err).Msg("failed to retrieve drift event")
		return nil, dberror.ErrDatabase.Err(err)
	}

	return event, nil
}

// TransitionDriftEventStatus is a compare-and-set on a live event. Resolved
// events are excluded from the match so they can never be reopened.
func (mm *metadataManager) TransitionDriftEventStatus(ctx context.Context, driftID uuid.UUID, from, to types.DriftStatus) apperrors.Error {
	tenantID, goerr := tenantFromContext(ctx)
	if goerr != nil {
		return goerr
	}

	if from.IsResolved() {
		return dberror.ErrInvalidInput.Msg("cannot transition from a resolved status")
	}

	query := `
		UPDATE drift_events
		SET status = $1
		WHERE drift_id = $2 AND tenant_id = $3 AND status = $4 AND resolved_at IS NULL;
	`

	result, err := mm.conn().ExecContext(ctx, query, to, driftID, tenantID, from)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to update drift event status")
		return dberror.ErrDatabase.Err(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to retrieve result information")
		return dberror.ErrDatabase.Err(err)
	}

	if rowsAffected == 0 {
		log.Ctx(ctx).Info().
			Str("drift_id", driftID.String()).
			Str("from", string(from)).
			Str("to", string(to)).
			Msg("drift event not in expected status")
		return dberror.ErrConflict.Msg("drift event not in expected status")
	}

	return nil
}

// ResolveDriftEvent stamps a terminal status. The resolved_at guard makes
// resolution idempotent-safe: a second resolution attempt conflicts instead
// of silently rewriting history.
func (mm *metadataManager) ResolveDriftEvent(ctx context.Context, driftID uuid.UUID, status types.DriftStatus) apperrors.Error {
	tenantID, goerr := tenantFromContext(ctx)
	if goerr != nil {
		return goerr
	}

	if !status.IsResolved() {
		return dberror.ErrInvalidInput.Msg("status is not a terminal drift status")
	}

	query := `
		UPDATE drift_events
		SET status = $1, resolved_at = now()
		WHERE drift_id = $2 AND tenant_id = $3 AND resolved_at IS NULL;
	`

	result, err := mm.conn().ExecContext(ctx, query, status, driftID, tenantID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to resolve drift event")
		return dberror.ErrDatabase.Err(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to retrieve result information")
		return dberror.ErrDatabase.Err(err)
	}

	if rowsAffected == 0 {
		log.Ctx(ctx).Info().Str("drift_id", driftID.String()).Msg("drift event not found or already resolved")
		return dberror.ErrConflict.Msg("drift event not found or already resolved")
	}

	return nil
}

// ListDriftEvents returns events for a connection, newest first. Passing an
// empty status lists all of them.
func (mm *metadataManager) ListDriftEvents(ctx context.Context, connectionID uuid.UUID, status types.DriftStatus) ([]models.DriftEvent, apperrors.Error) {
	tenantID, goerr := tenantFromContext(ctx)
	if goerr != nil {
		return nil, goerr
	}

	query := `
		SELECT drift_id, connection_id, tenant_id, base_version, observed_schema, observed_fingerprint, diff, change_type, confidence, status, created_at, resolved_at
		FROM drift_events
		WHERE connection_id = $1 AND tenant_id = $2 AND ($3 = '' OR status = $3)
		ORDER BY created_at DESC;
	`

	rows, err := mm.conn().QueryContext(ctx, query, connectionID, tenantID, status)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to list drift events")
		return nil, dberror.ErrDatabase.Err(err)
	}
	defer rows.Close()

	var events []models.DriftEvent
	for rows.Next() {
		var event models.DriftEvent
		err = rows.Scan(
			&event.DriftID,
			&event.ConnectionID,
			&event.TenantID,
			&event.BaseVersion,
			&event.ObservedSchema,
			&event.ObservedFingerprint,
			&event.Diff,
			&event.ChangeType,
			&event.Confidence,
			&event.Status,
			&event.CreatedAt,
			&event.ResolvedAt,
		)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("failed to scan drift event row")
			return nil, dberror.ErrDatabase.Err(err)
		}
		events = append(events, event)
	}

	if err = rows.Err(); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("error after scanning drift events")
		return nil, dberror.ErrDatabase.Err(err)
	}

	return events, nil
}
