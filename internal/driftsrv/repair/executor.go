// Package repair owns the connection state machine. A repair takes a
// connection through ACTIVE, HEALING and back to ACTIVE, appending the
// accepted schema to the catalog on the way, or parks it in FAILED when the
// live destination rejects the new structure. All transitions go through
// compare-and-set updates so only one repair can be in flight per
// connection, across processes.
package repair

import (
	"context"

	"github.com/driftline/driftline-internal/internal/common/apperrors"
	"github.com/driftline/driftline-internal/internal/driftsrv/db"
	"github.com/driftline/driftline-internal/internal/driftsrv/db/models"
	"github.com/driftline/driftline-internal/internal/driftsrv/schema"
	"github.com/driftline/driftline-internal/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// LiveApplier pushes an accepted schema to the live connection's
// destination. The materialize package provides the production
// implementation.
type LiveApplier interface {
	ApplySchema(ctx context.Context, conn *models.Connection, snap schema.Snapshot) apperrors.Error
}

// Executor runs repairs. Construct with NewExecutor.
type Executor struct {
	applier LiveApplier
}

func NewExecutor(applier LiveApplier) *Executor {
	return &Executor{applier: applier}
}

// Result describes the outcome of a repair or direct schema application.
type Result struct {
	ConnectionID    uuid.UUID              `json:"connection_id"`
	PreviousVersion int                    `json:"previous_version"`
	NewVersion      int                    `json:"new_version"`
	Status          types.ConnectionStatus `json:"status"`
}

// Repair applies the observed schema of a pending drift event to the
// connection. On success the event resolves to auto_repaired or repaired
// depending on who accepted it. On a live-apply failure the connection is
// parked in FAILED and the event stays pending for manual intervention.
// A connection already in HEALING rejects the request with a conflict.
func (e *Executor) Repair(ctx context.Context, event *models.DriftEvent, auto bool) (*Result, apperrors.Error) {
	snap, err := schema.ParseSnapshot(event.ObservedSchema)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("drift_id", event.DriftID.String()).Msg("drift event carries an unreadable snapshot")
		return nil, err
	}

	resolution := types.DriftStatusRepaired
	if auto {
		resolution = types.DriftStatusAutoRepaired
	}

	result, err := e.apply(ctx, event.ConnectionID, snap, event.ObservedFingerprint)
	if err != nil {
		return result, err
	}

	if err := db.DB(ctx).ResolveDriftEvent(ctx, event.DriftID, resolution); err != nil {
		// The catalog already advanced; the event will be swept up when the
		// same drift is re-observed as a no-op.
		log.Ctx(ctx).Error().Err(err).Str("drift_id", event.DriftID.String()).Msg("repair succeeded but event resolution failed")
		return result, err
	}

	log.Ctx(ctx).Info().
		Str("connection_id", event.ConnectionID.String()).
		Str("drift_id", event.DriftID.String()).
		Int("new_version", result.NewVersion).
		Str("resolution", string(resolution)).
		Msg("repair completed")

	return result, nil
}

// ApplyDirect accepts a new schema for a connection without a drift event,
// for operator-driven schema pushes.
func (e *Executor) ApplyDirect(ctx context.Context, connectionID uuid.UUID, snap schema.Snapshot) (*Result, apperrors.Error) {
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	fp, err := schema.Fingerprint(snap)
	if err != nil {
		return nil, err
	}
	return e.apply(ctx, connectionID, snap, fp)
}

func (e *Executor) apply(ctx context.Context, connectionID uuid.UUID, snap schema.Snapshot, fingerprint types.Hash) (*Result, apperrors.Error) {
	conn, err := db.DB(ctx).GetConnection(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	previousVersion := conn.ActiveVersion

	err = db.DB(ctx).TransitionConnectionStatus(ctx, connectionID, types.ConnectionStatusActive, types.ConnectionStatusHealing)
	if err != nil {
		log.Ctx(ctx).Info().Str("connection_id", connectionID.String()).Str("status", string(conn.Status)).Msg("connection unavailable for repair")
		return nil, ErrRepairInFlight.Err(err)
	}

	if applyErr := e.applier.ApplySchema(ctx, conn, snap); applyErr != nil {
		log.Ctx(ctx).Error().Err(applyErr).Str("connection_id", connectionID.String()).Msg("live schema application failed")
		if err := db.DB(ctx).TransitionConnectionStatus(ctx, connectionID, types.ConnectionStatusHealing, types.ConnectionStatusFailed); err != nil {
			log.Ctx(ctx).Error().Err(err).Str("connection_id", connectionID.String()).Msg("failed to park connection in FAILED")
		}
		return &Result{
			ConnectionID:    connectionID,
			PreviousVersion: previousVersion,
			NewVersion:      previousVersion,
			Status:          types.ConnectionStatusFailed,
		}, ErrRepairFailed.Err(applyErr)
	}

	doc, err := snap.Serialize()
	if err != nil {
		return nil, e.abort(ctx, connectionID, previousVersion, err)
	}

	version := &models.CatalogVersion{
		ConnectionID: connectionID,
		SchemaDoc:    doc,
		Fingerprint:  fingerprint,
	}
	if err := db.DB(ctx).AppendCatalogVersion(ctx, version); err != nil {
		return nil, e.abort(ctx, connectionID, previousVersion, err)
	}

	if err := db.DB(ctx).SetActiveVersion(ctx, connectionID, version.VersionNum); err != nil {
		return nil, e.abort(ctx, connectionID, previousVersion, err)
	}

	if err := db.DB(ctx).TransitionConnectionStatus(ctx, connectionID, types.ConnectionStatusHealing, types.ConnectionStatusActive); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("connection_id", connectionID.String()).Msg("failed to return connection to ACTIVE")
		return nil, err
	}

	return &Result{
		ConnectionID:    connectionID,
		PreviousVersion: previousVersion,
		NewVersion:      version.VersionNum,
		Status:          types.ConnectionStatusActive,
	}, nil
}

// abort parks a mid-repair connection in FAILED after a catalog-side error.
func (e *Executor) abort(ctx context.Context, connectionID uuid.UUID, previousVersion int, cause apperrors.Error) apperrors.Error {
	log.Ctx(ctx).Error().Err(cause).Str("connection_id", connectionID.String()).Int("active_version", previousVersion).Msg("aborting repair")
	if err := db.DB(ctx).TransitionConnectionStatus(ctx, connectionID, types.ConnectionStatusHealing, types.ConnectionStatusFailed); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("connection_id", connectionID.String()).Msg("failed to park connection in FAILED")
	}
	return cause
}

// Approve resolves an awaiting_approval drift event. An approval runs the
// repair flow; a rejection leaves the connection and catalog untouched.
func (e *Executor) Approve(ctx context.Context, driftID uuid.UUID, approve bool) (*Result, apperrors.Error) {
	event, err := db.DB(ctx).GetDriftEvent(ctx, driftID)
	if err != nil {
		return nil, err
	}
	if event.Status != types.DriftStatusAwaitingApproval {
		return nil, ErrNotApprovable
	}

	if !approve {
		if err := db.DB(ctx).ResolveDriftEvent(ctx, driftID, types.DriftStatusRejected); err != nil {
			return nil, err
		}
		log.Ctx(ctx).Info().Str("drift_id", driftID.String()).Msg("drift event rejected")
		return &Result{ConnectionID: event.ConnectionID, Status: types.ConnectionStatusActive}, nil
	}

	if err := db.DB(ctx).TransitionDriftEventStatus(ctx, driftID, types.DriftStatusAwaitingApproval, types.DriftStatusPending); err != nil {
		return nil, err
	}
	event.Status = types.DriftStatusPending

	return e.Repair(ctx, event, false)
}

// ClearFailed is the explicit operator action that re-enters ACTIVE after a
// failed repair.
func (e *Executor) ClearFailed(ctx context.Context, connectionID uuid.UUID) apperrors.Error {
	err := db.DB(ctx).TransitionConnectionStatus(ctx, connectionID, types.ConnectionStatusFailed, types.ConnectionStatusActive)
	if err != nil {
		return ErrNotFailed.Err(err)
	}
	log.Ctx(ctx).Info().Str("connection_id", connectionID.String()).Msg("connection cleared from FAILED")
	return nil
}
