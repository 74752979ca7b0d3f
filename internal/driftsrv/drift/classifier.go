// Package drift diffs observed schema snapshots against the current catalog
// version, classifies the change and scores a repair confidence. The
// classifier never mutates connection state; acting on its verdict is the
// repair executor's job.
package drift

import (
	"context"
	"errors"

	"github.com/driftline/driftline-internal/internal/common/apperrors"
	"github.com/driftline/driftline-internal/internal/driftsrv/config"
	"github.com/driftline/driftline-internal/internal/driftsrv/db"
	"github.com/driftline/driftline-internal/internal/driftsrv/db/dberror"
	"github.com/driftline/driftline-internal/internal/driftsrv/db/models"
	"github.com/driftline/driftline-internal/internal/driftsrv/schema"
	"github.com/driftline/driftline-internal/pkg/types"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Classifier scores observed snapshots for one service instance. Construct
// with NewClassifier; a nil suggester means scores are computed from the
// structural diff alone and never reach the auto-repair threshold.
type Classifier struct {
	suggester        Suggester
	threshold        float64
	suggestionWeight float64
}

func NewClassifier(suggester Suggester) *Classifier {
	cfg := config.Config()
	return &Classifier{
		suggester:        suggester,
		threshold:        cfg.AutoRepairThreshold,
		suggestionWeight: cfg.SuggestionWeight,
	}
}

// Threshold returns the configured auto-repair confidence threshold.
func (c *Classifier) Threshold() float64 {
	return c.threshold
}

// Observation is the classifier's verdict for one observed snapshot.
// Event is nil when the snapshot matched the current catalog version.
type Observation struct {
	Event      *models.DriftEvent
	Diff       schema.Diff
	Mapping    Mapping
	AutoRepair bool
}

// Observe compares a snapshot against the connection's current catalog
// version. A matching fingerprint is a no-op. Otherwise a DriftEvent is
// persisted: pending when the confidence clears the auto-repair threshold,
// awaiting_approval when it does not.
func (c *Classifier) Observe(ctx context.Context, connectionID uuid.UUID, snap schema.Snapshot) (*Observation, apperrors.Error) {
	if err := snap.Validate(); err != nil {
		return nil, err
	}

	conn, err := db.DB(ctx).GetConnection(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if conn.Status == types.ConnectionStatusRetired {
		return nil, ErrInvalidConnection.Msg("connection is retired")
	}

	current, err := db.DB(ctx).GetCurrentCatalogVersion(ctx, connectionID)
	if err != nil {
		if errors.Is(err, dberror.ErrNotFound) {
			return nil, ErrNoCatalogVersion
		}
		return nil, err
	}

	fp, err := schema.Fingerprint(snap)
	if err != nil {
		return nil, err
	}
	if fp == current.Fingerprint {
		log.Ctx(ctx).Debug().Str("connection_id", connectionID.String()).Msg("snapshot matches current catalog version")
		return &Observation{}, nil
	}

	baseSnap, err := schema.ParseSnapshot(current.SchemaDoc)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Int("version_num", current.VersionNum).Msg("stored catalog version is unreadable")
		return nil, err
	}

	d := schema.Compare(baseSnap, snap)
	if d.IsEmpty() {
		// Fingerprints differ but the leaf field sets match, e.g. only a
		// nullability flip. Not actionable as a repair.
		log.Ctx(ctx).Info().Str("connection_id", connectionID.String()).Msg("fingerprint changed without a structural diff")
		return &Observation{Diff: d}, nil
	}

	confidence, mapping := c.score(ctx, d)

	observedDoc, err := snap.Serialize()
	if err != nil {
		return nil, err
	}
	diffDoc, err := d.Serialize()
	if err != nil {
		return nil, err
	}

	event := &models.DriftEvent{
		ConnectionID:        connectionID,
		BaseVersion:         current.VersionNum,
		ObservedSchema:      observedDoc,
		ObservedFingerprint: fp,
		ChangeType:          d.ChangeType(),
		Confidence:          confidence,
		Status:              types.DriftStatusPending,
	}
	if goerr := event.Diff.Set(diffDoc); goerr != nil {
		return nil, schema.ErrSerialization.Err(goerr)
	}

	if err := db.DB(ctx).CreateDriftEvent(ctx, event); err != nil {
		return nil, err
	}

	autoRepair := confidence >= c.threshold
	if !autoRepair {
		if err := db.DB(ctx).TransitionDriftEventStatus(ctx, event.DriftID, types.DriftStatusPending, types.DriftStatusAwaitingApproval); err != nil {
			return nil, err
		}
		event.Status = types.DriftStatusAwaitingApproval
	}

	log.Ctx(ctx).Info().
		Str("connection_id", connectionID.String()).
		Str("drift_id", event.DriftID.String()).
		Str("change_type", string(event.ChangeType)).
		Float64("confidence", confidence).
		Bool("auto_repair", autoRepair).
		Msg("drift detected")

	return &Observation{
		Event:      event,
		Diff:       d,
		Mapping:    mapping,
		AutoRepair: autoRepair,
	}, nil
}

// score blends the proportion of unaffected fields with the suggestion
// service's confidence. Without a usable suggestion the structural score
// stands alone, capped just under the auto-repair threshold so unassisted
// drifts always route through approval.
func (c *Classifier) score(ctx context.Context, d schema.Diff) (float64, Mapping) {
	base := d.UnaffectedRatio()

	if c.suggester != nil {
		mapping, suggested, err := c.suggester.Suggest(ctx, d)
		if err == nil {
			confidence := (1-c.suggestionWeight)*base + c.suggestionWeight*suggested
			return confidence, mapping
		}
		log.Ctx(ctx).Warn().Err(err).Msg("scoring without mapping suggestion")
	}

	confidence := base
	if confidence >= c.threshold {
		confidence = c.threshold - 0.01
	}
	if confidence < 0 {
		confidence = 0
	}
	return confidence, nil
}
