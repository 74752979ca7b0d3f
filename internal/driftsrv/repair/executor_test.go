package repair

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/driftline/driftline-internal/internal/common/apperrors"
	"github.com/driftline/driftline-internal/internal/driftsrv/db"
	"github.com/driftline/driftline-internal/internal/driftsrv/db/models"
	"github.com/driftline/driftline-internal/internal/driftsrv/driftcommon"
	"github.com/driftline/driftline-internal/internal/driftsrv/schema"
	"github.com/driftline/driftline-internal/pkg/types"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var initOnce sync.Once

func newTenantContext(t *testing.T) context.Context {
	initOnce.Do(func() {
		require.NoError(t, db.Init(context.Background()))
	})
	ctx := log.Logger.WithContext(context.Background())
	ctx, err := db.ConnCtx(ctx)
	require.NoError(t, err)

	tenantID := types.TenantId(driftcommon.GetUniqueId(driftcommon.ID_TYPE_TENANT))
	require.NoError(t, db.DB(ctx).CreateTenant(ctx, tenantID))
	ctx = driftcommon.SetTenantIdInContext(ctx, tenantID)
	require.NoError(t, db.DB(ctx).AddScope(ctx, db.Scope_TenantId, string(tenantID)))
	t.Cleanup(func() { db.DB(ctx).Close(ctx) })
	return ctx
}

type okApplier struct {
	applied int
}

func (a *okApplier) ApplySchema(_ context.Context, _ *models.Connection, _ schema.Snapshot) apperrors.Error {
	a.applied++
	return nil
}

type failApplier struct{}

func (a *failApplier) ApplySchema(_ context.Context, _ *models.Connection, _ schema.Snapshot) apperrors.Error {
	return ErrRepairFailed.Msg("destination rejected schema")
}

func setupConnectionWithDrift(t *testing.T, ctx context.Context, status types.DriftStatus) (*models.Connection, *models.DriftEvent) {
	conn := &models.Connection{
		SourceType:     "postgres",
		SourceRef:      "src-" + driftcommon.GetUniqueId(driftcommon.ID_TYPE_GENERIC),
		DestinationRef: "dst-" + driftcommon.GetUniqueId(driftcommon.ID_TYPE_GENERIC),
	}
	require.NoError(t, db.DB(ctx).CreateConnection(ctx, conn))

	base := schema.Snapshot{Fields: []schema.Field{
		{Name: "id", Type: schema.FieldTypeInteger},
		{Name: "name", Type: schema.FieldTypeString},
	}}
	doc, err := base.Serialize()
	require.NoError(t, err)
	fp, err := schema.Fingerprint(base)
	require.NoError(t, err)
	version := &models.CatalogVersion{ConnectionID: conn.ConnectionID, SchemaDoc: doc, Fingerprint: fp}
	require.NoError(t, db.DB(ctx).AppendCatalogVersion(ctx, version))
	require.NoError(t, db.DB(ctx).SetActiveVersion(ctx, conn.ConnectionID, version.VersionNum))
	conn.ActiveVersion = version.VersionNum

	observed := schema.Snapshot{Fields: []schema.Field{
		{Name: "id", Type: schema.FieldTypeInteger},
		{Name: "name", Type: schema.FieldTypeString},
		{Name: "email", Type: schema.FieldTypeString},
	}}
	odoc, err := observed.Serialize()
	require.NoError(t, err)
	ofp, err := schema.Fingerprint(observed)
	require.NoError(t, err)

	event := &models.DriftEvent{
		ConnectionID:        conn.ConnectionID,
		BaseVersion:         version.VersionNum,
		ObservedSchema:      odoc,
		ObservedFingerprint: ofp,
		ChangeType:          types.DriftChangeFieldAdded,
		Confidence:          0.9,
	}
	require.NoError(t, event.Diff.Set([]byte(`{"changes":[{"change":"field_added","path":"email"}],"unchanged":2,"total":3}`)))
	require.NoError(t, db.DB(ctx).CreateDriftEvent(ctx, event))
	if status == types.DriftStatusAwaitingApproval {
		require.NoError(t, db.DB(ctx).TransitionDriftEventStatus(ctx, event.DriftID, types.DriftStatusPending, status))
		event.Status = status
	}
	return conn, event
}

func TestRepairSuccess(t *testing.T) {
	ctx := newTenantContext(t)
	conn, event := setupConnectionWithDrift(t, ctx, types.DriftStatusPending)

	applier := &okApplier{}
	e := NewExecutor(applier)
	result, err := e.Repair(ctx, event, true)
	require.NoError(t, err)
	assert.Equal(t, 1, result.PreviousVersion)
	assert.Equal(t, 2, result.NewVersion)
	assert.Equal(t, types.ConnectionStatusActive, result.Status)
	assert.Equal(t, 1, applier.applied)

	got, goerr := db.DB(ctx).GetConnection(ctx, conn.ConnectionID)
	require.NoError(t, goerr)
	assert.Equal(t, types.ConnectionStatusActive, got.Status)
	assert.Equal(t, 2, got.ActiveVersion)

	gotEvent, goerr := db.DB(ctx).GetDriftEvent(ctx, event.DriftID)
	require.NoError(t, goerr)
	assert.Equal(t, types.DriftStatusAutoRepaired, gotEvent.Status)

	current, goerr := db.DB(ctx).GetCurrentCatalogVersion(ctx, conn.ConnectionID)
	require.NoError(t, goerr)
	assert.Equal(t, 2, current.VersionNum)
	assert.Equal(t, event.ObservedFingerprint, current.Fingerprint)
}

func TestRepairFailureParksConnection(t *testing.T) {
	ctx := newTenantContext(t)
	conn, event := setupConnectionWithDrift(t, ctx, types.DriftStatusPending)

	e := NewExecutor(&failApplier{})
	result, err := e.Repair(ctx, event, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRepairFailed))
	require.NotNil(t, result)
	assert.Equal(t, types.ConnectionStatusFailed, result.Status)

	got, goerr := db.DB(ctx).GetConnection(ctx, conn.ConnectionID)
	require.NoError(t, goerr)
	assert.Equal(t, types.ConnectionStatusFailed, got.Status)
	assert.Equal(t, 1, got.ActiveVersion)

	// the event stays pending for manual intervention
	gotEvent, goerr := db.DB(ctx).GetDriftEvent(ctx, event.DriftID)
	require.NoError(t, goerr)
	assert.Equal(t, types.DriftStatusPending, gotEvent.Status)

	// no catalog version was appended
	count, goerr := db.DB(ctx).CountCatalogVersions(ctx, conn.ConnectionID)
	require.NoError(t, goerr)
	assert.Equal(t, 1, count)

	// clearing FAILED re-enters ACTIVE
	require.NoError(t, e.ClearFailed(ctx, conn.ConnectionID))
	got, goerr = db.DB(ctx).GetConnection(ctx, conn.ConnectionID)
	require.NoError(t, goerr)
	assert.Equal(t, types.ConnectionStatusActive, got.Status)
}

func TestClearFailedRequiresFailedState(t *testing.T) {
	ctx := newTenantContext(t)
	conn, _ := setupConnectionWithDrift(t, ctx, types.DriftStatusPending)

	e := NewExecutor(&okApplier{})
	err := e.ClearFailed(ctx, conn.ConnectionID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFailed))
}

// Only one repair may be in flight per connection; a concurrent request is
// rejected with a conflict, not queued.
func TestSingleFlightRepair(t *testing.T) {
	ctx := newTenantContext(t)
	conn, event := setupConnectionWithDrift(t, ctx, types.DriftStatusPending)

	require.NoError(t, db.DB(ctx).TransitionConnectionStatus(ctx, conn.ConnectionID, types.ConnectionStatusActive, types.ConnectionStatusHealing))

	e := NewExecutor(&okApplier{})
	_, err := e.Repair(ctx, event, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRepairInFlight))
}

func TestApprovalRepairs(t *testing.T) {
	ctx := newTenantContext(t)
	conn, event := setupConnectionWithDrift(t, ctx, types.DriftStatusAwaitingApproval)

	e := NewExecutor(&okApplier{})
	result, err := e.Approve(ctx, event.DriftID, true)
	require.NoError(t, err)
	assert.Equal(t, 2, result.NewVersion)
	assert.Equal(t, types.ConnectionStatusActive, result.Status)

	gotEvent, goerr := db.DB(ctx).GetDriftEvent(ctx, event.DriftID)
	require.NoError(t, goerr)
	assert.Equal(t, types.DriftStatusRepaired, gotEvent.Status)

	got, goerr := db.DB(ctx).GetConnection(ctx, conn.ConnectionID)
	require.NoError(t, goerr)
	assert.Equal(t, 2, got.ActiveVersion)
}

func TestRejectionLeavesCatalogUntouched(t *testing.T) {
	ctx := newTenantContext(t)
	conn, event := setupConnectionWithDrift(t, ctx, types.DriftStatusAwaitingApproval)

	e := NewExecutor(&okApplier{})
	result, err := e.Approve(ctx, event.DriftID, false)
	require.NoError(t, err)
	assert.Equal(t, types.ConnectionStatusActive, result.Status)

	gotEvent, goerr := db.DB(ctx).GetDriftEvent(ctx, event.DriftID)
	require.NoError(t, goerr)
	assert.Equal(t, types.DriftStatusRejected, gotEvent.Status)

	count, goerr := db.DB(ctx).CountCatalogVersions(ctx, conn.ConnectionID)
	require.NoError(t, goerr)
	assert.Equal(t, 1, count)

	got, goerr := db.DB(ctx).GetConnection(ctx, conn.ConnectionID)
	require.NoError(t, goerr)
	assert.Equal(t, 1, got.ActiveVersion)
	assert.Equal(t, types.ConnectionStatusActive, got.Status)
}

func TestApproveRequiresAwaitingApproval(t *testing.T) {
	ctx := newTenantContext(t)
	_, event := setupConnectionWithDrift(t, ctx, types.DriftStatusPending)

	e := NewExecutor(&okApplier{})
	_, err := e.Approve(ctx, event.DriftID, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotApprovable))
}

func TestApplyDirect(t *testing.T) {
	ctx := newTenantContext(t)
	conn, _ := setupConnectionWithDrift(t, ctx, types.DriftStatusPending)

	e := NewExecutor(&okApplier{})
	snap := schema.Snapshot{Fields: []schema.Field{
		{Name: "id", Type: schema.FieldTypeInteger},
		{Name: "renamed", Type: schema.FieldTypeString},
	}}
	result, err := e.ApplyDirect(ctx, conn.ConnectionID, snap)
	require.NoError(t, err)
	assert.Equal(t, 1, result.PreviousVersion)
	assert.Equal(t, 2, result.NewVersion)
	assert.Equal(t, types.ConnectionStatusActive, result.Status)
}
