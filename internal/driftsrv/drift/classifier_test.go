package drift

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
	"github.com/google/uuid"
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

// setupConnection creates a connection at catalog version 1 holding snap.
func setupConnection(t *testing.T, ctx context.Context, snap schema.Snapshot) *models.Connection {
	conn := &models.Connection{
		SourceType:     "postgres",
		SourceRef:      "src-" + driftcommon.GetUniqueId(driftcommon.ID_TYPE_GENERIC),
		DestinationRef: "dst-" + driftcommon.GetUniqueId(driftcommon.ID_TYPE_GENERIC),
	}
	require.NoError(t, db.DB(ctx).CreateConnection(ctx, conn))

	doc, err := snap.Serialize()
	require.NoError(t, err)
	fp, err := schema.Fingerprint(snap)
	require.NoError(t, err)
	version := &models.CatalogVersion{
		ConnectionID: conn.ConnectionID,
		SchemaDoc:    doc,
		Fingerprint:  fp,
	}
	require.NoError(t, db.DB(ctx).AppendCatalogVersion(ctx, version))
	require.NoError(t, db.DB(ctx).SetActiveVersion(ctx, conn.ConnectionID, version.VersionNum))
	return conn
}

type stubSuggester struct {
	mapping    Mapping
	confidence float64
	err        apperrors.Error
}

func (s *stubSuggester) Suggest(_ context.Context, _ schema.Diff) (Mapping, float64, apperrors.Error) {
	if s.err != nil {
		return nil, 0, s.err
	}
	return s.mapping, s.confidence, nil
}

func fields(names ...string) schema.Snapshot {
	var fs []schema.Field
	for _, n := range names {
		fs = append(fs, schema.Field{Name: n, Type: schema.FieldTypeString})
	}
	return schema.Snapshot{Fields: fs}
}

func TestObserveNoOpOnMatchingFingerprint(t *testing.T) {
	ctx := newTenantContext(t)
	base := fields("id", "name")
	conn := setupConnection(t, ctx, base)

	c := NewClassifier(&stubSuggester{confidence: 1.0})
	obs, err := c.Observe(ctx, conn.ConnectionID, fields("name", "id"))
	require.NoError(t, err)
	assert.Nil(t, obs.Event)

	events, goerr := db.DB(ctx).ListDriftEvents(ctx, conn.ConnectionID, "")
	require.NoError(t, goerr)
	assert.Empty(t, events)
}

// A high blended confidence leaves the event pending and flags it for
// automatic repair.
func TestObserveHighConfidenceRoutesToAutoRepair(t *testing.T) {
	ctx := newTenantContext(t)
	base := fields("a", "b", "c", "d", "e", "f", "g", "h", "i")
	conn := setupConnection(t, ctx, base)

	c := NewClassifier(&stubSuggester{confidence: 1.0})
	observed := fields("a", "b", "c", "d", "e", "f", "g", "h", "i", "j")
	obs, err := c.Observe(ctx, conn.ConnectionID, observed)
	require.NoError(t, err)
	require.NotNil(t, obs.Event)

	// 9 of 10 leaves unaffected, blended with a full-confidence suggestion:
	// 0.6*0.9 + 0.4*1.0 = 0.94
	assert.InDelta(t, 0.94, obs.Event.Confidence, 0.001)
	assert.True(t, obs.AutoRepair)
	assert.Equal(t, types.DriftStatusPending, obs.Event.Status)
	assert.Equal(t, types.DriftChangeFieldAdded, obs.Event.ChangeType)
}

func TestObserveLowConfidenceRoutesToApproval(t *testing.T) {
	ctx := newTenantContext(t)
	base := fields("id", "name")
	conn := setupConnection(t, ctx, base)

	c := NewClassifier(&stubSuggester{confidence: 0.1})
	obs, err := c.Observe(ctx, conn.ConnectionID, fields("id", "name", "email"))
	require.NoError(t, err)
	require.NotNil(t, obs.Event)

	assert.False(t, obs.AutoRepair)
	assert.Equal(t, types.DriftStatusAwaitingApproval, obs.Event.Status)

	got, goerr := db.DB(ctx).GetDriftEvent(ctx, obs.Event.DriftID)
	require.NoError(t, goerr)
	assert.Equal(t, types.DriftStatusAwaitingApproval, got.Status)

	// the connection stays ACTIVE until explicit approval
	gotConn, goerr := db.DB(ctx).GetConnection(ctx, conn.ConnectionID)
	require.NoError(t, goerr)
	assert.Equal(t, types.ConnectionStatusActive, gotConn.Status)
}

// Without a usable suggestion the structural score is capped below the
// threshold, so a drift can never auto-repair unassisted.
func TestObserveWithoutSuggesterNeverAutoRepairs(t *testing.T) {
	ctx := newTenantContext(t)
	base := fields("a", "b", "c", "d", "e", "f", "g", "h", "i")
	conn := setupConnection(t, ctx, base)

	c := NewClassifier(nil)
	obs, err := c.Observe(ctx, conn.ConnectionID, fields("a", "b", "c", "d", "e", "f", "g", "h", "i", "j"))
	require.NoError(t, err)
	require.NotNil(t, obs.Event)

	assert.False(t, obs.AutoRepair)
	assert.Less(t, obs.Event.Confidence, c.Threshold())
	assert.Equal(t, types.DriftStatusAwaitingApproval, obs.Event.Status)
}

func TestObserveSuggesterFailureFallsBack(t *testing.T) {
	ctx := newTenantContext(t)
	base := fields("a", "b", "c", "d", "e", "f", "g", "h", "i")
	conn := setupConnection(t, ctx, base)

	c := NewClassifier(&stubSuggester{err: ErrSuggestionFailed})
	obs, err := c.Observe(ctx, conn.ConnectionID, fields("a", "b", "c", "d", "e", "f", "g", "h", "i", "j"))
	require.NoError(t, err)
	require.NotNil(t, obs.Event)
	assert.False(t, obs.AutoRepair)
	assert.Less(t, obs.Event.Confidence, c.Threshold())
}

func TestObserveRetypeClassification(t *testing.T) {
	ctx := newTenantContext(t)
	base := schema.Snapshot{Fields: []schema.Field{
		{Name: "id", Type: schema.FieldTypeInteger},
		{Name: "name", Type: schema.FieldTypeString},
	}}
	conn := setupConnection(t, ctx, base)

	c := NewClassifier(&stubSuggester{confidence: 0.5})
	observed := schema.Snapshot{Fields: []schema.Field{
		{Name: "id", Type: schema.FieldTypeString},
		{Name: "name", Type: schema.FieldTypeString},
	}}
	obs, err := c.Observe(ctx, conn.ConnectionID, observed)
	require.NoError(t, err)
	require.NotNil(t, obs.Event)
	assert.Equal(t, types.DriftChangeFieldRetyped, obs.Event.ChangeType)
	assert.Equal(t, 1, obs.Event.BaseVersion)
}

func TestObserveUnknownConnection(t *testing.T) {
	ctx := newTenantContext(t)

	c := NewClassifier(nil)
	_, err := c.Observe(ctx, uuid.New(), fields("id"))
	require.Error(t, err)
}

func TestObserveRetiredConnection(t *testing.T) {
	ctx := newTenantContext(t)
	conn := setupConnection(t, ctx, fields("id"))
	require.NoError(t, db.DB(ctx).RetireConnection(ctx, conn.ConnectionID))

	c := NewClassifier(nil)
	_, err := c.Observe(ctx, conn.ConnectionID, fields("id", "name"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConnection))
}
