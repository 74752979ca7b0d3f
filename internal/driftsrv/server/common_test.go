package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/driftline/driftline-internal/internal/driftsrv/db"
	"github.com/driftline/driftline-internal/internal/driftsrv/db/dberror"
	"github.com/driftline/driftline-internal/internal/driftsrv/driftcommon"
	"github.com/driftline/driftline-internal/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tenantHeader = "X-Driftline-Tenant"

var initOnce sync.Once

// newTestTenant initializes the store once and registers a fresh tenant so
// requests carrying its header pass the tenant check.
func newTestTenant(t *testing.T) types.TenantId {
	initOnce.Do(func() {
		require.NoError(t, db.Init(context.Background()))
	})
	ctx, err := db.ConnCtx(context.Background())
	require.NoError(t, err)
	defer db.DB(ctx).Close(ctx)

	tenantID := types.TenantId(driftcommon.GetUniqueId(driftcommon.ID_TYPE_TENANT))
	goerr := db.DB(ctx).CreateTenant(ctx, tenantID)
	if goerr != nil && !errors.Is(goerr, dberror.ErrAlreadyExists) {
		t.Fatalf("create tenant: %v", goerr)
	}
	return tenantID
}

func executeTestRequest(t *testing.T, req *http.Request, tenantID types.TenantId) *httptest.ResponseRecorder {
	s, err := CreateNewServer()
	require.NoError(t, err, "create new server")
	s.MountHandlers()

	if tenantID != "" {
		req.Header.Set(tenantHeader, string(tenantID))
	}
	rr := httptest.NewRecorder()
	s.Router.ServeHTTP(rr, req)
	return rr
}

func checkHeader(t *testing.T, h http.Header) {
	assert.Equal(t, "application/json", h.Get("Content-Type"))
}
