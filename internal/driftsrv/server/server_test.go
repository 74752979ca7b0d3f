package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/driftline/driftline-internal/pkg/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseSchema = `{
	"fields": [
		{"name": "id", "type": "integer"},
		{"name": "name", "type": "string"},
		{"name": "email", "type": "string"}
	]
}`

func createTestConnection(t *testing.T, tenantID types.TenantId) uuid.UUID {
	body := `{
		"source_type": "postgres",
		"source_ref": "pg://src/orders",
		"destination_ref": "wh://dst/orders",
		"initial_schema": ` + baseSchema + `
	}`
	req := httptest.NewRequest("POST", "/connections", bytes.NewBufferString(body))
	rr := executeTestRequest(t, req, tenantID)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	checkHeader(t, rr.Header())

	var rsp struct {
		ConnectionID  uuid.UUID `json:"connection_id"`
		Status        string    `json:"status"`
		ActiveVersion int       `json:"active_version"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rsp))
	assert.Equal(t, string(types.ConnectionStatusActive), rsp.Status)
	assert.Equal(t, 1, rsp.ActiveVersion)
	assert.Equal(t, "/connections/"+rsp.ConnectionID.String(), rr.Header().Get("Location"))
	return rsp.ConnectionID
}

func observe(t *testing.T, tenantID types.TenantId, connectionID uuid.UUID, schemaDoc string) *httptest.ResponseRecorder {
	body := `{"schema": ` + schemaDoc + `}`
	req := httptest.NewRequest("POST", "/connections/"+connectionID.String()+"/observations", bytes.NewBufferString(body))
	return executeTestRequest(t, req, tenantID)
}

func TestGetVersion(t *testing.T) {
	_ = newTestTenant(t)
	req := httptest.NewRequest("GET", "/version", nil)
	rr := executeTestRequest(t, req, "")
	require.Equal(t, http.StatusOK, rr.Code)

	var rsp GetVersionRsp
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rsp))
	assert.Equal(t, "v1alpha1", rsp.ApiVersion)
}

func TestConnectionOnboarding(t *testing.T) {
	tenantID := newTestTenant(t)
	connectionID := createTestConnection(t, tenantID)

	req := httptest.NewRequest("GET", "/connections/"+connectionID.String(), nil)
	rr := executeTestRequest(t, req, tenantID)
	require.Equal(t, http.StatusOK, rr.Code)

	req = httptest.NewRequest("GET", "/connections/"+connectionID.String()+"/versions/current", nil)
	rr = executeTestRequest(t, req, tenantID)
	require.Equal(t, http.StatusOK, rr.Code)

	var version struct {
		VersionNum int             `json:"version_num"`
		Schema     json.RawMessage `json:"schema"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &version))
	assert.Equal(t, 1, version.VersionNum)
	assert.JSONEq(t, baseSchema, string(version.Schema))
}

func TestConnectionIsolatedByTenant(t *testing.T) {
	tenantID := newTestTenant(t)
	otherTenant := newTestTenant(t)
	connectionID := createTestConnection(t, tenantID)

	req := httptest.NewRequest("GET", "/connections/"+connectionID.String(), nil)
	rr := executeTestRequest(t, req, otherTenant)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestObservationNoDrift(t *testing.T) {
	tenantID := newTestTenant(t)
	connectionID := createTestConnection(t, tenantID)

	rr := observe(t, tenantID, connectionID, baseSchema)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var rsp struct {
		Drift bool `json:"drift"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rsp))
	assert.False(t, rsp.Drift)
}

// Without a suggestion service configured, a detected drift routes to
// approval, an approval repairs it, and the catalog advances.
func TestDriftApprovalFlow(t *testing.T) {
	tenantID := newTestTenant(t)
	connectionID := createTestConnection(t, tenantID)

	drifted := `{
		"fields": [
			{"name": "id", "type": "integer"},
			{"name": "name", "type": "string"},
			{"name": "email", "type": "string"},
			{"name": "phone", "type": "string"}
		]
	}`
	rr := observe(t, tenantID, connectionID, drifted)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var obs struct {
		Drift      bool      `json:"drift"`
		DriftID    uuid.UUID `json:"drift_id"`
		ChangeType string    `json:"change_type"`
		Status     string    `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &obs))
	assert.True(t, obs.Drift)
	assert.Equal(t, string(types.DriftChangeFieldAdded), obs.ChangeType)
	assert.Equal(t, string(types.DriftStatusAwaitingApproval), obs.Status)

	req := httptest.NewRequest("GET", "/connections/"+connectionID.String()+"/drift-events?status=awaiting_approval", nil)
	rr = executeTestRequest(t, req, tenantID)
	require.Equal(t, http.StatusOK, rr.Code)
	var events []struct {
		DriftID uuid.UUID `json:"drift_id"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, obs.DriftID, events[0].DriftID)

	req = httptest.NewRequest("POST", "/drift-events/"+obs.DriftID.String()+"/approval", bytes.NewBufferString(`{"decision":"approve"}`))
	rr = executeTestRequest(t, req, tenantID)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var result struct {
		NewVersion int    `json:"new_version"`
		Status     string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.Equal(t, 2, result.NewVersion)
	assert.Equal(t, string(types.ConnectionStatusActive), result.Status)

	req = httptest.NewRequest("GET", "/connections/"+connectionID.String()+"/versions/current", nil)
	rr = executeTestRequest(t, req, tenantID)
	require.Equal(t, http.StatusOK, rr.Code)
	var version struct {
		VersionNum int `json:"version_num"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &version))
	assert.Equal(t, 2, version.VersionNum)
}

func TestRejectedDriftLeavesCatalog(t *testing.T) {
	tenantID := newTestTenant(t)
	connectionID := createTestConnection(t, tenantID)

	drifted := `{
		"fields": [
			{"name": "id", "type": "integer"},
			{"name": "name", "type": "string"}
		]
	}`
	rr := observe(t, tenantID, connectionID, drifted)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var obs struct {
		DriftID    uuid.UUID `json:"drift_id"`
		ChangeType string    `json:"change_type"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &obs))
	assert.Equal(t, string(types.DriftChangeFieldRemoved), obs.ChangeType)

	req := httptest.NewRequest("POST", "/drift-events/"+obs.DriftID.String()+"/approval", bytes.NewBufferString(`{"decision":"reject"}`))
	rr = executeTestRequest(t, req, tenantID)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	req = httptest.NewRequest("GET", "/connections/"+connectionID.String()+"/versions/current", nil)
	rr = executeTestRequest(t, req, tenantID)
	require.Equal(t, http.StatusOK, rr.Code)
	var version struct {
		VersionNum int `json:"version_num"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &version))
	assert.Equal(t, 1, version.VersionNum)
}

func TestRetireConnection(t *testing.T) {
	tenantID := newTestTenant(t)
	connectionID := createTestConnection(t, tenantID)

	req := httptest.NewRequest("DELETE", "/connections/"+connectionID.String(), nil)
	rr := executeTestRequest(t, req, tenantID)
	require.Equal(t, http.StatusOK, rr.Code)

	// observations against a retired connection are refused
	rr = observe(t, tenantID, connectionID, baseSchema)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestInvalidRequests(t *testing.T) {
	tenantID := newTestTenant(t)

	// malformed connection id
	req := httptest.NewRequest("GET", "/connections/not-a-uuid", nil)
	rr := executeTestRequest(t, req, tenantID)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// snapshot failing schema validation
	connectionID := createTestConnection(t, tenantID)
	rr = observe(t, tenantID, connectionID, `{"fields": []}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// unknown tenant header
	req = httptest.NewRequest("GET", "/connections/"+connectionID.String(), nil)
	rr = executeTestRequest(t, req, types.TenantId("TNOSUCH"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
