package apis

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/driftline/driftline-internal/internal/common/httpx"
	"github.com/driftline/driftline-internal/internal/driftsrv/db"
	"github.com/driftline/driftline-internal/internal/driftsrv/db/models"
	"github.com/driftline/driftline-internal/internal/driftsrv/driftcommon"
	"github.com/driftline/driftline-internal/internal/driftsrv/schema"
	"github.com/driftline/driftline-internal/pkg/types"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type createConnectionReq struct {
	SourceType     string          `json:"source_type" validate:"required,max=64"`
	SourceRef      string          `json:"source_ref" validate:"required,max=256"`
	DestinationRef string          `json:"destination_ref" validate:"required,max=256"`
	InitialSchema  json.RawMessage `json:"initial_schema" validate:"required"`
}

type connectionRsp struct {
	ConnectionID   uuid.UUID              `json:"connection_id"`
	SourceType     string                 `json:"source_type"`
	SourceRef      string                 `json:"source_ref"`
	DestinationRef string                 `json:"destination_ref"`
	Status         types.ConnectionStatus `json:"status"`
	ActiveVersion  int                    `json:"active_version"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

func connectionToRsp(conn *models.Connection) *connectionRsp {
	return &connectionRsp{
		ConnectionID:   conn.ConnectionID,
		SourceType:     conn.SourceType,
		SourceRef:      conn.SourceRef,
		DestinationRef: conn.DestinationRef,
		Status:         conn.Status,
		ActiveVersion:  conn.ActiveVersion,
		CreatedAt:      conn.CreatedAt,
		UpdatedAt:      conn.UpdatedAt,
	}
}

// createConnection onboards a source-to-destination pairing: the initial
// snapshot becomes catalog version 1 and is pushed to the destination.
func (h *Handler) createConnection(r *http.Request) (*httpx.Response, error) {
	ctx := r.Context()

	req := &createConnectionReq{}
	if err := httpx.GetRequestData(r, req); err != nil {
		return nil, err
	}
	if err := validate.Struct(req); err != nil {
		return nil, httpx.ErrInvalidRequest(err.Error())
	}
	if err := schema.ValidateSnapshotDoc(req.InitialSchema); err != nil {
		return nil, err
	}
	snap, err := schema.ParseSnapshot(req.InitialSchema)
	if err != nil {
		return nil, err
	}
	fp, err := schema.Fingerprint(snap)
	if err != nil {
		return nil, err
	}

	conn := &models.Connection{
		ConnectionID:   uuid.New(),
		TenantID:       driftcommon.TenantIdFromContext(ctx),
		SourceType:     req.SourceType,
		SourceRef:      req.SourceRef,
		DestinationRef: req.DestinationRef,
		Status:         types.ConnectionStatusActive,
	}

	if err := h.applier.ApplySchema(ctx, conn, snap); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("destination rejected initial schema")
		return nil, err
	}

	if err := db.DB(ctx).CreateConnection(ctx, conn); err != nil {
		return nil, err
	}

	doc, err := snap.Serialize()
	if err != nil {
		return nil, err
	}
	version := &models.CatalogVersion{
		ConnectionID: conn.ConnectionID,
		SchemaDoc:    doc,
		Fingerprint:  fp,
	}
	if err := db.DB(ctx).AppendCatalogVersion(ctx, version); err != nil {
		return nil, err
	}
	if err := db.DB(ctx).SetActiveVersion(ctx, conn.ConnectionID, version.VersionNum); err != nil {
		return nil, err
	}
	conn.ActiveVersion = version.VersionNum

	log.Ctx(ctx).Info().
		Str("connection_id", conn.ConnectionID.String()).
		Str("source_type", conn.SourceType).
		Msg("connection onboarded")

	return &httpx.Response{
		StatusCode: http.StatusCreated,
		Location:   "/connections/" + conn.ConnectionID.String(),
		Response:   connectionToRsp(conn),
	}, nil
}

func (h *Handler) getConnection(r *http.Request) (*httpx.Response, error) {
	ctx := r.Context()

	connectionID, err := connectionIDParam(r)
	if err != nil {
		return nil, err
	}
	conn, goerr := db.DB(ctx).GetConnection(ctx, connectionID)
	if goerr != nil {
		return nil, goerr
	}

	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response:   connectionToRsp(conn),
	}, nil
}

func (h *Handler) retireConnection(r *http.Request) (*httpx.Response, error) {
	ctx := r.Context()

	connectionID, err := connectionIDParam(r)
	if err != nil {
		return nil, err
	}
	if goerr := db.DB(ctx).RetireConnection(ctx, connectionID); goerr != nil {
		return nil, goerr
	}

	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response:   map[string]any{"connection_id": connectionID, "status": types.ConnectionStatusRetired},
	}, nil
}

type catalogVersionRsp struct {
	ConnectionID uuid.UUID       `json:"connection_id"`
	VersionNum   int             `json:"version_num"`
	Fingerprint  types.Hash      `json:"fingerprint"`
	Schema       json.RawMessage `json:"schema"`
	CreatedAt    time.Time       `json:"created_at"`
}

func versionToRsp(v *models.CatalogVersion) *catalogVersionRsp {
	return &catalogVersionRsp{
		ConnectionID: v.ConnectionID,
		VersionNum:   v.VersionNum,
		Fingerprint:  v.Fingerprint,
		Schema:       json.RawMessage(v.SchemaDoc),
		CreatedAt:    v.CreatedAt,
	}
}

func (h *Handler) getCurrentVersion(r *http.Request) (*httpx.Response, error) {
	ctx := r.Context()

	connectionID, err := connectionIDParam(r)
	if err != nil {
		return nil, err
	}
	version, goerr := db.DB(ctx).GetCurrentCatalogVersion(ctx, connectionID)
	if goerr != nil {
		return nil, goerr
	}

	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response:   versionToRsp(version),
	}, nil
}

func (h *Handler) getVersion(r *http.Request) (*httpx.Response, error) {
	ctx := r.Context()

	connectionID, err := connectionIDParam(r)
	if err != nil {
		return nil, err
	}
	versionNum, goerr := strconv.Atoi(chi.URLParam(r, "versionNum"))
	if goerr != nil || versionNum <= 0 {
		return nil, httpx.ErrInvalidRequest("invalid version number")
	}
	version, err := db.DB(ctx).GetCatalogVersion(ctx, connectionID, versionNum)
	if err != nil {
		return nil, err
	}

	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response:   versionToRsp(version),
	}, nil
}

func (h *Handler) clearFailed(r *http.Request) (*httpx.Response, error) {
	ctx := r.Context()

	connectionID, err := connectionIDParam(r)
	if err != nil {
		return nil, err
	}
	if goerr := h.executor.ClearFailed(ctx, connectionID); goerr != nil {
		return nil, goerr
	}

	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response:   map[string]any{"connection_id": connectionID, "status": types.ConnectionStatusActive},
	}, nil
}

func connectionIDParam(r *http.Request) (uuid.UUID, error) {
	connectionID, err := uuid.Parse(chi.URLParam(r, "connectionID"))
	if err != nil {
		return uuid.Nil, httpx.ErrInvalidConnection()
	}
	return connectionID, nil
}
