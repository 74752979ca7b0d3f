package apis

import (
	"net/http"
	"time"

	"github.com/driftline/driftline-internal/internal/common/httpx"
	"github.com/driftline/driftline-internal/internal/driftsrv/db"
	"github.com/driftline/driftline-internal/internal/driftsrv/db/models"
	"github.com/driftline/driftline-internal/pkg/types"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type driftEventRsp struct {
	DriftID      uuid.UUID             `json:"drift_id"`
	ConnectionID uuid.UUID             `json:"connection_id"`
	BaseVersion  int                   `json:"base_version"`
	ChangeType   types.DriftChangeType `json:"change_type"`
	Confidence   float64               `json:"confidence"`
	Status       types.DriftStatus     `json:"status"`
	CreatedAt    time.Time             `json:"created_at"`
	ResolvedAt   *time.Time            `json:"resolved_at,omitempty"`
}

func driftEventToRsp(event *models.DriftEvent) *driftEventRsp {
	rsp := &driftEventRsp{
		DriftID:      event.DriftID,
		ConnectionID: event.ConnectionID,
		BaseVersion:  event.BaseVersion,
		ChangeType:   event.ChangeType,
		Confidence:   event.Confidence,
		Status:       event.Status,
		CreatedAt:    event.CreatedAt,
	}
	if event.ResolvedAt.Valid {
		t := event.ResolvedAt.Time
		rsp.ResolvedAt = &t
	}
	return rsp
}

func (h *Handler) listDriftEvents(r *http.Request) (*httpx.Response, error) {
	ctx := r.Context()

	connectionID, err := connectionIDParam(r)
	if err != nil {
		return nil, err
	}
	status := types.DriftStatus(r.URL.Query().Get("status"))

	events, goerr := db.DB(ctx).ListDriftEvents(ctx, connectionID, status)
	if goerr != nil {
		return nil, goerr
	}

	rsp := make([]*driftEventRsp, 0, len(events))
	for i := range events {
		rsp = append(rsp, driftEventToRsp(&events[i]))
	}

	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response:   rsp,
	}, nil
}

type approvalReq struct {
	Decision string `json:"decision" validate:"required,oneof=approve reject"`
}

// approveDriftEvent resolves an awaiting_approval event: approval runs the
// repair flow, rejection leaves the connection and catalog untouched.
func (h *Handler) approveDriftEvent(r *http.Request) (*httpx.Response, error) {
	ctx := r.Context()

	driftID, err := uuid.Parse(chi.URLParam(r, "driftEventID"))
	if err != nil {
		return nil, httpx.ErrInvalidDriftEvent()
	}
	req := &approvalReq{}
	if err := httpx.GetRequestData(r, req); err != nil {
		return nil, err
	}
	if err := validate.Struct(req); err != nil {
		return nil, httpx.ErrInvalidRequest(err.Error())
	}

	result, goerr := h.executor.Approve(ctx, driftID, req.Decision == "approve")
	if goerr != nil {
		return nil, goerr
	}

	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response:   result,
	}, nil
}
