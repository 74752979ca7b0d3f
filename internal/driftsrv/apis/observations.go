package apis

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/driftline/driftline-internal/internal/common/httpx"
	"github.com/driftline/driftline-internal/internal/driftsrv/repair"
	"github.com/driftline/driftline-internal/internal/driftsrv/schema"
	"github.com/driftline/driftline-internal/pkg/types"
	"github.com/google/uuid"
)

type snapshotReq struct {
	Schema json.RawMessage `json:"schema" validate:"required"`
}

type observationRsp struct {
	Drift      bool                  `json:"drift"`
	DriftID    *uuid.UUID            `json:"drift_id,omitempty"`
	ChangeType types.DriftChangeType `json:"change_type,omitempty"`
	Confidence float64               `json:"confidence,omitempty"`
	Status     types.DriftStatus     `json:"status,omitempty"`
	Repair     *repair.Result        `json:"repair,omitempty"`
}

// observeSnapshot runs one detection cycle for a connection: classify the
// snapshot and, when the confidence clears the threshold, repair
// automatically. A failed automatic repair is reported in the response, not
// as a request error; the connection's FAILED state carries the signal.
func (h *Handler) observeSnapshot(r *http.Request) (*httpx.Response, error) {
	ctx := r.Context()

	connectionID, err := connectionIDParam(r)
	if err != nil {
		return nil, err
	}
	req := &snapshotReq{}
	if err := httpx.GetRequestData(r, req); err != nil {
		return nil, err
	}
	if err := validate.Struct(req); err != nil {
		return nil, httpx.ErrInvalidRequest(err.Error())
	}
	if err := schema.ValidateSnapshotDoc(req.Schema); err != nil {
		return nil, err
	}
	snap, goerr := schema.ParseSnapshot(req.Schema)
	if goerr != nil {
		return nil, goerr
	}

	obs, goerr := h.classifier.Observe(ctx, connectionID, snap)
	if goerr != nil {
		return nil, goerr
	}
	if obs.Event == nil {
		return &httpx.Response{
			StatusCode: http.StatusOK,
			Response:   &observationRsp{Drift: false},
		}, nil
	}

	rsp := &observationRsp{
		Drift:      true,
		DriftID:    &obs.Event.DriftID,
		ChangeType: obs.Event.ChangeType,
		Confidence: obs.Event.Confidence,
		Status:     obs.Event.Status,
	}

	if obs.AutoRepair {
		result, repairErr := h.executor.Repair(ctx, obs.Event, true)
		if repairErr != nil && !errors.Is(repairErr, repair.ErrRepairFailed) {
			return nil, repairErr
		}
		rsp.Repair = result
		if repairErr == nil {
			rsp.Status = types.DriftStatusAutoRepaired
		}
	}

	return &httpx.Response{
		StatusCode: http.StatusCreated,
		Response:   rsp,
	}, nil
}

// applySchema pushes a new schema onto the connection without a prior
// drift event.
func (h *Handler) applySchema(r *http.Request) (*httpx.Response, error) {
	ctx := r.Context()

	connectionID, err := connectionIDParam(r)
	if err != nil {
		return nil, err
	}
	req := &snapshotReq{}
	if err := httpx.GetRequestData(r, req); err != nil {
		return nil, err
	}
	if err := validate.Struct(req); err != nil {
		return nil, httpx.ErrInvalidRequest(err.Error())
	}
	if err := schema.ValidateSnapshotDoc(req.Schema); err != nil {
		return nil, err
	}
	snap, goerr := schema.ParseSnapshot(req.Schema)
	if goerr != nil {
		return nil, goerr
	}

	result, goerr := h.executor.ApplyDirect(ctx, connectionID, snap)
	if goerr != nil {
		return nil, goerr
	}

	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response:   result,
	}, nil
}
