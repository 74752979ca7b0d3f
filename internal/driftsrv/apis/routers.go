// Package apis exposes the drift service HTTP surface: connection
// onboarding and reads, snapshot observations, repair application,
// drift-event listing and the approval path.
package apis

import (
	"net/http"

	"github.com/driftline/driftline-internal/internal/common/httpx"
	"github.com/driftline/driftline-internal/internal/driftsrv/drift"
	"github.com/driftline/driftline-internal/internal/driftsrv/repair"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Handler carries the collaborators the routes need. Construct with
// NewHandler and mount with Router.
type Handler struct {
	classifier *drift.Classifier
	executor   *repair.Executor
	applier    repair.LiveApplier
}

func NewHandler(classifier *drift.Classifier, executor *repair.Executor, applier repair.LiveApplier) *Handler {
	return &Handler{
		classifier: classifier,
		executor:   executor,
		applier:    applier,
	}
}

func (h *Handler) routes() []httpx.ResponseHandlerParam {
	return []httpx.ResponseHandlerParam{
		{
			Method:  http.MethodPost,
			Path:    "/connections",
			Handler: h.createConnection,
		},
		{
			Method:  http.MethodGet,
			Path:    "/connections/{connectionID}",
			Handler: h.getConnection,
		},
		{
			Method:  http.MethodDelete,
			Path:    "/connections/{connectionID}",
			Handler: h.retireConnection,
		},
		{
			Method:  http.MethodGet,
			Path:    "/connections/{connectionID}/versions/current",
			Handler: h.getCurrentVersion,
		},
		{
			Method:  http.MethodGet,
			Path:    "/connections/{connectionID}/versions/{versionNum}",
			Handler: h.getVersion,
		},
		{
			Method:  http.MethodPost,
			Path:    "/connections/{connectionID}/observations",
			Handler: h.observeSnapshot,
		},
		{
			Method:  http.MethodPost,
			Path:    "/connections/{connectionID}/repairs",
			Handler: h.applySchema,
		},
		{
			Method:  http.MethodPost,
			Path:    "/connections/{connectionID}/clear-failed",
			Handler: h.clearFailed,
		},
		{
			Method:  http.MethodGet,
			Path:    "/connections/{connectionID}/drift-events",
			Handler: h.listDriftEvents,
		},
		{
			Method:  http.MethodPost,
			Path:    "/drift-events/{driftEventID}/approval",
			Handler: h.approveDriftEvent,
		},
	}
}

func (h *Handler) Router(r chi.Router) {
	for _, route := range h.routes() {
		r.Method(route.Method, route.Path, httpx.WrapHttpRsp(route.Handler))
	}
}
