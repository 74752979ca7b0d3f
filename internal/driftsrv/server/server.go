package server

import (
	"fmt"
	"net/http"

	"github.com/driftline/driftline-internal/internal/common/httpx"
	"github.com/driftline/driftline-internal/internal/common/logtrace"
	commonmiddleware "github.com/driftline/driftline-internal/internal/common/middleware"
	"github.com/driftline/driftline-internal/internal/driftsrv/apis"
	"github.com/driftline/driftline-internal/internal/driftsrv/config"
	"github.com/driftline/driftline-internal/internal/driftsrv/drift"
	"github.com/driftline/driftline-internal/internal/driftsrv/materialize"
	"github.com/driftline/driftline-internal/internal/driftsrv/repair"
	"github.com/driftline/driftline-internal/internal/driftsrv/server/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"
)

type DriftServer struct {
	Router  *chi.Mux
	handler *apis.Handler
}

// CreateNewServer wires the service: the materialize store is both the
// destination writer and the repair executor's live applier, and the
// classifier blends in the external suggestion service when one is
// configured.
func CreateNewServer() (*DriftServer, error) {
	store := materialize.NewStore()
	suggester := drift.NewHTTPSuggester(config.Config().SuggestionServiceURL)

	s := &DriftServer{
		Router: chi.NewRouter(),
		handler: apis.NewHandler(
			drift.NewClassifier(suggester),
			repair.NewExecutor(store),
			store,
		),
	}
	return s, nil
}

func (s *DriftServer) MountHandlers() {
	s.Router.Use(commonmiddleware.RequestLogger)
	s.Router.Use(commonmiddleware.PanicHandler)
	if config.Config().HandleCORS {
		s.Router.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "Content-Length", "Accept-Encoding", "Authorization", "X-Driftline-Tenant"},
			MaxAge:         300,
		}))
	}
	s.Router.Route("/", s.mountResourceHandlers)
	if logtrace.IsTraceEnabled() {
		fmt.Println("Routes in drift router")
		walkFunc := func(method string, route string, handler http.Handler, middlewares ...func(http.Handler) http.Handler) error {
			fmt.Printf("%s %s\n", method, route)
			return nil
		}
		if err := chi.Walk(s.Router, walkFunc); err != nil {
			fmt.Printf("Logging err: %s\n", err.Error())
		}
	}
}

func (s *DriftServer) mountResourceHandlers(r chi.Router) {
	r.Get("/version", s.getVersion)
	r.Group(func(r chi.Router) {
		r.Use(middleware.LoadScopedDB)
		r.Use(middleware.LoadTenant)
		s.handler.Router(r)
	})
}

type GetVersionRsp struct {
	ServerVersion string `json:"serverVersion"`
	ApiVersion    string `json:"apiVersion"`
}

func (s *DriftServer) getVersion(w http.ResponseWriter, r *http.Request) {
	log.Ctx(r.Context()).Debug().Msg("GetVersion")
	rsp := &GetVersionRsp{
		ServerVersion: "Driftline Server: 0.1.0",
		ApiVersion:    "v1alpha1",
	}
	httpx.SendJsonRsp(r.Context(), w, http.StatusOK, rsp)
}
