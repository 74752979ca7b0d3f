package middleware

import (
	"net/http"

	"github.com/driftline/driftline-internal/internal/common/httpx"
	"github.com/driftline/driftline-internal/internal/driftsrv/db"
	"github.com/rs/zerolog/log"
)

// LoadScopedDB attaches a scoped db connection to the request context and
// returns it to the pool when the request completes.
func LoadScopedDB(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, err := db.ConnCtx(r.Context())
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("unable to obtain db connection for request")
			httpx.ErrApplicationError("service unavailable").Send(w)
			return
		}
		defer db.DB(ctx).Close(ctx)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
