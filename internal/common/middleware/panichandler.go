package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/driftline/driftline-internal/internal/common/apperrors"
	"github.com/driftline/driftline-internal/internal/common/httpx"
	"github.com/rs/zerolog/log"
)

var errPanic = apperrors.New("unable to process request").SetStatusCode(http.StatusInternalServerError)

// PanicHandler converts a handler panic into a JSON error response. The
// stack is logged server-side; the client sees only the generic error.
func PanicHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Ctx(r.Context()).Error().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Msg("panic while serving request")
				httpx.SendError(w, errPanic)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
