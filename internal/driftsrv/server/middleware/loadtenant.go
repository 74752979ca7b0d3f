package middleware

import (
	"net/http"

	"github.com/driftline/driftline-internal/internal/common/httpx"
	"github.com/driftline/driftline-internal/internal/driftsrv/config"
	"github.com/driftline/driftline-internal/internal/driftsrv/db"
	"github.com/driftline/driftline-internal/internal/driftsrv/driftcommon"
	"github.com/driftline/driftline-internal/pkg/types"
	"github.com/rs/zerolog/log"
)

const tenantHeader = "X-Driftline-Tenant"

// LoadTenant resolves the request's tenant from the tenant header, falling
// back to the configured default tenant in single user mode, and scopes the
// request's db connection to it.
func LoadTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		tenantID := types.TenantId(r.Header.Get(tenantHeader))
		if tenantID == "" {
			if !config.Config().SingleUserMode {
				httpx.ErrInvalidTenantId().Send(w)
				return
			}
			tenantID = types.TenantId(config.Config().DefaultTenantID)
		}

		ctx = driftcommon.SetTenantIdInContext(ctx, tenantID)
		if _, err := db.DB(ctx).GetTenant(ctx, tenantID); err != nil {
			log.Ctx(ctx).Info().Str("tenant_id", string(tenantID)).Msg("unknown tenant")
			httpx.ErrInvalidTenantId().Send(w)
			return
		}
		if err := db.DB(ctx).AddScope(ctx, db.Scope_TenantId, string(tenantID)); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("unable to scope db connection to tenant")
			httpx.ErrApplicationError().Send(w)
			return
		}
		defer db.DB(ctx).DropScope(ctx, db.Scope_TenantId)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
