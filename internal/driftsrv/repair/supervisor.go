package repair

import (
	"context"
	"time"

	"github.com/driftline/driftline-internal/internal/driftsrv/config"
	"github.com/driftline/driftline-internal/internal/driftsrv/db"
	"github.com/driftline/driftline-internal/internal/driftsrv/driftcommon"
	"github.com/driftline/driftline-internal/pkg/types"
	"github.com/rs/zerolog/log"
)

// StartSupervisor launches the background sweep that force-fails
// connections stuck in HEALING past the repair timeout, so a crashed repair
// worker cannot hold a connection hostage forever. Returns after launching;
// cancel the context to stop the sweep.
func StartSupervisor(ctx context.Context) {
	timeout := time.Duration(config.Config().RepairTimeoutSeconds) * time.Second
	interval := timeout / 2
	if interval < time.Second {
		interval = time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sweepStaleRepairs(ctx, timeout)
			}
		}
	}()
}

func sweepStaleRepairs(ctx context.Context, timeout time.Duration) {
	ctx, err := db.ConnCtx(ctx)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("supervisor could not obtain db connection")
		return
	}
	defer db.DB(ctx).Close(ctx)

	cutoff := time.Now().Add(-timeout)
	stale, goerr := db.DB(ctx).ListStaleHealingConnections(ctx, cutoff)
	if goerr != nil {
		log.Ctx(ctx).Error().Err(goerr).Msg("supervisor could not list stale repairs")
		return
	}

	for _, conn := range stale {
		tctx := driftcommon.SetTenantIdInContext(ctx, conn.TenantID)
		if err := db.DB(tctx).AddScope(tctx, db.Scope_TenantId, string(conn.TenantID)); err != nil {
			log.Ctx(tctx).Error().Err(err).Msg("supervisor could not scope tenant")
			continue
		}
		err := db.DB(tctx).TransitionConnectionStatus(tctx, conn.ConnectionID, types.ConnectionStatusHealing, types.ConnectionStatusFailed)
		if err != nil {
			// Lost the race to a finishing repair. That is the good outcome.
			log.Ctx(tctx).Info().Str("connection_id", conn.ConnectionID.String()).Msg("stale repair resolved before sweep")
		} else {
			log.Ctx(tctx).Warn().
				Str("connection_id", conn.ConnectionID.String()).
				Time("healing_since", conn.UpdatedAt).
				Msg("force-failed stale repair")
		}
		db.DB(tctx).DropScope(tctx, db.Scope_TenantId)
	}
}
