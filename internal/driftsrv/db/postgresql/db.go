// Package postgresql implements the drift service metadata managers on
// PostgreSQL.
package postgresql

import (
	"context"
	"database/sql"

	"github.com/driftline/driftline-internal/internal/common/apperrors"
	"github.com/driftline/driftline-internal/internal/driftsrv/db/dberror"
	"github.com/driftline/driftline-internal/internal/driftsrv/db/dbmanager"
	"github.com/driftline/driftline-internal/internal/driftsrv/driftcommon"
	"github.com/driftline/driftline-internal/pkg/types"
	"github.com/rs/zerolog/log"
)

type metadataManager struct {
	c dbmanager.ScopedConn
}

type connectionManager struct {
	c dbmanager.ScopedConn
}

func NewDriftlineDb(c dbmanager.ScopedConn) (*metadataManager, *connectionManager) {
	return &metadataManager{c: c}, &connectionManager{c: c}
}

func (mm *metadataManager) conn() *sql.Conn {
	return mm.c.Conn()
}

func tenantFromContext(ctx context.Context) (types.TenantId, apperrors.Error) {
	tenantID := driftcommon.TenantIdFromContext(ctx)
	if tenantID == "" {
		log.Ctx(ctx).Error().Msg("failed to retrieve tenant ID from context")
		return "", dberror.ErrMissingTenantID
	}
	return tenantID, nil
}

func (cm *connectionManager) AddScopes(ctx context.Context, scopes map[string]string) error {
	return cm.c.AddScopes(ctx, scopes)
}

func (cm *connectionManager) DropScopes(ctx context.Context, scopes []string) error {
	return cm.c.DropScopes(ctx, scopes)
}

func (cm *connectionManager) AddScope(ctx context.Context, scope, value string) error {
	return cm.c.AddScope(ctx, scope, value)
}

func (cm *connectionManager) DropScope(ctx context.Context, scope string) error {
	return cm.c.DropScope(ctx, scope)
}

func (cm *connectionManager) DropAllScopes(ctx context.Context) error {
	return cm.c.DropAllScopes(ctx)
}

func (cm *connectionManager) Close(ctx context.Context) {
	cm.c.Close(ctx)
}
