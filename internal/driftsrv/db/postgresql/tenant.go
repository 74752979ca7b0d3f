package postgresql

import (
	"context"
	"database/sql"

	"github.com/driftline/driftline-internal/internal/common/apperrors"
	"github.com/driftline/driftline-internal/internal/driftsrv/db/dberror"
	"github.com/driftline/driftline-internal/internal/driftsrv/db/models"
	"github.com/driftline/driftline-internal/pkg/types"
	"github.com/jackc/pgconn"
	"github.com/rs/zerolog/log"
)

func (mm *metadataManager) CreateTenant(ctx context.Context, tenantID types.TenantId) apperrors.Error {
	if tenantID == "" {
		return dberror.ErrMissingTenantID
	}

	query := `
		INSERT INTO tenants (tenant_id)
		VALUES ($1)
		ON CONFLICT (tenant_id) DO NOTHING;
	`

	_, err := mm.conn().ExecContext(ctx, query, tenantID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("tenant_id", string(tenantID)).Msg("failed to insert tenant")
		return dberror.ErrDatabase.Err(err)
	}

	return nil
}

func (mm *metadataManager) GetTenant(ctx context.Context, tenantID types.TenantId) (*models.Tenant, apperrors.Error) {
	if tenantID == "" {
		return nil, dberror.ErrMissingTenantID
	}

	query := `
		SELECT tenant_id, created_at
		FROM tenants
		WHERE tenant_id = $1;
	`

	tenant := &models.Tenant{}
	err := mm.conn().QueryRowContext(ctx, query, tenantID).Scan(&tenant.TenantID, &tenant.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			log.Ctx(ctx).Info().Str("tenant_id", string(tenantID)).Msg("tenant not found")
			return nil, dberror.ErrNotFound.Msg("tenant not found")
		}
		log.Ctx(ctx).Error().Err(err).Msg("failed to retrieve tenant")
		return nil, dberror.ErrDatabase.Err(err)
	}

	return tenant, nil
}

func (mm *metadataManager) DeleteTenant(ctx context.Context, tenantID types.TenantId) apperrors.Error {
	if tenantID == "" {
		return dberror.ErrMissingTenantID
	}

	query := `
		DELETE FROM tenants
		WHERE tenant_id = $1;
	`

	_, err := mm.conn().ExecContext(ctx, query, tenantID)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23503" {
			log.Ctx(ctx).Error().Str("tenant_id", string(tenantID)).Msg("tenant has dependent connections")
			return dberror.ErrConflict.Msg("tenant has dependent connections")
		}
		log.Ctx(ctx).Error().Err(err).Msg("failed to delete tenant")
		return dberror.ErrDatabase.Err(err)
	}

	return nil
}
