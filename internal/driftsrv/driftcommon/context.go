// Package driftcommon provides context management utilities for the drift
// service: tenant scoping for requests and workers, and id generation.
package driftcommon

import (
	"context"

	"github.com/driftline/driftline-internal/pkg/types"
)

// ctxKeyType represents the type for all context keys
type ctxKeyType string

const ctxTenantIdKey ctxKeyType = "DriftTenantId"

// SetTenantIdInContext sets the tenant ID in the provided context.
func SetTenantIdInContext(ctx context.Context, tenantId types.TenantId) context.Context {
	return context.WithValue(ctx, ctxTenantIdKey, tenantId)
}

// TenantIdFromContext retrieves the tenant ID from the provided context.
func TenantIdFromContext(ctx context.Context) types.TenantId {
	if tenantId, ok := ctx.Value(ctxTenantIdKey).(types.TenantId); ok {
		return tenantId
	}
	return ""
}
