package db

import (
	"context"
	"time"

	"github.com/driftline/driftline-internal/internal/common/apperrors"
	"github.com/driftline/driftline-internal/internal/driftsrv/db/dbmanager"
	"github.com/driftline/driftline-internal/internal/driftsrv/db/models"
	"github.com/driftline/driftline-internal/internal/driftsrv/db/postgresql"
	"github.com/driftline/driftline-internal/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// MetadataManager is the persistence surface of the drift service. All
// methods resolve the tenant from the request context. CatalogVersion rows
// are append-only; drift events are immutable once resolved.
type MetadataManager interface {
	// Tenant
	CreateTenant(ctx context.Context, tenantID types.TenantId) apperrors.Error
	GetTenant(ctx context.Context, tenantID types.TenantId) (*models.Tenant, apperrors.Error)
	DeleteTenant(ctx context.Context, tenantID types.TenantId) apperrors.Error

	// Connection
	CreateConnection(ctx context.Context, conn *models.Connection) apperrors.Error
	GetConnection(ctx context.Context, connectionID uuid.UUID) (*models.Connection, apperrors.Error)
	// TransitionConnectionStatus is a compare-and-set: it succeeds only if
	// the connection is currently in `from`, otherwise returns ErrConflict.
	// This is the single-flight guard for repairs.
	TransitionConnectionStatus(ctx context.Context, connectionID uuid.UUID, from, to types.ConnectionStatus) apperrors.Error
	SetActiveVersion(ctx context.Context, connectionID uuid.UUID, versionNum int) apperrors.Error
	RetireConnection(ctx context.Context, connectionID uuid.UUID) apperrors.Error
	// ListStaleHealingConnections returns connections (across tenants) that
	// have been HEALING since before the cutoff. Used by the repair
	// supervisor only.
	ListStaleHealingConnections(ctx context.Context, cutoff time.Time) ([]models.Connection, apperrors.Error)

	// CatalogVersion
	AppendCatalogVersion(ctx context.Context, version *models.CatalogVersion) apperrors.Error
	GetCurrentCatalogVersion(ctx context.Context, connectionID uuid.UUID) (*models.CatalogVersion, apperrors.Error)
	GetCatalogVersion(ctx context.Context, connectionID uuid.UUID, versionNum int) (*models.CatalogVersion, apperrors.Error)
	CountCatalogVersions(ctx context.Context, connectionID uuid.UUID) (int, apperrors.Error)

	// DriftEvent
	CreateDriftEvent(ctx context.Context, event *models.DriftEvent) apperrors.Error
	GetDriftEvent(ctx context.Context, driftID uuid.UUID) (*models.DriftEvent, apperrors.Error)
	// TransitionDriftEventStatus is a compare-and-set on the event status;
	// returns ErrConflict when the event is not in `from`.
	TransitionDriftEventStatus(ctx context.Context, driftID uuid.UUID, from, to types.DriftStatus) apperrors.Error
	// ResolveDriftEvent sets a terminal status and stamps resolved_at.
	ResolveDriftEvent(ctx context.Context, driftID uuid.UUID, status types.DriftStatus) apperrors.Error
	ListDriftEvents(ctx context.Context, connectionID uuid.UUID, status types.DriftStatus) ([]models.DriftEvent, apperrors.Error)
}

type ConnectionManager interface {
	// Scope Management
	AddScopes(ctx context.Context, scopes map[string]string) error
	DropScopes(ctx context.Context, scopes []string) error
	AddScope(ctx context.Context, scope, value string) error
	DropScope(ctx context.Context, scope string) error
	DropAllScopes(ctx context.Context) error

	// Close the connection to the database.
	Close(ctx context.Context)
}

type DB_ interface {
	MetadataManager
	ConnectionManager
}

const (
	Scope_TenantId string = "driftline.curr_tenantid"
)

var configuredScopes = []string{
	Scope_TenantId,
}

var pool dbmanager.ScopedDb

// Init creates the process-wide connection pool. Call once at startup,
// after config is loaded.
func Init(ctx context.Context) error {
	pg := dbmanager.NewScopedDb(ctx, "postgresql", configuredScopes)
	if pg == nil {
		return errInitPool
	}
	pool = pg
	return nil
}

var (
	errNoPool   = apperrors.New("db pool is not initialized")
	errInitPool = apperrors.New("unable to create db pool")
)

func Conn(ctx context.Context) (dbmanager.ScopedConn, error) {
	if pool == nil {
		return nil, errNoPool
	}
	conn, err := pool.Conn(ctx)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("unable to get db connection")
		return nil, err
	}
	return conn, nil
}

type ctxDbKeyType string

const ctxDbKey ctxDbKeyType = "DriftlineDb"

// ConnCtx obtains a scoped connection and stores it in the context for the
// duration of a request or worker cycle.
func ConnCtx(ctx context.Context) (context.Context, error) {
	conn, err := Conn(ctx)
	if err != nil {
		return ctx, err
	}
	return context.WithValue(ctx, ctxDbKey, conn), nil
}

type driftlineDb struct {
	MetadataManager
	ConnectionManager
}

func DB(ctx context.Context) DB_ {
	if conn, ok := ctx.Value(ctxDbKey).(dbmanager.ScopedConn); ok {
		mm, cm := postgresql.NewDriftlineDb(conn)
		return &driftlineDb{
			MetadataManager:   mm,
			ConnectionManager: cm,
		}
	}
	log.Ctx(ctx).Error().Msg("unable to get db connection from context")
	return nil
}
