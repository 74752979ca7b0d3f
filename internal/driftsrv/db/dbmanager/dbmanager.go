// Package dbmanager pools database connections and pins session-scoped
// settings to a connection for the lifetime of a request or worker cycle.
// Scopes map to Postgres session GUCs; row-level security policies read
// them to enforce tenant isolation.
package dbmanager

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog/log"
)

// ScopedDb hands out pooled connections that carry session scopes.
type ScopedDb interface {
	// Conn checks a connection out of the pool.
	Conn(ctx context.Context) (ScopedConn, error)
	// Stats reports how many connections were handed out and returned.
	Stats() (requests, returns uint64)
}

// ScopedConn is one checked-out connection. Scope values set here are
// visible only to statements run on this connection.
type ScopedConn interface {
	AddScopes(ctx context.Context, scopes map[string]string) error
	DropScopes(ctx context.Context, scopes []string) error
	AddScope(ctx context.Context, scope, value string) error
	DropScope(ctx context.Context, scope string) error
	DropAllScopes(ctx context.Context) error
	// Conn exposes the underlying database/sql connection.
	Conn() *sql.Conn
	// Close drops all scopes and returns the connection to the pool.
	Close(ctx context.Context)
}

// NewScopedDb builds the pool for the given backend. Only settable scopes
// listed in configuredScopes may be pinned on a connection. Returns nil
// when the backend is unknown or the pool cannot be created.
func NewScopedDb(ctx context.Context, dbtype string, configuredScopes []string) ScopedDb {
	switch dbtype {
	case "postgresql":
		db, err := NewPostgresqlDb(configuredScopes)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("failed to create postgresql pool")
			return nil
		}
		return db
	}
	log.Ctx(ctx).Error().Str("dbtype", dbtype).Msg("unsupported database backend")
	return nil
}
