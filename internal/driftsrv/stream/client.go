// Package stream is the canonical event bridge: it publishes envelopes to a
// per-tenant, per-connector Redis stream and consumes them through a
// consumer group with batch-id deduplication, so a delivered batch is
// materialized exactly once within the idempotency window.
package stream

import (
	"context"
	"net/http"

	"github.com/driftline/driftline-internal/internal/common/apperrors"
	"github.com/driftline/driftline-internal/internal/driftsrv/config"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var (
	ErrStream          apperrors.Error = apperrors.New("stream transport error").SetStatusCode(http.StatusInternalServerError)
	ErrPublishFailed   apperrors.Error = ErrStream.New("unable to publish envelope")
	ErrMalformedRecord apperrors.Error = ErrStream.New("malformed stream record")
)

// NewClient connects to the transport store using service config.
func NewClient(ctx context.Context) (*redis.Client, error) {
	cfg := config.Config().Redis
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("addr", cfg.Addr).Msg("failed to ping transport store")
		return nil, err
	}
	return client, nil
}
