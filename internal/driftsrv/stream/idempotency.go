package stream

import (
	"context"
	"time"

	"github.com/driftline/driftline-internal/internal/driftsrv/config"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const idempotencyKeyPrefix = "idemp:"

// IdempotencyStore tracks which batch ids have been fully materialized.
// Markers expire on a TTL; a replay after expiry re-applies the same upsert
// values, which is harmless because materialization keys on the record's
// natural key.
type IdempotencyStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewIdempotencyStore(rdb *redis.Client) *IdempotencyStore {
	return &IdempotencyStore{
		rdb: rdb,
		ttl: time.Duration(config.Config().IdempotencyTTLSeconds) * time.Second,
	}
}

// IsProcessed reports whether the batch id has an unexpired marker.
func (s *IdempotencyStore) IsProcessed(ctx context.Context, batchID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, idempotencyKeyPrefix+batchID).Result()
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("batch_id", batchID).Msg("idempotency check failed")
		return false, err
	}
	return n > 0, nil
}

// MarkProcessed records that a batch has been materialized. Returns false
// when another consumer marked it first.
func (s *IdempotencyStore) MarkProcessed(ctx context.Context, batchID string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, idempotencyKeyPrefix+batchID, 1, s.ttl).Result()
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("batch_id", batchID).Msg("failed to write idempotency marker")
		return false, err
	}
	return ok, nil
}
