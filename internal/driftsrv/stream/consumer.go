package stream

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/driftline/driftline-internal/internal/driftsrv/config"
	"github.com/driftline/driftline-internal/pkg/api/canonical"
	"github.com/driftline/driftline-internal/pkg/types"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const cursorKeyPrefix = "last_delivered:"

// Materializer applies a delivered envelope to the downstream store. The
// upsert inside must key on each record's natural key so that replays after
// marker expiry cannot duplicate rows.
type Materializer interface {
	Materialize(ctx context.Context, tenantID types.TenantId, envelope *canonical.Envelope) error
}

// Consumer reads one tenant's connector stream through a consumer group and
// materializes each delivered envelope at most once per idempotency window.
// A failed materialization is left unacknowledged for redelivery.
type Consumer struct {
	rdb          *redis.Client
	idemp        *IdempotencyStore
	materializer Materializer
	name         string
	groupNS      string
	streamNS     string
}

// NewConsumer builds a consumer identified by name within its group.
func NewConsumer(rdb *redis.Client, idemp *IdempotencyStore, materializer Materializer, name string) *Consumer {
	cfg := config.Config()
	return &Consumer{
		rdb:          rdb,
		idemp:        idemp,
		materializer: materializer,
		name:         name,
		groupNS:      cfg.ConsumerNamespace,
		streamNS:     cfg.StreamNamespace,
	}
}

// Run consumes the stream for one (tenant, connector) pair until the
// context is cancelled.
func (c *Consumer) Run(ctx context.Context, tenantID types.TenantId, connector string) error {
	stream := canonical.StreamKey(c.streamNS, tenantID, connector)
	group := canonical.GroupName(c.groupNS, tenantID)

	err := c.rdb.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		log.Ctx(ctx).Error().Err(err).Str("stream", stream).Str("group", group).Msg("failed to create consumer group")
		return err
	}

	log.Ctx(ctx).Info().Str("stream", stream).Str("group", group).Str("consumer", c.name).Msg("consumer started")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		streams, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: c.name,
			Streams:  []string{stream, ">"},
			Count:    16,
			Block:    5 * time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			log.Ctx(ctx).Error().Err(err).Str("stream", stream).Msg("stream read failed")
			time.Sleep(time.Second)
			continue
		}

		for _, s := range streams {
			for _, msg := range s.Messages {
				c.handle(ctx, tenantID, stream, group, msg)
			}
			if n := len(s.Messages); n > 0 {
				c.recordCursor(ctx, group, stream, s.Messages[n-1].ID)
			}
		}
	}
}

// recordCursor tracks the last delivered message id per stream. The group's
// pending entries list is authoritative for redelivery; the cursor hash is
// for operators inspecting consumer progress.
func (c *Consumer) recordCursor(ctx context.Context, group, stream, messageID string) {
	if err := c.rdb.HSet(ctx, cursorKeyPrefix+group, stream, messageID).Err(); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("stream", stream).Msg("failed to record delivery cursor")
	}
}

// handle materializes one delivered message. Only a poison payload or a
// duplicate is acknowledged without materializing; a downstream failure
// leaves the message pending so the group redelivers it.
func (c *Consumer) handle(ctx context.Context, tenantID types.TenantId, stream, group string, msg redis.XMessage) {
	payload, ok := msg.Values["payload"].(string)
	if !ok {
		log.Ctx(ctx).Error().Str("message_id", msg.ID).Msg("stream record has no payload")
		c.ack(ctx, stream, group, msg.ID)
		return
	}

	envelope, err := canonical.ParseEnvelope([]byte(payload))
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("message_id", msg.ID).Msg("dropping malformed envelope")
		c.ack(ctx, stream, group, msg.ID)
		return
	}

	processed, err := c.idemp.IsProcessed(ctx, envelope.BatchID)
	if err != nil {
		return // leave unacked, retried on redelivery
	}
	if processed {
		log.Ctx(ctx).Debug().Str("batch_id", envelope.BatchID).Msg("duplicate batch, skipping")
		c.ack(ctx, stream, group, msg.ID)
		return
	}

	if err := c.materializer.Materialize(ctx, tenantID, envelope); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("batch_id", envelope.BatchID).Msg("materialization failed, leaving for redelivery")
		return
	}

	if _, err := c.idemp.MarkProcessed(ctx, envelope.BatchID); err != nil {
		// Worst case the batch is materialized again; the natural-key upsert
		// makes that a no-op.
		log.Ctx(ctx).Warn().Err(err).Str("batch_id", envelope.BatchID).Msg("materialized but marker write failed")
	}

	c.ack(ctx, stream, group, msg.ID)
}

func (c *Consumer) ack(ctx context.Context, stream, group, messageID string) {
	if err := c.rdb.XAck(ctx, stream, group, messageID).Err(); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("message_id", messageID).Msg("failed to ack message")
	}
}
