package stream

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/driftline/driftline-internal/internal/common/apperrors"
	"github.com/driftline/driftline-internal/internal/driftsrv/config"
	"github.com/driftline/driftline-internal/pkg/api/canonical"
	"github.com/driftline/driftline-internal/pkg/types"
	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// TableRecords is one table's output for a sync cycle, before chunking.
type TableRecords struct {
	Name    string
	Columns []canonical.Column
	Records []jsoniter.RawMessage
}

// Emitter chunks a sync cycle's records into canonical envelopes and
// publishes them. Batch ids are deterministic over (connector, cycle,
// chunk index), so re-emitting the same cycle reproduces the same ids.
type Emitter struct {
	rdb        *redis.Client
	chunkSize  int
	maxSamples int
	maxLen     int64
	namespace  string
}

func NewEmitter(rdb *redis.Client) *Emitter {
	cfg := config.Config()
	return &Emitter{
		rdb:        rdb,
		chunkSize:  cfg.BatchChunkSize,
		maxSamples: cfg.MaxSamplesPerTable,
		maxLen:     cfg.StreamMaxLength,
		namespace:  cfg.StreamNamespace,
	}
}

// Emit publishes one sync cycle. Each table's records are split into chunks
// of at most the configured batch size; every chunk ships as one envelope
// carrying up to the configured number of sample records plus counts.
// Returns the batch ids published, in order.
func (e *Emitter) Emit(ctx context.Context, tenantID types.TenantId, connector, connectorConfigID string, schemaVersion int, cycle time.Time, tables []TableRecords) ([]string, apperrors.Error) {
	if connector == "" {
		return nil, ErrPublishFailed.Msg("connector is required")
	}

	streamKey := canonical.StreamKey(e.namespace, tenantID, connector)
	chunk := 0
	var batchIDs []string

	for _, table := range tables {
		for _, records := range lo.Chunk(table.Records, e.chunkSize) {
			samples := records
			if len(samples) > e.maxSamples {
				samples = samples[:e.maxSamples]
			}
			envelope := &canonical.Envelope{
				BatchID:           canonical.BatchID(connector, cycle, chunk),
				Connector:         connector,
				ConnectorConfigID: connectorConfigID,
				SchemaVersion:     schemaVersion,
				Tables: []canonical.Table{{
					Name:    table.Name,
					Schema:  canonical.TableSchema{Columns: table.Columns},
					Samples: samples,
					Stats: canonical.TableStats{
						TotalCount:  len(records),
						SampleCount: len(samples),
					},
				}},
				EmittedAt: time.Now().UTC(),
			}

			if err := e.publish(ctx, streamKey, envelope); err != nil {
				return batchIDs, err
			}
			batchIDs = append(batchIDs, envelope.BatchID)
			chunk++
		}
	}

	log.Ctx(ctx).Info().
		Str("stream", streamKey).
		Str("connector", connector).
		Int("envelopes", len(batchIDs)).
		Msg("cycle emitted")

	return batchIDs, nil
}

func (e *Emitter) publish(ctx context.Context, streamKey string, envelope *canonical.Envelope) apperrors.Error {
	payload, goerr := envelope.Serialize()
	if goerr != nil {
		return ErrPublishFailed.Err(goerr)
	}

	goerr = retry.Do(func() error {
		return e.rdb.XAdd(ctx, &redis.XAddArgs{
			Stream: streamKey,
			MaxLen: e.maxLen,
			Approx: true,
			Values: map[string]any{
				"batch_id": envelope.BatchID,
				"payload":  payload,
			},
		}).Err()
	}, retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			log.Ctx(ctx).Warn().Err(err).Uint("attempt", n).Str("batch_id", envelope.BatchID).Msg("publish failed")
		}))
	if goerr != nil {
		log.Ctx(ctx).Error().Err(goerr).Str("batch_id", envelope.BatchID).Msg("giving up on envelope publish")
		return ErrPublishFailed.Err(goerr)
	}
	return nil
}
