package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/agentos/studio/config"
	"github.com/agentos/studio/workflow"
)

// RedisRecordStore keeps each record as a JSON string with sorted-set
// indexes per workflow and per status, scored by start time.
type RedisRecordStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger
}

// DialRedis creates a client and verifies the connection
func DialRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// NewRedisRecordStore wraps an existing client. A zero ttl keeps records forever.
func NewRedisRecordStore(client *redis.Client, keyPrefix string, ttl time.Duration, logger *zap.Logger) *RedisRecordStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if keyPrefix == "" {
		keyPrefix = "agentos:exec:"
	}
	return &RedisRecordStore{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		logger:    logger.With(zap.String("component", "redis_record_store")),
	}
}

func (s *RedisRecordStore) dataKey(id string) string {
	return s.keyPrefix + "data:" + id
}

func (s *RedisRecordStore) workflowKey(workflowID string) string {
	return s.keyPrefix + "workflow:" + workflowID
}

func (s *RedisRecordStore) statusKey(status workflow.ExecutionStatus) string {
	return s.keyPrefix + "status:" + string(status)
}

// Save implements workflow.RecordStore
func (s *RedisRecordStore) Save(ctx context.Context, record *workflow.ExecutionRecord) error {
	data, err := encodeRecord(record)
	if err != nil {
		return err
	}

	// Old status index entry must be dropped when the status changes
	old, err := s.Get(ctx, record.ID)
	if err != nil && !errors.Is(err, workflow.ErrExecutionNotFound) {
		return err
	}

	snap := record.Clone()
	score := float64(snap.StartTime.UnixNano())

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.dataKey(snap.ID), data, s.ttl)
	if old != nil && old.Status != snap.Status {
		pipe.ZRem(ctx, s.statusKey(old.Status), snap.ID)
	}
	pipe.ZAdd(ctx, s.statusKey(snap.Status), redis.Z{Score: score, Member: snap.ID})
	pipe.ZAdd(ctx, s.workflowKey(snap.WorkflowID), redis.Z{Score: score, Member: snap.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save execution %s: %w", snap.ID, err)
	}
	return nil
}

// Get implements workflow.RecordStore
func (s *RedisRecordStore) Get(ctx context.Context, id string) (*workflow.ExecutionRecord, error) {
	data, err := s.client.Get(ctx, s.dataKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load execution %s: %w", id, err)
	}
	return decodeRecord(data)
}

// ListByWorkflow implements workflow.RecordStore
func (s *RedisRecordStore) ListByWorkflow(ctx context.Context, workflowID string) ([]*workflow.ExecutionRecord, error) {
	return s.listIndex(ctx, s.workflowKey(workflowID))
}

// ListByStatus implements workflow.RecordStore
func (s *RedisRecordStore) ListByStatus(ctx context.Context, status workflow.ExecutionStatus) ([]*workflow.ExecutionRecord, error) {
	return s.listIndex(ctx, s.statusKey(status))
}

func (s *RedisRecordStore) listIndex(ctx context.Context, key string) ([]*workflow.ExecutionRecord, error) {
	ids, err := s.client.ZRevRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read index %s: %w", key, err)
	}

	out := make([]*workflow.ExecutionRecord, 0, len(ids))
	var stale []any
	for _, id := range ids {
		rec, err := s.Get(ctx, id)
		if errors.Is(err, workflow.ErrExecutionNotFound) {
			// expired through TTL
			stale = append(stale, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if len(stale) > 0 {
		if err := s.client.ZRem(ctx, key, stale...).Err(); err != nil {
			s.logger.Warn("failed to prune expired index entries", zap.String("key", key), zap.Error(err))
		}
	}
	workflow.SortRecords(out)
	return out, nil
}

// Delete implements workflow.RecordStore
func (s *RedisRecordStore) Delete(ctx context.Context, id string) error {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.dataKey(id))
	pipe.ZRem(ctx, s.statusKey(rec.Status), id)
	pipe.ZRem(ctx, s.workflowKey(rec.WorkflowID), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete execution %s: %w", id, err)
	}
	return nil
}

// Ping implements workflow.RecordStore
func (s *RedisRecordStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close implements workflow.RecordStore
func (s *RedisRecordStore) Close() error {
	return s.client.Close()
}
