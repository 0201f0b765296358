package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/espeech/espeech-api/internal/core"
	"github.com/espeech/espeech-api/internal/domain/model"
	"github.com/redis/go-redis/v9"
)

const defaultMarkerRetention = 24 * time.Hour

// RedisResultRepoOptions configure a RedisResultRepo.
type RedisResultRepoOptions struct {
	TTL time.Duration
	// KeyPrefix namespaces every key (e.g., "espeech").
	KeyPrefix string
	// MarkerRetention is how long result metadata outlives the payload so lookups
	// can still report the result as expired.
	MarkerRetention time.Duration
	TimeProvider    TimeProvider
	Logger          *slog.Logger
}

// RedisResultRepo stores result payloads in Redis using native key expiry.
// Each result has a payload key with the TTL and a metadata key that lives longer.
type RedisResultRepo struct {
	client          redis.UniversalClient
	ttl             time.Duration
	prefix          string
	markerRetention time.Duration
	timeProvider    TimeProvider
	logger          *slog.Logger
}

type redisResultMeta struct {
	Filename  string    `json:"filename"`
	MimeType  string    `json:"mime_type"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewRedisResultRepo creates a new RedisResultRepo with the given Redis client.
func NewRedisResultRepo(client redis.UniversalClient, opts RedisResultRepoOptions) (*RedisResultRepo, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	retention := opts.MarkerRetention
	if retention <= 0 {
		retention = defaultMarkerRetention
	}
	prefix := strings.TrimSuffix(opts.KeyPrefix, ":")
	if prefix == "" {
		prefix = "espeech"
	}
	tp := opts.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisResultRepo{
		client:          client,
		ttl:             ttl,
		prefix:          prefix,
		markerRetention: retention,
		timeProvider:    tp,
		logger:          logger.With("component", "redis_result_repo"),
	}, nil
}

// Keys of one result share a hash tag so MULTI works in cluster mode.
func (r *RedisResultRepo) dataKey(jobID string) string {
	return r.prefix + ":result:{" + jobID + "}:data"
}

func (r *RedisResultRepo) metaKey(jobID string) string {
	return r.prefix + ":result:{" + jobID + "}:meta"
}

// Store writes payload and metadata atomically.
func (r *RedisResultRepo) Store(ctx context.Context, params core.StoreResultParams) (*model.Result, error) {
	if params.JobID == "" {
		return nil, ErrJobIDRequired
	}

	now := r.timeProvider.Now()
	meta := redisResultMeta{
		Filename:  params.Filename,
		MimeType:  params.MimeType,
		Size:      int64(len(params.Data)),
		CreatedAt: now,
		ExpiresAt: now.Add(r.ttl),
	}
	if err := r.writeMeta(ctx, params.JobID, meta, func(pipe redis.Pipeliner) {
		pipe.Set(ctx, r.dataKey(params.JobID), params.Data, r.ttl)
	}); err != nil {
		return nil, err
	}

	return meta.toResult(params.JobID, params.Data), nil
}

// Get returns the result for jobID.
func (r *RedisResultRepo) Get(ctx context.Context, jobID string) (*model.Result, error) {
	var metaCmd, dataCmd *redis.StringCmd
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		metaCmd = pipe.Get(ctx, r.metaKey(jobID))
		dataCmd = pipe.Get(ctx, r.dataKey(jobID))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis get result: %w", err)
	}

	metaRaw, err := metaCmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrResultNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get result meta: %w", err)
	}
	var meta redisResultMeta
	if err = json.Unmarshal(metaRaw, &meta); err != nil {
		return nil, fmt.Errorf("decode result meta: %w", err)
	}

	payload, err := dataCmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrResultExpired, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get result data: %w", err)
	}

	return meta.toResult(jobID, payload), nil
}

// Touch restarts the payload TTL.
func (r *RedisResultRepo) Touch(ctx context.Context, jobID string) error {
	res, err := r.Get(ctx, jobID)
	if err != nil {
		return err
	}

	meta := redisResultMeta{
		Filename:  res.Filename,
		MimeType:  res.MimeType,
		Size:      res.Size,
		CreatedAt: res.CreatedAt,
		ExpiresAt: r.timeProvider.Now().Add(r.ttl),
	}
	return r.writeMeta(ctx, jobID, meta, func(pipe redis.Pipeliner) {
		pipe.Expire(ctx, r.dataKey(jobID), r.ttl)
	})
}

// Evict deletes the payload of jobID, leaving its metadata behind.
func (r *RedisResultRepo) Evict(ctx context.Context, jobID string) error {
	exists, err := r.client.Exists(ctx, r.metaKey(jobID)).Result()
	if err != nil {
		return fmt.Errorf("redis exists: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", ErrResultNotFound, jobID)
	}
	if err = r.client.Del(ctx, r.dataKey(jobID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// EvictExpired deletes payloads whose recorded expiry is at or before now.
// Redis normally expires them first; this sweep covers clock skew and keys written without a TTL.
func (r *RedisResultRepo) EvictExpired(ctx context.Context, now time.Time) (int, error) {
	evicted := 0
	iter := r.client.Scan(ctx, 0, r.prefix+":result:*:meta", 200).Iterator()
	for iter.Next(ctx) {
		metaKey := iter.Val()
		raw, err := r.client.Get(ctx, metaKey).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return evicted, fmt.Errorf("redis get result meta: %w", err)
		}

		var meta redisResultMeta
		if err = json.Unmarshal(raw, &meta); err != nil {
			r.logger.WarnContext(ctx, "skipping undecodable result meta", "key", metaKey, "error", err)
			continue
		}
		if now.Before(meta.ExpiresAt) {
			continue
		}

		jobID := strings.TrimSuffix(strings.TrimPrefix(metaKey, r.prefix+":result:{"), "}:meta")
		deleted, err := r.client.Del(ctx, r.dataKey(jobID)).Result()
		if err != nil {
			return evicted, fmt.Errorf("redis del: %w", err)
		}
		evicted += int(deleted)
	}
	if err := iter.Err(); err != nil {
		return evicted, fmt.Errorf("redis scan: %w", err)
	}
	return evicted, nil
}

// Forget deletes payload and metadata for the given job ids.
func (r *RedisResultRepo) Forget(ctx context.Context, jobIDs []string) error {
	if len(jobIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(jobIDs)*2)
	for _, id := range jobIDs {
		keys = append(keys, r.dataKey(id), r.metaKey(id))
	}
	// Cluster mode rejects multi-key DEL across slots, so delete key by key.
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range keys {
			pipe.Del(ctx, key)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis forget results: %w", err)
	}
	return nil
}

// Health checks the health of the Redis connection.
func (r *RedisResultRepo) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisResultRepo) writeMeta(
	ctx context.Context,
	jobID string,
	meta redisResultMeta,
	extra func(redis.Pipeliner),
) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode result meta: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		extra(pipe)
		pipe.Set(ctx, r.metaKey(jobID), raw, r.ttl+r.markerRetention)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis store result: %w", err)
	}
	return nil
}

func (m redisResultMeta) toResult(jobID string, payload []byte) *model.Result {
	return &model.Result{
		JobID:     jobID,
		Filename:  m.Filename,
		MimeType:  m.MimeType,
		Data:      payload,
		Size:      m.Size,
		CreatedAt: m.CreatedAt,
		ExpiresAt: m.ExpiresAt,
	}
}

var _ core.ResultRepository = (*RedisResultRepo)(nil)
