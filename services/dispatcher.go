package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openfun/marsha-sub002/config"
	"github.com/openfun/marsha-sub002/models"

	"github.com/redis/go-redis/v9"
)

// Dispatcher fires a downstream job and returns without waiting for it to be
// picked up, let alone to complete. Delivery is at-least-once; every consumer
// must tolerate duplicate jobs.
type Dispatcher interface {
	DispatchChunkJob(ctx context.Context, job models.ChunkJob) error
	DispatchResolutionJob(ctx context.Context, job models.ResolutionJob) error
	DispatchUploadJob(ctx context.Context, job models.UploadJob) error
}

// RedisDispatcher pushes job payloads onto each stage's pending list.
type RedisDispatcher struct {
	client *redis.Client
	cfg    *config.Config
}

func NewRedisDispatcher(client *redis.Client, cfg *config.Config) *RedisDispatcher {
	return &RedisDispatcher{client: client, cfg: cfg}
}

func (d *RedisDispatcher) DispatchChunkJob(ctx context.Context, job models.ChunkJob) error {
	return d.push(ctx, d.cfg.ChunkQueues.Pending, job)
}

func (d *RedisDispatcher) DispatchResolutionJob(ctx context.Context, job models.ResolutionJob) error {
	return d.push(ctx, d.cfg.ResolutionQueues.Pending, job)
}

func (d *RedisDispatcher) DispatchUploadJob(ctx context.Context, job models.UploadJob) error {
	return d.push(ctx, d.cfg.UploadQueues.Pending, job)
}

func (d *RedisDispatcher) push(ctx context.Context, queue string, job any) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job for %s: %w", queue, err)
	}
	if err := d.client.LPush(ctx, queue, payload).Err(); err != nil {
		return fmt.Errorf("failed to dispatch job to %s: %w", queue, err)
	}
	return nil
}
