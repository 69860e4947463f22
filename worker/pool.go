package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/openfun/marsha-sub002/config"
	"github.com/openfun/marsha-sub002/metrics"
	"github.com/openfun/marsha-sub002/models"
)

const (
	popTimeout       = 30 * time.Second
	redisErrDelay    = 5 * time.Second
	recoveryInterval = 5 * time.Minute
)

// queueClient is the subset of the Redis client the pool uses.
type queueClient interface {
	BRPopLPush(ctx context.Context, source, destination string, timeout time.Duration) *redis.StringCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	LRem(ctx context.Context, key string, count int64, value interface{}) *redis.IntCmd
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// Stage binds one pipeline stage's queues to its handler.
type Stage struct {
	Name    string
	Queues  config.StageQueues
	Workers int
	Handle  func(ctx context.Context, payload []byte) (Outcome, error)
}

// Pool consumes the four stage queues. Each job is popped atomically from the
// pending list into the processing list and removed once handled; hard
// failures land on the stage's failed list for operator redrive. A background
// sweep requeues jobs stranded on the processing lists by a crashed worker.
type Pool struct {
	client     queueClient
	met        *metrics.Metrics
	jobTimeout time.Duration
	stages     []Stage
	now        func() time.Time
}

func NewPool(client queueClient, met *metrics.Metrics, jobTimeout time.Duration, stages []Stage) *Pool {
	return &Pool{
		client:     client,
		met:        met,
		jobTimeout: jobTimeout,
		stages:     stages,
		now:        time.Now,
	}
}

// Stages builds the pool's stage table from the configured queues and the
// four stage implementations.
func Stages(
	cfg *config.Config,
	planner *Planner,
	transcoder *ChunkTranscoder,
	stitcher *ResolutionStitcher,
	uploader *AssetUploader,
) []Stage {
	return []Stage{
		{
			Name:    "planner",
			Queues:  cfg.HarvestQueues,
			Workers: cfg.HarvestWorkers,
			Handle:  decode(planner.Handle),
		},
		{
			Name:    "transcoder",
			Queues:  cfg.ChunkQueues,
			Workers: cfg.ChunkWorkers,
			Handle:  decode(transcoder.Handle),
		},
		{
			Name:    "stitcher",
			Queues:  cfg.ResolutionQueues,
			Workers: cfg.ResolutionWorkers,
			Handle:  decode(stitcher.Handle),
		},
		{
			Name:    "uploader",
			Queues:  cfg.UploadQueues,
			Workers: cfg.UploadWorkers,
			Handle:  decode(uploader.Handle),
		},
	}
}

// decode adapts a typed stage handler to the raw-payload handler the consumer
// loop runs.
func decode[J models.HarvestNotification | models.ChunkJob | models.ResolutionJob | models.UploadJob](
	handle func(context.Context, J) (Outcome, error),
) func(context.Context, []byte) (Outcome, error) {
	return func(ctx context.Context, payload []byte) (Outcome, error) {
		var job J
		if err := json.Unmarshal(payload, &job); err != nil {
			return "", err
		}
		return handle(ctx, job)
	}
}

// Start launches every stage's consumers plus the stale-job sweep and blocks
// until ctx is cancelled and all of them have returned.
func (p *Pool) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for _, stage := range p.stages {
		for i := 0; i < stage.Workers; i++ {
			wg.Add(1)
			go func(stage Stage, workerID int) {
				defer wg.Done()
				p.consume(ctx, stage, workerID)
			}(stage, i)
		}
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.recoveryLoop(ctx)
	}()
	wg.Wait()
}

// recoveryLoop periodically requeues jobs that a crashed worker left behind on
// a processing list. Every stage is idempotent, so redelivering a job whose
// worker actually finished is harmless.
func (p *Pool) recoveryLoop(ctx context.Context) {
	ticker := time.NewTicker(recoveryInterval)
	defer ticker.Stop()

	// payload -> first time the sweep saw it on the processing list, per
	// stage. A live worker removes its entry well within the job timeout, so
	// anything still present after that long belongs to a dead worker.
	firstSeen := make(map[string]map[string]time.Time, len(p.stages))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.recoverStaleJobs(ctx, firstSeen)
		}
	}
}

func (p *Pool) recoverStaleJobs(ctx context.Context, firstSeen map[string]map[string]time.Time) {
	now := p.now()
	for _, stage := range p.stages {
		seen := firstSeen[stage.Name]
		if seen == nil {
			seen = make(map[string]time.Time)
			firstSeen[stage.Name] = seen
		}

		payloads, err := p.client.LRange(ctx, stage.Queues.Processing, 0, -1).Result()
		if err != nil {
			log.Error().Err(err).Str("stage", stage.Name).Msg("processing list scan failed")
			continue
		}

		present := make(map[string]bool, len(payloads))
		recovered := 0
		for _, payload := range payloads {
			present[payload] = true
			first, ok := seen[payload]
			if !ok {
				seen[payload] = now
				continue
			}
			if now.Sub(first) <= p.jobTimeout {
				continue
			}
			removed, err := p.client.LRem(ctx, stage.Queues.Processing, 1, payload).Result()
			if err != nil {
				log.Error().Err(err).Str("stage", stage.Name).Msg("stale job removal failed")
				continue
			}
			if removed > 0 {
				p.client.LPush(ctx, stage.Queues.Pending, payload)
				recovered++
			}
			delete(seen, payload)
		}

		// Forget entries a worker finished between sweeps.
		for payload := range seen {
			if !present[payload] {
				delete(seen, payload)
			}
		}

		if recovered > 0 {
			log.Warn().Str("stage", stage.Name).Int("jobs", recovered).Msg("requeued stale jobs")
		}
	}
}

func (p *Pool) consume(ctx context.Context, stage Stage, workerID int) {
	logger := log.With().Str("stage", stage.Name).Int("worker", workerID).Logger()
	logger.Info().Msg("worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("worker stopped")
			return
		default:
			// Atomic pop from pending and push to processing
			payload, err := p.client.BRPopLPush(
				ctx,
				stage.Queues.Pending,
				stage.Queues.Processing,
				popTimeout,
			).Result()

			if err == redis.Nil {
				// Timeout, no jobs available
				continue
			}

			if err != nil {
				if ctx.Err() != nil {
					logger.Info().Msg("worker stopped")
					return
				}
				logger.Error().Err(err).Msg("queue pop failed")
				time.Sleep(redisErrDelay)
				continue
			}

			p.processJob(ctx, stage, payload)
		}
	}
}

func (p *Pool) processJob(ctx context.Context, stage Stage, payload string) {
	logger := log.With().Str("stage", stage.Name).Logger()

	jobCtx, cancel := context.WithTimeout(ctx, p.jobTimeout)
	defer cancel()

	start := time.Now()
	outcome, err := stage.Handle(jobCtx, []byte(payload))

	// Remove from processing regardless of result; failed payloads move to
	// the failed list so an operator can inspect and redrive them.
	p.client.LRem(context.WithoutCancel(ctx), stage.Queues.Processing, 1, payload)

	if err != nil {
		p.met.IncFailed(stage.Name)
		p.client.LPush(context.WithoutCancel(ctx), stage.Queues.Failed, payload)
		logger.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("job failed")
		return
	}

	if outcome.Deferred() {
		p.met.IncDeferred(stage.Name)
	} else {
		p.met.IncJobs(stage.Name)
		if outcome == OutcomeShipped {
			p.met.IncAssetsShipped()
		}
	}
	logger.Info().
		Str("outcome", string(outcome)).
		Dur("elapsed", time.Since(start)).
		Msg("job handled")
}
