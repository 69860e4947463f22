package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/openfun/marsha-sub002/models"
	"github.com/openfun/marsha-sub002/services"
)

// AssetUploader ships every resolution's deliverable and thumbnail to durable
// storage, removes the working directory and publishes the video as ready.
// This is the pipeline's single cleanup point; no upstream stage ever deletes
// its own output.
type AssetUploader struct {
	store     ObjectStore
	publisher services.StatePublisher
}

func NewAssetUploader(store ObjectStore, publisher services.StatePublisher) *AssetUploader {
	return &AssetUploader{store: store, publisher: publisher}
}

// Handle uploads resolutions concurrently; each resolution streams its
// deliverable as a sequential multipart upload and puts its thumbnail whole.
// A failed resolution fails the job; any multipart state left dangling on the
// storage side is cleaned up out-of-band, not here.
func (u *AssetUploader) Handle(ctx context.Context, job models.UploadJob) (Outcome, error) {
	if len(job.Targets) == 0 {
		return "", fmt.Errorf("upload job for video %s has no targets", job.VideoID)
	}

	var wg sync.WaitGroup
	errs := make([]error, 0, len(job.Targets))
	var mu sync.Mutex
	for resolution, target := range job.Targets {
		wg.Add(1)
		go func(resolution int, target models.UploadTarget) {
			defer wg.Done()
			if err := u.uploadResolution(ctx, job.Bucket, target); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("resolution %d: %w", resolution, err))
				mu.Unlock()
			}
		}(resolution, target)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return "", err
	}

	if err := os.RemoveAll(job.WorkDir); err != nil {
		return "", fmt.Errorf("failed to remove working directory: %w", err)
	}

	if err := u.publisher.PublishState(ctx, job.VideoID, job.Stamp, services.StateReady, job.Resolutions()); err != nil {
		return "", err
	}

	log.Info().
		Str("video_id", job.VideoID).
		Int64("stamp", job.Stamp).
		Ints("resolutions", job.Resolutions()).
		Msg("asset uploaded and published")
	return OutcomeShipped, nil
}

func (u *AssetUploader) uploadResolution(ctx context.Context, bucket string, target models.UploadTarget) error {
	if err := u.store.UploadFile(ctx, bucket, target.VideoKey, target.VideoPath, "video/mp4"); err != nil {
		return err
	}
	return u.store.PutFile(ctx, bucket, target.ThumbnailKey, target.ThumbnailPath, "image/jpeg")
}
