package worker

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/openfun/marsha-sub002/models"
	"github.com/openfun/marsha-sub002/services"
	"github.com/openfun/marsha-sub002/workdir"
)

// ResolutionStitcher concatenates a resolution's chunks into its deliverable,
// derives the thumbnail, then checks whether every resolution of the video is
// ready to upload.
type ResolutionStitcher struct {
	ffmpeg     Transcoder
	dispatcher services.Dispatcher
}

func NewResolutionStitcher(ffmpeg Transcoder, dispatcher services.Dispatcher) *ResolutionStitcher {
	return &ResolutionStitcher{ffmpeg: ffmpeg, dispatcher: dispatcher}
}

// Handle short-circuits if the deliverable already exists: the completion scan
// upstream can fire duplicate resolution jobs, and the invocation that
// actually produced the deliverable owns the follow-up fan-in check.
func (s *ResolutionStitcher) Handle(ctx context.Context, job models.ResolutionJob) (Outcome, error) {
	resolutionDir := filepath.Dir(job.ListPath)
	deliverablePath := workdir.DeliverablePath(resolutionDir, job.Stamp, job.Resolution)

	if workdir.Exists(deliverablePath) {
		log.Info().
			Str("video_id", job.VideoID).
			Int("resolution", job.Resolution).
			Msg("duplicate stitch request skipped")
		return OutcomeAlreadyStitched, nil
	}

	tempPath := workdir.TempPath(deliverablePath)
	if err := s.ffmpeg.Concat(ctx, job.ListPath, tempPath); err != nil {
		return "", err
	}
	if err := workdir.Publish(tempPath, deliverablePath); err != nil {
		return "", err
	}

	// The deliverable is stable now, so the thumbnail name needs no hashing.
	thumbnailPath := workdir.ThumbnailPath(resolutionDir, job.Stamp, job.Resolution)
	if err := s.ffmpeg.Thumbnail(ctx, deliverablePath, thumbnailPath); err != nil {
		return "", err
	}

	missing, err := workdir.MissingDeliverables(job.PlanPath, job.Stamp)
	if err != nil {
		return "", err
	}
	if len(missing) > 0 {
		log.Debug().
			Str("video_id", job.VideoID).
			Ints("missing_resolutions", missing).
			Msg("asset not complete yet")
		return OutcomeAssetIncomplete, nil
	}

	uploadJob, err := buildUploadJob(job)
	if err != nil {
		return "", err
	}
	if err := s.dispatcher.DispatchUploadJob(ctx, uploadJob); err != nil {
		return "", err
	}
	return OutcomeAssetReady, nil
}

// buildUploadJob assembles every resolution's deliverable and thumbnail with
// their destination keys, enumerated from the resolution plan file.
func buildUploadJob(job models.ResolutionJob) (models.UploadJob, error) {
	resolutions, err := workdir.PlannedResolutions(job.PlanPath)
	if err != nil {
		return models.UploadJob{}, err
	}

	assetDir := filepath.Dir(job.PlanPath)
	targets := make(map[int]models.UploadTarget, len(resolutions))
	for _, resolution := range resolutions {
		resolutionDir := workdir.ResolutionDir(assetDir, resolution)
		targets[resolution] = models.UploadTarget{
			VideoPath:     workdir.DeliverablePath(resolutionDir, job.Stamp, resolution),
			VideoKey:      fmt.Sprintf("%s/mp4/%d_%d.mp4", job.VideoID, job.Stamp, resolution),
			ThumbnailPath: workdir.ThumbnailPath(resolutionDir, job.Stamp, resolution),
			ThumbnailKey:  fmt.Sprintf("%s/thumbnails/%d_%d.0000000.jpg", job.VideoID, job.Stamp, resolution),
		}
	}

	return models.UploadJob{
		VideoID: job.VideoID,
		Stamp:   job.Stamp,
		Bucket:  job.Bucket,
		WorkDir: assetDir,
		Targets: targets,
	}, nil
}
