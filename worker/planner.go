package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/openfun/marsha-sub002/config"
	"github.com/openfun/marsha-sub002/models"
	"github.com/openfun/marsha-sub002/services"
	"github.com/openfun/marsha-sub002/workdir"
)

// Planner reacts to a finished recording: it tears down the live
// infrastructure, computes the chunk plan from the manifest, lays out the
// working directory and fans out one chunk job per (resolution, chunk index).
type Planner struct {
	cfg        *config.Config
	teardown   LiveTeardown
	manifests  ManifestFetcher
	dispatcher services.Dispatcher
}

func NewPlanner(cfg *config.Config, teardown LiveTeardown, manifests ManifestFetcher, dispatcher services.Dispatcher) *Planner {
	return &Planner{
		cfg:        cfg,
		teardown:   teardown,
		manifests:  manifests,
		dispatcher: dispatcher,
	}
}

func (p *Planner) Handle(ctx context.Context, notification models.HarvestNotification) (Outcome, error) {
	if notification.Status != models.HarvestStatusSucceeded {
		return "", fmt.Errorf("harvest job %s has status %s, expected %s",
			notification.HarvestJobID, notification.Status, models.HarvestStatusSucceeded)
	}

	videoID, stamp, err := notification.AssetRef()
	if err != nil {
		return "", err
	}

	duration, err := notification.Duration()
	if err != nil {
		return "", err
	}
	if duration < 0 {
		return "", fmt.Errorf("harvest job %s ends before it starts (%s .. %s)",
			notification.HarvestJobID, notification.StartTime, notification.EndTime)
	}

	// The live endpoint has served its purpose once the recording is packaged.
	if err := p.teardown.TeardownLiveChannel(ctx, notification.OriginEndpointID); err != nil {
		return "", err
	}

	manifestURL := services.ManifestURL(
		notification.Destination.Bucket,
		p.cfg.S3Region,
		notification.Destination.ManifestKey,
	)
	renditions, err := p.manifests.FetchRenditions(ctx, manifestURL)
	if err != nil {
		return "", err
	}

	spans := workdir.ChunkPlan(duration, p.cfg.ChunkDuration)

	// Restart-from-scratch point: partial state from an earlier failed run of
	// the same video is discarded here and nowhere else.
	assetDir, err := workdir.Recreate(p.cfg.WorkRoot, videoID)
	if err != nil {
		return "", err
	}

	planPath := workdir.PlanPath(assetDir)
	listPaths := make([]string, len(renditions))
	for i, r := range renditions {
		listPaths[i] = workdir.ListPath(workdir.ResolutionDir(assetDir, r.Height))
	}
	if err := workdir.WritePlan(planPath, listPaths); err != nil {
		return "", err
	}

	log.Info().
		Str("video_id", videoID).
		Int64("stamp", stamp).
		Int("duration", duration).
		Int("chunks", len(spans)).
		Int("resolutions", len(renditions)).
		Msg("slicing plan computed")

	var wg sync.WaitGroup
	errs := make([]error, len(renditions))
	for i, r := range renditions {
		wg.Add(1)
		go func(i int, r services.Rendition) {
			defer wg.Done()
			errs[i] = p.planResolution(ctx, notification, r, spans, assetDir, planPath, videoID, stamp)
		}(i, r)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return "", err
	}
	return OutcomePlanned, nil
}

// planResolution writes the resolution's chunk list and fires its chunk jobs
// in index order. The complete list is on disk before the first job fires, so
// a completion scan can never observe a chunk file without its list entry.
func (p *Planner) planResolution(
	ctx context.Context,
	notification models.HarvestNotification,
	rendition services.Rendition,
	spans []workdir.Span,
	assetDir, planPath, videoID string,
	stamp int64,
) error {
	resolutionDir := workdir.ResolutionDir(assetDir, rendition.Height)
	if err := os.MkdirAll(resolutionDir, 0o755); err != nil {
		return fmt.Errorf("failed to create resolution directory: %w", err)
	}

	listPath := workdir.ListPath(resolutionDir)
	chunkPaths := make([]string, len(spans))
	for i := range spans {
		chunkPaths[i] = workdir.ChunkPath(resolutionDir, i)
	}
	if err := workdir.WriteChunkList(listPath, chunkPaths); err != nil {
		return err
	}

	for i, span := range spans {
		job := models.ChunkJob{
			VideoID:     videoID,
			Stamp:       stamp,
			Resolution:  rendition.Height,
			PlaylistURL: rendition.PlaylistURL,
			From:        span.From,
			To:          span.To,
			ChunkPath:   chunkPaths[i],
			ListPath:    listPath,
			PlanPath:    planPath,
			Bucket:      notification.Destination.Bucket,
		}
		if err := p.dispatcher.DispatchChunkJob(ctx, job); err != nil {
			return err
		}
	}
	return nil
}
