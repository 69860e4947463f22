package worker

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/openfun/marsha-sub002/models"
	"github.com/openfun/marsha-sub002/services"
	"github.com/openfun/marsha-sub002/workdir"
)

// ChunkTranscoder extracts one time slice of one resolution into its chunk
// file, then checks whether the resolution is ready to stitch.
type ChunkTranscoder struct {
	ffmpeg     Transcoder
	dispatcher services.Dispatcher
}

func NewChunkTranscoder(ffmpeg Transcoder, dispatcher services.Dispatcher) *ChunkTranscoder {
	return &ChunkTranscoder{ffmpeg: ffmpeg, dispatcher: dispatcher}
}

// Handle transcodes the job's slice into a temp file named by hashing the
// final chunk path, so a duplicate invocation of the same job works on the
// same scratch file and the rename stays idempotent. Re-invocation for an
// already-present chunk simply re-transcodes and renames over it; the final
// content is identical and never observed partially written.
func (t *ChunkTranscoder) Handle(ctx context.Context, job models.ChunkJob) (Outcome, error) {
	tempPath := workdir.TempPath(job.ChunkPath)
	if err := t.ffmpeg.ExtractSlice(ctx, job.PlaylistURL, job.From, job.To, tempPath); err != nil {
		return "", err
	}
	if err := workdir.Publish(tempPath, job.ChunkPath); err != nil {
		return "", err
	}

	// Snapshot scan of the resolution's chunk list. Two chunks finishing at
	// the same moment may both see a complete set and both dispatch; the
	// stitcher's existence short-circuit absorbs the duplicate.
	missing, err := workdir.MissingChunks(job.ListPath)
	if err != nil {
		return "", err
	}
	if len(missing) > 0 {
		log.Debug().
			Str("video_id", job.VideoID).
			Int("resolution", job.Resolution).
			Int("missing", len(missing)).
			Msg("resolution not complete yet")
		return OutcomeChunkDone, nil
	}

	err = t.dispatcher.DispatchResolutionJob(ctx, models.ResolutionJob{
		VideoID:    job.VideoID,
		Stamp:      job.Stamp,
		Resolution: job.Resolution,
		ListPath:   job.ListPath,
		PlanPath:   job.PlanPath,
		Bucket:     job.Bucket,
	})
	if err != nil {
		return "", err
	}
	return OutcomeResolutionReady, nil
}
