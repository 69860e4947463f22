// Package worker hosts the four pipeline stages. Each stage is stateless:
// it reads the shared working directory to decide what remains to be done,
// produces its output under a temporary name published by atomic rename, and
// fires the next stage with a fire-and-forget dispatch. Completion scans are
// snapshots, so duplicate downstream triggers are possible and every stage is
// written to be idempotent instead.
package worker

import (
	"context"

	"github.com/openfun/marsha-sub002/services"
)

// Outcome is a stage's normal, non-error result. Fan-in stages frequently
// finish without triggering anything downstream; those outcomes are part of
// steady-state operation and must never surface as errors.
type Outcome string

const (
	// OutcomePlanned: the slice planner fanned out every chunk job.
	OutcomePlanned Outcome = "chunk jobs dispatched"
	// OutcomeChunkDone: chunk produced, siblings still missing.
	OutcomeChunkDone Outcome = "missing files to concat"
	// OutcomeResolutionReady: chunk produced and it was the last one.
	OutcomeResolutionReady Outcome = "resolution dispatched"
	// OutcomeAlreadyStitched: deliverable existed, duplicate invocation skipped.
	OutcomeAlreadyStitched Outcome = "deliverable already exists"
	// OutcomeAssetIncomplete: deliverable produced, other resolutions pending.
	OutcomeAssetIncomplete Outcome = "not all resolutions complete"
	// OutcomeAssetReady: deliverable produced and it was the last resolution.
	OutcomeAssetReady Outcome = "upload dispatched"
	// OutcomeShipped: everything uploaded, working directory removed.
	OutcomeShipped Outcome = "asset shipped"
)

// Deferred reports whether the outcome is a fan-in barrier still waiting on
// sibling jobs.
func (o Outcome) Deferred() bool {
	return o == OutcomeChunkDone || o == OutcomeAssetIncomplete
}

// LiveTeardown removes the live-packaging infrastructure for an origin
// endpoint. Satisfied by services.MediaPackageService.
type LiveTeardown interface {
	TeardownLiveChannel(ctx context.Context, originEndpointID string) error
}

// ManifestFetcher resolves a manifest URL into renditions. Satisfied by
// services.ManifestService.
type ManifestFetcher interface {
	FetchRenditions(ctx context.Context, manifestURL string) ([]services.Rendition, error)
}

// Transcoder runs the external media tool. Satisfied by services.FFmpegService.
type Transcoder interface {
	ExtractSlice(ctx context.Context, playlistURL string, from, to int, destPath string) error
	Concat(ctx context.Context, listPath, destPath string) error
	Thumbnail(ctx context.Context, sourcePath, destPath string) error
}

// ObjectStore writes local files to durable storage. Satisfied by
// services.S3Service.
type ObjectStore interface {
	UploadFile(ctx context.Context, bucket, key, localPath, contentType string) error
	PutFile(ctx context.Context, bucket, key, localPath, contentType string) error
}
