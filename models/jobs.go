package models

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// HarvestStatusSucceeded is the only terminal status that triggers slicing.
const HarvestStatusSucceeded = "SUCCEEDED"

// HarvestNotification is the inbound trigger for the pipeline: a live
// recording has finished being packaged and its manifest is available.
type HarvestNotification struct {
	HarvestJobID     string             `json:"harvest_job_id"`
	Status           string             `json:"status"`
	OriginEndpointID string             `json:"origin_endpoint_id"`
	StartTime        string             `json:"start_time"`
	EndTime          string             `json:"end_time"`
	Destination      HarvestDestination `json:"destination"`
}

// HarvestDestination locates the packaged recording's manifest.
type HarvestDestination struct {
	Bucket      string `json:"bucket"`
	ManifestKey string `json:"manifest_key"`
}

// AssetRef decodes the "{environment}_{videoID}_{stamp}" convention used for
// harvest job identifiers. The video id is a UUID and never contains
// underscores, so a plain split is unambiguous.
func (n HarvestNotification) AssetRef() (videoID string, stamp int64, err error) {
	parts := strings.SplitN(n.HarvestJobID, "_", 3)
	if len(parts) != 3 {
		return "", 0, fmt.Errorf("malformed harvest job id %q", n.HarvestJobID)
	}
	stamp, err = strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("malformed stamp in harvest job id %q: %w", n.HarvestJobID, err)
	}
	return parts[1], stamp, nil
}

// Duration returns the recording length in whole seconds, floored.
func (n HarvestNotification) Duration() (int, error) {
	start, err := time.Parse(time.RFC3339, n.StartTime)
	if err != nil {
		return 0, fmt.Errorf("invalid start time %q: %w", n.StartTime, err)
	}
	end, err := time.Parse(time.RFC3339, n.EndTime)
	if err != nil {
		return 0, fmt.Errorf("invalid end time %q: %w", n.EndTime, err)
	}
	return int(end.Sub(start).Seconds()), nil
}

// ChunkJob describes one time slice of one resolution to transcode. Firing a
// ChunkJob never waits for any other chunk; completion is signalled solely by
// the chunk file appearing at ChunkPath.
type ChunkJob struct {
	VideoID     string `json:"video_id"`
	Stamp       int64  `json:"stamp"`
	Resolution  int    `json:"resolution"`
	PlaylistURL string `json:"playlist_url"`
	From        int    `json:"from"`
	To          int    `json:"to"`
	ChunkPath   string `json:"chunk_path"`
	ListPath    string `json:"list_path"`
	PlanPath    string `json:"plan_path"`
	Bucket      string `json:"bucket"`
}

// ResolutionJob asks for one resolution's chunks to be stitched into its
// deliverable.
type ResolutionJob struct {
	VideoID    string `json:"video_id"`
	Stamp      int64  `json:"stamp"`
	Resolution int    `json:"resolution"`
	ListPath   string `json:"list_path"`
	PlanPath   string `json:"plan_path"`
	Bucket     string `json:"bucket"`
}

// UploadTarget pairs one local file with its destination object key.
type UploadTarget struct {
	VideoPath     string `json:"video_path"`
	VideoKey      string `json:"video_key"`
	ThumbnailPath string `json:"thumbnail_path"`
	ThumbnailKey  string `json:"thumbnail_key"`
}

// UploadJob carries every resolution's deliverable and thumbnail to durable
// storage, keyed by resolution height.
type UploadJob struct {
	VideoID string               `json:"video_id"`
	Stamp   int64                `json:"stamp"`
	Bucket  string               `json:"bucket"`
	WorkDir string               `json:"work_dir"`
	Targets map[int]UploadTarget `json:"targets"`
}

// Resolutions returns the job's resolution heights in ascending order.
func (j UploadJob) Resolutions() []int {
	out := make([]int, 0, len(j.Targets))
	for r := range j.Targets {
		out = append(out, r)
	}
	sort.Ints(out)
	return out
}
