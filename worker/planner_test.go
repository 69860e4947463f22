package worker

import (
	"context"
	"os"
	"testing"

	"github.com/openfun/marsha-sub002/config"
	"github.com/openfun/marsha-sub002/models"
	"github.com/openfun/marsha-sub002/services"
	"github.com/openfun/marsha-sub002/workdir"
)

func plannerConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		WorkRoot:      t.TempDir(),
		ChunkDuration: 60,
		S3Region:      "eu-west-1",
	}
}

func harvestNotification() models.HarvestNotification {
	return models.HarvestNotification{
		HarvestJobID:     "production_video-1_1737000000",
		Status:           models.HarvestStatusSucceeded,
		OriginEndpointID: "endpoint-1",
		StartTime:        "2026-01-16T10:00:00Z",
		EndTime:          "2026-01-16T10:01:30Z",
		Destination: models.HarvestDestination{
			Bucket:      "vod-bucket",
			ManifestKey: "out/v1/abc/index.m3u8",
		},
	}
}

// A 90 second recording with 60 second chunks and two renditions must fan out
// two chunk jobs per rendition: [0,60) and [60,90).
func TestPlanner_FansOutChunkJobs(t *testing.T) {
	t.Parallel()

	cfg := plannerConfig(t)
	teardown := &fakeTeardown{}
	manifests := &fakeManifests{renditions: []services.Rendition{
		{Height: 540, PlaylistURL: "https://cdn.example.com/540.m3u8"},
		{Height: 720, PlaylistURL: "https://cdn.example.com/720.m3u8"},
	}}
	dispatcher := &fakeDispatcher{}
	planner := NewPlanner(cfg, teardown, manifests, dispatcher)

	outcome, err := planner.Handle(context.Background(), harvestNotification())
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if outcome != OutcomePlanned {
		t.Fatalf("outcome = %q", outcome)
	}

	if len(teardown.calls) != 1 || teardown.calls[0] != "endpoint-1" {
		t.Fatalf("teardown calls = %v", teardown.calls)
	}
	if len(manifests.urls) != 1 ||
		manifests.urls[0] != "https://vod-bucket.s3.eu-west-1.amazonaws.com/out/v1/abc/index.m3u8" {
		t.Fatalf("manifest urls = %v", manifests.urls)
	}

	if len(dispatcher.chunkJobs) != 4 {
		t.Fatalf("dispatched %d chunk jobs, want 4", len(dispatcher.chunkJobs))
	}

	perResolution := map[int][]models.ChunkJob{}
	for _, job := range dispatcher.chunkJobs {
		perResolution[job.Resolution] = append(perResolution[job.Resolution], job)
	}
	for _, resolution := range []int{540, 720} {
		jobs := perResolution[resolution]
		if len(jobs) != 2 {
			t.Fatalf("resolution %d: %d jobs, want 2", resolution, len(jobs))
		}
		if jobs[0].From != 0 || jobs[0].To != 60 || jobs[1].From != 60 || jobs[1].To != 90 {
			t.Fatalf("resolution %d: spans = [%d,%d) [%d,%d)",
				resolution, jobs[0].From, jobs[0].To, jobs[1].From, jobs[1].To)
		}
		if jobs[0].VideoID != "video-1" || jobs[0].Stamp != 1737000000 {
			t.Fatalf("resolution %d: identifiers = %q/%d", resolution, jobs[0].VideoID, jobs[0].Stamp)
		}
		if jobs[0].Bucket != "vod-bucket" {
			t.Fatalf("resolution %d: bucket = %q", resolution, jobs[0].Bucket)
		}
	}

	// Every dispatched chunk path is already listed in its chunk list file.
	for _, job := range dispatcher.chunkJobs {
		listed, err := workdir.ReadChunkList(job.ListPath)
		if err != nil {
			t.Fatalf("chunk list unreadable at dispatch time: %v", err)
		}
		found := false
		for _, p := range listed {
			if p == job.ChunkPath {
				found = true
			}
		}
		if !found {
			t.Fatalf("chunk path %s dispatched without a list entry", job.ChunkPath)
		}
	}

	// The plan file names both resolutions' chunk lists.
	assetDir := workdir.AssetDir(cfg.WorkRoot, "video-1")
	resolutions, err := workdir.PlannedResolutions(workdir.PlanPath(assetDir))
	if err != nil {
		t.Fatal(err)
	}
	if len(resolutions) != 2 || resolutions[0] != 540 || resolutions[1] != 720 {
		t.Fatalf("planned resolutions = %v", resolutions)
	}
}

func TestPlanner_RejectsNonSucceededStatus(t *testing.T) {
	t.Parallel()

	cfg := plannerConfig(t)
	teardown := &fakeTeardown{}
	dispatcher := &fakeDispatcher{}
	planner := NewPlanner(cfg, teardown, &fakeManifests{}, dispatcher)

	n := harvestNotification()
	n.Status = "IN_PROGRESS"

	if _, err := planner.Handle(context.Background(), n); err == nil {
		t.Fatal("want error for non-terminal status")
	}
	if len(teardown.calls) != 0 {
		t.Fatal("teardown attempted despite precondition failure")
	}
	if len(dispatcher.chunkJobs) != 0 {
		t.Fatal("chunk jobs dispatched despite precondition failure")
	}
}

func TestPlanner_RejectsEndBeforeStart(t *testing.T) {
	t.Parallel()

	cfg := plannerConfig(t)
	teardown := &fakeTeardown{}
	dispatcher := &fakeDispatcher{}
	planner := NewPlanner(cfg, teardown, &fakeManifests{}, dispatcher)

	n := harvestNotification()
	n.StartTime = "2026-01-16T10:01:30Z"
	n.EndTime = "2026-01-16T10:00:00Z"

	if _, err := planner.Handle(context.Background(), n); err == nil {
		t.Fatal("want error when the recording ends before it starts")
	}
	if len(teardown.calls) != 0 {
		t.Fatal("teardown attempted despite precondition failure")
	}
	if len(dispatcher.chunkJobs) != 0 {
		t.Fatal("chunk jobs dispatched despite precondition failure")
	}
	if _, err := os.Stat(workdir.AssetDir(cfg.WorkRoot, "video-1")); !os.IsNotExist(err) {
		t.Fatal("working directory created despite precondition failure")
	}
}

func TestPlanner_DiscardsEarlierAttempt(t *testing.T) {
	t.Parallel()

	cfg := plannerConfig(t)
	assetDir := workdir.AssetDir(cfg.WorkRoot, "video-1")
	if err := os.MkdirAll(assetDir, 0o755); err != nil {
		t.Fatal(err)
	}
	stale := assetDir + "/stale.mp4"
	if err := os.WriteFile(stale, []byte("partial"), 0o644); err != nil {
		t.Fatal(err)
	}

	manifests := &fakeManifests{renditions: []services.Rendition{
		{Height: 720, PlaylistURL: "https://cdn.example.com/720.m3u8"},
	}}
	planner := NewPlanner(cfg, &fakeTeardown{}, manifests, &fakeDispatcher{})

	if _, err := planner.Handle(context.Background(), harvestNotification()); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if workdir.Exists(stale) {
		t.Fatal("stale file from a previous attempt survived planning")
	}
}

// An exact multiple of the chunk duration must not plan a trailing empty
// chunk.
func TestPlanner_ExactMultipleDuration(t *testing.T) {
	t.Parallel()

	cfg := plannerConfig(t)
	manifests := &fakeManifests{renditions: []services.Rendition{
		{Height: 720, PlaylistURL: "https://cdn.example.com/720.m3u8"},
	}}
	dispatcher := &fakeDispatcher{}
	planner := NewPlanner(cfg, &fakeTeardown{}, manifests, dispatcher)

	n := harvestNotification()
	n.EndTime = "2026-01-16T10:02:00Z" // 120 seconds

	if _, err := planner.Handle(context.Background(), n); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if len(dispatcher.chunkJobs) != 2 {
		t.Fatalf("dispatched %d chunk jobs, want 2", len(dispatcher.chunkJobs))
	}
	last := dispatcher.chunkJobs[1]
	if last.From != 60 || last.To != 120 {
		t.Fatalf("last span = [%d,%d), want [60,120)", last.From, last.To)
	}
}
