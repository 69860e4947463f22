package worker

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/openfun/marsha-sub002/models"
	"github.com/openfun/marsha-sub002/services"
)

type fakeDispatcher struct {
	mu             sync.Mutex
	chunkJobs      []models.ChunkJob
	resolutionJobs []models.ResolutionJob
	uploadJobs     []models.UploadJob
}

func (d *fakeDispatcher) DispatchChunkJob(_ context.Context, job models.ChunkJob) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chunkJobs = append(d.chunkJobs, job)
	return nil
}

func (d *fakeDispatcher) DispatchResolutionJob(_ context.Context, job models.ResolutionJob) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resolutionJobs = append(d.resolutionJobs, job)
	return nil
}

func (d *fakeDispatcher) DispatchUploadJob(_ context.Context, job models.UploadJob) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.uploadJobs = append(d.uploadJobs, job)
	return nil
}

// fakeTranscoder writes a marker file wherever the real tool would write its
// output, and counts invocations per operation.
type fakeTranscoder struct {
	extractCalls   int
	concatCalls    int
	thumbnailCalls int
	extractErr     error
	concatErr      error
}

func (f *fakeTranscoder) ExtractSlice(_ context.Context, _ string, from, to int, destPath string) error {
	f.extractCalls++
	if f.extractErr != nil {
		return f.extractErr
	}
	return os.WriteFile(destPath, []byte(fmt.Sprintf("slice %d-%d", from, to)), 0o644)
}

func (f *fakeTranscoder) Concat(_ context.Context, _ string, destPath string) error {
	f.concatCalls++
	if f.concatErr != nil {
		return f.concatErr
	}
	return os.WriteFile(destPath, []byte("stitched"), 0o644)
}

func (f *fakeTranscoder) Thumbnail(_ context.Context, _ string, destPath string) error {
	f.thumbnailCalls++
	return os.WriteFile(destPath, []byte("jpeg"), 0o644)
}

type fakeTeardown struct {
	calls []string
	err   error
}

func (f *fakeTeardown) TeardownLiveChannel(_ context.Context, originEndpointID string) error {
	f.calls = append(f.calls, originEndpointID)
	return f.err
}

type fakeManifests struct {
	renditions []services.Rendition
	urls       []string
}

func (f *fakeManifests) FetchRenditions(_ context.Context, manifestURL string) ([]services.Rendition, error) {
	f.urls = append(f.urls, manifestURL)
	return f.renditions, nil
}

type fakeStore struct {
	mu      sync.Mutex
	uploads map[string]string // key -> local path
	puts    map[string]string
	failKey string
}

func newFakeStore() *fakeStore {
	return &fakeStore{uploads: map[string]string{}, puts: map[string]string{}}
}

func (f *fakeStore) UploadFile(_ context.Context, _, key, localPath, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if key == f.failKey {
		return fmt.Errorf("upload of %s failed", key)
	}
	// The real store streams the file; surface a missing source the same way.
	if _, err := os.Stat(localPath); err != nil {
		return err
	}
	f.uploads[key] = localPath
	return nil
}

func (f *fakeStore) PutFile(_ context.Context, _, key, localPath, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if key == f.failKey {
		return fmt.Errorf("put of %s failed", key)
	}
	if _, err := os.Stat(localPath); err != nil {
		return err
	}
	f.puts[key] = localPath
	return nil
}

type publishedState struct {
	videoID     string
	stamp       int64
	state       string
	resolutions []int
}

type fakePublisher struct {
	published []publishedState
}

func (f *fakePublisher) PublishState(_ context.Context, videoID string, stamp int64, state string, resolutions []int) error {
	f.published = append(f.published, publishedState{
		videoID:     videoID,
		stamp:       stamp,
		state:       state,
		resolutions: resolutions,
	})
	return nil
}
