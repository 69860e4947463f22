// Package workdir owns the on-disk layout shared by the pipeline stages.
//
// The working directory is the pipeline's only coordination mechanism: every
// stage decides what to do next by checking which expected files exist. All
// writers build output under a temporary name and publish it with a single
// atomic rename, so a reader never observes a partial file.
package workdir

import (
	"bufio"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	planFileName = "resolutions.txt"
	listFileName = "list.txt"
)

// Span is one chunk's half-open time range [From, To) in seconds.
type Span struct {
	From int
	To   int
}

// ChunkPlan splits a duration into contiguous spans of chunkDuration seconds,
// the last span absorbing the remainder. An exact multiple yields no trailing
// empty span; a zero duration yields a single [0, 0) span so the rest of the
// pipeline still runs to completion.
func ChunkPlan(duration, chunkDuration int) []Span {
	if chunkDuration <= 0 || duration < 0 {
		return nil
	}
	count := duration / chunkDuration
	if duration%chunkDuration != 0 || count == 0 {
		count++
	}
	spans := make([]Span, 0, count)
	for i := 0; i < count; i++ {
		from := i * chunkDuration
		to := from + chunkDuration
		if to > duration || i == count-1 {
			to = duration
		}
		spans = append(spans, Span{From: from, To: to})
	}
	return spans
}

// AssetDir returns the working directory for one video.
func AssetDir(root, videoID string) string {
	return filepath.Join(root, videoID)
}

// PlanPath returns the resolution plan file: one chunk-list path per line,
// written once by the planner and read-only afterwards.
func PlanPath(assetDir string) string {
	return filepath.Join(assetDir, planFileName)
}

// ResolutionDir returns the per-resolution subdirectory.
func ResolutionDir(assetDir string, resolution int) string {
	return filepath.Join(assetDir, strconv.Itoa(resolution))
}

// ListPath returns the resolution's chunk list file. The file doubles as the
// ffmpeg concat demuxer input, so each line reads "file '<chunk path>'".
func ListPath(resolutionDir string) string {
	return filepath.Join(resolutionDir, listFileName)
}

// ChunkPath returns the expected path of chunk n for a resolution.
func ChunkPath(resolutionDir string, n int) string {
	return filepath.Join(resolutionDir, fmt.Sprintf("fragment%d.mp4", n))
}

// DeliverablePath returns the stitched output path for a resolution.
func DeliverablePath(resolutionDir string, stamp int64, resolution int) string {
	return filepath.Join(resolutionDir, fmt.Sprintf("%d_%d.mp4", stamp, resolution))
}

// ThumbnailPath returns the still-frame path for a resolution.
func ThumbnailPath(resolutionDir string, stamp int64, resolution int) string {
	return filepath.Join(resolutionDir, fmt.Sprintf("%d_%d.0000000.jpg", stamp, resolution))
}

// TempPath derives a scratch name for finalPath in the same directory, so the
// eventual os.Rename stays on one filesystem and is atomic. The name is a hash
// of the final path: deterministic across retries of the same job, distinct
// for distinct outputs, and never colliding with a final name.
func TempPath(finalPath string) string {
	sum := md5.Sum([]byte(finalPath))
	return filepath.Join(filepath.Dir(finalPath), hex.EncodeToString(sum[:])+".tmp")
}

// Publish atomically moves a completed temporary file to its final path.
func Publish(tempPath, finalPath string) error {
	if err := os.Rename(tempPath, finalPath); err != nil {
		return fmt.Errorf("failed to publish %s: %w", finalPath, err)
	}
	return nil
}

// Recreate deletes any previous attempt's working directory for the video and
// creates a fresh one. Planning is the single restart-from-scratch point of
// the pipeline; partial state from a failed earlier run is discarded here.
func Recreate(root, videoID string) (string, error) {
	dir := AssetDir(root, videoID)
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("failed to clear working directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create working directory: %w", err)
	}
	return dir, nil
}

// WritePlan writes the resolution plan file, one chunk-list path per line.
func WritePlan(planPath string, listPaths []string) error {
	var b strings.Builder
	for _, p := range listPaths {
		b.WriteString(p)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(planPath, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write resolution plan: %w", err)
	}
	return nil
}

// WriteChunkList writes a resolution's chunk list in concat demuxer syntax.
// Every listed path is expected to appear later; the list itself is complete
// before any chunk job fires, so a completion scan never runs against a
// partially written list.
func WriteChunkList(listPath string, chunkPaths []string) error {
	var b strings.Builder
	for _, p := range chunkPaths {
		fmt.Fprintf(&b, "file '%s'\n", p)
	}
	if err := os.WriteFile(listPath, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write chunk list: %w", err)
	}
	return nil
}

// ReadPlan returns the chunk-list paths recorded in the plan file.
func ReadPlan(planPath string) ([]string, error) {
	return readLines(planPath)
}

// ReadChunkList returns the chunk paths recorded in a chunk list file,
// stripped of the concat demuxer "file '...'" wrapping.
func ReadChunkList(listPath string) ([]string, error) {
	lines, err := readLines(listPath)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(lines))
	for _, line := range lines {
		p := strings.TrimPrefix(line, "file ")
		p = strings.Trim(p, "'")
		paths = append(paths, p)
	}
	return paths, nil
}

// MissingChunks reports which paths in a resolution's chunk list do not exist
// yet. An empty result means the resolution is ready to stitch.
func MissingChunks(listPath string) ([]string, error) {
	paths, err := ReadChunkList(listPath)
	if err != nil {
		return nil, err
	}
	var missing []string
	for _, p := range paths {
		if !Exists(p) {
			missing = append(missing, p)
		}
	}
	return missing, nil
}

// MissingDeliverables reports which resolutions named by the plan file do not
// have a deliverable yet. An empty result means the asset is ready to upload.
// The scan is a snapshot: two stitchers finishing together may both see an
// empty result, which is why the downstream stage must tolerate duplicates.
func MissingDeliverables(planPath string, stamp int64) ([]int, error) {
	listPaths, err := ReadPlan(planPath)
	if err != nil {
		return nil, err
	}
	var missing []int
	for _, lp := range listPaths {
		resolutionDir := filepath.Dir(lp)
		resolution, err := strconv.Atoi(filepath.Base(resolutionDir))
		if err != nil {
			return nil, fmt.Errorf("unexpected resolution directory %q: %w", resolutionDir, err)
		}
		if !Exists(DeliverablePath(resolutionDir, stamp, resolution)) {
			missing = append(missing, resolution)
		}
	}
	return missing, nil
}

// PlannedResolutions returns the resolution heights named by the plan file,
// in plan order.
func PlannedResolutions(planPath string) ([]int, error) {
	listPaths, err := ReadPlan(planPath)
	if err != nil {
		return nil, err
	}
	resolutions := make([]int, 0, len(listPaths))
	for _, lp := range listPaths {
		resolution, err := strconv.Atoi(filepath.Base(filepath.Dir(lp)))
		if err != nil {
			return nil, fmt.Errorf("unexpected chunk list path %q: %w", lp, err)
		}
		resolutions = append(resolutions, resolution)
	}
	return resolutions, nil
}

// Exists reports whether a path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return lines, nil
}
