package services

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
)

// commandRunner executes the transcoder binary and returns whatever it wrote
// to stderr. Injectable for tests.
type commandRunner func(ctx context.Context, name string, args ...string) (stderr []byte, err error)

func defaultCommandRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var errBuf bytes.Buffer
	cmd.Stderr = &errBuf
	err := cmd.Run()
	return errBuf.Bytes(), err
}

// FFmpegService wraps the external transcoder. It always runs at errors-only
// verbosity, so any stderr output at all is treated as a failed invocation
// even when the process exits zero.
type FFmpegService struct {
	binary string
	run    commandRunner
}

func NewFFmpegService(binary string) *FFmpegService {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpegService{
		binary: binary,
		run:    defaultCommandRunner,
	}
}

// WithCommandRunner swaps the subprocess runner, for tests.
func (f *FFmpegService) WithCommandRunner(r commandRunner) {
	if r != nil {
		f.run = r
	}
}

// ExtractSlice copies the [from, to) time range of the source playlist into
// destPath without re-encoding. Timestamps are preserved and negative
// timestamps clamped so the slices concatenate cleanly later.
func (f *FFmpegService) ExtractSlice(ctx context.Context, playlistURL string, from, to int, destPath string) error {
	return f.invoke(ctx,
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", playlistURL,
		"-ss", strconv.Itoa(from),
		"-to", strconv.Itoa(to),
		"-codec", "copy",
		"-copyts",
		"-avoid_negative_ts", "make_zero",
		"-f", "mp4",
		destPath,
	)
}

// Concat stitches the chunks named by a concat demuxer list file into
// destPath, stream copy only.
func (f *FFmpegService) Concat(ctx context.Context, listPath, destPath string) error {
	return f.invoke(ctx,
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-codec", "copy",
		"-f", "mp4",
		destPath,
	)
}

// Thumbnail extracts a single still frame from the first second of the source.
func (f *FFmpegService) Thumbnail(ctx context.Context, sourcePath, destPath string) error {
	return f.invoke(ctx,
		"-hide_banner", "-loglevel", "error", "-y",
		"-ss", "1",
		"-i", sourcePath,
		"-frames:v", "1",
		destPath,
	)
}

func (f *FFmpegService) invoke(ctx context.Context, args ...string) error {
	stderr, err := f.run(ctx, f.binary, args...)
	if err != nil {
		return fmt.Errorf("%s failed: %w: %s", f.binary, err, bytes.TrimSpace(stderr))
	}
	if len(bytes.TrimSpace(stderr)) > 0 {
		return fmt.Errorf("%s reported errors: %s", f.binary, bytes.TrimSpace(stderr))
	}
	return nil
}
