package processing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Inspector extracts the duration of a stored video and writes a thumbnail
// for it. It is invoked once per job and may fail arbitrarily.
type Inspector interface {
	Inspect(ctx context.Context, videoPath, thumbnailPath string) (durationSeconds float64, err error)
}

// FFmpegInspector shells out to ffprobe for the duration and ffmpeg for a
// single-frame JPEG thumbnail.
type FFmpegInspector struct {
	FFprobePath     string
	FFmpegPath      string
	ThumbnailOffset time.Duration
	ThumbnailWidth  int
}

func NewFFmpegInspector(ffprobePath, ffmpegPath string, offset time.Duration) *FFmpegInspector {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegInspector{
		FFprobePath:     ffprobePath,
		FFmpegPath:      ffmpegPath,
		ThumbnailOffset: offset,
		ThumbnailWidth:  640,
	}
}

func (f *FFmpegInspector) Inspect(ctx context.Context, videoPath, thumbnailPath string) (float64, error) {
	duration, err := f.probeDuration(ctx, videoPath)
	if err != nil {
		return 0, err
	}

	// Short clips get their first frame.
	offset := f.ThumbnailOffset
	if offset.Seconds() >= duration {
		offset = 0
	}
	if err := f.thumbnail(ctx, videoPath, thumbnailPath, offset); err != nil {
		return 0, err
	}

	return duration, nil
}

func (f *FFmpegInspector) probeDuration(ctx context.Context, videoPath string) (float64, error) {
	cmd := exec.CommandContext(ctx, f.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w: %s", err, lastLine(stderr.String()))
	}

	return ParseDuration(string(out))
}

// ParseDuration reads the duration line printed by ffprobe.
func ParseDuration(out string) (float64, error) {
	raw := strings.TrimSpace(out)
	if raw == "" || raw == "N/A" {
		return 0, errors.New("ffprobe: no duration reported")
	}
	d, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe: invalid duration %q", raw)
	}
	if d < 0 {
		return 0, fmt.Errorf("ffprobe: negative duration %v", d)
	}
	return d, nil
}

func (f *FFmpegInspector) thumbnail(ctx context.Context, videoPath, thumbnailPath string, offset time.Duration) error {
	cmd := exec.CommandContext(ctx, f.FFmpegPath,
		"-y",
		"-ss", strconv.FormatFloat(offset.Seconds(), 'f', 3, 64),
		"-i", videoPath,
		"-vframes", "1",
		"-vf", fmt.Sprintf("scale=%d:-1", f.ThumbnailWidth),
		"-q:v", "2",
		thumbnailPath,
	)

	out, err := cmd.CombinedOutput()
	if err != nil {
		os.Remove(thumbnailPath)
		return fmt.Errorf("ffmpeg thumbnail: %w: %s", err, lastLine(string(out)))
	}
	if info, err := os.Stat(thumbnailPath); err != nil || info.Size() == 0 {
		return errors.New("ffmpeg thumbnail: no frame written")
	}
	return nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return s
}
