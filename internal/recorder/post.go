package recorder

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

const thumbMaxWidth = 320

// WriteTitleTag rewrites the container's title tag without re-encoding. The
// rewrite goes to a temporary file and only replaces the original after the
// tool reports success.
func (c *Capture) WriteTitleTag(ctx context.Context, path, title string) error {
	tmp := path + ".tmp.mkv"

	code, out, err := c.run(ctx, c.ffmpeg,
		"-y", "-i", path,
		"-map", "0",
		"-metadata", "title="+title,
		"-c", "copy",
		tmp,
	)
	if err != nil || code != 0 {
		_ = os.Remove(tmp)
		return fmt.Errorf("metadata rewrite failed (exit %d): %s", code, out)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace tagged file: %w", err)
	}
	return nil
}

// ExtractThumbnail samples one frame at a pseudo-random offset and downsizes
// it to a JPEG no wider than 320px. The offset stays at least 5 seconds away
// from either end when the media is longer than 10 seconds; otherwise the
// first decodable frame is used.
func (c *Capture) ExtractThumbnail(ctx context.Context, videoPath, thumbPath string) error {
	dur, err := c.ProbeDuration(ctx, videoPath)
	if err != nil {
		return err
	}

	offset := 1
	if dur > 10 {
		offset = 5 + rand.Intn(dur-9) // [5, dur-5]
	}

	code, out, err := c.run(ctx, c.ffmpeg,
		"-y",
		"-ss", strconv.Itoa(offset),
		"-i", videoPath,
		"-vframes", "1",
		"-q:v", "2",
		thumbPath,
	)
	if err != nil || code != 0 {
		return fmt.Errorf("thumbnail extraction failed (exit %d): %s", code, out)
	}

	src, err := imaging.Open(thumbPath)
	if err != nil {
		return fmt.Errorf("open extracted frame: %w", err)
	}
	if src.Bounds().Dx() > thumbMaxWidth {
		src = imaging.Resize(src, thumbMaxWidth, 0, imaging.Lanczos)
	}
	if err := imaging.Save(src, thumbPath, imaging.JPEGQuality(85)); err != nil {
		return fmt.Errorf("save thumbnail: %w", err)
	}

	c.logger.Debug("thumbnail extracted",
		zap.String("video", videoPath),
		zap.Int("offset", offset),
	)
	return nil
}

// ProbeDuration returns the media's total duration in whole seconds.
func (c *Capture) ProbeDuration(ctx context.Context, path string) (int, error) {
	code, out, err := c.run(ctx, c.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil || code != 0 {
		return 0, fmt.Errorf("probe duration (exit %d): %s", code, out)
	}

	secs, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	if err != nil {
		return 0, fmt.Errorf("parse probed duration %q: %w", out, err)
	}
	return int(secs), nil
}

func (c *Capture) run(ctx context.Context, name string, args ...string) (int, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()

	code := 0
	if cmd.ProcessState != nil {
		code = cmd.ProcessState.ExitCode()
	}
	if err != nil {
		if _, isExit := err.(*exec.ExitError); isExit {
			// Non-zero exit: the code and output carry the diagnosis.
			return code, string(out), nil
		}
		return -1, string(out), err
	}
	return code, string(out), nil
}
