package pipeline

import (
	"context"

	"recorderbot/internal/recorder"
)

// recorderCapturer adapts *recorder.Capture to the Capturer interface.
type recorderCapturer struct {
	c *recorder.Capture
}

func NewRecorderCapturer(c *recorder.Capture) Capturer {
	return recorderCapturer{c: c}
}

func (r recorderCapturer) Start(sourceURL, durationText, destPath string) (CaptureProc, error) {
	proc, err := r.c.Start(sourceURL, durationText, destPath)
	if err != nil {
		return nil, err
	}
	return proc, nil
}

func (r recorderCapturer) WriteTitleTag(ctx context.Context, path, title string) error {
	return r.c.WriteTitleTag(ctx, path, title)
}

func (r recorderCapturer) ExtractThumbnail(ctx context.Context, videoPath, thumbPath string) error {
	return r.c.ExtractThumbnail(ctx, videoPath, thumbPath)
}

func (r recorderCapturer) ProbeDuration(ctx context.Context, path string) (int, error) {
	return r.c.ProbeDuration(ctx, path)
}
