// Package recorder wraps the external capture tool. One Proc supervises one
// ffmpeg process; the caller keeps the handle so it can terminate the
// process independently of waiting for natural completion.
package recorder

import (
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// terminateGrace is how long a graceful stop may take before escalating to
// SIGKILL.
const terminateGrace = time.Second

type ExitStatus struct {
	Code   int    // -1 when killed by a signal
	Output string // diagnostic tail of the tool's stderr
}

func (s ExitStatus) Success() bool { return s.Code == 0 }

type Capture struct {
	ffmpeg  string
	ffprobe string
	logger  *zap.Logger
}

func New(ffmpegBin, ffprobeBin string, logger *zap.Logger) *Capture {
	return &Capture{ffmpeg: ffmpegBin, ffprobe: ffprobeBin, logger: logger}
}

// Start launches the capture: video copied untouched, audio re-encoded to
// AAC, writing runs for the requested hh:mm:ss duration. It returns as soon
// as the process is up.
func (c *Capture) Start(sourceURL, durationText, destPath string) (*Proc, error) {
	cmd := exec.Command(c.ffmpeg,
		"-y",
		"-probesize", "10000000",
		"-analyzeduration", "15000000",
		"-i", sourceURL,
		"-map", "0:v", "-map", "0:a",
		"-c:v", "copy",
		"-c:a", "aac",
		"-t", durationText,
		destPath,
	)

	tail := newTailBuffer(4096)
	cmd.Stdout = tail
	cmd.Stderr = tail

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start capture: %w", err)
	}

	c.logger.Info("capture started",
		zap.String("url", sourceURL),
		zap.String("duration", durationText),
		zap.String("dest", destPath),
		zap.Int("pid", cmd.Process.Pid),
	)

	p := &Proc{cmd: cmd, tail: tail, done: make(chan struct{})}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

// Proc is a running (or finished) capture process.
type Proc struct {
	cmd     *exec.Cmd
	tail    *tailBuffer
	done    chan struct{}
	waitErr error

	termOnce sync.Once
}

// Wait blocks until the process exits and returns its status with the
// captured diagnostic output.
func (p *Proc) Wait() ExitStatus {
	<-p.done
	code := -1
	if p.cmd.ProcessState != nil {
		code = p.cmd.ProcessState.ExitCode()
	}
	return ExitStatus{Code: code, Output: p.tail.String()}
}

// Terminate sends a graceful stop signal and escalates to a forceful kill
// after a short grace interval. Calling it on an already-exited process, or
// more than once, is harmless.
func (p *Proc) Terminate() {
	p.termOnce.Do(func() {
		select {
		case <-p.done:
			return
		default:
		}

		// Signal errors are expected when the process raced us to exit.
		_ = p.cmd.Process.Signal(syscall.SIGTERM)

		select {
		case <-p.done:
		case <-time.After(terminateGrace):
			_ = p.cmd.Process.Kill()
		}
	})
}

// tailBuffer keeps the last cap bytes written, enough stderr for a useful
// diagnostic without holding hours of ffmpeg progress lines.
type tailBuffer struct {
	mu  sync.Mutex
	cap int
	buf []byte
}

func newTailBuffer(capacity int) *tailBuffer {
	return &tailBuffer{cap: capacity}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf = append(b.buf, p...)
	if len(b.buf) > b.cap {
		b.buf = b.buf[len(b.buf)-b.cap:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
