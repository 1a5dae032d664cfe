// Package pipeline drives one recording task end-to-end: admission, capture,
// post-processing, delivery and the guaranteed terminal cleanup. It also
// implements the cancellation protocol that may pre-empt a task mid-flight.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"recorderbot/internal/models"
	"recorderbot/internal/recorder"
	"recorderbot/internal/registry"
)

// failureText is the single generic message a requester sees for any
// pipeline-stage failure; the diagnostic detail stays in the logs.
const failureText = "❌ This URL is not supported for recording or has expired. Please try a different URL."

// CaptureProc is the running external process as the pipeline sees it.
type CaptureProc interface {
	models.ProcessHandle
	Wait() recorder.ExitStatus
}

// Capturer abstracts the external capture tool so the pipeline can be
// exercised without ffmpeg on the machine.
type Capturer interface {
	Start(sourceURL, durationText, destPath string) (CaptureProc, error)
	WriteTitleTag(ctx context.Context, path, title string) error
	ExtractThumbnail(ctx context.Context, videoPath, thumbPath string) error
	ProbeDuration(ctx context.Context, path string) (int, error)
}

// Messenger delivers artifacts and text back through the front-end.
type Messenger interface {
	SendText(chatID int64, text string) error
	SendVideo(chatID int64, videoPath, thumbPath, caption string) error
}

// Verifier answers the admission-time verification check.
type Verifier interface {
	IsVerified(ctx context.Context, userID int64) (bool, error)
}

// Options carries the pipeline's configuration slice.
type Options struct {
	DownloadRoot   string
	StoreChannelID int64 // 0 disables archival delivery
	MaxDuration    time.Duration
	DefaultName    string
	TitleTag       string
	Location       *time.Location
}

type Runner struct {
	reg      *registry.Registry
	capturer Capturer
	msg      Messenger
	verifier Verifier
	opts     Options
	logger   *zap.Logger
}

func NewRunner(reg *registry.Registry, capturer Capturer, msg Messenger, verifier Verifier, opts Options, logger *zap.Logger) *Runner {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Runner{
		reg:      reg,
		capturer: capturer,
		msg:      msg,
		verifier: verifier,
		opts:     opts,
		logger:   logger,
	}
}

// Request is one admission attempt.
type Request struct {
	UserID     int64
	ChatID     int64
	Username   string
	URL        string
	Timestamp  string // hh:mm:ss
	Filename   string // raw, may be empty
	Privileged bool
}

// Admit runs every admission check and, only when all pass, creates the
// task and its working directory. A rejected request allocates nothing.
func (r *Runner) Admit(ctx context.Context, req Request) (*models.Task, error) {
	dur, err := models.ParseDuration(req.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}

	if !req.Privileged && r.opts.MaxDuration > 0 && dur > r.opts.MaxDuration {
		return nil, &DurationCapError{Requested: dur, Max: r.opts.MaxDuration}
	}

	if !req.Privileged && r.verifier != nil {
		ok, err := r.verifier.IsVerified(ctx, req.UserID)
		if err != nil {
			return nil, fmt.Errorf("verification check: %w", err)
		}
		if !ok {
			return nil, ErrUnverified
		}
	}

	name := models.SanitizeFilename(req.Filename)
	if name == "" {
		name = r.opts.DefaultName
	}

	now := time.Now().In(r.opts.Location)
	workDir := filepath.Join(r.opts.DownloadRoot, strconv.FormatInt(now.UnixNano(), 10))

	task := &models.Task{
		UserID:       req.UserID,
		ChatID:       req.ChatID,
		Username:     req.Username,
		SourceURL:    req.URL,
		Filename:     name,
		Duration:     dur,
		DurationText: req.Timestamp,
		CreatedAt:    now,
		StartedAt:    now,
		ExpectedEnd:  now.Add(dur),
		WorkDir:      workDir,
		OutputPath:   filepath.Join(workDir, name+".mkv"),
	}

	id, err := r.reg.Create(task)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(workDir, 0o755); err != nil {
		r.reg.Remove(id)
		return nil, fmt.Errorf("create working directory: %w", err)
	}
	return task, nil
}

// Run drives an admitted task to a terminal phase. Whatever happens after
// admission, the registry entry and the working directory are gone by the
// time this returns — unless a cancellation won the race, in which case the
// canceller owns the teardown and Run leaves everything alone.
func (r *Runner) Run(ctx context.Context, task *models.Task) {
	log := r.logger.With(zap.Int64("task_id", task.ID), zap.Int64("user_id", task.UserID))

	// The archival delivery is detached from the task's outcome, but the
	// working directory must outlive the attempt.
	var archival sync.WaitGroup

	cancelled := false
	defer func() {
		if cancelled {
			log.Info("task pre-empted by cancellation")
			return
		}
		archival.Wait()
		r.reg.Remove(task.ID)
		if err := os.RemoveAll(task.WorkDir); err != nil {
			log.Warn("working directory cleanup failed", zap.Error(err))
		}
	}()

	proc, err := r.capturer.Start(task.SourceURL, task.DurationText, task.OutputPath)
	if err != nil {
		log.Error("capture start failed", zap.Error(err))
		r.fail(task)
		return
	}

	if !r.reg.Attach(task.ID, proc) {
		// Cancelled between admission and process start. The canceller
		// never saw the handle, so the process is still ours to stop,
		// but the registry entry and directory are already its problem.
		proc.Terminate()
		proc.Wait()
		cancelled = true
		return
	}

	status := proc.Wait()

	// Whichever side removes the task from the registry first decides the
	// capture's outcome; losing the transition means a cancellation owns
	// this task now.
	if !r.reg.Transition(task.ID, models.PhaseTagging) {
		cancelled = true
		return
	}

	if !status.Success() {
		log.Error("capture process failed",
			zap.Int("exit_code", status.Code),
			zap.String("output", status.Output),
		)
		r.fail(task)
		return
	}

	if err := r.capturer.WriteTitleTag(ctx, task.OutputPath, r.opts.TitleTag); err != nil {
		log.Error("metadata tagging failed", zap.Error(err))
		r.fail(task)
		return
	}

	if !r.reg.Transition(task.ID, models.PhaseThumbnailing) {
		cancelled = true
		return
	}

	thumbPath := filepath.Join(task.WorkDir, "thumb.jpg")
	if err := r.capturer.ExtractThumbnail(ctx, task.OutputPath, thumbPath); err != nil {
		// Non-fatal: the recording is delivered without a thumbnail.
		log.Warn("thumbnail extraction failed", zap.Error(err))
		thumbPath = ""
	}

	if !r.reg.Transition(task.ID, models.PhaseDelivering) {
		cancelled = true
		return
	}

	caption := r.deliveryCaption(ctx, task)

	if r.opts.StoreChannelID != 0 {
		archival.Add(1)
		go func() {
			defer archival.Done()
			if err := r.msg.SendVideo(r.opts.StoreChannelID, task.OutputPath, thumbPath, r.archiveCaption(task)); err != nil {
				log.Warn("archival delivery failed", zap.Error(err))
			}
		}()
	}

	if err := r.msg.SendVideo(task.ChatID, task.OutputPath, thumbPath, caption); err != nil {
		// The artifact exists on disk and the cleanup still runs; the
		// task is done either way.
		log.Error("primary delivery failed", zap.Error(err))
	}

	if !r.reg.Transition(task.ID, models.PhaseDone) {
		cancelled = true
		return
	}
	log.Info("task done", zap.String("filename", task.Filename))
}

// fail moves the task to the error phase and tells the requester with one
// generic message. The deferred cleanup in Run does the rest.
func (r *Runner) fail(task *models.Task) {
	r.reg.Transition(task.ID, models.PhaseError)
	if err := r.msg.SendText(task.ChatID, failureText); err != nil {
		r.logger.Warn("failure notice undeliverable",
			zap.Int64("task_id", task.ID), zap.Error(err))
	}
}

// CancelOutcome reports what a successful cancellation did.
type CancelOutcome struct {
	Task      models.Task
	Delivered bool // partial artifact was sent to the requester's chat
}

// Cancel pre-empts a task. The registry removal comes first, so concurrent
// admission and listing never observe the task again; then the capture
// process is stopped and any partial output is best-effort delivered before
// the working directory goes away.
//
// An admin may cancel anyone's task; a regular user only their own, and
// ownership is re-checked against the registry rather than trusted from the
// supplied task ID.
func (r *Runner) Cancel(taskID, requesterID int64, admin bool) (CancelOutcome, error) {
	current, ok := r.reg.Get(taskID)
	if !ok {
		return CancelOutcome{}, registry.ErrNotFound
	}
	if !admin && current.UserID != requesterID {
		return CancelOutcome{}, ErrUnauthorized
	}

	task, ok := r.reg.RemoveActive(taskID)
	if !ok {
		// The pipeline finished (or moved past capture) before our
		// removal: the cancellation lost the race, benign outcome.
		return CancelOutcome{}, registry.ErrNotFound
	}
	task.Phase = models.PhaseCancelled

	if task.Process != nil {
		task.Process.Terminate()
	}

	delivered := false
	if task.OutputPath != "" {
		if _, err := os.Stat(task.OutputPath); err == nil {
			if err := r.msg.SendVideo(task.ChatID, task.OutputPath, "", r.cancelCaption(task)); err != nil {
				r.logger.Warn("partial artifact undeliverable",
					zap.Int64("task_id", task.ID), zap.Error(err))
			} else {
				delivered = true
			}
		}
	}

	if err := os.RemoveAll(task.WorkDir); err != nil {
		r.logger.Warn("cancelled task cleanup failed",
			zap.Int64("task_id", task.ID), zap.Error(err))
	}

	r.logger.Info("task cancelled",
		zap.Int64("task_id", task.ID),
		zap.Int64("requester_id", requesterID),
		zap.Bool("partial_delivered", delivered),
	)
	return CancelOutcome{Task: task, Delivered: delivered}, nil
}

// CancelAllForUser cancels a snapshot of the user's current tasks one by
// one and reports how many succeeded.
func (r *Runner) CancelAllForUser(userID, requesterID int64, admin bool) int {
	count := 0
	for _, task := range r.reg.ListForUser(userID) {
		if _, err := r.Cancel(task.ID, requesterID, admin); err == nil {
			count++
		}
	}
	return count
}

func (r *Runner) deliveryCaption(ctx context.Context, task *models.Task) string {
	sizeMB := 0.0
	if fi, err := os.Stat(task.OutputPath); err == nil {
		sizeMB = float64(fi.Size()) / (1024 * 1024)
	}

	durText := task.DurationText
	if secs, err := r.capturer.ProbeDuration(ctx, task.OutputPath); err == nil {
		durText = models.FormatDuration(time.Duration(secs) * time.Second)
	}

	return fmt.Sprintf(
		"File Name : %s\nSize : %.2f MB\nDuration : %s\nDate : %s\nTime : %s to %s",
		task.Filename,
		sizeMB,
		durText,
		task.StartedAt.Format("02-01-2006"),
		task.StartedAt.Format("03:04:05 PM"),
		task.ExpectedEnd.Format("03:04:05 PM"),
	)
}

func (r *Runner) archiveCaption(task *models.Task) string {
	return fmt.Sprintf(
		"📥 Stored Recording\n👤 User: @%s\n📁 File: %s\n📅 Date: %s\n⏱ Time: %s to %s",
		task.Username,
		task.Filename,
		task.StartedAt.Format("02-01-2006"),
		task.StartedAt.Format("03:04:05 PM"),
		task.ExpectedEnd.Format("03:04:05 PM"),
	)
}

func (r *Runner) cancelCaption(task models.Task) string {
	return fmt.Sprintf(
		"🛑 Recording cancelled.\n👤 User: @%s\n📁 File: %s\n📅 Date: %s\n⏱ Time: %s to %s",
		task.Username,
		filepath.Base(task.OutputPath),
		task.StartedAt.Format("02-01-2006"),
		task.StartedAt.Format("03:04:05 PM"),
		task.ExpectedEnd.Format("03:04:05 PM"),
	)
}
