package models

import (
	"time"
)

type TaskPhase string

const (
	PhaseAdmitted     TaskPhase = "admitted"
	PhaseCapturing    TaskPhase = "capturing"
	PhaseTagging      TaskPhase = "tagging"
	PhaseThumbnailing TaskPhase = "thumbnailing"
	PhaseDelivering   TaskPhase = "delivering"
	PhaseDone         TaskPhase = "done"
	PhaseError        TaskPhase = "error"
	PhaseCancelled    TaskPhase = "cancelled"
)

// Terminal reports whether a task in this phase is finished and must be out
// of the registry.
func (p TaskPhase) Terminal() bool {
	switch p {
	case PhaseDone, PhaseError, PhaseCancelled:
		return true
	}
	return false
}

// Cancellable reports whether an explicit cancellation may still pre-empt
// the task. Once capture has finished the pipeline always runs to done or
// error.
func (p TaskPhase) Cancellable() bool {
	return p == PhaseAdmitted || p == PhaseCapturing
}

// ProcessHandle is the ownership slot for the external capture process. It
// is held on a Task only while the task is capturing; cancellation uses it
// to stop the process without knowing anything else about it.
type ProcessHandle interface {
	Terminate()
}

// Task is one in-progress recording job: its own process, files and phase.
type Task struct {
	ID       int64
	UserID   int64
	ChatID   int64
	Username string

	SourceURL    string
	Filename     string // display name, already sanitized, no extension
	Duration     time.Duration
	DurationText string // the requested hh:mm:ss, verbatim

	CreatedAt   time.Time
	StartedAt   time.Time
	ExpectedEnd time.Time

	Phase TaskPhase

	WorkDir    string // exclusively owned by this task, removed on any terminal phase
	OutputPath string
	Process    ProcessHandle // non-nil only while capturing
}
