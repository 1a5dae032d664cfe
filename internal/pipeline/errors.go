package pipeline

import (
	"errors"
	"fmt"
	"time"

	"recorderbot/internal/models"
)

var (
	// ErrInvalidInput rejects a malformed request before any resource is
	// allocated.
	ErrInvalidInput = errors.New("invalid recording request")

	// ErrUnverified rejects an unprivileged user without a fresh
	// verification.
	ErrUnverified = errors.New("user is not verified")

	// ErrUnauthorized rejects a cancellation by someone who neither owns
	// the task nor is an admin.
	ErrUnauthorized = errors.New("not allowed to cancel this task")
)

// DurationCapError rejects a recording longer than the unprivileged plan
// allows.
type DurationCapError struct {
	Requested time.Duration
	Max       time.Duration
}

func (e *DurationCapError) Error() string {
	return fmt.Sprintf("requested duration %s exceeds the %s limit",
		models.FormatDuration(e.Requested), models.FormatDuration(e.Max))
}
