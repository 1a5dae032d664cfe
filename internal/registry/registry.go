// Package registry holds the authoritative in-memory map of active
// recording tasks. It is the single writer for task records: admission,
// phase transitions, process-handle attachment and removal all go through
// the registry mutex, which is what makes the cancellation race well
// defined — whichever side removes a task first owns its teardown.
package registry

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"recorderbot/internal/models"
)

var ErrNotFound = errors.New("task not found")

// CapacityError rejects an admission when an active-task ceiling is hit.
// SoonestEnd is the earliest expected completion among the blocking tasks,
// so the requester gets an actionable wait hint.
type CapacityError struct {
	Scope      string // "user" or "global"
	Limit      int
	SoonestEnd time.Time
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s task limit of %d reached", e.Scope, e.Limit)
}

type Registry struct {
	mu     sync.Mutex
	tasks  map[int64]*models.Task
	byUser map[int64][]int64 // task IDs in creation order

	userLimit   int // 0 = unlimited
	globalLimit int // 0 = unlimited

	logger *zap.Logger
}

func New(userLimit, globalLimit int, logger *zap.Logger) *Registry {
	return &Registry{
		tasks:       make(map[int64]*models.Task),
		byUser:      make(map[int64][]int64),
		userLimit:   userLimit,
		globalLimit: globalLimit,
		logger:      logger,
	}
}

// Create admits a task: allocates a fresh ID, sets the admitted phase and
// indexes the task under its owner. The ceiling checks and the insert are
// one critical section, so a concurrent create or cancel never sees a
// half-admitted task.
func (r *Registry) Create(task *models.Task) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.globalLimit > 0 && len(r.tasks) >= r.globalLimit {
		return 0, &CapacityError{
			Scope:      "global",
			Limit:      r.globalLimit,
			SoonestEnd: r.soonestEndLocked(task.UserID),
		}
	}
	if r.userLimit > 0 && len(r.byUser[task.UserID]) >= r.userLimit {
		return 0, &CapacityError{
			Scope:      "user",
			Limit:      r.userLimit,
			SoonestEnd: r.soonestEndLocked(task.UserID),
		}
	}

	id := newTaskID()
	for _, exists := r.tasks[id]; exists; _, exists = r.tasks[id] {
		id = newTaskID()
	}

	task.ID = id
	task.Phase = models.PhaseAdmitted
	r.tasks[id] = task
	r.byUser[task.UserID] = append(r.byUser[task.UserID], id)

	r.logger.Info("task admitted",
		zap.Int64("task_id", id),
		zap.Int64("user_id", task.UserID),
		zap.String("filename", task.Filename),
	)
	return id, nil
}

// Get returns a snapshot copy of the task.
func (r *Registry) Get(id int64) (models.Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return models.Task{}, false
	}
	return *t, true
}

// ListForUser returns snapshot copies of the user's tasks in creation order.
func (r *Registry) ListForUser(userID int64) []models.Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := r.byUser[userID]
	out := make([]models.Task, 0, len(ids))
	for _, id := range ids {
		out = append(out, *r.tasks[id])
	}
	return out
}

// ListAll returns snapshot copies of every active task grouped by owner.
func (r *Registry) ListAll() map[int64][]models.Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[int64][]models.Task, len(r.byUser))
	for userID, ids := range r.byUser {
		tasks := make([]models.Task, 0, len(ids))
		for _, id := range ids {
			tasks = append(tasks, *r.tasks[id])
		}
		out[userID] = tasks
	}
	return out
}

// Remove takes the task out of the registry, returning its final snapshot.
// Removing an unknown ID is a no-op, not an error.
func (r *Registry) Remove(id int64) (models.Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(id)
}

// RemoveActive removes the task only while cancellation may still pre-empt
// it (admitted or capturing). It returns false both for an unknown ID and
// for a task that has already moved past capture; the caller treats either
// as a benign not-found outcome.
func (r *Registry) RemoveActive(id int64) (models.Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok || !t.Phase.Cancellable() {
		return models.Task{}, false
	}
	return r.removeLocked(id)
}

// Attach stores the capture process handle and moves the task to the
// capturing phase. It returns false when the task is already gone, meaning
// a cancellation won before the process came up and the caller still owns
// the process it just started.
func (r *Registry) Attach(id int64, h models.ProcessHandle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return false
	}
	t.Process = h
	t.Phase = models.PhaseCapturing
	return true
}

// Transition advances the task's phase. It returns false when the task has
// been removed, which tells the pipeline that a concurrent cancellation won
// the race and owns the teardown. Leaving the capturing phase releases the
// process handle.
func (r *Registry) Transition(id int64, phase models.TaskPhase) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return false
	}
	t.Phase = phase
	if phase != models.PhaseCapturing {
		t.Process = nil
	}
	return true
}

func (r *Registry) removeLocked(id int64) (models.Task, bool) {
	t, ok := r.tasks[id]
	if !ok {
		return models.Task{}, false
	}
	delete(r.tasks, id)

	ids := r.byUser[t.UserID]
	for i, tid := range ids {
		if tid == id {
			r.byUser[t.UserID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(r.byUser[t.UserID]) == 0 {
		delete(r.byUser, t.UserID)
	}

	r.logger.Info("task removed",
		zap.Int64("task_id", id),
		zap.Int64("user_id", t.UserID),
		zap.String("phase", string(t.Phase)),
	)
	return *t, true
}

// soonestEndLocked picks the earliest expected end among the user's tasks,
// falling back to all tasks when the user has none (global ceiling hit by
// other users' load).
func (r *Registry) soonestEndLocked(userID int64) time.Time {
	var soonest time.Time
	scan := func(ids []int64) {
		for _, id := range ids {
			end := r.tasks[id].ExpectedEnd
			if soonest.IsZero() || end.Before(soonest) {
				soonest = end
			}
		}
	}

	if ids := r.byUser[userID]; len(ids) > 0 {
		scan(ids)
		return soonest
	}
	for _, ids := range r.byUser {
		scan(ids)
	}
	return soonest
}

// newTaskID derives an ID from the clock with a random suffix so bursty
// creation does not collide.
func newTaskID() int64 {
	return time.Now().UnixMilli()*1000 + int64(rand.Intn(1000))
}
