package scheduler

import (
	"sort"
	"time"
)

// #region task
// Task is a deferred callback and its cancellation token. Cancel is only
// called from the loop that owns the Scheduler.
type Task struct {
	due       time.Time
	seq       uint64
	fn        func()
	cancelled bool
	fired     bool
}

// Cancel prevents the task from firing. Cancelling a fired task is a no-op.
func (t *Task) Cancel() {
	if t != nil {
		t.cancelled = true
	}
}

// Cancelled reports whether Cancel was called before the task fired.
func (t *Task) Cancelled() bool { return t != nil && t.cancelled }

// Fired reports whether the task ran.
func (t *Task) Fired() bool { return t != nil && t.fired }

// Due returns the time the task becomes runnable.
func (t *Task) Due() time.Time { return t.due }

// #endregion task

// #region scheduler
// Scheduler holds deferred tasks for a single cooperative loop. Nothing
// fires on its own: the loop calls Fire with its notion of now.
type Scheduler struct {
	tasks []*Task
	seq   uint64
}

// New creates an empty scheduler.
func New() *Scheduler {
	return &Scheduler{}
}

// After schedules fn to run once now+d has been reached.
func (s *Scheduler) After(now time.Time, d time.Duration, fn func()) *Task {
	s.seq++
	t := &Task{due: now.Add(d), seq: s.seq, fn: fn}
	s.tasks = append(s.tasks, t)
	return t
}

// Fire runs every due, uncancelled task in due order (ties by scheduling
// order) and returns how many ran. Tasks scheduled by a callback wait for
// the next Fire.
func (s *Scheduler) Fire(now time.Time) int {
	var due, rest []*Task
	for _, t := range s.tasks {
		switch {
		case t.cancelled:
		case !t.due.After(now):
			due = append(due, t)
		default:
			rest = append(rest, t)
		}
	}
	s.tasks = rest

	sort.Slice(due, func(i, j int) bool {
		if !due[i].due.Equal(due[j].due) {
			return due[i].due.Before(due[j].due)
		}
		return due[i].seq < due[j].seq
	})

	ran := 0
	for _, t := range due {
		// An earlier callback in this batch may have cancelled t.
		if t.cancelled {
			continue
		}
		t.fired = true
		t.fn()
		ran++
	}
	return ran
}

// Pending returns the number of uncancelled tasks waiting to fire.
func (s *Scheduler) Pending() int {
	n := 0
	for _, t := range s.tasks {
		if !t.cancelled {
			n++
		}
	}
	return n
}

// CancelAll cancels and forgets every pending task.
func (s *Scheduler) CancelAll() {
	for _, t := range s.tasks {
		t.cancelled = true
	}
	s.tasks = nil
}

// #endregion scheduler
