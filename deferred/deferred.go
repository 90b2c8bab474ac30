// Package deferred defers side-effecting work until the enclosing unit of
// work commits.
//
// The host platform enlists a Queue in its transaction lifecycle: on a
// successful completion it calls Commit, on an aborted one Rollback. Work
// registered through Enlist therefore never runs for a unit of work that
// rolled back — "send a webhook because a user was created" must not fire
// if the user-creation transaction itself is discarded.
package deferred

import (
	"log/slog"
	"sync"
)

// Deferrer registers work to run after the enclosing unit of work commits.
// The core engine only depends on this capability; the host integration
// layer supplies the concrete implementation.
type Deferrer interface {
	Enlist(fn func())
}

// Queue is a Deferrer bound to one unit of work. Callbacks run in the
// order they were enlisted, exactly once, when Commit is called; Rollback
// discards them. A panicking callback is recovered and logged and does not
// prevent later callbacks from running.
type Queue struct {
	mu     sync.Mutex
	fns    []func()
	closed bool
	logger *slog.Logger
}

// NewQueue creates a queue for one unit of work.
func NewQueue(logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{logger: logger}
}

// Enlist registers fn to run on commit. Enlisting after the unit of work
// has completed logs a warning and drops the callback.
func (q *Queue) Enlist(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.logger.Warn("work enlisted after unit of work completed, dropping")
		return
	}
	q.fns = append(q.fns, fn)
}

// Commit runs all enlisted callbacks in order. It is a no-op on second
// call.
func (q *Queue) Commit() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	fns := q.fns
	q.fns = nil
	q.closed = true
	q.mu.Unlock()

	for _, fn := range fns {
		q.run(fn)
	}
}

// Rollback discards all enlisted callbacks without running them.
func (q *Queue) Rollback() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.fns = nil
	q.closed = true
}

func (q *Queue) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("deferred callback panicked", "panic", r)
		}
	}()
	fn()
}

// Immediate returns a Deferrer that runs work as soon as it is enlisted.
// Hosts without a transactional boundary use it so the engine still has a
// single code path.
func Immediate(logger *slog.Logger) Deferrer {
	if logger == nil {
		logger = slog.Default()
	}
	return immediate{logger: logger}
}

type immediate struct {
	logger *slog.Logger
}

func (d immediate) Enlist(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("deferred callback panicked", "panic", r)
		}
	}()
	fn()
}
