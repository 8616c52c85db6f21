// Package tasks runs fire-and-forget background work behind a fault
// isolation boundary: errors and panics raised by a task are logged and
// counted, never returned to whoever started it.
package tasks

import (
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/core-tools/hsu-proctree/pkg/errors"
	"github.com/core-tools/hsu-proctree/pkg/logging"

	"golang.org/x/sync/errgroup"
)

// Task is a unit of background work
type Task func() error

// FailureHook observes task failures, e.g. for metrics
type FailureHook func(name string, err error)

type Runner struct {
	logger   logging.Logger
	group    errgroup.Group
	started  atomic.Int64
	failures atomic.Int64
	onFail   FailureHook

	// closed is set by Wait; guarded by mutex together with group.Go
	mutex  sync.Mutex
	closed bool
}

func NewRunner(logger logging.Logger) *Runner {
	return &Runner{logger: logger}
}

// SetFailureHook must be called before the first Run
func (r *Runner) SetFailureHook(hook FailureHook) {
	r.onFail = hook
}

// Run executes task on its own goroutine and returns immediately. Once Wait
// was called the runner is closed and Run returns errors.ConflictError
// without starting the task.
func (r *Runner) Run(name string, task Task) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.closed {
		r.logger.Warnf("Task %s rejected, runner is closed", name)
		return errors.NewConflictError("task runner is closed", nil).WithContext("task", name)
	}

	r.started.Add(1)
	r.group.Go(func() error {
		if err := r.execute(name, task); err != nil {
			r.failures.Add(1)
			r.logger.Errorf("Task %s failed unexpectedly: %v", name, err)
			if r.onFail != nil {
				r.onFail(name, err)
			}
		}
		// The group is only a join point; failures stay here
		return nil
	})
	return nil
}

func (r *Runner) execute(name string, task Task) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("panic: %v\n%s", recovered, debug.Stack())
		}
	}()

	r.logger.Debugf("Task %s started", name)
	if err := task(); err != nil {
		return err
	}
	r.logger.Debugf("Task %s finished", name)
	return nil
}

// Wait closes the runner and blocks until every started task has finished
func (r *Runner) Wait() {
	r.mutex.Lock()
	r.closed = true
	r.mutex.Unlock()

	_ = r.group.Wait()
}

// Started returns the number of tasks ever started
func (r *Runner) Started() int64 {
	return r.started.Load()
}

// Failures returns the number of tasks that returned an error or panicked
func (r *Runner) Failures() int64 {
	return r.failures.Load()
}
