package process

import (
	"time"

	"github.com/core-tools/hsu-proctree/pkg/errors"
	"github.com/core-tools/hsu-proctree/pkg/processtable"
)

// Process is a handle to a live OS process identified by PID.
// The OS stays the source of truth: every query goes back to it.
type Process interface {
	PID() int

	// Exited reports whether the process is gone. A zombie, or a PID now
	// owned by a process with a different creation time, counts as exited.
	Exited() bool

	// Kill forcefully terminates the process. errors.NotFoundError means the
	// process was already gone and nothing was signalled.
	Kill() error

	// WaitExit blocks until the process exits or timeout elapses and
	// reports whether it exited
	WaitExit(timeout time.Duration) bool

	// CreationTime returns the creation timestamp captured when the handle was resolved
	CreationTime() (time.Time, error)
}

// Finder resolves PIDs into live handles
type Finder interface {
	// FindProcess returns errors.NotFoundError when pid does not name a live process
	FindProcess(pid int) (Process, error)
}

// Interrupter delivers a cooperative interrupt, the non-forceful shutdown
// request a process may choose to ignore.
type Interrupter interface {
	Interrupt(p Process, timeout time.Duration) error
}

const exitPollInterval = 20 * time.Millisecond

type osFinder struct {
	table processtable.Table
}

// NewFinder returns a Finder backed by the given process table
func NewFinder(table processtable.Table) Finder {
	return &osFinder{table: table}
}

func (f *osFinder) FindProcess(pid int) (Process, error) {
	if pid <= 0 {
		return nil, errors.NewValidationError("invalid pid", nil).WithContext("pid", pid)
	}

	entry, err := f.table.Lookup(pid)
	switch {
	case err == nil:
		if entry.Zombie {
			return nil, errors.NewNotFoundError("process already exited", nil).WithContext("pid", pid)
		}
		return &osProcess{pid: pid, table: f.table, entry: entry, hasEntry: true}, nil

	case errors.IsNotFoundError(err):
		return nil, err

	default:
		// The table cannot tell; ask the OS directly
		alive, probeErr := probeAlive(pid)
		if probeErr != nil {
			return nil, errors.NewProcessError("failed to resolve process", probeErr).WithContext("pid", pid)
		}
		if !alive {
			return nil, errors.NewNotFoundError("process not found", err).WithContext("pid", pid)
		}
		return &osProcess{pid: pid, table: f.table}, nil
	}
}

type osProcess struct {
	pid      int
	table    processtable.Table
	entry    processtable.Entry
	hasEntry bool
}

func (p *osProcess) PID() int {
	return p.pid
}

func (p *osProcess) CreationTime() (time.Time, error) {
	if !p.hasEntry || !p.entry.HasCreationTime() {
		return time.Time{}, errors.NewNotFoundError("creation time unavailable", nil).WithContext("pid", p.pid)
	}
	return p.entry.CreationTime, nil
}

func (p *osProcess) Exited() bool {
	entry, err := p.table.Lookup(p.pid)
	switch {
	case err == nil:
		return entry.Zombie || !p.sameProcess(entry)

	case errors.IsNotFoundError(err):
		return true

	default:
		alive, probeErr := probeAlive(p.pid)
		return probeErr == nil && !alive
	}
}

// sameProcess reports whether entry, found under our PID, is still the
// process this handle was resolved to
func (p *osProcess) sameProcess(entry processtable.Entry) bool {
	if !p.hasEntry || !p.entry.HasCreationTime() || !entry.HasCreationTime() {
		return true
	}
	return entry.CreationTime.Equal(p.entry.CreationTime)
}

// verifyIdentity returns errors.NotFoundError unless the PID still names
// the process this handle was resolved to. When the table cannot answer the
// PID is trusted.
func (p *osProcess) verifyIdentity() error {
	entry, err := p.table.Lookup(p.pid)
	switch {
	case err == nil:
		if entry.Zombie {
			return errors.NewNotFoundError("process already exited", nil).WithContext("pid", p.pid)
		}
		if !p.sameProcess(entry) {
			return errors.NewNotFoundError("pid reused by another process", nil).
				WithContext("pid", p.pid).
				WithContext("created", entry.CreationTime.String())
		}
		return nil

	case errors.IsNotFoundError(err):
		return errors.NewNotFoundError("process already exited", err).WithContext("pid", p.pid)

	default:
		return nil
	}
}

// Kill returns errors.NotFoundError without signalling anything when the
// process is gone or its PID was reused
func (p *osProcess) Kill() error {
	if err := killProcess(p); err != nil {
		if errors.IsNotFoundError(err) {
			return err
		}
		return errors.NewProcessError("failed to kill process", err).WithContext("pid", p.pid)
	}
	return nil
}

func (p *osProcess) WaitExit(timeout time.Duration) bool {
	return waitExit(p, timeout)
}

// pollExit is the portable wait: we are usually not the parent of the
// target, so there is nothing to block on.
func pollExit(p Process, timeout time.Duration) bool {
	if p.Exited() {
		return true
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(exitPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if p.Exited() {
				return true
			}
		case <-deadline.C:
			return p.Exited()
		}
	}
}

type signalInterrupter struct{}

// NewInterrupter returns the platform cooperative interrupt sender:
// SIGINT on Unix, CTRL_BREAK_EVENT on Windows.
func NewInterrupter() Interrupter {
	return signalInterrupter{}
}

// Interrupt checks the identity of p like Kill does and returns
// errors.NotFoundError when it is gone
func (signalInterrupter) Interrupt(p Process, timeout time.Duration) error {
	proc, ok := p.(*osProcess)
	if !ok {
		return errors.NewValidationError("unsupported process handle", nil).WithContext("pid", p.PID())
	}
	if err := interruptProcess(proc); err != nil {
		if errors.IsNotFoundError(err) {
			return err
		}
		return errors.NewProcessError("failed to deliver interrupt", err).
			WithContext("pid", p.PID()).
			WithContext("timeout", timeout.String())
	}
	return nil
}
