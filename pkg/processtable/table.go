// Package processtable queries the operating system process table.
//
// Every call produces a fresh snapshot: entries are never cached because the
// table is mutated concurrently by the OS. Lookup failures are reported as
// errors.NotFoundError (process gone), errors.PermissionError or
// errors.UnsupportedError (no implementation for this platform).
package processtable

import (
	"time"
)

// Entry is one row of the process table
type Entry struct {
	PID  int
	PPID int

	// CreationTime is zero when the platform could not report it
	CreationTime time.Time

	Name string

	// Zombie is set for processes that exited but were not reaped yet
	Zombie bool
}

// HasCreationTime reports whether CreationTime is known
func (e Entry) HasCreationTime() bool {
	return !e.CreationTime.IsZero()
}

// Table is the process table query collaborator
type Table interface {
	// Children returns the entries whose recorded parent is ppid
	Children(ppid int) ([]Entry, error)

	// Lookup returns the entry for pid
	Lookup(pid int) (Entry, error)
}

// New returns the table implementation for the running platform
func New() Table {
	return newSystemTable()
}
