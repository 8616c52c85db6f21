//go:build darwin

package processtable

import (
	"time"

	"github.com/core-tools/hsu-proctree/pkg/errors"

	"golang.org/x/sys/unix"
)

// SZOMB from sys/proc.h
const darwinZombieState = 5

type sysctlTable struct{}

func newSystemTable() Table {
	return &sysctlTable{}
}

func (t *sysctlTable) Children(ppid int) ([]Entry, error) {
	procs, err := unix.SysctlKinfoProcSlice("kern.proc.all")
	if err != nil {
		return nil, errors.NewIOError("failed to enumerate process table", err)
	}

	children := make([]Entry, 0)
	for i := range procs {
		entry := entryFromKinfo(&procs[i])
		if entry.PID > 0 && entry.PPID == ppid {
			children = append(children, entry)
		}
	}

	return children, nil
}

func (t *sysctlTable) Lookup(pid int) (Entry, error) {
	if pid <= 0 {
		return Entry{}, errors.NewValidationError("invalid pid", nil).WithContext("pid", pid)
	}

	proc, err := unix.SysctlKinfoProc("kern.proc.pid", pid)
	if err != nil {
		if err == unix.EPERM || err == unix.EACCES {
			return Entry{}, errors.NewPermissionError("access to process denied", err).WithContext("pid", pid)
		}
		// kern.proc.pid returns an empty record for unknown PIDs, which
		// x/sys reports as a size mismatch
		return Entry{}, errors.NewNotFoundError("process not found", err).WithContext("pid", pid)
	}

	entry := entryFromKinfo(proc)
	if entry.PID != pid {
		return Entry{}, errors.NewNotFoundError("process not found", nil).WithContext("pid", pid)
	}

	return entry, nil
}

func entryFromKinfo(proc *unix.KinfoProc) Entry {
	sec, nsec := proc.Proc.P_starttime.Unix()

	var creationTime time.Time
	if sec > 0 {
		creationTime = time.Unix(sec, nsec)
	}

	return Entry{
		PID:          int(proc.Proc.P_pid),
		PPID:         int(proc.Eproc.Ppid),
		CreationTime: creationTime,
		Name:         unix.ByteSliceToString(proc.Proc.P_comm[:]),
		Zombie:       proc.Proc.P_stat == darwinZombieState,
	}
}
