//go:build windows

package processtable

import (
	"time"
	"unsafe"

	"github.com/core-tools/hsu-proctree/pkg/errors"

	"golang.org/x/sys/windows"
)

type toolhelpTable struct{}

func newSystemTable() Table {
	return &toolhelpTable{}
}

func (t *toolhelpTable) Children(ppid int) ([]Entry, error) {
	entries, err := snapshotProcesses()
	if err != nil {
		return nil, err
	}

	children := make([]Entry, 0)
	for _, entry := range entries {
		// PID 0 (System Idle Process) reports itself as its own parent
		if entry.PID != 0 && entry.PPID == ppid {
			children = append(children, entry)
		}
	}

	return children, nil
}

func (t *toolhelpTable) Lookup(pid int) (Entry, error) {
	if pid <= 0 {
		return Entry{}, errors.NewValidationError("invalid pid", nil).WithContext("pid", pid)
	}

	entries, err := snapshotProcesses()
	if err != nil {
		return Entry{}, err
	}

	for _, entry := range entries {
		if entry.PID == pid {
			return entry, nil
		}
	}

	return Entry{}, errors.NewNotFoundError("process not found", nil).WithContext("pid", pid)
}

func snapshotProcesses() ([]Entry, error) {
	snapshot, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return nil, errors.NewIOError("failed to snapshot process table", err)
	}
	defer windows.CloseHandle(snapshot)

	var processEntry windows.ProcessEntry32
	processEntry.Size = uint32(unsafe.Sizeof(processEntry))

	if err := windows.Process32First(snapshot, &processEntry); err != nil {
		return nil, errors.NewIOError("failed to read process table", err)
	}

	entries := make([]Entry, 0, 256)
	for {
		pid := int(processEntry.ProcessID)
		entries = append(entries, Entry{
			PID:          pid,
			PPID:         int(processEntry.ParentProcessID),
			CreationTime: creationTime(pid),
			Name:         windows.UTF16ToString(processEntry.ExeFile[:]),
		})

		err := windows.Process32Next(snapshot, &processEntry)
		if err == windows.ERROR_NO_MORE_FILES {
			break
		}
		if err != nil {
			return nil, errors.NewIOError("failed to read process table", err)
		}
	}

	return entries, nil
}

// creationTime returns the zero time when the process cannot be opened
func creationTime(pid int) time.Time {
	if pid == 0 {
		return time.Time{}
	}

	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return time.Time{}
	}
	defer windows.CloseHandle(handle)

	var creation, exit, kernel, user windows.Filetime
	if err := windows.GetProcessTimes(handle, &creation, &exit, &kernel, &user); err != nil {
		return time.Time{}
	}

	return time.Unix(0, creation.Nanoseconds())
}
