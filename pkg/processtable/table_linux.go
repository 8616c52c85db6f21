//go:build linux

package processtable

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/core-tools/hsu-proctree/pkg/errors"
)

// USER_HZ is fixed at 100 on every Linux ABI the kernel exports to userspace
const clockTicksPerSecond = 100

type procTable struct {
	root string
}

func newSystemTable() Table {
	return &procTable{root: "/proc"}
}

// NewProcTable reads a procfs mounted at root; used by tests with fixture trees
func NewProcTable(root string) Table {
	return &procTable{root: root}
}

func (t *procTable) Children(ppid int) ([]Entry, error) {
	dirEntries, err := os.ReadDir(t.root)
	if err != nil {
		return nil, errors.NewIOError("failed to enumerate process table", err).WithContext("root", t.root)
	}

	bootTime, err := t.bootTime()
	if err != nil {
		return nil, err
	}

	children := make([]Entry, 0)
	for _, dirEntry := range dirEntries {
		pid, err := strconv.Atoi(dirEntry.Name())
		if err != nil || pid <= 0 {
			continue
		}

		entry, err := t.readStat(pid, bootTime)
		if err != nil {
			// The process exited between ReadDir and readStat
			continue
		}
		if entry.PPID == ppid {
			children = append(children, entry)
		}
	}

	return children, nil
}

func (t *procTable) Lookup(pid int) (Entry, error) {
	if pid <= 0 {
		return Entry{}, errors.NewValidationError("invalid pid", nil).WithContext("pid", pid)
	}

	bootTime, err := t.bootTime()
	if err != nil {
		return Entry{}, err
	}

	return t.readStat(pid, bootTime)
}

func (t *procTable) bootTime() (time.Time, error) {
	path := filepath.Join(t.root, "stat")
	file, err := os.Open(path)
	if err != nil {
		return time.Time{}, errors.NewIOError("failed to read boot time", err).WithContext("path", path)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "btime ") {
			continue
		}
		seconds, err := strconv.ParseInt(strings.TrimSpace(strings.TrimPrefix(line, "btime ")), 10, 64)
		if err != nil {
			return time.Time{}, errors.NewIOError("malformed btime entry", err).WithContext("path", path)
		}
		return time.Unix(seconds, 0), nil
	}
	if err := scanner.Err(); err != nil {
		return time.Time{}, errors.NewIOError("failed to read boot time", err).WithContext("path", path)
	}

	return time.Time{}, errors.NewIOError("btime entry not found", nil).WithContext("path", path)
}

func (t *procTable) readStat(pid int, bootTime time.Time) (Entry, error) {
	path := filepath.Join(t.root, strconv.Itoa(pid), "stat")
	data, err := os.ReadFile(path)
	if err != nil {
		switch {
		case os.IsNotExist(err):
			return Entry{}, errors.NewNotFoundError("process not found", err).WithContext("pid", pid)
		case os.IsPermission(err):
			return Entry{}, errors.NewPermissionError("access to process denied", err).WithContext("pid", pid)
		default:
			return Entry{}, errors.NewIOError("failed to read process stat", err).WithContext("pid", pid)
		}
	}

	return parseStat(pid, data, bootTime)
}

// parseStat parses /proc/<pid>/stat. The command name is enclosed in
// parentheses and may itself contain spaces and parentheses, so fields are
// located relative to the last ')'.
func parseStat(pid int, data []byte, bootTime time.Time) (Entry, error) {
	open := bytes.IndexByte(data, '(')
	closing := bytes.LastIndexByte(data, ')')
	if open < 0 || closing < open {
		return Entry{}, errors.NewIOError("malformed process stat", nil).WithContext("pid", pid)
	}

	name := string(data[open+1 : closing])
	fields := strings.Fields(string(data[closing+1:]))
	// fields[0] is field 3 (state) of proc(5); starttime is field 22
	const (
		stateIndex     = 0
		ppidIndex      = 1
		startTimeIndex = 19
	)
	if len(fields) <= startTimeIndex {
		return Entry{}, errors.NewIOError("truncated process stat", nil).WithContext("pid", pid)
	}

	ppid, err := strconv.Atoi(fields[ppidIndex])
	if err != nil {
		return Entry{}, errors.NewIOError("malformed ppid", err).WithContext("pid", pid)
	}

	startTicks, err := strconv.ParseUint(fields[startTimeIndex], 10, 64)
	if err != nil {
		return Entry{}, errors.NewIOError(fmt.Sprintf("malformed starttime %q", fields[startTimeIndex]), err).WithContext("pid", pid)
	}

	sinceBoot := time.Duration(startTicks) * (time.Second / clockTicksPerSecond)

	return Entry{
		PID:          pid,
		PPID:         ppid,
		CreationTime: bootTime.Add(sinceBoot),
		Name:         name,
		Zombie:       fields[stateIndex] == "Z" || fields[stateIndex] == "X",
	}, nil
}
