package processtree

import (
	"time"

	"github.com/core-tools/hsu-proctree/pkg/metrics"
)

// CreationTime returns the creation timestamp of pid. Lookup failures are
// logged and reported as unknown, never returned.
func (t *Terminator) CreationTime(pid int) (time.Time, bool) {
	entry, err := t.table.Lookup(pid)
	if err != nil {
		t.logger.Warnf("Failed to get start time of process %d: %v", pid, err)
		return time.Time{}, false
	}
	if !entry.HasCreationTime() {
		t.logger.Warnf("Start time of process %d is not available", pid)
		return time.Time{}, false
	}
	return entry.CreationTime, true
}

// resolveFence pins the fence from pid unless it is already known
func (t *Terminator) resolveFence(pid int, fence Fence) Fence {
	if fence.Known {
		return fence
	}
	if at, ok := t.CreationTime(pid); ok {
		return FenceAt(at)
	}
	return Fence{}
}

// Children returns the direct children of pid. With a known fence, any
// candidate created strictly before fence.At is excluded. Enumeration
// failures yield an empty list.
func (t *Terminator) Children(pid int, fence Fence) []int {
	entries, err := t.table.Children(pid)
	if err != nil {
		t.logger.Warnf("Failed to list children of process %d, child processes won't be terminated: %v", pid, err)
		return []int{}
	}

	children := make([]int, 0, len(entries))
	for _, entry := range entries {
		if entry.Zombie {
			t.logger.Debugf("Skipping exited child process %d of %d", entry.PID, pid)
			continue
		}
		if fence.Known && entry.HasCreationTime() && entry.CreationTime.Before(fence.At) {
			t.logger.Infof("Skipping process %d (%s) with ppid %d: start time %v cannot be earlier than parent start time %v",
				entry.PID, entry.Name, pid, entry.CreationTime, fence.At)
			metrics.RecordChildSkipped()
			continue
		}
		t.logger.Infof("Found child process %d (%s) of %d", entry.PID, entry.Name, pid)
		children = append(children, entry.PID)
	}
	return children
}

// ChildrenOf returns the direct children of pid fenced by pid's own creation time
func (t *Terminator) ChildrenOf(pid int) []int {
	return t.Children(pid, t.resolveFence(pid, Fence{}))
}
