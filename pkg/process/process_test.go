//go:build !windows

package process

import (
	"os/exec"
	"testing"
	"time"

	"github.com/core-tools/hsu-proctree/pkg/errors"
	"github.com/core-tools/hsu-proctree/pkg/processtable"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTable serves a fixed set of entries
type fakeTable struct {
	entries map[int]processtable.Entry
	err     error
}

func (f *fakeTable) Children(ppid int) ([]processtable.Entry, error) {
	return nil, f.err
}

func (f *fakeTable) Lookup(pid int) (processtable.Entry, error) {
	if f.err != nil {
		return processtable.Entry{}, f.err
	}
	entry, ok := f.entries[pid]
	if !ok {
		return processtable.Entry{}, errors.NewNotFoundError("process not found", nil).WithContext("pid", pid)
	}
	return entry, nil
}

func startSleep(t *testing.T) *exec.Cmd {
	t.Helper()
	cmd := exec.Command("/bin/sleep", "30")
	require.NoError(t, cmd.Start())
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
	})
	return cmd
}

func TestFindProcess_Live(t *testing.T) {
	cmd := startSleep(t)

	finder := NewFinder(processtable.New())
	handle, err := finder.FindProcess(cmd.Process.Pid)
	require.NoError(t, err)

	assert.Equal(t, cmd.Process.Pid, handle.PID())
	assert.False(t, handle.Exited())

	created, err := handle.CreationTime()
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), created, time.Minute)
}

func TestFindProcess_Invalid(t *testing.T) {
	finder := NewFinder(processtable.New())

	_, err := finder.FindProcess(0)
	assert.True(t, errors.IsValidationError(err))
}

func TestFindProcess_Gone(t *testing.T) {
	cmd := exec.Command("/bin/sh", "-c", "exit 0")
	require.NoError(t, cmd.Run())

	finder := NewFinder(processtable.New())
	_, err := finder.FindProcess(cmd.Process.Pid)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestFindProcess_ZombieIsGone(t *testing.T) {
	finder := NewFinder(&fakeTable{entries: map[int]processtable.Entry{
		77: {PID: 77, PPID: 1, Zombie: true},
	}})

	_, err := finder.FindProcess(77)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestExited_PIDReused(t *testing.T) {
	original := time.Unix(1700000000, 0)
	table := &fakeTable{entries: map[int]processtable.Entry{
		77: {PID: 77, PPID: 1, CreationTime: original},
	}}

	handle, err := NewFinder(table).FindProcess(77)
	require.NoError(t, err)
	assert.False(t, handle.Exited())

	table.entries[77] = processtable.Entry{PID: 77, PPID: 1, CreationTime: original.Add(time.Hour)}
	assert.True(t, handle.Exited())

	delete(table.entries, 77)
	assert.True(t, handle.Exited())
}

func TestKillAndWaitExit(t *testing.T) {
	cmd := startSleep(t)

	handle, err := NewFinder(processtable.New()).FindProcess(cmd.Process.Pid)
	require.NoError(t, err)

	assert.False(t, handle.WaitExit(50*time.Millisecond))

	require.NoError(t, handle.Kill())
	// Not reaped yet: the zombie must already count as exited
	assert.True(t, handle.WaitExit(2*time.Second))
}

func TestInterrupt(t *testing.T) {
	cmd := startSleep(t)

	handle, err := NewFinder(processtable.New()).FindProcess(cmd.Process.Pid)
	require.NoError(t, err)

	require.NoError(t, NewInterrupter().Interrupt(handle, time.Second))
	assert.True(t, handle.WaitExit(2*time.Second), "sleep should die on SIGINT")

	state, err := cmd.Process.Wait()
	require.NoError(t, err)
	assert.False(t, state.Success())
}

func TestSignals_SkipReusedPID(t *testing.T) {
	cmd := startSleep(t)
	pid := cmd.Process.Pid

	original := time.Unix(1700000000, 0)
	table := &fakeTable{entries: map[int]processtable.Entry{
		pid: {PID: pid, PPID: 1, CreationTime: original},
	}}

	handle, err := NewFinder(table).FindProcess(pid)
	require.NoError(t, err)

	// Another process now owns the PID
	table.entries[pid] = processtable.Entry{PID: pid, PPID: 1, CreationTime: original.Add(time.Hour)}

	err = handle.Kill()
	assert.True(t, errors.IsNotFoundError(err), "unexpected error: %v", err)

	err = NewInterrupter().Interrupt(handle, time.Second)
	assert.True(t, errors.IsNotFoundError(err), "unexpected error: %v", err)

	alive, err := probeAlive(pid)
	require.NoError(t, err)
	assert.True(t, alive, "no signal may reach the new owner of the PID")
}

func TestKill_AlreadyExited(t *testing.T) {
	cmd := startSleep(t)
	pid := cmd.Process.Pid

	table := &fakeTable{entries: map[int]processtable.Entry{
		pid: {PID: pid, PPID: 1, CreationTime: time.Unix(1700000000, 0)},
	}}
	handle, err := NewFinder(table).FindProcess(pid)
	require.NoError(t, err)

	delete(table.entries, pid)
	assert.True(t, errors.IsNotFoundError(handle.Kill()))

	alive, err := probeAlive(pid)
	require.NoError(t, err)
	assert.True(t, alive)
}
