//go:build linux

package processtable

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/core-tools/hsu-proctree/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtureBootTime = 1700000000

// statLine renders a /proc/<pid>/stat line with the given state, ppid and starttime ticks
func statLine(pid int, comm string, state string, ppid int, startTicks int) string {
	// fields 3..22 of proc(5); only state, ppid and starttime matter here
	return strconv.Itoa(pid) + " (" + comm + ") " + state + " " + strconv.Itoa(ppid) +
		" 1 1 0 -1 4194560 100 0 0 0 0 0 0 0 20 0 1 0 " + strconv.Itoa(startTicks) +
		" 1000000 100 18446744073709551615 0 0 0 0 0 0 0 0 0 0 0 0 17 0 0 0 0 0 0\n"
}

func writeFixtureProc(t *testing.T, stats map[int]string) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "stat"),
		[]byte("cpu  1 2 3 4\nbtime "+strconv.Itoa(fixtureBootTime)+"\nprocesses 10\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "self"), 0o755))

	for pid, stat := range stats {
		dir := filepath.Join(root, strconv.Itoa(pid))
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "stat"), []byte(stat), 0o644))
	}
	return root
}

func TestProcTable_Children(t *testing.T) {
	root := writeFixtureProc(t, map[int]string{
		1:   statLine(1, "init", "S", 0, 1),
		100: statLine(100, "parent", "S", 1, 500),
		101: statLine(101, "child one", "S", 100, 600),
		102: statLine(102, "child) (two", "Z", 100, 700),
		200: statLine(200, "other", "R", 1, 800),
	})
	table := NewProcTable(root)

	children, err := table.Children(100)
	require.NoError(t, err)
	require.Len(t, children, 2)

	byPID := map[int]Entry{}
	for _, child := range children {
		byPID[child.PID] = child
	}

	assert.Equal(t, "child one", byPID[101].Name)
	assert.False(t, byPID[101].Zombie)
	assert.Equal(t, time.Unix(fixtureBootTime, 0).Add(6*time.Second), byPID[101].CreationTime)

	assert.Equal(t, "child) (two", byPID[102].Name)
	assert.True(t, byPID[102].Zombie)
	assert.Equal(t, 100, byPID[102].PPID)

	none, err := table.Children(101)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestProcTable_Lookup(t *testing.T) {
	root := writeFixtureProc(t, map[int]string{
		100: statLine(100, "parent", "S", 1, 250),
	})
	table := NewProcTable(root)

	entry, err := table.Lookup(100)
	require.NoError(t, err)
	assert.Equal(t, 1, entry.PPID)
	assert.True(t, entry.HasCreationTime())
	assert.Equal(t, time.Unix(fixtureBootTime, 0).Add(2500*time.Millisecond), entry.CreationTime)

	_, err = table.Lookup(999)
	assert.True(t, errors.IsNotFoundError(err))

	_, err = table.Lookup(0)
	assert.True(t, errors.IsValidationError(err))
}

func TestProcTable_MalformedStat(t *testing.T) {
	root := writeFixtureProc(t, map[int]string{
		100: "100 parent S 1\n",
	})
	table := NewProcTable(root)

	_, err := table.Lookup(100)
	assert.True(t, errors.IsIOError(err))

	// malformed rows are skipped during enumeration
	children, err := table.Children(1)
	require.NoError(t, err)
	assert.Empty(t, children)
}

func TestProcTable_MissingRoot(t *testing.T) {
	table := NewProcTable(filepath.Join(t.TempDir(), "missing"))

	_, err := table.Children(1)
	assert.True(t, errors.IsIOError(err))
}

func TestSystemTable_LiveProcess(t *testing.T) {
	cmd := exec.Command("/bin/sleep", "5")
	require.NoError(t, cmd.Start())
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})

	table := New()

	self, err := table.Lookup(os.Getpid())
	require.NoError(t, err)

	children, err := table.Children(os.Getpid())
	require.NoError(t, err)

	var found *Entry
	for i := range children {
		if children[i].PID == cmd.Process.Pid {
			found = &children[i]
		}
	}
	require.NotNil(t, found, "sleep child not found among %v", children)
	assert.Equal(t, "sleep", found.Name)
	assert.False(t, found.CreationTime.Before(self.CreationTime))
}
