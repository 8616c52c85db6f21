//go:build !windows

package processtree

import (
	"os/exec"
	"testing"
	"time"

	"github.com/core-tools/hsu-proctree/pkg/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startShell(t *testing.T, script string) *exec.Cmd {
	t.Helper()
	cmd := exec.Command("/bin/sh", "-c", script)
	require.NoError(t, cmd.Start())
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
	})
	return cmd
}

func TestStopTree_ShellWithFourChildren(t *testing.T) {
	cmd := startShell(t, "sleep 30 & sleep 30 & sleep 30 & sleep 30 & wait")
	root := cmd.Process.Pid

	terminator := NewTerminator(logging.NewNullLogger())

	require.Eventually(t, func() bool {
		return len(terminator.ChildrenOf(root)) == 4
	}, 5*time.Second, 20*time.Millisecond)

	// Background jobs of a non-interactive shell ignore SIGINT, so each
	// child escalates to a kill
	err := terminator.StopTree(root, StopPolicy{Timeout: time.Second, Order: ChildrenFirst}, Fence{})
	require.NoError(t, err)

	assert.Empty(t, terminator.ChildrenOf(root))
}

func TestStopProcess_IgnoredInterruptBoundedByTimeout(t *testing.T) {
	cmd := startShell(t, "trap '' INT; exec sleep 30")
	pid := cmd.Process.Pid

	terminator := NewTerminator(logging.NewNullLogger())
	require.Eventually(t, func() bool {
		_, ok := terminator.CreationTime(pid)
		return ok
	}, 5*time.Second, 20*time.Millisecond)
	// Let the shell install the trap before exec
	time.Sleep(100 * time.Millisecond)

	timeout := 500 * time.Millisecond
	started := time.Now()
	require.NoError(t, terminator.StopProcess(pid, timeout))
	elapsed := time.Since(started)

	assert.Less(t, elapsed, timeout+time.Second)

	state, err := cmd.Process.Wait()
	require.NoError(t, err)
	assert.False(t, state.Success())
}

func TestChildrenOf_NoChildren(t *testing.T) {
	cmd := startShell(t, "exec sleep 30")

	terminator := NewTerminator(logging.NewNullLogger())
	assert.Empty(t, terminator.ChildrenOf(cmd.Process.Pid))
}
