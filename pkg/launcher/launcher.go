// Package launcher starts managed processes and observes their exit.
//
// The child environment is assembled per launch from the host environment
// plus overrides; the host environment itself is never modified, so Launch
// may be called concurrently.
package launcher

import (
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/core-tools/hsu-proctree/pkg/errors"
	"github.com/core-tools/hsu-proctree/pkg/logcollection"
	"github.com/core-tools/hsu-proctree/pkg/logging"
	"github.com/core-tools/hsu-proctree/pkg/metrics"
	"github.com/core-tools/hsu-proctree/pkg/tasks"
)

// PriorityClass is a portable scheduling priority
type PriorityClass string

const (
	PriorityIdle        PriorityClass = "idle"
	PriorityBelowNormal PriorityClass = "below_normal"
	PriorityNormal      PriorityClass = "normal"
	PriorityAboveNormal PriorityClass = "above_normal"
	PriorityHigh        PriorityClass = "high"
	PriorityRealTime    PriorityClass = "realtime"
)

func ParsePriorityClass(value string) (PriorityClass, error) {
	switch class := PriorityClass(strings.ToLower(value)); class {
	case PriorityIdle, PriorityBelowNormal, PriorityNormal, PriorityAboveNormal, PriorityHigh, PriorityRealTime:
		return class, nil
	case "":
		return PriorityNormal, nil
	default:
		return "", errors.NewValidationError("unknown priority class", nil).WithContext("priority", value)
	}
}

// LaunchSpec describes a process to start. Zero-valued fields (empty
// string, nil slice, map or pointer) inherit the launcher defaults; a set
// field replaces its default as a whole.
type LaunchSpec struct {
	Executable       string
	Arguments        []string
	WorkingDirectory string

	// Environment overrides, keys are case-sensitive
	Environment map[string]string

	Priority *PriorityClass

	// RedirectStdin detaches the child from the host stdin; defaults to true
	RedirectStdin *bool
}

// Merge returns s with every set field of override applied
func (s LaunchSpec) Merge(override LaunchSpec) LaunchSpec {
	merged := s
	if override.Executable != "" {
		merged.Executable = override.Executable
	}
	if override.Arguments != nil {
		merged.Arguments = override.Arguments
	}
	if override.WorkingDirectory != "" {
		merged.WorkingDirectory = override.WorkingDirectory
	}
	if override.Environment != nil {
		merged.Environment = override.Environment
	}
	if override.Priority != nil {
		merged.Priority = override.Priority
	}
	if override.RedirectStdin != nil {
		merged.RedirectStdin = override.RedirectStdin
	}
	return merged
}

// ExitInfo describes a finished process
type ExitInfo struct {
	PID int

	// ExitCode is -1 when the process was terminated by a signal
	ExitCode int

	StartedAt time.Time
	ExitedAt  time.Time

	// Err is set when waiting failed for a reason other than a non-zero exit
	Err error
}

// CompletionCallback is invoked exactly once after the process exits
type CompletionCallback func(info *ExitInfo)

// DefaultOutputDrainTimeout bounds how long output is still forwarded after
// the process exited
const DefaultOutputDrainTimeout = 2 * time.Second

type Launcher struct {
	Defaults LaunchSpec

	// OutputDrainTimeout bounds forwarding after exit. Output pipes still held
	// open by descendants are closed once it elapses.
	OutputDrainTimeout time.Duration

	runner *tasks.Runner
	logger logging.Logger
}

// NewLauncher returns a launcher whose background work (exit watchers and
// log forwarding) runs on runner
func NewLauncher(defaults LaunchSpec, runner *tasks.Runner, logger logging.Logger) *Launcher {
	return &Launcher{
		Defaults:           defaults,
		OutputDrainTimeout: DefaultOutputDrainTimeout,
		runner:             runner,
		logger:             logger,
	}
}

// Launch starts the process described by spec merged onto the defaults.
// With a forwarder the child's stdout and stderr are piped into it,
// otherwise they are inherited. With a callback a watcher waits for the
// exit and invokes it.
func (l *Launcher) Launch(spec LaunchSpec, callback CompletionCallback, forwarder logcollection.LogForwarder) (*Launched, error) {
	spec = l.Defaults.Merge(spec)
	if spec.Executable == "" {
		return nil, errors.NewValidationError("executable is required", nil)
	}

	cmd := exec.Command(spec.Executable, spec.Arguments...)
	cmd.Dir = spec.WorkingDirectory
	cmd.Env = buildEnvironment(os.Environ(), spec.Environment)
	configureSysProcAttr(cmd)

	if spec.RedirectStdin != nil && !*spec.RedirectStdin {
		cmd.Stdin = os.Stdin
	}

	var output *outputPipes
	if forwarder != nil {
		var err error
		if output, err = newOutputPipes(); err != nil {
			return nil, errors.NewIOError("failed to create output pipes", err).WithContext("executable", spec.Executable)
		}
		cmd.Stdout = output.stdoutW
		cmd.Stderr = output.stderrW
	} else {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}

	l.logger.Infof("Starting process %s, args: %v, dir: %q", spec.Executable, spec.Arguments, spec.WorkingDirectory)

	if err := cmd.Start(); err != nil {
		if output != nil {
			_ = output.closeAll()
		}
		return nil, errors.NewProcessError("failed to start process", err).WithContext("executable", spec.Executable)
	}
	if output != nil {
		if err := output.closeWriters(); err != nil {
			l.logger.Warnf("Failed to close output pipe write ends: %v", err)
		}
	}

	launched := &Launched{cmd: cmd, startedAt: time.Now(), reaped: make(chan struct{})}
	pid := cmd.Process.Pid
	metrics.RecordLaunch()
	l.logger.Infof("Process %s started, PID: %d", spec.Executable, pid)

	if spec.Priority != nil && *spec.Priority != PriorityNormal {
		if err := applyPriority(pid, *spec.Priority); err != nil {
			l.logger.Warnf("Failed to set priority %s for process %d: %v", *spec.Priority, pid, err)
		} else {
			l.logger.Debugf("Priority %s applied to process %d", *spec.Priority, pid)
		}
	}

	if err := l.startBackground(launched, output, forwarder, callback); err != nil {
		l.logger.Errorf("Failed to monitor process %d, killing it: %v", pid, err)
		_ = cmd.Process.Kill()
		launched.Wait()
		return nil, errors.NewProcessError("failed to monitor process", err).
			WithContext("executable", spec.Executable).
			WithContext("pid", pid)
	}

	return launched, nil
}

func (l *Launcher) startBackground(launched *Launched, output *outputPipes, forwarder logcollection.LogForwarder, callback CompletionCallback) error {
	pid := launched.PID()

	if forwarder != nil {
		forwarded := make(chan struct{})
		err := l.runner.Run(fmt.Sprintf("forward-logs-%d", pid), func() error {
			defer close(forwarded)
			return forwarder.ForwardLogs(output.stdoutR, output.stderrR)
		})
		if err != nil {
			_ = output.closeReaders()
			return err
		}
		err = l.runner.Run(fmt.Sprintf("release-output-%d", pid), func() error {
			return l.releaseOutput(launched, output, forwarded)
		})
		if err != nil {
			_ = output.closeReaders()
			return err
		}
	}

	if callback != nil {
		return l.runner.Run(fmt.Sprintf("exit-watcher-%d", pid), func() error {
			info := launched.Wait()
			l.logger.Infof("Process %d exited, code: %d", info.PID, info.ExitCode)
			callback(info)
			return nil
		})
	}
	return nil
}

// releaseOutput closes the read ends once forwarding is done, or once the
// drain timeout elapsed after the process was reaped
func (l *Launcher) releaseOutput(launched *Launched, output *outputPipes, forwarded <-chan struct{}) error {
	select {
	case <-forwarded:
		return output.closeReaders()
	case <-launched.reaped:
	}

	timer := time.NewTimer(l.OutputDrainTimeout)
	defer timer.Stop()

	select {
	case <-forwarded:
	case <-timer.C:
		l.logger.Warnf("Output of process %d still open %v after exit, held by a descendant; closing it",
			launched.PID(), l.OutputDrainTimeout)
	}
	return output.closeReaders()
}

// Launched is a started process
type Launched struct {
	cmd       *exec.Cmd
	startedAt time.Time

	// reaped is closed once Wait collected the exit status
	reaped chan struct{}

	waitOnce sync.Once
	exit     *ExitInfo
}

func (l *Launched) PID() int {
	return l.cmd.Process.Pid
}

func (l *Launched) StartedAt() time.Time {
	return l.startedAt
}

// Wait blocks until the process exits and reaps it. Every call returns the
// same ExitInfo. Output forwarding is not awaited: descendants may keep the
// output pipes open long after the process itself exited.
func (l *Launched) Wait() *ExitInfo {
	l.waitOnce.Do(func() {
		defer close(l.reaped)

		// Stdout and stderr are *os.File, so cmd.Wait copies nothing
		err := l.cmd.Wait()

		info := &ExitInfo{
			PID:       l.cmd.Process.Pid,
			ExitCode:  -1,
			StartedAt: l.startedAt,
			ExitedAt:  time.Now(),
		}
		if l.cmd.ProcessState != nil {
			info.ExitCode = l.cmd.ProcessState.ExitCode()
		}
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			info.Err = err
		}

		metrics.RecordExit(info.ExitCode)
		l.exit = info
	})
	return l.exit
}

// buildEnvironment returns ambient with every override key replaced by its
// override value. Keys are compared case-sensitively; overrides are appended
// in sorted order.
func buildEnvironment(ambient []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return ambient
	}

	env := make([]string, 0, len(ambient)+len(overrides))
	for _, entry := range ambient {
		if _, overridden := overrides[environmentKey(entry)]; overridden {
			continue
		}
		env = append(env, entry)
	}

	keys := make([]string, 0, len(overrides))
	for key := range overrides {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		env = append(env, key+"="+overrides[key])
	}
	return env
}

// environmentKey handles Windows entries such as "=C:=C:\dir"
func environmentKey(entry string) string {
	if entry == "" {
		return ""
	}
	if i := strings.IndexByte(entry[1:], '='); i >= 0 {
		return entry[:i+1]
	}
	return entry
}
