// Package supervisor runs one configured process under supervision: it
// launches the process, forwards its output, watches for its exit and stops
// its whole process tree on shutdown.
package supervisor

import (
	"context"
	"io"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/core-tools/hsu-proctree/pkg/errors"
	"github.com/core-tools/hsu-proctree/pkg/launcher"
	"github.com/core-tools/hsu-proctree/pkg/logcollection"
	"github.com/core-tools/hsu-proctree/pkg/logging"
	"github.com/core-tools/hsu-proctree/pkg/metrics"
	"github.com/core-tools/hsu-proctree/pkg/processtree"
	"github.com/core-tools/hsu-proctree/pkg/statusserver"
	"github.com/core-tools/hsu-proctree/pkg/tasks"
)

type Supervisor struct {
	config     *Config
	logger     logging.Logger
	runner     *tasks.Runner
	terminator *processtree.Terminator
	launcher   *launcher.Launcher
	lifecycle  *Lifecycle

	forwarder logcollection.LogForwarder
	logStats  func() logcollection.Stats
	logFile   io.Closer

	mutex         sync.Mutex
	launched      *launcher.Launched
	fence         processtree.Fence
	done          chan struct{}
	exit          *launcher.ExitInfo
	stopRequested bool
}

// New wires a supervisor for a validated configuration
func New(config *Config, logger logging.Logger) (*Supervisor, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}

	runner := tasks.NewRunner(logger)
	runner.SetFailureHook(func(name string, err error) {
		metrics.RecordTaskFailure()
	})

	s := &Supervisor{
		config: config,
		logger: logger,
		runner: runner,
		terminator: processtree.NewTerminatorWithOptions(processtree.Options{
			Policy:        config.StopPolicy(),
			ForceKillWait: config.Stop.ForceKillWait,
		}, logger),
		launcher:  launcher.NewLauncher(config.LaunchSpec(), runner, logger),
		lifecycle: NewLifecycle(config.Process.ID, logger),
	}

	switch config.Logs.Mode {
	case LogModeLogger:
		loggerForwarder := logcollection.NewLoggerForwarder(config.Process.ID, logger, config.LogConfig())
		s.forwarder = loggerForwarder
		s.logStats = loggerForwarder.Stats
	case LogModeFile:
		fileForwarder, err := logcollection.NewFileForwarder(config.Process.ID, config.LogConfig(), config.Logs.File)
		if err != nil {
			return nil, err
		}
		s.forwarder = fileForwarder
		s.logStats = fileForwarder.Stats
		s.logFile = fileForwarder
	}

	return s, nil
}

// Start launches the configured process and pins the fence used to stop it
func (s *Supervisor) Start() error {
	// Held until the running state is recorded, so an early exit is seen after it
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := s.lifecycle.Transition(StateStarting, "start", nil); err != nil {
		return err
	}

	done := make(chan struct{})
	launched, err := s.launcher.Launch(launcher.LaunchSpec{}, func(info *launcher.ExitInfo) {
		s.mutex.Lock()
		s.exit = info
		if s.lifecycle.CanTransition(StateExited) {
			_ = s.lifecycle.Transition(StateExited, "exit", info.Err)
		}
		s.mutex.Unlock()
		close(done)
	}, s.forwarder)
	if err != nil {
		_ = s.lifecycle.Transition(StateFailed, "start", err)
		return err
	}

	s.launched = launched
	s.done = done
	s.stopRequested = false
	s.fence = processtree.Fence{}
	if at, ok := s.terminator.CreationTime(launched.PID()); ok {
		s.fence = processtree.FenceAt(at)
	}

	return s.lifecycle.Transition(StateRunning, "start", nil)
}

// Done is closed once the process has exited and was reaped
func (s *Supervisor) Done() <-chan struct{} {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.done
}

// ExitInfo returns the exit of the process, nil while it runs
func (s *Supervisor) ExitInfo() *launcher.ExitInfo {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.exit
}

func (s *Supervisor) State() State {
	return s.lifecycle.State()
}

// Status reports the supervised process for the status server
func (s *Supervisor) Status() statusserver.Status {
	status := statusserver.Status{
		ProcessID: s.config.Process.ID,
		State:     string(s.lifecycle.State()),
	}

	s.mutex.Lock()
	if s.launched != nil {
		startedAt := s.launched.StartedAt()
		status.PID = s.launched.PID()
		status.StartedAt = &startedAt
	}
	if s.exit != nil {
		exitCode := s.exit.ExitCode
		status.ExitCode = &exitCode
	}
	status.Unreaped = s.launched != nil && s.exit == nil && s.stopRequested
	s.mutex.Unlock()

	if s.logStats != nil {
		stats := s.logStats()
		status.Logs = &stats
	}
	return status
}

// Stop terminates the process tree. Returns the kill failures reported by
// the tree terminator, and a timeout error when the process was not reaped
// in time; either moves the supervisor to the failed state.
func (s *Supervisor) Stop() error {
	if err := s.lifecycle.Transition(StateStopping, "stop", nil); err != nil {
		s.logger.Infof("Nothing to stop, process: %s, state: %s", s.config.Process.ID, s.lifecycle.State())
		return nil
	}

	s.mutex.Lock()
	launched, fence, done := s.launched, s.fence, s.done
	s.stopRequested = true
	s.mutex.Unlock()

	policy := s.config.StopPolicy()
	failures := errors.NewErrorCollection()
	if err := s.terminator.StopTree(launched.PID(), policy, fence); err != nil {
		failures.Add(errors.NewProcessError("failed to stop process tree", err).
			WithContext("process_id", s.config.Process.ID).
			WithContext("pid", launched.PID()))
	}

	// The tree is down unless a kill failed; give the watcher time to reap
	wait := policy.Timeout + s.config.Stop.ForceKillWait
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		s.logger.Warnf("Process %d not reaped within %v after stop", launched.PID(), wait)
		failures.Add(errors.NewTimeoutError("process not reaped after stop", nil).
			WithContext("process_id", s.config.Process.ID).
			WithContext("pid", launched.PID()).
			WithContext("wait", wait.String()))
	}

	if err := failures.ToError(); err != nil {
		_ = s.lifecycle.Transition(StateFailed, "stop", err)
		return err
	}
	return s.lifecycle.Transition(StateStopped, "stop", nil)
}

// Close joins background tasks of an exited process and releases the log file
func (s *Supervisor) Close() error {
	select {
	case <-s.Done():
		s.runner.Wait()
	default:
		if s.Done() != nil {
			s.logger.Warnf("Closing supervisor while process %s is still running", s.config.Process.ID)
		}
	}

	if s.logFile != nil {
		return s.logFile.Close()
	}
	return nil
}

// Run supervises the configured process until it exits on its own, a
// termination signal arrives or ctx is done; in the latter two cases the
// whole process tree is stopped.
func Run(ctx context.Context, config *Config, logger logging.Logger) error {
	logger.Infof("Supervisor starting...")
	logger.Infof("Platform: OS=%s, Arch=%s, CPUs=%d, Go=%s",
		runtime.GOOS, runtime.GOARCH, runtime.NumCPU(), runtime.Version())

	s, err := New(config, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			logger.Warnf("Failed to close supervisor: %v", err)
		}
	}()

	if config.Supervisor.StatusAddress != "" {
		server, err := statusserver.NewServer(config.Supervisor.StatusAddress, s, logger)
		if err != nil {
			return err
		}
		server.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Stop(ctx); err != nil {
				logger.Warnf("Failed to stop status server: %v", err)
			}
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	if err := s.Start(); err != nil {
		return err
	}
	logger.Infof("Supervisor is ready, process: %s", config.Process.ID)

	select {
	case receivedSignal := <-sig:
		logger.Infof("Supervisor received signal: %v", receivedSignal)
	case <-ctx.Done():
		logger.Infof("Supervisor context done: %v", ctx.Err())
	case <-s.Done():
		info := s.ExitInfo()
		logger.Infof("Process %s exited on its own, code: %d", config.Process.ID, info.ExitCode)
		return nil
	}

	if err := s.Stop(); err != nil {
		return err
	}
	logger.Infof("Supervisor stopped")
	return nil
}
