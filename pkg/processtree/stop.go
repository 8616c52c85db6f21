package processtree

import (
	"time"

	"github.com/core-tools/hsu-proctree/pkg/errors"
	"github.com/core-tools/hsu-proctree/pkg/metrics"
)

// StopProcess interrupts pid and waits up to timeout for it to exit, then
// kills it. A process that is already gone, or whose PID now names another
// process, is a no-op. The only error returned is a failed kill of a process
// that is still alive.
func (t *Terminator) StopProcess(pid int, timeout time.Duration) error {
	handle, err := t.finder.FindProcess(pid)
	if err != nil {
		t.logger.Infof("Process %d not found, nothing to stop: %v", pid, err)
		metrics.RecordStop(metrics.StopOutcomeNotFound)
		return nil
	}
	if handle.Exited() {
		t.logger.Infof("Process %d already exited", pid)
		metrics.RecordStop(metrics.StopOutcomeNotFound)
		return nil
	}

	t.logger.Infof("Stopping process %d, timeout: %v", pid, timeout)

	if err := t.interrupter.Interrupt(handle, timeout); errors.IsNotFoundError(err) {
		t.logger.Infof("Process %d exited before it could be interrupted: %v", pid, err)
		metrics.RecordStop(metrics.StopOutcomeNotFound)
		return nil
	} else if err != nil {
		t.logger.Warnf("Failed to interrupt process %d, forcing termination: %v", pid, err)
	} else {
		t.logger.Debugf("Interrupt sent to process %d, waiting for exit", pid)
		if handle.WaitExit(timeout) {
			t.logger.Infof("Process %d stopped gracefully", pid)
			metrics.RecordStop(metrics.StopOutcomeGraceful)
			return nil
		}
		t.logger.Warnf("Process %d did not stop within %v, forcing termination", pid, timeout)
	}

	if err := handle.Kill(); err != nil {
		if errors.IsNotFoundError(err) || handle.Exited() {
			t.logger.Infof("Process %d exited before it could be killed: %v", pid, err)
			metrics.RecordStop(metrics.StopOutcomeGraceful)
			return nil
		}
		t.logger.Errorf("Failed to kill process %d: %v", pid, err)
		metrics.RecordStop(metrics.StopOutcomeFailed)
		if errors.IsProcessError(err) {
			return err
		}
		return errors.NewProcessError("failed to kill process", err).WithContext("pid", pid)
	}

	metrics.RecordStop(metrics.StopOutcomeKilled)
	if !handle.WaitExit(t.forceKillWait) {
		t.logger.Warnf("Process %d still alive %v after kill", pid, t.forceKillWait)
		return nil
	}
	t.logger.Infof("Process %d killed", pid)
	return nil
}
