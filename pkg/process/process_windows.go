//go:build windows

package process

import (
	"time"

	"github.com/core-tools/hsu-proctree/pkg/errors"

	"golang.org/x/sys/windows"
)

// STILL_ACTIVE from GetExitCodeProcess
const stillActive = 259

func probeAlive(pid int) (bool, error) {
	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		if err == windows.ERROR_INVALID_PARAMETER {
			return false, nil
		}
		if err == windows.ERROR_ACCESS_DENIED {
			return true, nil
		}
		return false, err
	}
	defer windows.CloseHandle(handle)

	var code uint32
	if err := windows.GetExitCodeProcess(handle, &code); err != nil {
		return false, err
	}
	return code == stillActive, nil
}

// killProcess opens the handle before checking the identity: the handle
// keeps the process object alive, so a reused PID cannot be hit
func killProcess(p *osProcess) error {
	handle, err := windows.OpenProcess(windows.PROCESS_TERMINATE, false, uint32(p.pid))
	if err != nil {
		if err == windows.ERROR_INVALID_PARAMETER {
			return errors.NewNotFoundError("process already exited", err).WithContext("pid", p.pid)
		}
		return err
	}
	defer windows.CloseHandle(handle)

	if err := p.verifyIdentity(); err != nil {
		return err
	}
	return windows.TerminateProcess(handle, 1)
}

func interruptProcess(p *osProcess) error {
	if err := p.verifyIdentity(); err != nil {
		return err
	}
	// Only reaches processes started with CREATE_NEW_PROCESS_GROUP that
	// share our console
	return windows.GenerateConsoleCtrlEvent(windows.CTRL_BREAK_EVENT, uint32(p.pid))
}

func waitExit(p *osProcess, timeout time.Duration) bool {
	handle, err := windows.OpenProcess(windows.SYNCHRONIZE, false, uint32(p.pid))
	if err != nil {
		return pollExit(p, timeout)
	}
	defer windows.CloseHandle(handle)

	event, err := windows.WaitForSingleObject(handle, uint32(timeout.Milliseconds()))
	if err != nil {
		return pollExit(p, 0)
	}
	return event == windows.WAIT_OBJECT_0
}
