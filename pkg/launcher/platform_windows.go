//go:build windows

package launcher

import (
	"os/exec"
	"syscall"

	"github.com/core-tools/hsu-proctree/pkg/errors"

	"golang.org/x/sys/windows"
)

var priorityClasses = map[PriorityClass]uint32{
	PriorityIdle:        windows.IDLE_PRIORITY_CLASS,
	PriorityBelowNormal: windows.BELOW_NORMAL_PRIORITY_CLASS,
	PriorityNormal:      windows.NORMAL_PRIORITY_CLASS,
	PriorityAboveNormal: windows.ABOVE_NORMAL_PRIORITY_CLASS,
	PriorityHigh:        windows.HIGH_PRIORITY_CLASS,
	PriorityRealTime:    windows.REALTIME_PRIORITY_CLASS,
}

func applyPriority(pid int, class PriorityClass) error {
	value, ok := priorityClasses[class]
	if !ok {
		return errors.NewValidationError("unknown priority class", nil).WithContext("priority", string(class))
	}

	handle, err := windows.OpenProcess(windows.PROCESS_SET_INFORMATION, false, uint32(pid))
	if err != nil {
		return errors.NewProcessError("failed to open process", err).WithContext("pid", pid)
	}
	defer windows.CloseHandle(handle)

	if err := windows.SetPriorityClass(handle, value); err != nil {
		return errors.NewPermissionError("failed to set priority class", err).WithContext("pid", pid)
	}
	return nil
}

// configureSysProcAttr starts the child in its own process group so that
// CTRL_BREAK_EVENT can target it without reaching the host
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: windows.CREATE_NEW_PROCESS_GROUP}
}
