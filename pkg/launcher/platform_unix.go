//go:build !windows

package launcher

import (
	"os/exec"

	"github.com/core-tools/hsu-proctree/pkg/errors"

	"golang.org/x/sys/unix"
)

var niceValues = map[PriorityClass]int{
	PriorityIdle:        19,
	PriorityBelowNormal: 10,
	PriorityNormal:      0,
	PriorityAboveNormal: -5,
	PriorityHigh:        -10,
	PriorityRealTime:    -20,
}

func applyPriority(pid int, class PriorityClass) error {
	nice, ok := niceValues[class]
	if !ok {
		return errors.NewValidationError("unknown priority class", nil).WithContext("priority", string(class))
	}
	if err := unix.Setpriority(unix.PRIO_PROCESS, pid, nice); err != nil {
		return errors.NewPermissionError("failed to set process priority", err).
			WithContext("pid", pid).
			WithContext("nice", nice)
	}
	return nil
}

// configureSysProcAttr is a no-op: the interrupt is delivered by PID
func configureSysProcAttr(cmd *exec.Cmd) {}
