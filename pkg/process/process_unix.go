//go:build !windows

package process

import (
	"time"

	"golang.org/x/sys/unix"
)

func probeAlive(pid int) (bool, error) {
	err := unix.Kill(pid, 0)
	switch err {
	case nil, unix.EPERM:
		return true, nil
	case unix.ESRCH:
		return false, nil
	default:
		return false, err
	}
}

func killProcess(p *osProcess) error {
	return signalProcess(p, unix.SIGKILL)
}

func interruptProcess(p *osProcess) error {
	return signalProcess(p, unix.SIGINT)
}

func waitExit(p *osProcess, timeout time.Duration) bool {
	return pollExit(p, timeout)
}
