package process

import (
	"github.com/core-tools/hsu-proctree/pkg/errors"

	"golang.org/x/sys/unix"
)

// signalProcess pins the PID with a pidfd before checking its identity, so
// the signal cannot reach a process that took the PID over in between
func signalProcess(p *osProcess, sig unix.Signal) error {
	fd, err := unix.PidfdOpen(p.pid, 0)
	switch err {
	case nil:
	case unix.ESRCH:
		return errors.NewNotFoundError("process already exited", err).WithContext("pid", p.pid)
	case unix.ENOSYS, unix.EPERM:
		// Kernel older than 5.3, or pidfd_open filtered by seccomp
		return signalPID(p, sig)
	default:
		return err
	}
	defer unix.Close(fd)

	if err := p.verifyIdentity(); err != nil {
		return err
	}
	if err := unix.PidfdSendSignal(fd, sig, nil, 0); err != nil {
		if err == unix.ESRCH {
			return errors.NewNotFoundError("process already exited", err).WithContext("pid", p.pid)
		}
		return err
	}
	return nil
}
