//go:build !windows

package process

import (
	"github.com/core-tools/hsu-proctree/pkg/errors"

	"golang.org/x/sys/unix"
)

// signalPID checks the identity and signals by PID. The window between the
// two is not closed here.
func signalPID(p *osProcess, sig unix.Signal) error {
	if err := p.verifyIdentity(); err != nil {
		return err
	}
	if err := unix.Kill(p.pid, sig); err != nil {
		if err == unix.ESRCH {
			return errors.NewNotFoundError("process already exited", err).WithContext("pid", p.pid)
		}
		return err
	}
	return nil
}
