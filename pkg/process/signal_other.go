//go:build !windows && !linux

package process

import "golang.org/x/sys/unix"

func signalProcess(p *osProcess, sig unix.Signal) error {
	return signalPID(p, sig)
}
