package launcher

import (
	"os"

	"go.uber.org/multierr"
)

// outputPipes carries the child's stdout and stderr. The child gets the
// write ends; we keep only the read ends once it started, so EOF arrives
// when the last holder of a write end exits. That may be a descendant
// outliving the child.
type outputPipes struct {
	stdoutR, stdoutW *os.File
	stderrR, stderrW *os.File
}

func newOutputPipes() (*outputPipes, error) {
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdoutR.Close()
		stdoutW.Close()
		return nil, err
	}
	return &outputPipes{stdoutR: stdoutR, stdoutW: stdoutW, stderrR: stderrR, stderrW: stderrW}, nil
}

// closeWriters drops our copies of the write ends after the child started
func (o *outputPipes) closeWriters() error {
	return multierr.Combine(o.stdoutW.Close(), o.stderrW.Close())
}

// closeReaders unblocks a forwarder still reading
func (o *outputPipes) closeReaders() error {
	return multierr.Combine(o.stdoutR.Close(), o.stderrR.Close())
}

func (o *outputPipes) closeAll() error {
	return multierr.Combine(o.closeWriters(), o.closeReaders())
}
