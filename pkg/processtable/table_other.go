//go:build !linux && !darwin && !windows

package processtable

import (
	"runtime"

	"github.com/core-tools/hsu-proctree/pkg/errors"
)

type unsupportedTable struct{}

func newSystemTable() Table {
	return unsupportedTable{}
}

func (unsupportedTable) Children(ppid int) ([]Entry, error) {
	return nil, errors.NewUnsupportedError("process table enumeration not supported", nil).WithContext("os", runtime.GOOS)
}

func (unsupportedTable) Lookup(pid int) (Entry, error) {
	return Entry{}, errors.NewUnsupportedError("process lookup not supported", nil).WithContext("os", runtime.GOOS)
}
