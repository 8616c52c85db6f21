// Package processtree stops whole process subtrees.
//
// Descendants are discovered through the OS process table and judged against
// a start-time fence: a child that claims to be younger than its ancestor was
// created before it is a stranger that inherited a reused PID, and is left
// alone. Each process is stopped with a cooperative interrupt first and a
// forceful kill once the timeout elapses.
package processtree

import (
	"fmt"
	"time"

	"github.com/core-tools/hsu-proctree/pkg/logging"
	"github.com/core-tools/hsu-proctree/pkg/process"
	"github.com/core-tools/hsu-proctree/pkg/processtable"
)

// StopOrder selects whether ancestors or descendants go first
type StopOrder string

const (
	ChildrenFirst StopOrder = "children-first"
	ParentFirst   StopOrder = "parent-first"
)

// ParseStopOrder accepts the configuration spelling of a StopOrder
func ParseStopOrder(value string) (StopOrder, error) {
	switch StopOrder(value) {
	case ChildrenFirst, "":
		return ChildrenFirst, nil
	case ParentFirst:
		return ParentFirst, nil
	default:
		return "", fmt.Errorf("unknown stop order %q", value)
	}
}

// StopPolicy is applied uniformly for one StopTree invocation
type StopPolicy struct {
	// Timeout bounds the graceful phase for each process
	Timeout time.Duration
	Order   StopOrder
}

// Fence is a pinned creation timestamp. The zero value is an unknown fence.
type Fence struct {
	At    time.Time
	Known bool
}

// FenceAt returns a known fence pinned at t
func FenceAt(t time.Time) Fence {
	return Fence{At: t, Known: true}
}

const (
	DefaultStopTimeout   = 10 * time.Second
	DefaultForceKillWait = 2 * time.Second
)

// Options wires the collaborators of a Terminator. Nil fields fall back to
// the system implementations.
type Options struct {
	Table       processtable.Table
	Finder      process.Finder
	Interrupter process.Interrupter

	// Policy is used by StopTreeWithDefaults
	Policy StopPolicy

	// ForceKillWait bounds the wait after a forceful kill
	ForceKillWait time.Duration
}

type Terminator struct {
	table         processtable.Table
	finder        process.Finder
	interrupter   process.Interrupter
	policy        StopPolicy
	forceKillWait time.Duration
	logger        logging.Logger
}

// NewTerminator returns a Terminator backed by the OS process table
func NewTerminator(logger logging.Logger) *Terminator {
	return NewTerminatorWithOptions(Options{}, logger)
}

func NewTerminatorWithOptions(options Options, logger logging.Logger) *Terminator {
	if options.Table == nil {
		options.Table = processtable.New()
	}
	if options.Finder == nil {
		options.Finder = process.NewFinder(options.Table)
	}
	if options.Interrupter == nil {
		options.Interrupter = process.NewInterrupter()
	}
	if options.Policy.Timeout <= 0 {
		options.Policy.Timeout = DefaultStopTimeout
	}
	if options.Policy.Order == "" {
		options.Policy.Order = ChildrenFirst
	}
	if options.ForceKillWait <= 0 {
		options.ForceKillWait = DefaultForceKillWait
	}
	if logger == nil {
		logger = logging.NewNullLogger()
	}

	return &Terminator{
		table:         options.Table,
		finder:        options.Finder,
		interrupter:   options.Interrupter,
		policy:        options.Policy,
		forceKillWait: options.ForceKillWait,
		logger:        logger,
	}
}

// Policy returns the default stop policy
func (t *Terminator) Policy() StopPolicy {
	return t.policy
}
