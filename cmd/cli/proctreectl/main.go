package main

import (
	"fmt"
	"os"
	"time"

	"github.com/core-tools/hsu-proctree/pkg/logging"
	"github.com/core-tools/hsu-proctree/pkg/logging/zaplogging"
	"github.com/core-tools/hsu-proctree/pkg/processtree"

	flags "github.com/jessevdk/go-flags"
)

type flagOptions struct {
	LogLevel string `long:"log-level" default:"warn" description:"Log level (debug, info, warn, error)"`
}

type childrenCommand struct {
	PID     int  `long:"pid" required:"true" description:"Parent process ID"`
	NoFence bool `long:"no-fence" description:"Do not filter children by the parent start time"`
}

type startTimeCommand struct {
	PID int `long:"pid" required:"true" description:"Process ID"`
}

type stopCommand struct {
	PID         int           `long:"pid" required:"true" description:"Root process ID of the tree to stop"`
	Timeout     time.Duration `long:"timeout" default:"10s" description:"Graceful stop timeout per process"`
	ParentFirst bool          `long:"parent-first" description:"Stop parents before their children"`
}

var opts flagOptions

func newTerminator() (*processtree.Terminator, error) {
	sprintfLogger, err := zaplogging.NewSprintfLogger(opts.LogLevel, false)
	if err != nil {
		return nil, err
	}
	logger := logging.NewLogger("module: proctree-client , ", sprintfLogger.LogFuncs())
	return processtree.NewTerminator(logger), nil
}

func (c *childrenCommand) Execute(args []string) error {
	terminator, err := newTerminator()
	if err != nil {
		return err
	}

	var children []int
	if c.NoFence {
		children = terminator.Children(c.PID, processtree.Fence{})
	} else {
		children = terminator.ChildrenOf(c.PID)
	}
	for _, child := range children {
		fmt.Println(child)
	}
	return nil
}

func (c *startTimeCommand) Execute(args []string) error {
	terminator, err := newTerminator()
	if err != nil {
		return err
	}

	created, ok := terminator.CreationTime(c.PID)
	if !ok {
		return fmt.Errorf("start time of process %d is unknown", c.PID)
	}
	fmt.Println(created.Format(time.RFC3339Nano))
	return nil
}

func (c *stopCommand) Execute(args []string) error {
	terminator, err := newTerminator()
	if err != nil {
		return err
	}

	policy := processtree.StopPolicy{Timeout: c.Timeout, Order: processtree.ChildrenFirst}
	if c.ParentFirst {
		policy.Order = processtree.ParentFirst
	}
	return terminator.StopTree(c.PID, policy, processtree.Fence{})
}

func main() {
	var parser = flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.AddCommand("children", "List child processes", "List the direct children of a process", &childrenCommand{})
	parser.AddCommand("start-time", "Show process start time", "Show the creation time of a process", &startTimeCommand{})
	parser.AddCommand("stop", "Stop a process tree", "Interrupt, then kill a process and all of its descendants", &stopCommand{})

	_, err := parser.ParseArgs(os.Args[1:])
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			fmt.Println(err)
			os.Exit(0)
		}
		fmt.Printf("proctreectl: %v\n", err)
		os.Exit(1)
	}
}
