package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/core-tools/hsu-proctree/pkg/logging"
	"github.com/core-tools/hsu-proctree/pkg/logging/zaplogging"
	"github.com/core-tools/hsu-proctree/pkg/supervisor"

	flags "github.com/jessevdk/go-flags"
)

type flagOptions struct {
	Config      string `long:"config" short:"c" description:"Configuration file path (YAML)" required:"true"`
	RunDuration int    `long:"run-duration" description:"Duration in seconds to run (debug feature)"`
}

func logPrefix(module string) string {
	return fmt.Sprintf("module: %s-server , ", module)
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	var err error
	_, err = parser.ParseArgs(argv)
	if err != nil {
		fmt.Printf("Command line flags parsing failed: %v", err)
		os.Exit(1)
	}

	config, err := supervisor.LoadConfigFromFile(opts.Config)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v", err)
		os.Exit(1)
	}
	if err := supervisor.ValidateConfig(config); err != nil {
		fmt.Printf("Invalid configuration: %v", err)
		os.Exit(1)
	}

	sprintfLogger, err := zaplogging.NewSprintfLogger(config.Supervisor.LogLevel, config.Supervisor.LogFormat == "json")
	if err != nil {
		fmt.Printf("Failed to create logger: %v", err)
		os.Exit(1)
	}
	defer sprintfLogger.Sync()

	logger := logging.NewLogger(logPrefix("proctree"), sprintfLogger.LogFuncs())

	logger.Infof("Using CONFIGURATION FILE: %s", opts.Config)

	ctx := context.Background()
	if opts.RunDuration > 0 {
		logger.Infof("Using RUN DURATION of %d seconds", opts.RunDuration)
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(opts.RunDuration)*time.Second)
		defer cancel()
	}

	err = supervisor.Run(ctx, config, logger)
	if err != nil {
		logger.Errorf("Failed to run: %v", err)
		sprintfLogger.Sync()
		os.Exit(1)
	}
}
