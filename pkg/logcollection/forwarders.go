package logcollection

import (
	"fmt"
	"sync"

	"github.com/core-tools/hsu-proctree/pkg/errors"
	"github.com/core-tools/hsu-proctree/pkg/logging"

	"github.com/natefinch/lumberjack"
)

// LoggerForwarder writes stdout lines at info level and stderr lines at warn level
type LoggerForwarder struct {
	*collector
}

func NewLoggerForwarder(processID string, logger logging.Logger, config Config) *LoggerForwarder {
	sink := func(stream StreamType, line string) error {
		if stream == StderrStream {
			logger.Warnf("[%s] %s", processID, line)
		} else {
			logger.Infof("[%s] %s", processID, line)
		}
		return nil
	}
	return &LoggerForwarder{collector: newCollector(processID, config, sink)}
}

// FileForwarder appends "[stream] line" records to a size-rotated file
type FileForwarder struct {
	*collector
	mutex  sync.Mutex
	output *lumberjack.Logger
}

func NewFileForwarder(processID string, config Config, fileConfig FileConfig) (*FileForwarder, error) {
	if fileConfig.Path == "" {
		return nil, errors.NewValidationError("log file path is required", nil).WithContext("process_id", processID)
	}

	forwarder := &FileForwarder{
		output: &lumberjack.Logger{
			Filename:   fileConfig.Path,
			MaxSize:    fileConfig.MaxSizeMB,
			MaxBackups: fileConfig.MaxBackups,
			MaxAge:     fileConfig.MaxAgeDays,
			Compress:   fileConfig.Compress,
		},
	}
	forwarder.collector = newCollector(processID, config, forwarder.writeLine)
	return forwarder, nil
}

func (f *FileForwarder) writeLine(stream StreamType, line string) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	_, err := fmt.Fprintf(f.output, "[%s] %s\n", stream, line)
	return err
}

// Close releases the log file
func (f *FileForwarder) Close() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.output.Close()
}
