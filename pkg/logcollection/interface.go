// Package logcollection forwards the standard streams of a managed process
// to a destination: the host logger or a rotating log file.
package logcollection

import (
	"io"
	"time"
)

// LogForwarder consumes the output streams of one process.
// ForwardLogs blocks until both streams reach EOF. A nil stream is skipped.
type LogForwarder interface {
	ForwardLogs(stdout, stderr io.Reader) error
}

// StreamType identifies the source stream
type StreamType string

const (
	StdoutStream StreamType = "stdout"
	StderrStream StreamType = "stderr"
)

// Config selects which streams are forwarded. A stream that is not
// captured is still drained so the process never blocks on a full pipe.
type Config struct {
	CaptureStdout bool `yaml:"capture_stdout"`
	CaptureStderr bool `yaml:"capture_stderr"`
}

// DefaultConfig captures both streams
func DefaultConfig() Config {
	return Config{CaptureStdout: true, CaptureStderr: true}
}

// FileConfig describes a rotating log file
type FileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Stats provides status information for one forwarded process
type Stats struct {
	ProcessID      string    `json:"process_id"`
	Active         bool      `json:"active"`
	StdoutLines    int64     `json:"stdout_lines"`
	StderrLines    int64     `json:"stderr_lines"`
	BytesProcessed int64     `json:"bytes_processed"`
	LastActivity   time.Time `json:"last_activity"`
}
