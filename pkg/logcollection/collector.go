package logcollection

import (
	"bufio"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/core-tools/hsu-proctree/pkg/errors"

	"golang.org/x/sync/errgroup"
)

const maxLineSize = 1024 * 1024

// lineSink receives one line without its trailing newline
type lineSink func(stream StreamType, line string) error

// collector scans both streams concurrently and hands lines to a sink
type collector struct {
	processID string
	config    Config
	sink      lineSink

	active      atomic.Bool
	stdoutLines atomic.Int64
	stderrLines atomic.Int64
	bytes       atomic.Int64

	mutex        sync.Mutex
	lastActivity time.Time
}

func newCollector(processID string, config Config, sink lineSink) *collector {
	return &collector{processID: processID, config: config, sink: sink}
}

func (c *collector) ForwardLogs(stdout, stderr io.Reader) error {
	c.active.Store(true)
	defer c.active.Store(false)

	var group errgroup.Group
	group.Go(func() error {
		return c.collectStream(stdout, StdoutStream, c.config.CaptureStdout)
	})
	group.Go(func() error {
		return c.collectStream(stderr, StderrStream, c.config.CaptureStderr)
	})
	return group.Wait()
}

func (c *collector) collectStream(r io.Reader, stream StreamType, capture bool) error {
	if r == nil {
		return nil
	}
	if !capture {
		_, _ = io.Copy(io.Discard, r)
		return nil
	}

	var sinkErr error
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		c.recordLine(stream, len(scanner.Bytes()))
		if sinkErr == nil {
			sinkErr = c.sink(stream, line)
		}
	}
	scanErr := scanner.Err()
	if errors.Is(scanErr, os.ErrClosed) {
		// The owner closed the stream after the process exited
		scanErr = nil
	}

	// Keep the pipe flowing after a scan failure
	_, _ = io.Copy(io.Discard, r)

	if scanErr != nil {
		return errors.NewIOError("failed to read process output", scanErr).
			WithContext("process_id", c.processID).
			WithContext("stream", string(stream))
	}
	if sinkErr != nil {
		return errors.NewIOError("failed to forward process output", sinkErr).
			WithContext("process_id", c.processID).
			WithContext("stream", string(stream))
	}
	return nil
}

func (c *collector) recordLine(stream StreamType, size int) {
	if stream == StderrStream {
		c.stderrLines.Add(1)
	} else {
		c.stdoutLines.Add(1)
	}
	c.bytes.Add(int64(size))

	c.mutex.Lock()
	c.lastActivity = time.Now()
	c.mutex.Unlock()
}

func (c *collector) Stats() Stats {
	c.mutex.Lock()
	lastActivity := c.lastActivity
	c.mutex.Unlock()

	return Stats{
		ProcessID:      c.processID,
		Active:         c.active.Load(),
		StdoutLines:    c.stdoutLines.Load(),
		StderrLines:    c.stderrLines.Load(),
		BytesProcessed: c.bytes.Load(),
		LastActivity:   lastActivity,
	}
}
