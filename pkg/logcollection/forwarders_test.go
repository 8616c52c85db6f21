package logcollection

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/core-tools/hsu-proctree/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockLogger is a mock implementation of Logger for testing
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) LogLevelf(level int, format string, args ...interface{}) {
	m.Called(format, args)
}

func (m *MockLogger) Debugf(format string, args ...interface{}) {
	m.Called(format, args)
}

func (m *MockLogger) Infof(format string, args ...interface{}) {
	m.Called(format, args)
}

func (m *MockLogger) Warnf(format string, args ...interface{}) {
	m.Called(format, args)
}

func (m *MockLogger) Errorf(format string, args ...interface{}) {
	m.Called(format, args)
}

func TestLoggerForwarder_RoutesStreams(t *testing.T) {
	logger := &MockLogger{}
	logger.On("Infof", "[%s] %s", []interface{}{"svc", "hello"}).Once()
	logger.On("Infof", "[%s] %s", []interface{}{"svc", "world"}).Once()
	logger.On("Warnf", "[%s] %s", []interface{}{"svc", "oops"}).Once()

	forwarder := NewLoggerForwarder("svc", logger, DefaultConfig())
	err := forwarder.ForwardLogs(strings.NewReader("hello\r\nworld\n"), strings.NewReader("oops\n"))
	require.NoError(t, err)

	logger.AssertExpectations(t)

	stats := forwarder.Stats()
	assert.Equal(t, "svc", stats.ProcessID)
	assert.False(t, stats.Active)
	assert.Equal(t, int64(2), stats.StdoutLines)
	assert.Equal(t, int64(1), stats.StderrLines)
	assert.False(t, stats.LastActivity.IsZero())
}

func TestLoggerForwarder_UncapturedStreamIsDrained(t *testing.T) {
	logger := &MockLogger{}
	logger.On("Infof", mock.Anything, mock.Anything).Maybe()

	stderr := strings.NewReader(strings.Repeat("noise\n", 1000))
	forwarder := NewLoggerForwarder("svc", logger, Config{CaptureStdout: true})
	require.NoError(t, forwarder.ForwardLogs(strings.NewReader("kept\n"), stderr))

	logger.AssertNotCalled(t, "Warnf", mock.Anything, mock.Anything)
	assert.Equal(t, 0, stderr.Len())
	assert.Equal(t, int64(0), forwarder.Stats().StderrLines)
}

func TestLoggerForwarder_NilStreams(t *testing.T) {
	forwarder := NewLoggerForwarder("svc", &MockLogger{}, DefaultConfig())
	assert.NoError(t, forwarder.ForwardLogs(nil, nil))
}

func TestLoggerForwarder_OversizedLine(t *testing.T) {
	logger := &MockLogger{}
	logger.On("Infof", mock.Anything, mock.Anything).Maybe()

	stdout := strings.NewReader(strings.Repeat("x", maxLineSize+10) + "\nafter\n")
	forwarder := NewLoggerForwarder("svc", logger, DefaultConfig())

	err := forwarder.ForwardLogs(stdout, nil)
	assert.True(t, errors.IsIOError(err))
	assert.Equal(t, 0, stdout.Len())
}

func TestFileForwarder_WritesRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "svc.log")

	forwarder, err := NewFileForwarder("svc", DefaultConfig(), FileConfig{Path: path, MaxSizeMB: 1})
	require.NoError(t, err)

	require.NoError(t, forwarder.ForwardLogs(strings.NewReader("line one\n"), strings.NewReader("line two\n")))
	require.NoError(t, forwarder.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[stdout] line one\n")
	assert.Contains(t, string(data), "[stderr] line two\n")
}

func TestFileForwarder_RequiresPath(t *testing.T) {
	_, err := NewFileForwarder("svc", DefaultConfig(), FileConfig{})
	assert.True(t, errors.IsValidationError(err))
}
