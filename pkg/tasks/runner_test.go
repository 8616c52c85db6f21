package tasks

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/core-tools/hsu-proctree/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
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

func newMockLogger() *MockLogger {
	logger := &MockLogger{}
	logger.On("Debugf", mock.Anything, mock.Anything).Maybe()
	logger.On("Infof", mock.Anything, mock.Anything).Maybe()
	logger.On("Warnf", mock.Anything, mock.Anything).Maybe()
	logger.On("Errorf", mock.Anything, mock.Anything).Maybe()
	return logger
}

func TestRunner_RunsTask(t *testing.T) {
	runner := NewRunner(newMockLogger())

	done := make(chan struct{})
	runner.Run("close", func() error {
		close(done)
		return nil
	})
	runner.Wait()

	<-done
	assert.Equal(t, int64(1), runner.Started())
	assert.Equal(t, int64(0), runner.Failures())
}

func TestRunner_ErrorIsIsolated(t *testing.T) {
	logger := newMockLogger()
	runner := NewRunner(logger)

	var hookName string
	var hookErr error
	runner.SetFailureHook(func(name string, err error) {
		hookName, hookErr = name, err
	})

	runner.Run("failing", func() error {
		return fmt.Errorf("boom")
	})
	runner.Wait()

	assert.Equal(t, int64(1), runner.Failures())
	assert.Equal(t, "failing", hookName)
	assert.EqualError(t, hookErr, "boom")
	logger.AssertCalled(t, "Errorf", "Task %s failed unexpectedly: %v", mock.Anything)
}

func TestRunner_PanicIsIsolated(t *testing.T) {
	runner := NewRunner(newMockLogger())

	assert.NotPanics(t, func() {
		runner.Run("panicking", func() error {
			panic("watcher exploded")
		})
		runner.Wait()
	})

	assert.Equal(t, int64(1), runner.Failures())
}

func TestRunner_ManyTasks(t *testing.T) {
	runner := NewRunner(newMockLogger())

	var mu sync.Mutex
	seen := map[int]bool{}
	for i := 0; i < 20; i++ {
		i := i
		runner.Run(fmt.Sprintf("task-%d", i), func() error {
			mu.Lock()
			defer mu.Unlock()
			seen[i] = true
			if i%5 == 0 {
				return fmt.Errorf("task %d failed", i)
			}
			return nil
		})
	}
	runner.Wait()

	assert.Len(t, seen, 20)
	assert.Equal(t, int64(20), runner.Started())
	assert.Equal(t, int64(4), runner.Failures())
}

func TestRunner_RejectsTasksAfterWait(t *testing.T) {
	runner := NewRunner(newMockLogger())

	release := make(chan struct{})
	assert.NoError(t, runner.Run("blocking", func() error {
		<-release
		return nil
	}))

	waited := make(chan struct{})
	go func() {
		runner.Wait()
		close(waited)
	}()

	// Wait closes the runner before it blocks; poll until a task is refused
	var err error
	assert.Eventually(t, func() bool {
		err = runner.Run("late", func() error { return nil })
		return err != nil
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, errors.IsConflictError(err))

	close(release)
	select {
	case <-waited:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return")
	}
	assert.Equal(t, int64(0), runner.Failures())
}
