package supervisor

import (
	"fmt"
	"sync"
	"time"

	"github.com/core-tools/hsu-proctree/pkg/errors"
	"github.com/core-tools/hsu-proctree/pkg/logging"
)

// State is a phase in the life of the supervised process
type State string

const (
	// StateIdle is the initial state before the first launch
	StateIdle State = "idle"

	StateStarting State = "starting"
	StateRunning  State = "running"

	// StateStopping means the process tree is being terminated
	StateStopping State = "stopping"

	// StateStopped means the tree was terminated on request
	StateStopped State = "stopped"

	// StateExited means the process exited on its own
	StateExited State = "exited"

	// StateFailed means the launch failed or the tree could not be killed
	StateFailed State = "failed"
)

var validTransitions = map[State][]State{
	StateIdle:     {StateStarting},
	StateStarting: {StateRunning, StateFailed},
	StateRunning:  {StateStopping, StateExited},
	StateStopping: {StateStopped, StateFailed},
	StateStopped:  {StateStarting},
	StateExited:   {StateStarting},
	StateFailed:   {StateStarting},
}

// Transition is one recorded state change
type Transition struct {
	From      State
	To        State
	Operation string
	Timestamp time.Time
	Error     error
}

// Lifecycle validates and records state changes of one supervised process
type Lifecycle struct {
	processID   string
	current     State
	transitions []Transition
	mutex       sync.RWMutex
	logger      logging.Logger
}

func NewLifecycle(processID string, logger logging.Logger) *Lifecycle {
	return &Lifecycle{processID: processID, current: StateIdle, logger: logger}
}

func (l *Lifecycle) State() State {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return l.current
}

func (l *Lifecycle) CanTransition(to State) bool {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return l.canTransitionUnsafe(to)
}

// Transition moves to the given state if allowed from the current one
func (l *Lifecycle) Transition(to State, operation string, err error) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if !l.canTransitionUnsafe(to) {
		return errors.NewConflictError(
			fmt.Sprintf("invalid state transition from '%s' to '%s'", l.current, to),
			nil,
		).WithContext("process_id", l.processID).
			WithContext("from_state", string(l.current)).
			WithContext("to_state", string(to)).
			WithContext("operation", operation)
	}

	from := l.current
	l.transitions = append(l.transitions, Transition{
		From:      from,
		To:        to,
		Operation: operation,
		Timestamp: time.Now(),
		Error:     err,
	})
	l.current = to

	if err != nil {
		l.logger.Warnf("Process state transition failed, process: %s, %s->%s, operation: %s, error: %v",
			l.processID, from, to, operation, err)
	} else {
		l.logger.Infof("Process state transition, process: %s, %s->%s, operation: %s",
			l.processID, from, to, operation)
	}
	return nil
}

func (l *Lifecycle) canTransitionUnsafe(to State) bool {
	for _, valid := range validTransitions[l.current] {
		if valid == to {
			return true
		}
	}
	return false
}

// History returns a copy of all recorded transitions
func (l *Lifecycle) History() []Transition {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	history := make([]Transition, len(l.transitions))
	copy(history, l.transitions)
	return history
}
