package errors

import (
	"sync"

	"go.uber.org/multierr"
)

// ErrorCollection accumulates independent failures, e.g. one per stopped
// subtree, so that processing can continue and report everything at the end.
// It is safe for concurrent use.
type ErrorCollection struct {
	mu  sync.Mutex
	err error
}

func NewErrorCollection() *ErrorCollection {
	return &ErrorCollection{}
}

// Add records err; nil errors are ignored
func (c *ErrorCollection) Add(err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = multierr.Append(c.err, err)
}

func (c *ErrorCollection) HasErrors() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err != nil
}

// Errors returns the recorded errors in insertion order
func (c *ErrorCollection) Errors() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return multierr.Errors(c.err)
}

// ToError returns nil when nothing was recorded, the single error when one
// was, and a combined error otherwise.
func (c *ErrorCollection) ToError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}
