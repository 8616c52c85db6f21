package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainError_Message(t *testing.T) {
	cause := fmt.Errorf("operation not permitted")
	err := NewProcessError("failed to kill process", cause).
		WithContext("pid", 42).
		WithContext("executable", "/bin/sleep")

	assert.Equal(t,
		"process: failed to kill process [executable=/bin/sleep, pid=42]: operation not permitted",
		err.Error())
	assert.Equal(t, cause, err.Unwrap())
}

func TestDomainError_Predicates(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"validation", NewValidationError("bad", nil), IsValidationError},
		{"not_found", NewNotFoundError("gone", nil), IsNotFoundError},
		{"process", NewProcessError("kill", nil), IsProcessError},
		{"io", NewIOError("read", nil), IsIOError},
		{"timeout", NewTimeoutError("slow", nil), IsTimeoutError},
		{"permission", NewPermissionError("denied", nil), IsPermissionError},
		{"unsupported", NewUnsupportedError("nope", nil), IsUnsupportedError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
			assert.True(t, tt.check(fmt.Errorf("wrapped: %w", tt.err)))
			assert.False(t, IsConflictError(tt.err))
		})
	}
}

func TestDomainError_NestedCause(t *testing.T) {
	inner := NewPermissionError("access denied", nil)
	outer := NewValidationError("configuration validation failed", inner)

	assert.True(t, IsValidationError(outer))
	assert.True(t, IsPermissionError(outer))
	assert.False(t, IsValidationError(fmt.Errorf("plain")))
}

func TestErrorCollection(t *testing.T) {
	collection := NewErrorCollection()
	assert.False(t, collection.HasErrors())
	assert.NoError(t, collection.ToError())

	collection.Add(nil)
	assert.False(t, collection.HasErrors())

	first := NewProcessError("failed to kill process", nil).WithContext("pid", 10)
	second := NewProcessError("failed to kill process", nil).WithContext("pid", 11)
	collection.Add(first)
	collection.Add(second)

	require.True(t, collection.HasErrors())
	assert.Equal(t, []error{first, second}, collection.Errors())

	combined := collection.ToError()
	require.Error(t, combined)
	assert.Contains(t, combined.Error(), "pid=10")
	assert.Contains(t, combined.Error(), "pid=11")
	assert.True(t, IsProcessError(collection.Errors()[1]))
}
