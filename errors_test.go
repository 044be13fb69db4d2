package narrator

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	cause := errors.New("no resource")
	runtimeErr := NewRuntimeError(cause)
	assert.Equal(t, "runtime error: no resource", runtimeErr.Error())
	assert.ErrorIs(t, runtimeErr, cause)
	assert.True(t, IsRuntimeError(fmt.Errorf("wrapped: %w", runtimeErr)))
	assert.False(t, IsTestFailureError(runtimeErr))

	failure := NewTestFailureError("2 runs failed")
	assert.Equal(t, "test failure: 2 runs failed", failure.Error())
	assert.True(t, IsTestFailureError(fmt.Errorf("wrapped: %w", failure)))
	assert.False(t, IsRuntimeError(failure))

	assert.False(t, IsRuntimeError(nil))
	assert.False(t, IsTestFailureError(nil))
}
