package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunState_Terminal(t *testing.T) {
	assert.False(t, RunPending.Terminal())
	assert.False(t, RunRunning.Terminal())
	assert.True(t, RunCompleted.Terminal())
	assert.True(t, RunFailed.Terminal())
	assert.True(t, RunException.Terminal())
}

func TestIsValidRunTransition(t *testing.T) {
	assert.True(t, IsValidRunTransition(RunRunning, RunException))
	assert.True(t, IsValidRunTransition(RunPending, RunRunning))
	assert.False(t, IsValidRunTransition(RunCompleted, RunRunning))
	assert.False(t, IsValidRunTransition(RunException, RunRunning))
}
