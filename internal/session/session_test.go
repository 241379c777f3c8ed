package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusInitializing, StatusRunning, true},
		{StatusInitializing, StatusFailed, true},
		{StatusInitializing, StatusPaused, false},
		{StatusRunning, StatusPaused, true},
		{StatusRunning, StatusCompleted, true},
		{StatusRunning, StatusFailed, true},
		{StatusRunning, StatusRunning, false},
		{StatusPaused, StatusRunning, true},
		{StatusPaused, StatusFailed, true},
		{StatusPaused, StatusCompleted, false},
		{StatusCompleted, StatusRunning, false},
		{StatusCompleted, StatusPaused, false},
		{StatusFailed, StatusRunning, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, CanTransition(tt.from, tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}

func TestStatus_Terminal(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.False(t, StatusPaused.Terminal())
	assert.False(t, StatusInitializing.Terminal())
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("paused")
	require.NoError(t, err)
	assert.Equal(t, StatusPaused, s)

	_, err = ParseStatus("cancelled")
	assert.Error(t, err)
}
