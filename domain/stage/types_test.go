package stage

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_LinearForwardOnly(t *testing.T) {
	tr := NewTracker()
	assert.Equal(t, Pending, tr.Current())

	require.NoError(t, tr.Advance(Loaded, time.Millisecond))
	assert.Error(t, tr.Advance(Sanitized, 0), "skipping Engineered")
	assert.Error(t, tr.Advance(Loaded, 0), "repeating a stage")

	for _, s := range Order[1:] {
		require.NoError(t, tr.Advance(s, 0))
	}
	assert.True(t, tr.Current().Terminal())
	assert.Error(t, tr.Advance(Persisted, 0))
	assert.Len(t, tr.Results(), len(Order))
}

func TestTracker_FailKeepsStage(t *testing.T) {
	tr := NewTracker()
	require.NoError(t, tr.Advance(Loaded, 0))
	require.NoError(t, tr.Advance(Engineered, 0))
	require.NoError(t, tr.Advance(Sanitized, 0))
	tr.Fail(errors.New("single class"), time.Second)

	assert.Equal(t, Sanitized, tr.Current())
	last := tr.Results()[len(tr.Results())-1]
	assert.Equal(t, Selected, last.Stage)
	assert.False(t, last.Success)
	assert.Equal(t, "single class", last.Error)
}
