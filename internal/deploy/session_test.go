package deploy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_RejectsBackwardTransitions(t *testing.T) {
	now := time.Now()
	s := newSession("id", now)

	require.NoError(t, s.setStatus(Init, Running, now))
	require.NoError(t, s.setStatus(Init, Succeeded, now))
	require.NoError(t, s.setStatus(Building, Running, now))

	assert.Error(t, s.setStatus(Init, Failed, now), "earlier stage")
	assert.Error(t, s.setStatus(Building, Queued, now), "status regression")
	require.NoError(t, s.setStatus(Building, Failed, now))
	assert.Error(t, s.setStatus(Building, Succeeded, now), "terminal status")

	assert.Equal(t, Building, s.Current())
	assert.False(t, s.Finished())
	require.NoError(t, s.setStatus(Done, Failed, now))
	assert.True(t, s.Finished())
	assert.Len(t, s.Transitions(), 5)
}

func TestSession_CopiesState(t *testing.T) {
	s := newSession("id", time.Now())
	s.appendLog(Init, "hello")

	logs := s.Logs(Init)
	logs[0] = "changed"
	assert.Equal(t, []string{"hello"}, s.Logs(Init))

	statuses := s.Statuses()
	statuses[Init] = Failed
	assert.Equal(t, Queued, s.Status(Init))
}

func TestStrings(t *testing.T) {
	assert.Equal(t, "PrepareUpload", PrepareUpload.String())
	assert.Equal(t, "CreateShortcut", CreateShortcut.String())
	assert.Equal(t, "Succeeded", Succeeded.String())
	assert.Equal(t, "shortcut_failed", OutcomeShortcutFailed.String())
	assert.Equal(t, "Unknown", Stage(42).String())
}

func TestStageError(t *testing.T) {
	err := &StageError{Stage: Uploading, Err: assert.AnError}
	assert.Equal(t, "Uploading failed: "+assert.AnError.Error(), err.Error())
	assert.ErrorIs(t, err, assert.AnError)
}
