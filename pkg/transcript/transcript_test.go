package transcript

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docker/deskpilot/pkg/action"
	"github.com/docker/deskpilot/pkg/backend"
	"github.com/docker/deskpilot/pkg/session"
)

func TestSaveAndLoad(t *testing.T) {
	t.Parallel()

	sess, _, err := session.NewRegistry().GetOrCreate("conv/1", "open the browser", backend.ToolCall, session.CreateIfMissing)
	require.NoError(t, err)
	sess.AddNarrative("Opening")
	sess.AddAction(action.Descriptor{Type: action.LeftClick, Coordinate: &[2]int{1, 2}})
	sess.AddObservation(action.Result{Action: action.Screenshot, Image: "aW1n"})

	dir := filepath.Join(t.TempDir(), "transcripts")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	path, err := Save(dir, New(sess, now))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "conv_1.json"), path)

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "conv/1", got.Session.ID)
	assert.Equal(t, backend.ToolCall, got.Session.Backend)
	require.Len(t, got.History, 3)
	assert.Equal(t, session.ActionEntry, got.History[1].Kind)
	assert.Empty(t, got.History[2].Result.Image)
	assert.True(t, now.Equal(got.ExportedAt))

	// saving again replaces the file
	sess.AddNarrative("More")
	_, err = Save(dir, New(sess, now))
	require.NoError(t, err)
	got, err = Load(path)
	require.NoError(t, err)
	assert.Len(t, got.History, 4)
}

func TestSave_RequiresID(t *testing.T) {
	t.Parallel()

	_, err := Save(t.TempDir(), Transcript{})
	require.Error(t, err)
}
