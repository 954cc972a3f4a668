package resume

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateIdleWhenNoMarkers(t *testing.T) {
	dir := t.TempDir()
	st, corrupted := State(dir)
	assert.False(t, corrupted)
	assert.Equal(t, false, st.Downloading || st.Updating || st.Preloading || st.Repairing)
}

func TestStateDownloading(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Create(dir, Downloading))
	st, corrupted := State(dir)
	assert.False(t, corrupted)
	assert.True(t, st.Downloading)
	assert.False(t, st.Updating)
}

func TestStateUpdatingVsPreloading(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Create(dir, Patching))
	st, corrupted := State(dir)
	assert.False(t, corrupted)
	assert.True(t, st.Updating)
	assert.False(t, st.Preloading)

	require.NoError(t, Create(dir, Preload))
	st, corrupted = State(dir)
	assert.False(t, corrupted)
	assert.True(t, st.Preloading)
	assert.False(t, st.Updating)
}

func TestStateRepairing(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Create(dir, Repairing))
	st, _ := State(dir)
	assert.True(t, st.Repairing)
}

func TestCorruptedCombinationReportsIdleWithWarning(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Create(dir, Downloading))
	require.NoError(t, Create(dir, Repairing))

	st, corrupted := State(dir)
	assert.True(t, corrupted)
	assert.False(t, st.Downloading)
	assert.False(t, st.Repairing)
}

func TestRemoveIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Create(dir, Downloading))
	require.NoError(t, Remove(dir, Downloading))
	assert.False(t, Exists(dir, Downloading))
	require.NoError(t, Remove(dir, Downloading)) // second removal: no error
}

func TestMain(m *testing.M) {
	os.Exit(m.Run())
}
