package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Minlor/TwintailLauncher/internal/storage"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	db, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db)
}

func TestGlobalBandwidthCapDefaultsToZeroWhenUnset(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GlobalBandwidthCapBytesPerSec()
	require.NoError(t, err)
	assert.Equal(t, 0, got)
}

func TestSetGlobalBandwidthCapThenGet(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetGlobalBandwidthCapBytesPerSec(5_000_000))

	got, err := s.GlobalBandwidthCapBytesPerSec()
	require.NoError(t, err)
	assert.Equal(t, 5_000_000, got)
}

func TestInstallDirRoundTrips(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetInstallDir("install-1", "/games/wuwa"))

	dir, err := s.InstallDir("install-1")
	require.NoError(t, err)
	assert.Equal(t, "/games/wuwa", dir)
}

func TestInstallDirOnUnknownInstallReturnsError(t *testing.T) {
	s := newTestStore(t)
	_, err := s.InstallDir("does-not-exist")
	assert.Error(t, err)
}
