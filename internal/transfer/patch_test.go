package transfer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Minlor/TwintailLauncher/internal/model"
	"github.com/Minlor/TwintailLauncher/internal/resume"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckDiskSpaceRejectsOversizedDeclaration(t *testing.T) {
	env := testEnv()
	err := checkDiskSpace(env, t.TempDir(), 1<<62) // larger than any real disk
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientDisk)
}

func TestCheckDiskSpaceAllowsZeroDeclaration(t *testing.T) {
	env := testEnv()
	assert.NoError(t, checkDiskSpace(env, t.TempDir(), 0))
}

func TestApplyPatchPreloadLeavesOuterMarkerForLiveSwitch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("patched"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	env := testEnv()
	req := &Request{InstallID: "i1", JobID: 1, Kind: model.JobPreload, Name: "Game", TargetDir: dir}
	patch := PatchSet{
		Raw:     []RawManifestEntry{{Path: "res.bin", Size: 7}},
		Preload: true,
	}
	req.BaseURL = srv.URL

	res := ApplyPatch(context.Background(), env, req, patch)
	require.Equal(t, model.OutcomeCompleted, res.Outcome)

	assert.True(t, resume.Exists(dir, resume.Patching), "outer patching marker stays until the live switch")
	assert.False(t, resume.Exists(dir, resume.Preload), "preload sub-marker clears once staged")
}

func TestApplyPatchNonPreloadClearsPatchingMarker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("patched"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	env := testEnv()
	req := &Request{InstallID: "i1", JobID: 1, Kind: model.JobUpdate, Name: "Game", TargetDir: dir, BaseURL: srv.URL}
	patch := PatchSet{Raw: []RawManifestEntry{{Path: "res.bin", Size: 7}}}

	res := ApplyPatch(context.Background(), env, req, patch)
	require.Equal(t, model.OutcomeCompleted, res.Outcome)
	assert.False(t, resume.Exists(dir, resume.Patching))
}
