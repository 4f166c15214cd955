package release

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/launcher-updater/internal/domain/artifact"
)

// TestFileRepository_NotFound verifies Load returns ErrNotFound for an empty publish directory.
func TestFileRepository_NotFound(t *testing.T) {
	t.Parallel()

	repo := NewFileRepository(filepath.Join(t.TempDir(), "publish"))
	remote, err := repo.Load(context.Background())
	require.ErrorIs(t, err, ErrNotFound)
	require.Nil(t, remote)
}

// TestFileRepository_SaveLoad ensures the record written by Save is the one served by Load.
func TestFileRepository_SaveLoad(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "publish")
	repo := NewFileRepository(dir)

	want := &artifact.RemoteVersion{Version: "2.0.0", FileName: "App.dll", Checksum: "c3VtCg=="}
	require.NoError(t, repo.Save(context.Background(), want))

	got, err := repo.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, want, got)

	contents, err := os.ReadFile(filepath.Join(dir, RecordFilename))
	require.NoError(t, err)
	require.Contains(t, string(contents), `"fileName": "App.dll"`)
	require.NoFileExists(t, filepath.Join(dir, RecordFilename+artifact.TempSuffix))
}

// TestFileRepository_Incomplete rejects records missing a mandatory field.
func TestFileRepository_Incomplete(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, RecordFilename), []byte(`{"version":"1.0.0"}`), 0o600))

	_, err := NewFileRepository(dir).Load(context.Background())
	require.ErrorIs(t, err, artifact.ErrIncompleteVersionInfo)
}

// TestFileRepository_ArtifactPath keeps the artifact inside the publish directory.
func TestFileRepository_ArtifactPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	repo := NewFileRepository(dir)

	path, err := repo.ArtifactPath(&artifact.RemoteVersion{FileName: "App.exe"})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "App.exe"), path)

	_, err = repo.ArtifactPath(&artifact.RemoteVersion{FileName: "../App.exe"})
	require.ErrorIs(t, err, artifact.ErrInvalidFileName)
}
