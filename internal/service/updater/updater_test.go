package updater

import (
	"context"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/launcher-updater/internal/domain/artifact"
)

var errConnectionReset = errors.New("connection reset")

// staticDownloader writes fixed content or fails after a partial write.
type staticDownloader struct {
	// content is written to the destination.
	content []byte
	// err is returned after content has been written.
	err error
}

func (d staticDownloader) Download(_ context.Context, w io.Writer) (int64, error) {
	n, err := w.Write(d.content)
	if err != nil {
		return int64(n), err
	}

	return int64(n), d.err
}

// writeFile creates a file with the given content.
func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

// readFile returns the content of path.
func readFile(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	return string(data)
}

// checksumOf returns the published checksum of content.
func checksumOf(content string) string {
	sum := sha512.Sum512([]byte(content))

	return base64.StdEncoding.EncodeToString(sum[:])
}

// TestReplace_FirstInstall installs without a backup when no artifact exists yet.
func TestReplace_FirstInstall(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	current := filepath.Join(dir, "App.exe")

	u := New(staticDownloader{content: []byte("v1")})

	path, err := u.Replace(context.Background(), current, &artifact.RemoteVersion{Version: "1.0.0", FileName: "App.exe"})
	require.NoError(t, err)
	require.Equal(t, current, path)
	require.Equal(t, "v1", readFile(t, current))
	require.NoFileExists(t, artifact.BackupPath(current))
	require.NoFileExists(t, artifact.TempPath(current))

	info, err := os.Stat(current)
	require.NoError(t, err)
	require.Equal(t, DefaultFileMode, info.Mode().Perm())
}

// TestReplace_SameName keeps the previous bytes as the backup.
func TestReplace_SameName(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	current := filepath.Join(dir, "App.exe")
	writeFile(t, current, "v1")

	u := New(staticDownloader{content: []byte("v2")})

	path, err := u.Replace(context.Background(), current,
		&artifact.RemoteVersion{Version: "2.0.0", FileName: "App.exe", Checksum: checksumOf("v2")})
	require.NoError(t, err)
	require.Equal(t, current, path)
	require.Equal(t, "v2", readFile(t, current))
	require.Equal(t, "v1", readFile(t, artifact.BackupPath(current)))
	require.NoFileExists(t, artifact.TempPath(current))
}

// TestReplace_FileNameChanged backs up the old artifact under its own name.
func TestReplace_FileNameChanged(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	current := filepath.Join(dir, "App.exe")
	writeFile(t, current, "native")

	u := New(staticDownloader{content: []byte("managed")})

	path, err := u.Replace(context.Background(), current, &artifact.RemoteVersion{Version: "1.0.0", FileName: "App.dll"})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "App.dll"), path)
	require.Equal(t, "managed", readFile(t, path))
	require.Equal(t, "native", readFile(t, filepath.Join(dir, "App.exe.bak")))
	require.NoFileExists(t, current)
}

// TestReplace_ReplacesStaleBackup keeps a single backup generation.
func TestReplace_ReplacesStaleBackup(t *testing.T) {
	t.Parallel()

	for _, fileName := range []string{"App.exe", "App.dll"} {
		dir := t.TempDir()
		current := filepath.Join(dir, "App.exe")
		writeFile(t, current, "v2")
		writeFile(t, artifact.BackupPath(current), "v1")

		u := New(staticDownloader{content: []byte("v3")})

		_, err := u.Replace(context.Background(), current, &artifact.RemoteVersion{Version: "3.0.0", FileName: fileName})
		require.NoError(t, err)
		require.Equal(t, "v2", readFile(t, artifact.BackupPath(current)))
	}
}

// TestReplace_DownloadFailure leaves the installed artifact and backup untouched.
func TestReplace_DownloadFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	current := filepath.Join(dir, "App.exe")
	writeFile(t, current, "v1")

	u := New(staticDownloader{content: []byte("partial"), err: errConnectionReset})

	_, err := u.Replace(context.Background(), current, &artifact.RemoteVersion{Version: "2.0.0", FileName: "App.exe"})
	require.ErrorIs(t, err, ErrDownloadFailed)
	require.ErrorIs(t, err, errConnectionReset)
	require.Equal(t, "v1", readFile(t, current))
	require.NoFileExists(t, artifact.BackupPath(current))
}

// TestReplace_ChecksumMismatch discards the download.
func TestReplace_ChecksumMismatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	current := filepath.Join(dir, "App.exe")
	writeFile(t, current, "v1")

	u := New(staticDownloader{content: []byte("tampered")})

	_, err := u.Replace(context.Background(), current,
		&artifact.RemoteVersion{Version: "2.0.0", FileName: "App.exe", Checksum: checksumOf("v2")})
	require.ErrorIs(t, err, ErrChecksumMismatch)
	require.Equal(t, "v1", readFile(t, current))
	require.NoFileExists(t, artifact.TempPath(current))
	require.NoFileExists(t, artifact.BackupPath(current))
}

// TestReplace_InvalidFileName refuses names that leave the artifact directory.
func TestReplace_InvalidFileName(t *testing.T) {
	t.Parallel()

	current := filepath.Join(t.TempDir(), "App.exe")
	u := New(staticDownloader{content: []byte("v2")})

	for _, fileName := range []string{"../App.exe", "", "sub/App.exe"} {
		_, err := u.Replace(context.Background(), current, &artifact.RemoteVersion{Version: "2.0.0", FileName: fileName})
		require.ErrorIs(t, err, ErrInvalidFileName)
	}
}

// TestRollback restores the backup once.
func TestRollback(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	current := filepath.Join(dir, "App.exe")
	writeFile(t, current, "v2")
	writeFile(t, artifact.BackupPath(current), "v1")

	require.NoError(t, Rollback(context.Background(), current))
	require.Equal(t, "v1", readFile(t, current))
	require.NoFileExists(t, artifact.BackupPath(current))

	require.ErrorIs(t, Rollback(context.Background(), current), ErrNoBackup)
}

// TestChecksum matches the published checksum format.
func TestChecksum(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "App.exe")
	writeFile(t, path, "payload")

	sum, err := Checksum(path)
	require.NoError(t, err)
	require.Equal(t, checksumOf("payload"), sum)

	_, err = Checksum(filepath.Join(t.TempDir(), "missing"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
