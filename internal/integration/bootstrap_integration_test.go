package integration

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/launcher-updater/internal/config"
	"github.com/oshokin/launcher-updater/internal/service/bootstrap"
	"github.com/oshokin/launcher-updater/internal/service/launcher"
	"github.com/oshokin/launcher-updater/internal/service/publisher"
)

// writeScript creates an executable launcher script that records name when started.
func writeScript(t *testing.T, path, name string) {
	t.Helper()

	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\necho "+name+" > started.txt\n"), 0o700))
}

// waitStarted waits until the launcher in dir reports which build was started.
func waitStarted(t *testing.T, dir string) string {
	t.Helper()

	marker := filepath.Join(dir, "started.txt")

	var content []byte

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(marker)
		if err != nil || len(data) == 0 {
			return false
		}

		content = data

		return true
	}, 5*time.Second, 20*time.Millisecond)

	return string(content)
}

// saveSettings writes a settings file pointing at baseURL and returns its path.
func saveSettings(t *testing.T, dir, baseURL string) string {
	t.Helper()

	path := filepath.Join(dir, config.DefaultConfigFilename)
	require.NoError(t, config.Save(path, &config.Config{
		BaseURL:        baseURL,
		LogFile:        "updater.log",
		LogLevel:       "debug",
		SettleDelay:    time.Millisecond,
		RequestTimeout: 2 * time.Second,
	}))

	return path
}

// TestBootstrap_UpdatesAndRelaunches publishes a new launcher, runs the bootstrapper
// against the live server and checks that the new build was installed and started.
//
// Bootstrap replaces the global logger, so these tests do not run in parallel.
func TestBootstrap_UpdatesAndRelaunches(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("launcher scripts need a POSIX shell")
	}

	releaseDir := t.TempDir()
	newBuild := filepath.Join(releaseDir, "launcher.sh")
	writeScript(t, newBuild, "new")

	publishDir := filepath.Join(t.TempDir(), "publish")

	_, err := publisher.Run(context.Background(), &publisher.Options{
		ConfigPath:   filepath.Join(t.TempDir(), "missing.yaml"),
		ArtifactPath: newBuild,
		Version:      "2.0.0",
		OutDir:       publishDir,
	})
	require.NoError(t, err)

	baseURL := startServer(t, publishDir)

	installDir := t.TempDir()
	installed := filepath.Join(installDir, "launcher.sh")
	writeScript(t, installed, "old")

	err = bootstrap.Run(context.Background(), &bootstrap.Options{
		LauncherPath: installed,
		Predecessor:  "0",
		ConfigPath:   saveSettings(t, installDir, baseURL),
	})
	require.NoError(t, err)

	require.Equal(t, "new\n", waitStarted(t, installDir))

	backup, err := os.ReadFile(installed + ".bak")
	require.NoError(t, err)
	require.Contains(t, string(backup), "echo old")

	logContents, err := os.ReadFile(filepath.Join(installDir, "updater.log"))
	require.NoError(t, err)
	require.Contains(t, string(logContents), "Launcher started")
}

// TestBootstrap_RemoteUnavailable relaunches the installed launcher when the
// authority cannot be reached and fails when there is nothing to launch.
func TestBootstrap_RemoteUnavailable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("launcher scripts need a POSIX shell")
	}

	baseURL := "http://" + reservePort(t)

	installDir := t.TempDir()
	installed := filepath.Join(installDir, "launcher.sh")
	writeScript(t, installed, "old")

	settings := saveSettings(t, installDir, baseURL)

	err := bootstrap.Run(context.Background(), &bootstrap.Options{
		LauncherPath: installed,
		Predecessor:  "not-a-pid",
		ConfigPath:   settings,
	})
	require.NoError(t, err)
	require.Equal(t, "old\n", waitStarted(t, installDir))
	require.NoFileExists(t, installed+".bak")

	err = bootstrap.Run(context.Background(), &bootstrap.Options{
		LauncherPath: filepath.Join(installDir, "missing.sh"),
		ConfigPath:   settings,
	})
	require.ErrorIs(t, err, launcher.ErrArtifactNotFound)
}
