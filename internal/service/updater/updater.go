package updater

import (
	"bytes"
	"context"
	"crypto"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/launcher-updater/internal/domain/artifact"
	"github.com/oshokin/launcher-updater/internal/logger"

	// Ensure SHA512 available for checksum calculation.
	_ "crypto/sha512"
)

const (
	// DefaultFileMode is applied to every installed artifact.
	DefaultFileMode os.FileMode = 0o755

	// DefaultChecksumFunction is used to verify downloaded artifacts.
	DefaultChecksumFunction crypto.Hash = crypto.SHA512
)

var (
	// ErrDownloadFailed wraps any failure while fetching the new artifact.
	ErrDownloadFailed = errors.New("download failed")
	// ErrChecksumMismatch is returned when the downloaded bytes do not match the published checksum.
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrBackupFailed is returned when the current artifact cannot be moved to its backup.
	ErrBackupFailed = errors.New("backup failed")
	// ErrSwapFailed is returned when the new artifact cannot be moved into place.
	ErrSwapFailed = errors.New("swap failed")
	// ErrNoBackup is returned by Rollback when there is nothing to restore.
	ErrNoBackup = errors.New("no backup to restore")
	// ErrInvalidFileName is returned when the remote file name would escape the artifact directory.
	ErrInvalidFileName = artifact.ErrInvalidFileName

	errHashUnavailable = errors.New("hash function unavailable")
)

// Downloader streams the current artifact from the update authority.
type Downloader interface {
	Download(ctx context.Context, w io.Writer) (int64, error)
}

// Updater replaces a local artifact with the published one.
type Updater struct {
	// source provides the artifact bytes.
	source Downloader
}

// New creates an Updater downloading from source.
func New(source Downloader) *Updater {
	return &Updater{source: source}
}

// Replace installs the published artifact described by remote in the
// directory of currentPath and returns the path of the installed artifact.
// The previous artifact, when present, is kept as currentPath + ".bak".
func (u *Updater) Replace(ctx context.Context, currentPath string, remote *artifact.RemoteVersion) (string, error) {
	if remote == nil {
		return "", fmt.Errorf("%w: no remote version", ErrDownloadFailed)
	}

	if err := artifact.ValidateFileName(remote.FileName); err != nil {
		return "", fmt.Errorf("%q: %w", remote.FileName, err)
	}

	newPath := filepath.Join(filepath.Dir(currentPath), remote.FileName)
	tempPath := artifact.TempPath(newPath)

	ctx = logger.WithKV(ctx, "current_path", currentPath, "new_path", newPath)

	logger.InfoKV(ctx, "Downloading artifact", "temp_path", tempPath, "version", remote.Version)

	checksum, err := u.download(ctx, tempPath, remote.Checksum)
	if err != nil {
		return "", err
	}

	if err = install(ctx, currentPath, newPath, tempPath, checksum); err != nil {
		return "", err
	}

	logger.InfoKV(ctx, "Artifact replaced", "version", remote.Version)

	return newPath, nil
}

// download writes the artifact to tempPath, hashing it on the way.
// The temporary file is removed when the checksum does not match.
func (u *Updater) download(ctx context.Context, tempPath, expected string) ([]byte, error) {
	if !DefaultChecksumFunction.Available() {
		return nil, fmt.Errorf("%w: %w", ErrDownloadFailed, errHashUnavailable)
	}

	output, err := os.OpenFile(filepath.Clean(tempPath), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, DefaultFileMode)
	if err != nil {
		return nil, fmt.Errorf("%w: create %s: %w", ErrDownloadFailed, tempPath, err)
	}

	hasher := DefaultChecksumFunction.New()

	written, err := u.source.Download(ctx, io.MultiWriter(output, hasher))
	if closeErr := output.Close(); err == nil && closeErr != nil {
		err = closeErr
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}

	checksum := hasher.Sum(nil)

	logger.InfoKV(ctx, "Artifact downloaded", "bytes", written)

	if expected == "" {
		return checksum, nil
	}

	want, err := base64.StdEncoding.DecodeString(expected)
	if err != nil || !bytes.Equal(want, checksum) {
		_ = os.Remove(tempPath)

		return nil, fmt.Errorf("%w: expected %s, got %s",
			ErrChecksumMismatch, expected, base64.StdEncoding.EncodeToString(checksum))
	}

	return checksum, nil
}

// install moves tempPath to newPath, keeping currentPath as its backup.
func install(ctx context.Context, currentPath, newPath, tempPath string, checksum []byte) error {
	backupPath := artifact.BackupPath(currentPath)

	_, err := os.Stat(currentPath)

	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Info(ctx, "No current artifact, installing without backup")

		return moveIntoPlace(tempPath, newPath)
	case err != nil:
		return fmt.Errorf("%w: stat %s: %w", ErrBackupFailed, currentPath, err)
	case filepath.Clean(currentPath) == filepath.Clean(newPath):
		return applyInPlace(ctx, currentPath, tempPath, backupPath, checksum)
	}

	if err = backup(currentPath, backupPath); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Current artifact backed up", "backup_path", backupPath)

	if err = moveIntoPlace(tempPath, newPath); err != nil {
		if restoreErr := os.Rename(backupPath, currentPath); restoreErr != nil {
			logger.ErrorKV(ctx, "Unable to restore backup", "error", restoreErr)
		}

		return err
	}

	return nil
}

// applyInPlace swaps the downloaded bytes into currentPath with go-update,
// which saves the previous file to backupPath and restores it if the swap fails.
func applyInPlace(ctx context.Context, currentPath, tempPath, backupPath string, checksum []byte) error {
	if err := removeStale(backupPath); err != nil {
		return err
	}

	input, err := os.Open(filepath.Clean(tempPath))
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrSwapFailed, tempPath, err)
	}

	logger.Debug(ctx, "Applying update")

	err = goupdate.Apply(input, goupdate.Options{
		TargetPath:  currentPath,
		TargetMode:  DefaultFileMode,
		Checksum:    checksum,
		Hash:        DefaultChecksumFunction,
		OldSavePath: backupPath,
	})

	_ = input.Close()

	if err != nil {
		return fmt.Errorf("%w: %w", ErrSwapFailed, err)
	}

	logger.InfoKV(ctx, "Current artifact backed up", "backup_path", backupPath)

	if err = os.Remove(tempPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.WarnKV(ctx, "Unable to remove temporary file", "path", tempPath, "error", err)
	}

	return nil
}

// backup replaces any stale backup with currentPath.
func backup(currentPath, backupPath string) error {
	if err := removeStale(backupPath); err != nil {
		return err
	}

	if err := os.Rename(currentPath, backupPath); err != nil {
		return fmt.Errorf("%w: %w", ErrBackupFailed, err)
	}

	return nil
}

// removeStale deletes the previous backup generation.
func removeStale(backupPath string) error {
	if err := os.Remove(backupPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: remove stale backup: %w", ErrBackupFailed, err)
	}

	return nil
}

// moveIntoPlace renames tempPath to newPath, overwriting newPath.
func moveIntoPlace(tempPath, newPath string) error {
	if err := os.Rename(tempPath, newPath); err != nil {
		return fmt.Errorf("%w: %w", ErrSwapFailed, err)
	}

	if err := os.Chmod(newPath, DefaultFileMode); err != nil {
		return fmt.Errorf("%w: chmod: %w", ErrSwapFailed, err)
	}

	return nil
}

// Rollback restores path from its backup, discarding the current artifact.
func Rollback(ctx context.Context, path string) error {
	backupPath := artifact.BackupPath(path)

	if _, err := os.Stat(backupPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", backupPath, ErrNoBackup)
		}

		return fmt.Errorf("stat %s: %w", backupPath, err)
	}

	if err := os.Rename(backupPath, path); err != nil {
		return fmt.Errorf("restore %s: %w", path, err)
	}

	logger.InfoKV(ctx, "Artifact restored from backup", "path", path, "backup_path", backupPath)

	return nil
}

// Checksum returns the base64 SHA-512 digest of the file at path.
func Checksum(path string) (string, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", err
	}

	defer func() {
		_ = file.Close()
	}()

	if !DefaultChecksumFunction.Available() {
		return "", fmt.Errorf("checksum calculation not possible: %w", errHashUnavailable)
	}

	hasher := DefaultChecksumFunction.New()
	if _, err = io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("calculate checksum: %w", err)
	}

	return base64.StdEncoding.EncodeToString(hasher.Sum(nil)), nil
}
