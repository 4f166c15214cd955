package artifact

import (
	"errors"
	"path/filepath"
	"slices"
	"strings"
)

const (
	// BackupSuffix is appended to the original artifact path for the single backup generation.
	BackupSuffix = ".bak"
	// TempSuffix is appended to the new artifact path while it is being downloaded.
	TempSuffix = ".tmp"
)

// Kind is the way an artifact has to be started.
type Kind int

const (
	// KindNative is an artifact executed directly by the OS.
	KindNative Kind = iota
	// KindManaged is a module that must be handed to a managed-runtime host.
	KindManaged
)

// String returns a human-readable name of the kind.
func (k Kind) String() string {
	if k == KindManaged {
		return "managed"
	}

	return "native"
}

// ErrInvalidFileName is returned when a remote file name is not a bare file name.
var ErrInvalidFileName = errors.New("invalid artifact file name")

// KindOf classifies path by its extension against the managed-module extensions.
func KindOf(path string, managedExtensions []string) Kind {
	ext := filepath.Ext(path)
	if ext == "" {
		return KindNative
	}

	if slices.ContainsFunc(managedExtensions, func(managed string) bool {
		return strings.EqualFold(managed, ext)
	}) {
		return KindManaged
	}

	return KindNative
}

// BackupPath returns the backup location for an artifact path.
func BackupPath(path string) string {
	return path + BackupSuffix
}

// TempPath returns the partial-download location for an artifact path.
func TempPath(path string) string {
	return path + TempSuffix
}

// ValidateFileName makes sure name can be joined to a directory without escaping it.
func ValidateFileName(name string) error {
	if name == "" || name == "." || name == ".." {
		return ErrInvalidFileName
	}

	if strings.ContainsAny(name, `/\`) || filepath.Base(name) != name || filepath.VolumeName(name) != "" {
		return ErrInvalidFileName
	}

	return nil
}
