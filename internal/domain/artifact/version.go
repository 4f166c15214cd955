package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrIncompleteVersionInfo is returned when the version record lacks a mandatory field.
var ErrIncompleteVersionInfo = errors.New("version info is incomplete")

// RemoteVersion is the update target announced by the update authority.
type RemoteVersion struct {
	// Version is the version string of the published artifact.
	Version string `json:"version"`
	// FileName is the bare file name the artifact must have on disk.
	FileName string `json:"fileName"`
	// Checksum is an optional base64-encoded SHA-512 of the artifact bytes.
	Checksum string `json:"checksum,omitempty"`
}

// ParseRemoteVersion decodes a version record and checks that both mandatory fields are set.
func ParseRemoteVersion(data []byte) (*RemoteVersion, error) {
	var remote RemoteVersion
	if err := json.Unmarshal(data, &remote); err != nil {
		return nil, fmt.Errorf("decode version info: %w", err)
	}

	remote.Version = strings.TrimSpace(remote.Version)
	remote.FileName = strings.TrimSpace(remote.FileName)
	remote.Checksum = strings.TrimSpace(remote.Checksum)

	if remote.Version == "" {
		return nil, fmt.Errorf("%w: version is empty", ErrIncompleteVersionInfo)
	}

	if remote.FileName == "" {
		return nil, fmt.Errorf("%w: file name is empty", ErrIncompleteVersionInfo)
	}

	return &remote, nil
}
