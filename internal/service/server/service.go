package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/oshokin/launcher-updater/internal/api/http/authority"
	"github.com/oshokin/launcher-updater/internal/domain/artifact"
	"github.com/oshokin/launcher-updater/internal/logger"
	repo "github.com/oshokin/launcher-updater/internal/repository/release"
)

// releaseRepository is the part of the release repository the service needs.
type releaseRepository interface {
	repo.Repository
	ArtifactPath(remote *artifact.RemoteVersion) (string, error)
}

// service reads the published release on every request, so a new
// publication is served without a restart.
type service struct {
	// repo holds the published release.
	repo releaseRepository
}

// newService creates a service backed by the provided repository.
func newService(repository releaseRepository) *service {
	return &service{
		repo: repository,
	}
}

// Release returns the published record and the path of its artifact.
func (s *service) Release(ctx context.Context) (*artifact.RemoteVersion, string, error) {
	remote, err := s.repo.Load(ctx)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, "", authority.ErrNoRelease
		}

		return nil, "", fmt.Errorf("load release: %w", err)
	}

	artifactPath, err := s.repo.ArtifactPath(remote)
	if err != nil {
		return nil, "", err
	}

	logger.DebugKV(ctx, "Release requested", "version", remote.Version, "file_name", remote.FileName)

	return remote, artifactPath, nil
}
