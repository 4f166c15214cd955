package authority

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/oshokin/launcher-updater/internal/domain/artifact"
	"github.com/oshokin/launcher-updater/internal/logger"
)

// ErrNoRelease is returned by a Service when nothing has been published.
var ErrNoRelease = errors.New("no release published")

// Service abstracts the release operations the transport layer depends on.
type Service interface {
	// Release returns the published record and the local path of its artifact.
	Release(ctx context.Context) (*artifact.RemoteVersion, string, error)
}

// Server serves the version and download endpoints.
type Server struct {
	// service provides the published release.
	service Service
	// versionPath is the version endpoint.
	versionPath string
	// downloadPath is the download endpoint.
	downloadPath string
}

// NewServer wires the provided service implementation into HTTP handlers.
func NewServer(service Service, versionPath, downloadPath string) *Server {
	return &Server{
		service:      service,
		versionPath:  path.Join("/", versionPath),
		downloadPath: path.Join("/", downloadPath),
	}
}

// Handler returns the router with all endpoints and middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get(s.versionPath, s.handleVersion)
	r.Get(s.downloadPath, s.handleDownload)

	return r
}

// handleVersion returns the version record as JSON.
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	remote, _, err := s.service.Release(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	if err = json.NewEncoder(w).Encode(remote); err != nil {
		logger.WarnKV(r.Context(), "Unable to write version record", "error", err)
	}
}

// handleDownload streams the published artifact.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	remote, artifactPath, err := s.service.Release(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	file, err := os.Open(filepath.Clean(artifactPath))
	if err != nil {
		writeError(w, r, err)
		return
	}

	defer func() {
		_ = file.Close()
	}()

	info, err := file.Stat()
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+remote.FileName+`"`)
	w.Header().Set("Cache-Control", "no-store")

	http.ServeContent(w, r, remote.FileName, info.ModTime(), file)
}

// writeError maps service errors to HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrNoRelease) || errors.Is(err, os.ErrNotExist) {
		http.Error(w, "Release not found", http.StatusNotFound)
		return
	}

	logger.ErrorKV(r.Context(), "Unable to serve release", "error", err)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

// requestLogger logs every request through the application logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		ctx := logger.WithKV(r.Context(), "request_id", middleware.GetReqID(r.Context()))

		next.ServeHTTP(ww, r.WithContext(ctx))

		logger.InfoKV(ctx, "Request served",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"user_agent", r.UserAgent(),
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(started).String())
	})
}
