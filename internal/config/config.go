package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds settings shared by the launcher-updater binaries.
type Config struct {
	// BaseURL is the root URL of the update authority. Empty disables remote checks.
	BaseURL string `yaml:"base_url"`
	// VersionPath is the sub-path of the version query endpoint.
	VersionPath string `yaml:"version_path"`
	// DownloadPath is the sub-path of the artifact download endpoint.
	DownloadPath string `yaml:"download_path"`
	// LogFile is the append-only diagnostic log. Relative paths are resolved
	// against the directory of the settings file.
	LogFile string `yaml:"log_file"`
	// LogLevel is the minimum level written to the log.
	LogLevel string `yaml:"log_level"`
	// SettleDelay is the pause after the predecessor exits, before any file is touched.
	SettleDelay time.Duration `yaml:"settle_delay"`
	// ProcessWaitTimeout bounds the wait for the predecessor process.
	ProcessWaitTimeout time.Duration `yaml:"process_wait_timeout"`
	// RequestTimeout bounds the version query.
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// DownloadTimeout bounds the artifact download.
	DownloadTimeout time.Duration `yaml:"download_timeout"`
	// ManagedExtensions lists file extensions started through the runtime host.
	ManagedExtensions []string `yaml:"managed_extensions"`
	// RuntimeHost is the managed-runtime host executable.
	RuntimeHost string `yaml:"runtime_host"`
	// ListenAddress is where the update server listens.
	ListenAddress string `yaml:"listen_address"`
	// PublishDir holds the published artifact and its version record.
	PublishDir string `yaml:"publish_dir"`
}

const (
	// DefaultConfigFilename is the default filename for settings.
	DefaultConfigFilename = "launcher-updater-settings.yaml"

	// DefaultVersionPath is the default version endpoint sub-path.
	DefaultVersionPath = "version"

	// DefaultDownloadPath is the default download endpoint sub-path.
	DefaultDownloadPath = "download"

	// DefaultLogFilename is the default diagnostic log file.
	DefaultLogFilename = "launcher-updater.log"

	// DefaultLogLevel is the default minimum log level.
	DefaultLogLevel = "info"

	// DefaultSettleDelay lets the OS release file handles of an exited process.
	DefaultSettleDelay = 150 * time.Millisecond

	// DefaultProcessWaitTimeout bounds the wait for the predecessor process.
	DefaultProcessWaitTimeout = 2 * time.Minute

	// DefaultRequestTimeout bounds the version query.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultDownloadTimeout bounds the artifact download.
	DefaultDownloadTimeout = 10 * time.Minute

	// DefaultRuntimeHost is the managed-runtime host executable.
	DefaultRuntimeHost = "dotnet"

	// DefaultListenAddress is the default update server address.
	DefaultListenAddress = ":8080"

	// DefaultPublishDir is the default directory served by the update server.
	DefaultPublishDir = "publish"

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errBadExtension is returned when a managed extension does not start with a dot.
	errBadExtension = errors.New("managed extension must start with a dot")
)

// DefaultManagedExtensions returns the extensions treated as managed-runtime modules.
func DefaultManagedExtensions() []string {
	return []string{".dll"}
}

// Default returns a configuration with every optional field set and no update authority.
func Default() *Config {
	cfg := new(Config)

	// Validate only fills defaults for an empty config.
	_ = Validate(cfg)

	return cfg
}

// Load reads configuration from the provided path, applies environment overrides
// and validates it. A missing file is reported with an error wrapping os.ErrNotExist.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	if err := LoadDotEnv(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err = yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	ApplyEnv(&cfg)

	if err = Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings and fills defaults for unset fields.
//
//nolint:cyclop // One branch per optional field keeps the defaults readable.
func Validate(settings *Config) error {
	if settings == nil {
		return errConfigIsNotSet
	}

	settings.VersionPath = strings.Trim(settings.VersionPath, "/")
	if settings.VersionPath == "" {
		settings.VersionPath = DefaultVersionPath
	}

	settings.DownloadPath = strings.Trim(settings.DownloadPath, "/")
	if settings.DownloadPath == "" {
		settings.DownloadPath = DefaultDownloadPath
	}

	if settings.LogFile == "" {
		settings.LogFile = DefaultLogFilename
	}

	if settings.LogLevel == "" {
		settings.LogLevel = DefaultLogLevel
	}

	if settings.SettleDelay <= 0 {
		settings.SettleDelay = DefaultSettleDelay
	}

	if settings.ProcessWaitTimeout <= 0 {
		settings.ProcessWaitTimeout = DefaultProcessWaitTimeout
	}

	if settings.RequestTimeout <= 0 {
		settings.RequestTimeout = DefaultRequestTimeout
	}

	if settings.DownloadTimeout <= 0 {
		settings.DownloadTimeout = DefaultDownloadTimeout
	}

	if len(settings.ManagedExtensions) == 0 {
		settings.ManagedExtensions = DefaultManagedExtensions()
	}

	for _, ext := range settings.ManagedExtensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("%q: %w", ext, errBadExtension)
		}
	}

	if settings.RuntimeHost == "" {
		settings.RuntimeHost = DefaultRuntimeHost
	}

	if settings.ListenAddress == "" {
		settings.ListenAddress = DefaultListenAddress
	}

	if settings.PublishDir == "" {
		settings.PublishDir = DefaultPublishDir
	}

	settings.BaseURL = strings.TrimSpace(settings.BaseURL)

	return nil
}
