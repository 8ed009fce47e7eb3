package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the parameters of a single installer run. Values are layered:
// built-in defaults, then the optional YAML file, then AMBAR_* environment
// variables, then explicit command-line flags. The struct is treated as
// immutable once the pipeline starts.
type Config struct {
	// Repository is the release repository in "owner/name" form.
	Repository string `yaml:"repository"`
	// Version pins an exact release tag; empty means "latest".
	Version string `yaml:"version"`
	// InstallDir is the directory receiving the installed binary.
	InstallDir string `yaml:"install_dir"`
	// BaseURL overrides the artifact source with a mirror; it may use the
	// file:// scheme for fully offline installs.
	BaseURL string `yaml:"base_url"`
	// Prerelease includes prerelease tags when resolving "latest".
	Prerelease bool `yaml:"prerelease"`
	// GitHubAuth enables token-based authentication against the release host.
	GitHubAuth bool `yaml:"github_auth"`
	// Timeout bounds release-metadata requests. Artifact downloads are not
	// time-bounded because artifact sizes are unknown in advance.
	Timeout time.Duration `yaml:"timeout"`
	// LogLevel selects the minimum level for console logging.
	LogLevel string `yaml:"log_level"`
	// Force re-runs the full pipeline even when the binary is already
	// installed. Runtime-only, never persisted to YAML.
	Force bool `yaml:"-"`
}

const (
	// DefaultConfigFilename is the default filename for installer settings.
	DefaultConfigFilename = "ambar-install.yaml"

	// DefaultRepository is the release repository installed from by default.
	DefaultRepository = "ambarlabs/ambar"

	// DefaultTimeout is the default ceiling for release-metadata requests.
	DefaultTimeout = 10 * time.Second

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600

	// defaultInstallSubdir is appended to the user home directory when no
	// install directory is configured.
	defaultInstallSubdir = ".ambar/bin"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errRepositoryRequired is returned when the repository is missing or malformed.
	errRepositoryRequired = errors.New("repository must be in owner/name form")
	// errInstallDirRequired is returned when no install directory can be determined.
	errInstallDirRequired = errors.New("install directory must be provided")
	// errInvalidEnvBool is returned for environment booleans that strconv cannot parse.
	errInvalidEnvBool = errors.New("invalid boolean environment value")
)

// Default returns a configuration populated with built-in defaults.
// The install directory is derived from the user home directory and left
// empty only when the home directory cannot be determined; Validate then
// reports it as missing.
func Default() *Config {
	cfg := &Config{
		Repository: DefaultRepository,
		GitHubAuth: true,
		Timeout:    DefaultTimeout,
		LogLevel:   "info",
	}

	if home, err := os.UserHomeDir(); err == nil {
		cfg.InstallDir = filepath.Join(home, filepath.FromSlash(defaultInstallSubdir))
	}

	return cfg
}

// Load reads configuration from the provided path into cfg, overriding only
// fields present in the file. Missing files are an error; callers decide
// whether a default-path miss is tolerable.
func Load(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}

	if err := yaml.Unmarshal(contents, cfg); err != nil {
		return fmt.Errorf("unmarshal settings: %w", err)
	}

	return nil
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

// ApplyEnvironment overrides fields from AMBAR_* environment variables.
// Only variables that are set take effect; malformed boolean values are
// reported instead of being silently ignored.
func ApplyEnvironment(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if v, ok := os.LookupEnv("AMBAR_REPOSITORY"); ok {
		cfg.Repository = v
	}

	if v, ok := os.LookupEnv("AMBAR_VERSION"); ok {
		cfg.Version = v
	}

	if v, ok := os.LookupEnv("AMBAR_INSTALL_DIR"); ok {
		cfg.InstallDir = v
	}

	if v, ok := os.LookupEnv("AMBAR_BASE_URL"); ok {
		cfg.BaseURL = v
	}

	if v, ok := os.LookupEnv("AMBAR_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}

	boolVars := []struct {
		name   string
		target *bool
	}{
		{"AMBAR_PRERELEASE", &cfg.Prerelease},
		{"AMBAR_GITHUB_AUTH", &cfg.GitHubAuth},
		{"AMBAR_FORCE", &cfg.Force},
	}

	for _, v := range boolVars {
		raw, ok := os.LookupEnv(v.name)
		if !ok {
			continue
		}

		parsed, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("%s=%q: %w", v.name, raw, errInvalidEnvBool)
		}

		*v.target = parsed
	}

	return nil
}

// Validate checks required fields, normalizes paths, and applies fallback
// defaults for unset optional values.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	owner, name, ok := strings.Cut(cfg.Repository, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("%q: %w", cfg.Repository, errRepositoryRequired)
	}

	if cfg.InstallDir == "" {
		return errInstallDirRequired
	}

	expanded, err := expandHome(cfg.InstallDir)
	if err != nil {
		return fmt.Errorf("expand install directory: %w", err)
	}

	cfg.InstallDir = expanded

	// Set default timeout if not specified.
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.BaseURL == "" {
		return nil
	}

	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}

	return nil
}

// expandHome resolves a leading "~/" to the user home directory.
func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") && !strings.HasPrefix(path, `~\`) {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	if path == "~" {
		return home, nil
	}

	return filepath.Join(home, path[2:]), nil
}
