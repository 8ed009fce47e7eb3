package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ambarlabs/ambar-install/internal/config"
	"github.com/ambarlabs/ambar-install/internal/logger"
	"github.com/ambarlabs/ambar-install/internal/service/installer"
	"github.com/ambarlabs/ambar-install/internal/version"
)

// interruptExitCode is the conventional exit status for runs stopped by
// SIGINT or SIGTERM.
const interruptExitCode = 130

// errUnknownLogLevel is returned for log level names the logger cannot parse.
var errUnknownLogLevel = errors.New("unknown log level")

var (
	// configPath to the configuration YAML file.
	configPath string

	// repository is the "owner/name" release source.
	repository string

	// installDir receives the installed binary.
	installDir string

	// baseURL overrides the release download area with a mirror or a
	// local file:// directory.
	baseURL string

	// logLevel controls log verbosity.
	logLevel string

	// prerelease includes prereleases when resolving the latest version.
	prerelease bool

	// force reinstalls even when the requested version is already present.
	force bool

	// noAuth disables release host credentials.
	noAuth bool

	// rootCmd represents the base command that installs the ambar binary.
	rootCmd = &cobra.Command{
		Use:   "ambar-install [version]",
		Short: "Install the ambar binary from its releases",
		Long: `Install the ambar binary for the current platform.

Without arguments the latest release is installed. Pass an explicit tag to
install a specific version, even one not yet listed by the release host.

Examples:
  ambar-install
  ambar-install v1.4.2
  ambar-install --prerelease
  ambar-install v1.4.2 --base-url file:///srv/ambar-releases`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			cfg, err := buildConfig(cmd, args)
			if err != nil {
				return err
			}

			if err = applyLogLevel(cfg.LogLevel); err != nil {
				return err
			}

			options := &installer.Options{
				Repository: cfg.Repository,
				Version:    cfg.Version,
				InstallDir: cfg.InstallDir,
				BaseURL:    cfg.BaseURL,
				Prerelease: cfg.Prerelease,
				Force:      cfg.Force,
				GitHubAuth: cfg.GitHubAuth,
				Timeout:    cfg.Timeout,
			}

			return installer.Run(ctx, options)
		},
	}
)

// Execute runs the ambar-install CLI. Interrupted runs exit with the
// conventional interrupt status; all other failures exit 1.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(interruptExitCode)
		}

		os.Exit(1)
	}
}

// buildConfig layers configuration sources: built-in defaults, then the
// optional config file, then environment variables, then explicit flags and
// the positional version argument.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.Default()

	flags := cmd.Flags()

	if err := config.Load(configPath, cfg); err != nil {
		// A missing file at the default path is fine; an explicitly
		// requested file must exist.
		if flags.Changed("config") || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	if err := config.ApplyEnvironment(cfg); err != nil {
		return nil, err
	}

	if flags.Changed("repository") {
		cfg.Repository = repository
	}

	if flags.Changed("install-dir") {
		cfg.InstallDir = installDir
	}

	if flags.Changed("base-url") {
		cfg.BaseURL = baseURL
	}

	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}

	if flags.Changed("prerelease") {
		cfg.Prerelease = prerelease
	}

	if flags.Changed("force") {
		cfg.Force = force
	}

	if flags.Changed("no-auth") {
		cfg.GitHubAuth = !noAuth
	}

	if len(args) > 0 {
		cfg.Version = args[0]
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyLogLevel sets the global log level from its string name.
func applyLogLevel(name string) error {
	if name == "" {
		return nil
	}

	level, ok := logger.ParseLogLevel(name)
	if !ok {
		return fmt.Errorf("%q: %w", name, errUnknownLogLevel)
	}

	logger.SetLevel(level)

	return nil
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	flags := rootCmd.Flags()
	flags.StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	flags.StringVarP(&repository, "repository", "r", config.DefaultRepository, "release repository in owner/name form")
	flags.StringVarP(&installDir, "install-dir", "d", "", "directory receiving the binary (defaults to ~/.ambar/bin)")
	flags.StringVarP(&baseURL, "base-url", "b", "", "fetch archives from this base URL or file:// directory instead of the release host")
	flags.StringVar(&logLevel, "log-level", "", "log verbosity: debug, info, warn or error")
	flags.BoolVar(&prerelease, "prerelease", false, "include prereleases when resolving the latest version")
	flags.BoolVarP(&force, "force", "f", false, "reinstall even if the requested version is already installed")
	flags.BoolVar(&noAuth, "no-auth", false, "do not use release host credentials")
}
