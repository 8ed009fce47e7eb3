package installer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/ambarlabs/ambar-install/internal/credentials"
	"github.com/ambarlabs/ambar-install/internal/github"
	"github.com/ambarlabs/ambar-install/internal/logger"
	"github.com/ambarlabs/ambar-install/internal/platform"
)

var (
	errOptionsNotSet        = errors.New("options are not set")
	errRepositoryNotSet     = errors.New("repository must be provided")
	errInstallDirNotSet     = errors.New("install directory must be provided")
	errEmptyArtifact        = errors.New("fetched artifact is empty")
	errDigestMismatch       = errors.New("artifact digest mismatch")
	errBinaryNotInArchive   = errors.New("binary not found in archive")
	errUnsafeArchivePath    = errors.New("archive entry escapes extraction directory")
	errEntryTooLarge        = errors.New("archive entry exceeds size limit")
	errUnsupportedArchive   = errors.New("unsupported archive format")
	errInvalidVersionOutput = errors.New("invalid version output format")
	errNotFileURL           = errors.New("not a file URL")
)

// Options configures a single install run.
type Options struct {
	// Repository is the "owner/name" release source.
	Repository string
	// Version selects the release: an explicit tag, or "" / "latest" for
	// the newest release.
	Version string
	// InstallDir is the directory that receives the binary.
	InstallDir string
	// BaseURL, when set, replaces the release download area with an
	// arbitrary HTTP or file:// base holding the archive and its
	// checksum manifest.
	BaseURL string
	// Prerelease includes prereleases when resolving "latest".
	Prerelease bool
	// Force re-runs the full pipeline even when the requested version is
	// already installed.
	Force bool
	// GitHubAuth enables token resolution from the environment and the
	// gh credential helper.
	GitHubAuth bool
	// Timeout bounds each release metadata request. Artifact downloads
	// are bounded by the run context instead.
	Timeout time.Duration
	// APIBaseURL overrides the release metadata endpoint.
	APIBaseURL string
	// DownloadBaseURL overrides the release download host.
	DownloadBaseURL string
	// Preflight, when set, runs after the install-state check and before
	// any network activity. A non-nil error aborts the run.
	Preflight func(ctx context.Context) error
}

// Run executes the install pipeline: decide whether anything needs to be
// done, resolve the requested version to a concrete tag, fetch the platform
// archive, verify its digest, extract the binary and place it atomically in
// the install directory.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "installer")

	r, err := newRunner(ctx, opts)
	if err != nil {
		return err
	}

	defer r.cleanup(ctx)

	if err = r.run(ctx); err != nil {
		logger.ErrorKV(ctx, "Install failed", "error", err)
		return err
	}

	return nil
}

// runner carries the state threaded through one install run.
type runner struct {
	opts *Options

	// component is the binary's base name, derived from the repository.
	component string
	// target is the platform the run installs for.
	target platform.Target
	// targetPath is the final location of the installed binary.
	targetPath string

	client   *github.Client
	resolved github.ResolvedVersion
	desc     Descriptor
	record   IntegrityRecord

	// scratchDir holds the fetched archive and extracted files. Removed
	// by cleanup.
	scratchDir string
	// archivePath is the fetched archive inside scratchDir.
	archivePath string
}

func newRunner(ctx context.Context, opts *Options) (*runner, error) {
	if opts == nil {
		return nil, errOptionsNotSet
	}

	if opts.Repository == "" {
		return nil, errRepositoryNotSet
	}

	if opts.InstallDir == "" {
		return nil, errInstallDirNotSet
	}

	target, err := platform.Detect()
	if err != nil {
		return nil, fmt.Errorf("detect platform: %w", err)
	}

	r := &runner{
		opts:      opts,
		component: path.Base(opts.Repository),
		target:    target,
	}

	r.targetPath = r.installPath()
	r.describeRun(ctx)

	return r, nil
}

// installPath is where the binary ends up for this platform.
func (r *runner) installPath() string {
	return filepath.Join(r.opts.InstallDir, r.component+r.target.ExeSuffix())
}

// describeRun logs the run parameters and host diagnostics.
func (r *runner) describeRun(ctx context.Context) {
	version := r.opts.Version
	if version == "" {
		version = github.SelectorLatest
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	logger.InfoKV(ctx, "Starting install",
		"repository", r.opts.Repository,
		"version", version,
		"platform", r.target,
		"install_dir", r.opts.InstallDir,
		"host", hostname)

	if info, err := platform.DescribeHost(ctx); err == nil && info.Platform != "" {
		logger.DebugKV(ctx, "Host details",
			"platform", info.Platform,
			"family", info.Family,
			"version", info.Version,
			"kernel_arch", info.KernelArch)

		if info.Emulated(r.target) {
			logger.WarnKV(ctx, "Process runs under emulation, installing for the emulated architecture",
				"process_arch", r.target.Arch,
				"kernel_arch", info.KernelArch)
		}
	}
}

// run drives the pipeline in order. Each step either completes or fails the
// whole run; there are no partial installs.
func (r *runner) run(ctx context.Context) error {
	done, err := r.alreadyInstalled(ctx)
	if err != nil {
		return err
	}

	if done {
		return nil
	}

	if err = r.runPreflight(ctx); err != nil {
		return err
	}

	if err = r.buildClient(ctx); err != nil {
		return err
	}

	if err = r.resolveVersion(ctx); err != nil {
		return err
	}

	// Downstream steps log against the resolved tag.
	ctx = logger.WithKV(ctx, "tag", r.resolved.Tag)

	r.desc = NewDescriptor(r.component, r.target, r.resolved.Tag)

	if err = r.prepareScratch(); err != nil {
		return err
	}

	r.record = r.resolveDigest(ctx)

	if err = r.fetchArchive(ctx); err != nil {
		return err
	}

	if err = r.verifyArchive(ctx); err != nil {
		return err
	}

	binaryPath, err := r.extractBinary(ctx)
	if err != nil {
		return err
	}

	if err = r.installBinary(ctx, binaryPath); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Installed", "binary", r.targetPath)

	return nil
}

// runPreflight executes the caller's pre-flight hook, if any.
func (r *runner) runPreflight(ctx context.Context) error {
	if r.opts.Preflight == nil {
		return nil
	}

	logger.Debug(ctx, "Running pre-flight checks")

	if err := r.opts.Preflight(ctx); err != nil {
		return fmt.Errorf("pre-flight check: %w", err)
	}

	return nil
}

// buildClient resolves credentials and constructs the release host client.
func (r *runner) buildClient(ctx context.Context) error {
	var resolverOpts []credentials.Option
	if !r.opts.GitHubAuth {
		resolverOpts = append(resolverOpts, credentials.Disabled())
	}

	resolver := credentials.NewResolver(resolverOpts...)

	token := resolver.Token(ctx)
	if token != "" {
		logger.Debug(ctx, "Using release host credentials")
	} else {
		logger.Debug(ctx, "No release host credentials, proceeding anonymously")
	}

	clientOpts := []github.Option{github.WithToken(token)}

	if r.opts.Timeout > 0 {
		clientOpts = append(clientOpts, github.WithMetadataTimeout(r.opts.Timeout))
	}

	if r.opts.APIBaseURL != "" {
		clientOpts = append(clientOpts, github.WithAPIBaseURL(r.opts.APIBaseURL))
	}

	if r.opts.DownloadBaseURL != "" {
		clientOpts = append(clientOpts, github.WithDownloadBaseURL(r.opts.DownloadBaseURL))
	}

	r.client = github.NewClient(clientOpts...)

	return nil
}

// resolveVersion turns the requested selector into a concrete release tag.
func (r *runner) resolveVersion(ctx context.Context) error {
	resolved, err := r.client.ResolveVersion(ctx, r.opts.Repository, r.opts.Version, r.opts.Prerelease)
	if err != nil {
		return fmt.Errorf("resolve version: %w", err)
	}

	r.resolved = resolved

	logger.InfoKV(ctx, "Resolved version",
		"tag", resolved.Tag,
		"prerelease", resolved.Prerelease)

	return nil
}

// prepareScratch creates the run-exclusive working directory.
func (r *runner) prepareScratch() error {
	dir, err := os.MkdirTemp("", scratchDirPrefix)
	if err != nil {
		return fmt.Errorf("create scratch directory: %w", err)
	}

	r.scratchDir = dir

	return nil
}

// cleanup removes the scratch directory. The installed binary is never
// inside it, so cleanup is safe on both success and failure.
func (r *runner) cleanup(ctx context.Context) {
	if r.scratchDir == "" {
		return
	}

	if err := os.RemoveAll(r.scratchDir); err != nil {
		logger.WarnKV(ctx, "Failed to remove scratch directory",
			"path", r.scratchDir,
			"error", err)
	}
}
