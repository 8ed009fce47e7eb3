package installer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/ambarlabs/ambar-install/internal/github"
	"github.com/ambarlabs/ambar-install/internal/logger"
)

// alreadyInstalled decides whether the run can stop before touching the
// network. A readable binary at the target path short-circuits the run as a
// successful no-op unless Force is set. A binary that exists but does not
// report a version is treated as absent and reinstalled.
func (r *runner) alreadyInstalled(ctx context.Context) (bool, error) {
	if r.opts.Force {
		logger.Debug(ctx, "Forced run, skipping installed binary check")
		return false, nil
	}

	if _, err := os.Stat(r.targetPath); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.WarnKV(ctx, "Cannot inspect install path, proceeding with install",
				"path", r.targetPath,
				"error", err)
		}

		return false, nil
	}

	installed, err := r.installedVersion(ctx)
	if err != nil {
		logger.WarnKV(ctx, "Installed binary does not report a version, reinstalling",
			"path", r.targetPath,
			"error", err)

		return false, nil
	}

	if requested := r.requestedTag(); requested != "" && normalizeTag(requested) != normalizeTag(installed) {
		logger.InfoKV(ctx, "Already installed, requested version differs; pass --force to replace it",
			"installed", installed,
			"requested", requested,
			"path", r.targetPath)
	} else {
		logger.InfoKV(ctx, "Already installed",
			"version", installed,
			"path", r.targetPath)
	}

	return true, nil
}

// requestedTag returns the explicit tag from the request, or "" when the run
// resolves "latest".
func (r *runner) requestedTag() string {
	if r.opts.Version == "" || r.opts.Version == github.SelectorLatest {
		return ""
	}

	return r.opts.Version
}

// installedVersion runs "<binary> version" and parses the reported version.
func (r *runner) installedVersion(ctx context.Context) (string, error) {
	probeCtx, cancel := context.WithTimeout(ctx, versionProbeTimeout)
	defer cancel()

	output, err := exec.CommandContext(probeCtx, r.targetPath, "version").Output()
	if err != nil {
		return "", fmt.Errorf("probe installed binary: %w", err)
	}

	version, err := parseVersionOutput(string(output))
	if err != nil {
		return "", fmt.Errorf("parse version output %q: %w", string(output), err)
	}

	return version, nil
}
