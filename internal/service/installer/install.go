package installer

import (
	"context"
	"fmt"
	"os"

	goupdate "github.com/doitdistributed/go-update"
	"github.com/mitchellh/go-ps"

	"github.com/ambarlabs/ambar-install/internal/logger"
)

// installBinary places the extracted binary at the target path. The update
// library writes a sibling temp file and renames it into place, so a failure
// mid-way never leaves a truncated binary visible at the final path. Fresh
// installs need an empty target pre-created for the library to replace; that
// placeholder is removed again if placement fails, so no failure path leaves
// a zero-byte binary behind.
func (r *runner) installBinary(ctx context.Context, binaryPath string) error {
	if err := os.MkdirAll(r.opts.InstallDir, installDirMode); err != nil {
		return fmt.Errorf("create install directory: %w", err)
	}

	r.warnIfRunning(ctx)

	source, err := os.Open(binaryPath)
	if err != nil {
		return fmt.Errorf("open extracted binary: %w", err)
	}
	defer source.Close()

	// The update library replaces an existing target, so create an empty
	// one when installing fresh. Remember that this run created it: a
	// pre-existing binary must never be deleted on failure.
	freshInstall := false

	if _, err = os.Stat(r.targetPath); err != nil && os.IsNotExist(err) {
		placeholder, createErr := os.Create(r.targetPath)
		if createErr != nil {
			return fmt.Errorf("create target file: %w", createErr)
		}

		if createErr = placeholder.Close(); createErr != nil {
			_ = os.Remove(r.targetPath)
			return fmt.Errorf("close target file: %w", createErr)
		}

		freshInstall = true
	}

	logger.DebugKV(ctx, "Placing binary", "path", r.targetPath)

	options := &goupdate.Options{
		TargetPath: r.targetPath,
		TargetMode: binaryFileMode,
	}

	if err = goupdate.Apply(source, *options); err != nil {
		if freshInstall {
			_ = os.Remove(r.targetPath)
		}

		return fmt.Errorf("place binary: %w", err)
	}

	oldPath := r.targetPath + ".old"
	if _, err = os.Stat(oldPath); err == nil {
		_ = os.Remove(oldPath)
	}

	return nil
}

// warnIfRunning reports processes that currently execute the target binary.
// A running process keeps its old image until restarted; that is not an
// error, but worth telling the user about.
func (r *runner) warnIfRunning(ctx context.Context) {
	processList, err := ps.Processes()
	if err != nil {
		logger.DebugKV(ctx, "Cannot list processes", "error", err)
		return
	}

	thisProcessID := os.Getpid()
	targetName := r.component + r.target.ExeSuffix()

	for _, process := range processList {
		if process.Pid() == thisProcessID {
			continue
		}

		if process.Executable() != targetName {
			continue
		}

		logger.WarnKV(ctx, "Target binary is currently running and keeps the old version until restarted",
			"executable", targetName,
			"pid", process.Pid())

		return
	}
}
