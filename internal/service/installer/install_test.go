package installer

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ambarlabs/ambar-install/internal/platform"
)

// newInstallRunner prepares a runner pointed at a fresh install directory.
func newInstallRunner(t *testing.T, installDir string) *runner {
	t.Helper()

	target, err := platform.Detect()
	require.NoError(t, err)

	r := &runner{
		opts:      &Options{InstallDir: installDir},
		component: "ambar",
		target:    target,
	}
	r.targetPath = filepath.Join(installDir, "ambar"+target.ExeSuffix())

	return r
}

// writeExtractedBinary drops a fake extracted binary and returns its path.
func writeExtractedBinary(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ambar-extracted")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o755))

	return path
}

func TestInstallBinary_FreshInstall(t *testing.T) {
	t.Parallel()

	installDir := filepath.Join(t.TempDir(), "bin")
	r := newInstallRunner(t, installDir)

	source := writeExtractedBinary(t, "binary payload")

	require.NoError(t, r.installBinary(context.Background(), source))

	content, err := os.ReadFile(r.targetPath)
	require.NoError(t, err)
	require.Equal(t, "binary payload", string(content))

	if runtime.GOOS != "windows" {
		info, err := os.Stat(r.targetPath)
		require.NoError(t, err)
		require.NotZero(t, info.Mode().Perm()&0o100, "installed binary must be executable")
	}
}

func TestInstallBinary_ReplacesExisting(t *testing.T) {
	t.Parallel()

	installDir := filepath.Join(t.TempDir(), "bin")
	require.NoError(t, os.MkdirAll(installDir, 0o755))

	r := newInstallRunner(t, installDir)
	require.NoError(t, os.WriteFile(r.targetPath, []byte("old payload"), 0o755))

	source := writeExtractedBinary(t, "new payload")

	require.NoError(t, r.installBinary(context.Background(), source))

	content, err := os.ReadFile(r.targetPath)
	require.NoError(t, err)
	require.Equal(t, "new payload", string(content))

	_, err = os.Stat(r.targetPath + ".old")
	require.True(t, os.IsNotExist(err), "backup file must be removed after install")
}

func TestInstallBinary_CreatesInstallDirRecursively(t *testing.T) {
	t.Parallel()

	installDir := filepath.Join(t.TempDir(), "deeply", "nested", "bin")
	r := newInstallRunner(t, installDir)

	source := writeExtractedBinary(t, "binary payload")

	require.NoError(t, r.installBinary(context.Background(), source))

	_, err := os.Stat(r.targetPath)
	require.NoError(t, err)
}

func TestInstallBinary_FailedPlacementLeavesNoTarget(t *testing.T) {
	t.Parallel()

	installDir := filepath.Join(t.TempDir(), "bin")
	r := newInstallRunner(t, installDir)

	// A directory opens fine as a source but cannot be read, so placement
	// fails after the fresh-install placeholder has been created.
	require.Error(t, r.installBinary(context.Background(), t.TempDir()))

	_, err := os.Stat(r.targetPath)
	require.True(t, os.IsNotExist(err), "failed fresh install must not leave a zero-byte binary")
}

func TestInstallBinary_FailedPlacementKeepsExisting(t *testing.T) {
	t.Parallel()

	installDir := filepath.Join(t.TempDir(), "bin")
	require.NoError(t, os.MkdirAll(installDir, 0o755))

	r := newInstallRunner(t, installDir)
	require.NoError(t, os.WriteFile(r.targetPath, []byte("old payload"), 0o755))

	require.Error(t, r.installBinary(context.Background(), t.TempDir()))

	content, err := os.ReadFile(r.targetPath)
	require.NoError(t, err)
	require.Equal(t, "old payload", string(content), "failed placement must not touch the existing binary")
}
