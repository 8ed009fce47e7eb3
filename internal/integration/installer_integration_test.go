package integration

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ambarlabs/ambar-install/internal/platform"
	"github.com/ambarlabs/ambar-install/internal/service/installer"
	"github.com/ambarlabs/ambar-install/internal/service/manifest"
)

// fakeBinaryScript fabricates executable content that answers the version
// probe the way real binaries do.
func fakeBinaryScript(version string) string {
	return "#!/bin/sh\necho \"version: " + version + ", commit: test, built at: test\"\n"
}

// writeTarGzArchive builds an archive holding a single executable entry.
func writeTarGzArchive(t *testing.T, path, binaryName, body string) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)

	gzipWriter := gzip.NewWriter(f)
	tarWriter := tar.NewWriter(gzipWriter)

	require.NoError(t, tarWriter.WriteHeader(&tar.Header{
		Name:     binaryName,
		Typeflag: tar.TypeReg,
		Mode:     0o755,
		Size:     int64(len(body)),
	}))

	_, err = tarWriter.Write([]byte(body))
	require.NoError(t, err)

	require.NoError(t, tarWriter.Close())
	require.NoError(t, gzipWriter.Close())
	require.NoError(t, f.Close())
}

// writeZipArchive is the Windows-format counterpart of writeTarGzArchive.
func writeZipArchive(t *testing.T, path, binaryName, body string) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)

	zipWriter := zip.NewWriter(f)

	header := &zip.FileHeader{Name: binaryName, Method: zip.Deflate}
	header.SetMode(0o755)

	entryWriter, err := zipWriter.CreateHeader(header)
	require.NoError(t, err)

	_, err = entryWriter.Write([]byte(body))
	require.NoError(t, err)

	require.NoError(t, zipWriter.Close())
	require.NoError(t, f.Close())
}

// buildRelease lays out one release in dir: the platform archive for the
// given tag plus the checksum manifest generated the same way pipelines do.
func buildRelease(t *testing.T, dir, component, tag, binaryBody string) installer.Descriptor {
	t.Helper()

	target, err := platform.Detect()
	require.NoError(t, err)

	desc := installer.NewDescriptor(component, target, tag)
	archivePath := filepath.Join(dir, desc.ArchiveName)

	if strings.HasSuffix(desc.ArchiveName, ".zip") {
		writeZipArchive(t, archivePath, desc.BinaryName, binaryBody)
	} else {
		writeTarGzArchive(t, archivePath, desc.BinaryName, binaryBody)
	}

	require.NoError(t, manifest.Run(context.Background(), &manifest.Options{Dir: dir}))

	return desc
}

// fileURL turns a local directory into a file:// URL usable on any host.
func fileURL(t *testing.T, dir string) string {
	t.Helper()

	dir = filepath.ToSlash(dir)
	if !strings.HasPrefix(dir, "/") {
		dir = "/" + dir
	}

	return "file://" + dir
}

// sha256File hashes a file the way the verifier does.
func sha256File(t *testing.T, path string) string {
	t.Helper()

	content, err := os.ReadFile(path)
	require.NoError(t, err)

	digest := sha256.Sum256(content)

	return hex.EncodeToString(digest[:])
}

// captureScratch points temporary files at an inspectable directory so the
// test can assert scratch cleanup. Has no effect on Windows, where the
// assertion passes trivially.
func captureScratch(t *testing.T) string {
	root := t.TempDir()
	t.Setenv("TMPDIR", root)

	return root
}

// requireNoScratchLeft fails if any run-scratch directory survived.
func requireNoScratchLeft(t *testing.T, root string) {
	t.Helper()

	entries, err := os.ReadDir(root)
	require.NoError(t, err)

	for _, entry := range entries {
		require.False(t, strings.HasPrefix(entry.Name(), "ambar-install-"),
			"scratch directory %s was not cleaned up", entry.Name())
	}
}

// targetPath is where the installed binary must appear.
func targetPath(t *testing.T, installDir, component string) string {
	t.Helper()

	target, err := platform.Detect()
	require.NoError(t, err)

	return filepath.Join(installDir, component+target.ExeSuffix())
}

// TestInstall_LocalSourceRoundTrip installs from a file:// base URL with no
// release host involved at all: an API server that fails the test on any hit
// stands in for the network.
func TestInstall_LocalSourceRoundTrip(t *testing.T) {
	scratchRoot := captureScratch(t)

	var hits atomic.Int64

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	releaseDir := t.TempDir()
	desc := buildRelease(t, releaseDir, "tool", "v2.3.1", "embedded binary payload")

	installDir := filepath.Join(t.TempDir(), "bin")

	opts := &installer.Options{
		Repository:      "org/tool",
		Version:         "v2.3.1",
		InstallDir:      installDir,
		BaseURL:         fileURL(t, releaseDir),
		GitHubAuth:      false,
		APIBaseURL:      server.URL,
		DownloadBaseURL: server.URL,
	}

	require.NoError(t, installer.Run(context.Background(), opts))

	installed := targetPath(t, installDir, "tool")

	content, err := os.ReadFile(installed)
	require.NoError(t, err)
	require.Equal(t, "embedded binary payload", string(content))

	if runtime.GOOS != "windows" {
		info, err := os.Stat(installed)
		require.NoError(t, err)
		require.NotZero(t, info.Mode().Perm()&0o100, "installed binary must be executable")
	}

	require.Zero(t, hits.Load(), "local installs must not touch the release host")
	require.True(t, strings.HasPrefix(desc.ArchiveName, "tool-v2.3.1-"),
		"archive name follows the component-version-platform convention")
	requireNoScratchLeft(t, scratchRoot)
}

// TestInstall_IdempotentThenForced covers the no-op on reinstall and the
// force override in sequence.
//
//nolint:funlen // Integration test requires comprehensive setup and verification.
func TestInstall_IdempotentThenForced(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("installed fake binaries are shell scripts")
	}

	var hits atomic.Int64

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	releaseDir := t.TempDir()
	buildRelease(t, releaseDir, "tool", "v1.0.0", fakeBinaryScript("1.0.0"))

	installDir := filepath.Join(t.TempDir(), "bin")

	opts := &installer.Options{
		Repository:      "org/tool",
		Version:         "v1.0.0",
		InstallDir:      installDir,
		BaseURL:         fileURL(t, releaseDir),
		GitHubAuth:      false,
		APIBaseURL:      server.URL,
		DownloadBaseURL: server.URL,
	}

	require.NoError(t, installer.Run(context.Background(), opts))

	installed := targetPath(t, installDir, "tool")

	content, err := os.ReadFile(installed)
	require.NoError(t, err)
	require.Contains(t, string(content), "1.0.0")

	// Second run with the same version short-circuits before any fetch.
	require.NoError(t, installer.Run(context.Background(), opts))
	require.Zero(t, hits.Load())

	// Republish the same tag with different content; without force the
	// guard still reports the install as done.
	buildRelease(t, releaseDir, "tool", "v1.0.0", fakeBinaryScript("2.0.0"))

	require.NoError(t, installer.Run(context.Background(), opts))

	content, err = os.ReadFile(installed)
	require.NoError(t, err)
	require.Contains(t, string(content), "1.0.0")

	// Force re-executes the full pipeline and replaces the binary.
	forced := *opts
	forced.Force = true

	require.NoError(t, installer.Run(context.Background(), &forced))

	content, err = os.ReadFile(installed)
	require.NoError(t, err)
	require.Contains(t, string(content), "2.0.0")
}

// TestInstall_RemoteRoundTrip resolves the latest release over the API,
// takes the digest from release metadata and downloads the archive from the
// release host.
func TestInstall_RemoteRoundTrip(t *testing.T) {
	t.Parallel()

	const tag = "v1.4.2"

	releaseDir := t.TempDir()
	desc := buildRelease(t, releaseDir, "tool", tag, "remote binary payload")

	archiveBytes, err := os.ReadFile(filepath.Join(releaseDir, desc.ArchiveName))
	require.NoError(t, err)

	digest := sha256File(t, filepath.Join(releaseDir, desc.ArchiveName))

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/org/tool/releases/latest", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `{"tag_name":%q}`, tag)
	})
	mux.HandleFunc("/repos/org/tool/releases/tags/"+tag, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `{"tag_name":%q,"assets":[{"name":%q,"digest":"sha256:%s"}]}`,
			tag, desc.ArchiveName, digest)
	})
	mux.HandleFunc("/org/tool/releases/download/"+tag+"/"+desc.ArchiveName,
		func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write(archiveBytes)
		})

	server := httptest.NewServer(mux)
	defer server.Close()

	installDir := filepath.Join(t.TempDir(), "bin")

	opts := &installer.Options{
		Repository:      "org/tool",
		InstallDir:      installDir,
		GitHubAuth:      false,
		APIBaseURL:      server.URL,
		DownloadBaseURL: server.URL,
	}

	require.NoError(t, installer.Run(context.Background(), opts))

	content, err := os.ReadFile(targetPath(t, installDir, "tool"))
	require.NoError(t, err)
	require.Equal(t, "remote binary payload", string(content))
}

// TestInstall_ChecksumMismatchAborts corrupts the manifest digest and expects
// the run to fail without installing anything.
func TestInstall_ChecksumMismatchAborts(t *testing.T) {
	scratchRoot := captureScratch(t)

	releaseDir := t.TempDir()
	buildRelease(t, releaseDir, "tool", "v1.0.0", "payload")

	// Rewrite the manifest with a digest that cannot match.
	manifestPath := filepath.Join(releaseDir, installer.ChecksumManifestName)

	content, err := os.ReadFile(manifestPath)
	require.NoError(t, err)

	corrupted := strings.Repeat("0", 64) + string(content)[64:]
	require.NoError(t, os.WriteFile(manifestPath, []byte(corrupted), 0o644))

	installDir := filepath.Join(t.TempDir(), "bin")

	opts := &installer.Options{
		Repository: "org/tool",
		Version:    "v1.0.0",
		InstallDir: installDir,
		BaseURL:    fileURL(t, releaseDir),
		GitHubAuth: false,
	}

	err = installer.Run(context.Background(), opts)
	require.Error(t, err)
	require.ErrorContains(t, err, "digest mismatch")

	_, statErr := os.Stat(targetPath(t, installDir, "tool"))
	require.True(t, os.IsNotExist(statErr), "nothing may appear at the install path after a failed verification")

	requireNoScratchLeft(t, scratchRoot)
}

// TestInstall_MissingBinaryInArchive serves an archive without the expected
// binary and checks the failure cleans up after itself.
func TestInstall_MissingBinaryInArchive(t *testing.T) {
	scratchRoot := captureScratch(t)

	target, err := platform.Detect()
	require.NoError(t, err)

	desc := installer.NewDescriptor("tool", target, "v1.0.0")

	releaseDir := t.TempDir()
	archivePath := filepath.Join(releaseDir, desc.ArchiveName)

	if strings.HasSuffix(desc.ArchiveName, ".zip") {
		writeZipArchive(t, archivePath, "unrelated-file", "wrong content")
	} else {
		writeTarGzArchive(t, archivePath, "unrelated-file", "wrong content")
	}

	require.NoError(t, manifest.Run(context.Background(), &manifest.Options{Dir: releaseDir}))

	installDir := filepath.Join(t.TempDir(), "bin")

	opts := &installer.Options{
		Repository: "org/tool",
		Version:    "v1.0.0",
		InstallDir: installDir,
		BaseURL:    fileURL(t, releaseDir),
		GitHubAuth: false,
	}

	err = installer.Run(context.Background(), opts)
	require.Error(t, err)
	require.ErrorContains(t, err, "not found in archive")
	require.ErrorContains(t, err, "unrelated-file")

	_, statErr := os.Stat(targetPath(t, installDir, "tool"))
	require.True(t, os.IsNotExist(statErr))

	requireNoScratchLeft(t, scratchRoot)
}

// TestInstall_AuthenticationFallback rejects authenticated metadata calls and
// expects resolution to succeed anonymously.
//
//nolint:funlen // Integration test requires comprehensive setup and verification.
func TestInstall_AuthenticationFallback(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "test-token")

	const tag = "v1.0.0"

	releaseDir := t.TempDir()
	desc := buildRelease(t, releaseDir, "tool", tag, "payload after fallback")

	archiveBytes, err := os.ReadFile(filepath.Join(releaseDir, desc.ArchiveName))
	require.NoError(t, err)

	digest := sha256File(t, filepath.Join(releaseDir, desc.ArchiveName))

	var authRejections atomic.Int64

	requireAnonymous := func(w http.ResponseWriter, r *http.Request) bool {
		if r.Header.Get("Authorization") != "" {
			authRejections.Add(1)
			w.WriteHeader(http.StatusUnauthorized)

			return false
		}

		return true
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/org/tool/releases/latest", func(w http.ResponseWriter, r *http.Request) {
		if requireAnonymous(w, r) {
			fmt.Fprintf(w, `{"tag_name":%q}`, tag)
		}
	})
	mux.HandleFunc("/repos/org/tool/releases/tags/"+tag, func(w http.ResponseWriter, r *http.Request) {
		if requireAnonymous(w, r) {
			fmt.Fprintf(w, `{"tag_name":%q,"assets":[{"name":%q,"digest":"sha256:%s"}]}`,
				tag, desc.ArchiveName, digest)
		}
	})
	mux.HandleFunc("/org/tool/releases/download/"+tag+"/"+desc.ArchiveName,
		func(w http.ResponseWriter, r *http.Request) {
			if requireAnonymous(w, r) {
				_, _ = w.Write(archiveBytes)
			}
		})

	server := httptest.NewServer(mux)
	defer server.Close()

	installDir := filepath.Join(t.TempDir(), "bin")

	opts := &installer.Options{
		Repository:      "org/tool",
		InstallDir:      installDir,
		GitHubAuth:      true,
		APIBaseURL:      server.URL,
		DownloadBaseURL: server.URL,
	}

	require.NoError(t, installer.Run(context.Background(), opts))

	content, err := os.ReadFile(targetPath(t, installDir, "tool"))
	require.NoError(t, err)
	require.Equal(t, "payload after fallback", string(content))

	require.Positive(t, authRejections.Load(), "the token must have been offered before falling back")
}

// TestInstall_PreflightFailureBlocksNetwork wires a failing pre-flight hook
// and checks nothing reaches the release host.
func TestInstall_PreflightFailureBlocksNetwork(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	opts := &installer.Options{
		Repository:      "org/tool",
		InstallDir:      filepath.Join(t.TempDir(), "bin"),
		GitHubAuth:      false,
		APIBaseURL:      server.URL,
		DownloadBaseURL: server.URL,
		Preflight: func(context.Context) error {
			return errors.New("host not ready")
		},
	}

	err := installer.Run(context.Background(), opts)
	require.Error(t, err)
	require.ErrorContains(t, err, "host not ready")
	require.Zero(t, hits.Load())
}
