package installer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ambarlabs/ambar-install/internal/github"
)

// fileURL turns a local directory into a file:// URL usable on any host.
func fileURL(t *testing.T, dir string) string {
	t.Helper()

	dir = filepath.ToSlash(dir)
	if !strings.HasPrefix(dir, "/") {
		dir = "/" + dir
	}

	return "file://" + dir
}

func TestLocalPathFromFileURL(t *testing.T) {
	t.Parallel()

	path, err := localPathFromFileURL("file:///opt/releases/archive.tar.gz")
	require.NoError(t, err)
	require.Equal(t, filepath.FromSlash("/opt/releases/archive.tar.gz"), path)

	path, err = localPathFromFileURL("file:///C:/releases/archive.zip")
	require.NoError(t, err)
	require.Equal(t, filepath.FromSlash("C:/releases/archive.zip"), path)

	path, err = localPathFromFileURL("file://fileserver/share/archive.tar.gz")
	require.NoError(t, err)
	require.Equal(t, filepath.FromSlash("//fileserver/share/archive.tar.gz"), path)

	_, err = localPathFromFileURL("https://example.com/archive.tar.gz")
	require.ErrorIs(t, err, errNotFileURL)
}

func TestJoinBase(t *testing.T) {
	t.Parallel()

	require.Equal(t, "https://mirror.test/tools/a.tar.gz", joinBase("https://mirror.test/tools", "a.tar.gz"))
	require.Equal(t, "https://mirror.test/tools/a.tar.gz", joinBase("https://mirror.test/tools/", "a.tar.gz"))
	require.Equal(t, "file:///srv/releases/a.tar.gz", joinBase("file:///srv/releases", "a.tar.gz"))
}

func TestIsFileURL(t *testing.T) {
	t.Parallel()

	require.True(t, isFileURL("file:///srv/releases/a.tar.gz"))
	require.False(t, isFileURL("https://example.com/a.tar.gz"))
	require.False(t, isFileURL("/srv/releases/a.tar.gz"))
}

// newFetchRunner builds a runner ready to fetch one archive.
func newFetchRunner(t *testing.T, opts *Options, serverURL string) *runner {
	t.Helper()

	r := &runner{
		opts:       opts,
		scratchDir: t.TempDir(),
		resolved:   github.ResolvedVersion{Tag: "v1.0.0"},
		desc:       Descriptor{ArchiveName: testArchiveName},
	}

	if serverURL != "" {
		r.client = github.NewClient(
			github.WithAPIBaseURL(serverURL),
			github.WithDownloadBaseURL(serverURL),
		)
	}

	return r
}

func TestFetchArchive_Remote(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/ambarlabs/ambar/releases/download/v1.0.0/"+testArchiveName,
		func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("archive bytes"))
		})

	server := httptest.NewServer(mux)
	defer server.Close()

	r := newFetchRunner(t, &Options{Repository: "ambarlabs/ambar"}, server.URL)

	require.NoError(t, r.fetchArchive(context.Background()))

	content, err := os.ReadFile(r.archivePath)
	require.NoError(t, err)
	require.Equal(t, "archive bytes", string(content))
}

func TestFetchArchive_RemoteFailureHintsAtCredentials(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	r := newFetchRunner(t, &Options{Repository: "ambarlabs/ambar"}, server.URL)

	err := r.fetchArchive(context.Background())
	require.Error(t, err)
	require.ErrorContains(t, err, "private")
}

func TestFetchArchive_LocalSource(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, testArchiveName), []byte("local archive"), 0o644))

	opts := &Options{
		Repository: "ambarlabs/ambar",
		BaseURL:    fileURL(t, dir),
	}

	r := newFetchRunner(t, opts, "")

	require.NoError(t, r.fetchArchive(context.Background()))

	content, err := os.ReadFile(r.archivePath)
	require.NoError(t, err)
	require.Equal(t, "local archive", string(content))
}

func TestFetchArchive_MissingLocalSourceIsFatal(t *testing.T) {
	t.Parallel()

	opts := &Options{
		Repository: "ambarlabs/ambar",
		BaseURL:    fileURL(t, t.TempDir()),
	}

	r := newFetchRunner(t, opts, "")

	err := r.fetchArchive(context.Background())
	require.Error(t, err)
	require.ErrorContains(t, err, "local artifact")
}

func TestFetchArchive_EmptyArtifactIsFetchFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, testArchiveName), nil, 0o644))

	opts := &Options{
		Repository: "ambarlabs/ambar",
		BaseURL:    fileURL(t, dir),
	}

	r := newFetchRunner(t, opts, "")

	err := r.fetchArchive(context.Background())
	require.ErrorIs(t, err, errEmptyArtifact)
}

func TestFetchArchive_WindowsDrivePath(t *testing.T) {
	t.Parallel()

	if runtime.GOOS != "windows" {
		t.Skip("drive letter paths only exist on Windows")
	}

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, testArchiveName), []byte("x"), 0o644))

	opts := &Options{
		Repository: "ambarlabs/ambar",
		BaseURL:    fileURL(t, dir),
	}

	r := newFetchRunner(t, opts, "")
	require.NoError(t, r.fetchArchive(context.Background()))
}
