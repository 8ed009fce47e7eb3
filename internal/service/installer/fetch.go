package installer

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/ambarlabs/ambar-install/internal/logger"
)

// archiveSource is the URL or file:// path the archive is fetched from.
func (r *runner) archiveSource() string {
	if r.opts.BaseURL != "" {
		return joinBase(r.opts.BaseURL, r.desc.ArchiveName)
	}

	return r.client.DownloadURL(r.opts.Repository, r.resolved.Tag, r.desc.ArchiveName)
}

// fetchArchive brings the release archive into the scratch directory and
// enforces the non-empty invariant: a zero-byte result is a fetch failure,
// not a verification failure.
func (r *runner) fetchArchive(ctx context.Context) error {
	source := r.archiveSource()
	dest := filepath.Join(r.scratchDir, r.desc.ArchiveName)

	logger.InfoKV(ctx, "Fetching artifact", "source", source)

	var err error
	if isFileURL(source) {
		err = copyLocalFile(source, dest)
	} else {
		err = r.downloadFile(ctx, source, dest)
	}

	if err != nil {
		return fmt.Errorf("fetch artifact: %w", err)
	}

	info, err := os.Stat(dest)
	if err != nil {
		return fmt.Errorf("inspect fetched artifact: %w", err)
	}

	if info.Size() == 0 {
		return fmt.Errorf("%s: %w", source, errEmptyArtifact)
	}

	r.archivePath = dest

	logger.DebugKV(ctx, "Fetched artifact",
		"path", dest,
		"size", info.Size())

	return nil
}

// downloadFile streams a remote URL to dest.
func (r *runner) downloadFile(ctx context.Context, rawURL, dest string) error {
	resp, err := r.client.Download(ctx, rawURL)
	if err != nil {
		if r.opts.BaseURL == "" {
			return fmt.Errorf("%w (the repository may be private and require credentials)", err)
		}

		return err
	}
	defer resp.Body.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}

	if _, err = io.Copy(out, resp.Body); err != nil {
		out.Close()
		return fmt.Errorf("write %s: %w", dest, err)
	}

	if err = out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dest, err)
	}

	return nil
}

// copyLocalFile copies a file:// source to dest. A missing local artifact is
// a fatal error, never silently skipped.
func copyLocalFile(rawURL, dest string) error {
	path, err := localPathFromFileURL(rawURL)
	if err != nil {
		return err
	}

	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open local artifact: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}

	if _, err = io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy local artifact: %w", err)
	}

	if err = out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dest, err)
	}

	return nil
}

// readLocalFile reads a file:// source whole, up to limit bytes.
func readLocalFile(rawURL string, limit int64) ([]byte, error) {
	path, err := localPathFromFileURL(rawURL)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return io.ReadAll(io.LimitReader(f, limit))
}

// isFileURL reports whether the source is an explicitly-local file:// URL.
func isFileURL(source string) bool {
	return strings.HasPrefix(source, "file://")
}

// joinBase appends a file name to a base URL without doubling slashes.
func joinBase(base, name string) string {
	return strings.TrimSuffix(base, "/") + "/" + name
}

// localPathFromFileURL converts a file:// URL into a host filesystem path,
// handling Windows drive ("file:///C:/dir") and UNC ("file://server/share")
// forms.
func localPathFromFileURL(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse file URL %q: %w", rawURL, err)
	}

	if parsed.Scheme != "file" {
		return "", fmt.Errorf("%q: %w", rawURL, errNotFileURL)
	}

	path := parsed.Path

	switch {
	case parsed.Host != "":
		path = "//" + parsed.Host + path
	case len(path) >= 3 && path[0] == '/' && path[2] == ':':
		path = path[1:]
	}

	return filepath.FromSlash(path), nil
}
