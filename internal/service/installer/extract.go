package installer

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/ambarlabs/ambar-install/internal/logger"
)

// extractBinary unpacks the verified archive into an isolated directory
// under scratch and returns the path of the expected binary. A missing
// binary is fatal and the error lists what the archive actually contained.
func (r *runner) extractBinary(ctx context.Context) (string, error) {
	extractDir := filepath.Join(r.scratchDir, "extract")
	if err := os.MkdirAll(extractDir, installDirMode); err != nil {
		return "", fmt.Errorf("create extraction directory: %w", err)
	}

	logger.DebugKV(ctx, "Extracting archive",
		"archive", r.archivePath,
		"dest", extractDir)

	var (
		entries []string
		err     error
	)

	switch {
	case strings.HasSuffix(r.desc.ArchiveName, ".tar.gz"):
		entries, err = extractTarGz(r.archivePath, extractDir)
	case strings.HasSuffix(r.desc.ArchiveName, ".zip"):
		entries, err = extractZip(r.archivePath, extractDir)
	default:
		return "", fmt.Errorf("%s: %w", r.desc.ArchiveName, errUnsupportedArchive)
	}

	if err != nil {
		return "", fmt.Errorf("extract %s: %w", r.desc.ArchiveName, err)
	}

	binaryPath, ok := locateBinary(entries, extractDir, r.desc.BinaryName)
	if !ok {
		contents := strings.Join(entries, ", ")
		if contents == "" {
			contents = "(empty archive)"
		}

		return "", fmt.Errorf("%w: want %s, archive contains: %s",
			errBinaryNotInArchive, r.desc.BinaryName, contents)
	}

	return binaryPath, nil
}

// locateBinary finds the first extracted regular file whose base name matches
// the expected binary name.
func locateBinary(entries []string, extractDir, binaryName string) (string, bool) {
	for _, entry := range entries {
		if path.Base(entry) != binaryName {
			continue
		}

		candidate := filepath.Join(extractDir, filepath.FromSlash(entry))

		info, err := os.Stat(candidate)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}

		return candidate, true
	}

	return "", false
}

// extractTarGz unpacks a .tar.gz archive into destDir and returns the names
// of all entries it saw. Symlinks and special files are recorded but never
// created.
func extractTarGz(archivePath, destDir string) ([]string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	gzipReader, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("read gzip stream: %w", err)
	}
	defer gzipReader.Close()

	var entries []string

	tarReader := tar.NewReader(gzipReader)

	for {
		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("read tar header: %w", err)
		}

		entries = append(entries, header.Name)

		target, err := entryPath(destDir, header.Name)
		if err != nil {
			return nil, err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err = os.MkdirAll(target, installDirMode); err != nil {
				return nil, fmt.Errorf("create directory %s: %w", header.Name, err)
			}
		case tar.TypeReg:
			if header.Size > maxEntrySize {
				return nil, fmt.Errorf("%s (%d bytes): %w", header.Name, header.Size, errEntryTooLarge)
			}

			if err = writeEntry(target, tarReader, header.Size, header.FileInfo().Mode().Perm()); err != nil {
				return nil, fmt.Errorf("extract %s: %w", header.Name, err)
			}
		default:
		}
	}

	return entries, nil
}

// extractZip unpacks a .zip archive into destDir and returns the names of
// all entries it saw.
func extractZip(archivePath, destDir string) ([]string, error) {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open zip archive: %w", err)
	}
	defer reader.Close()

	entries := make([]string, 0, len(reader.File))

	for _, entry := range reader.File {
		entries = append(entries, entry.Name)

		target, err := entryPath(destDir, entry.Name)
		if err != nil {
			return nil, err
		}

		info := entry.FileInfo()

		if info.IsDir() {
			if err = os.MkdirAll(target, installDirMode); err != nil {
				return nil, fmt.Errorf("create directory %s: %w", entry.Name, err)
			}

			continue
		}

		if !info.Mode().IsRegular() {
			continue
		}

		if entry.UncompressedSize64 > uint64(maxEntrySize) {
			return nil, fmt.Errorf("%s (%d bytes): %w", entry.Name, entry.UncompressedSize64, errEntryTooLarge)
		}

		src, err := entry.Open()
		if err != nil {
			return nil, fmt.Errorf("open zip entry %s: %w", entry.Name, err)
		}

		err = writeEntry(target, src, int64(entry.UncompressedSize64), info.Mode().Perm())
		src.Close()

		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", entry.Name, err)
		}
	}

	return entries, nil
}

// entryPath joins an archive entry name onto destDir, rejecting names that
// would escape it.
func entryPath(destDir, name string) (string, error) {
	target := filepath.Join(destDir, filepath.FromSlash(name))
	if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("%s: %w", name, errUnsafeArchivePath)
	}

	return target, nil
}

// writeEntry streams one archive entry to disk, bounded by the size declared
// in its header.
func writeEntry(target string, src io.Reader, size int64, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), installDirMode); err != nil {
		return err
	}

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}

	if _, err = io.CopyN(out, src, size); err != nil && !errors.Is(err, io.EOF) {
		out.Close()
		return err
	}

	return out.Close()
}
