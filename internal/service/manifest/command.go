package manifest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ambarlabs/ambar-install/internal/logger"
	"github.com/ambarlabs/ambar-install/internal/service/installer"
)

var (
	errDirectoryRequired = errors.New("archive directory must be provided")
	errNoArchives        = errors.New("no release archives found")
)

// manifestFileMode matches the permissions release pipelines publish with.
const manifestFileMode os.FileMode = 0o644

// Options contains inputs for the manifest entry point.
type Options struct {
	// Dir is the directory scanned for release archives.
	Dir string
	// Output is the manifest path. Defaults to the standard manifest name
	// inside Dir, which is where the installer looks for it.
	Output string
}

// Run scans a directory of release archives, computes their SHA-256 digests
// and writes the checksum manifest the installer verifies against. Meant for
// release pipelines and for preparing local file:// install sources.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "manifest")

	gen, err := newGenerator(opts)
	if err != nil {
		return err
	}

	if err = gen.run(ctx); err != nil {
		logger.ErrorKV(ctx, "Manifest generation failed", "error", err)
		return err
	}

	return nil
}

// generator holds the resolved paths for one manifest run.
type generator struct {
	dir    string
	output string
}

func newGenerator(opts *Options) (*generator, error) {
	if opts == nil || opts.Dir == "" {
		return nil, errDirectoryRequired
	}

	output := opts.Output
	if output == "" {
		output = filepath.Join(opts.Dir, installer.ChecksumManifestName)
	}

	return &generator{dir: opts.Dir, output: output}, nil
}

func (g *generator) run(ctx context.Context) error {
	archives, err := g.collectArchives()
	if err != nil {
		return err
	}

	if len(archives) == 0 {
		return fmt.Errorf("%s: %w", g.dir, errNoArchives)
	}

	var builder strings.Builder

	for _, name := range archives {
		digest, err := fileChecksum(filepath.Join(g.dir, name))
		if err != nil {
			return fmt.Errorf("hash %s: %w", name, err)
		}

		builder.WriteString(digest)
		builder.WriteString("  ")
		builder.WriteString(name)
		builder.WriteString("\n")

		logger.InfoKV(ctx, "Added archive to manifest",
			"archive", name,
			"digest", digest)
	}

	if err = os.WriteFile(g.output, []byte(builder.String()), manifestFileMode); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	logger.InfoKV(ctx, "Manifest written; publish it alongside the archives",
		"path", g.output,
		"archives", len(archives))

	return nil
}

// collectArchives lists release archives in the directory, sorted by name so
// manifests are reproducible run to run.
func (g *generator) collectArchives() ([]string, error) {
	entries, err := os.ReadDir(g.dir)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}

	var archives []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if strings.HasSuffix(name, ".tar.gz") || strings.HasSuffix(name, ".zip") {
			archives = append(archives, name)
		}
	}

	sort.Strings(archives)

	return archives, nil
}

// fileChecksum computes a file's SHA-256 digest as lowercase hex.
func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err = io.Copy(hasher, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}
