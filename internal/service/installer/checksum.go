package installer

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/ambarlabs/ambar-install/internal/logger"
)

// DigestSource names where an expected digest came from.
type DigestSource string

const (
	// SourceReleaseMetadata means the digest came from the release's
	// structured asset listing.
	SourceReleaseMetadata DigestSource = "release-metadata"
	// SourceChecksumsManifest means the digest came from the flat
	// manifest published alongside the release.
	SourceChecksumsManifest DigestSource = "checksums-manifest"
	// SourceLocalManifest means the digest came from a manifest under a
	// base URL override.
	SourceLocalManifest DigestSource = "local-manifest"
	// SourceNone means no digest was found and verification is skipped.
	SourceNone DigestSource = "none"
)

// IntegrityRecord is the expected digest of the archive, if any.
type IntegrityRecord struct {
	// Digest is the hex-encoded SHA-256 digest, lowercase.
	Digest string
	// Source names where the digest came from.
	Source DigestSource
}

// resolveDigest finds the expected archive digest. With a base URL override
// only the manifest under that base is consulted, so overridden runs stay off
// the release host entirely. Otherwise the release's asset listing is tried
// first, then the published checksum manifest. A missing digest is not an
// error; verification is skipped later with a warning.
func (r *runner) resolveDigest(ctx context.Context) IntegrityRecord {
	if r.opts.BaseURL != "" {
		source := joinBase(r.opts.BaseURL, ChecksumManifestName)
		return r.manifestDigest(ctx, source, SourceLocalManifest)
	}

	if record, ok := r.assetDigest(ctx); ok {
		return record
	}

	source := r.client.DownloadURL(r.opts.Repository, r.resolved.Tag, ChecksumManifestName)

	return r.manifestDigest(ctx, source, SourceChecksumsManifest)
}

// assetDigest reads the digest from the release's structured asset listing.
func (r *runner) assetDigest(ctx context.Context) (IntegrityRecord, bool) {
	release, err := r.client.ReleaseByTag(ctx, r.opts.Repository, r.resolved.Tag)
	if err != nil {
		logger.DebugKV(ctx, "Release metadata has no usable digest", "error", err)

		return IntegrityRecord{}, false
	}

	digest := release.AssetDigest(r.desc.ArchiveName)
	if !isHexDigest(digest) {
		return IntegrityRecord{}, false
	}

	logger.DebugKV(ctx, "Expected digest from release metadata", "digest", digest)

	return IntegrityRecord{
		Digest: strings.ToLower(digest),
		Source: SourceReleaseMetadata,
	}, true
}

// manifestDigest fetches a flat checksum manifest and scans it for the
// archive's digest line.
func (r *runner) manifestDigest(ctx context.Context, source string, from DigestSource) IntegrityRecord {
	data, err := r.readManifest(ctx, source)
	if err != nil {
		logger.WarnKV(ctx, "Checksum manifest unavailable, verification will be skipped",
			"source", source,
			"error", err)

		return IntegrityRecord{Source: SourceNone}
	}

	digest, ok := digestFromManifest(data, r.desc.ArchiveName)
	if !ok {
		logger.WarnKV(ctx, "Checksum manifest has no entry for archive, verification will be skipped",
			"source", source,
			"archive", r.desc.ArchiveName)

		return IntegrityRecord{Source: SourceNone}
	}

	logger.DebugKV(ctx, "Expected digest from checksum manifest",
		"digest", digest,
		"source", source)

	return IntegrityRecord{Digest: digest, Source: from}
}

// readManifest reads a checksum manifest from a file:// path or the release
// host.
func (r *runner) readManifest(ctx context.Context, source string) ([]byte, error) {
	if isFileURL(source) {
		return readLocalFile(source, maxManifestSize)
	}

	resp, err := r.client.Download(ctx, source)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return io.ReadAll(io.LimitReader(resp.Body, maxManifestSize))
}

// digestFromManifest scans manifest lines in "digest  filename" form and
// returns the lowercase digest whose filename field matches name exactly.
// A leading "*" on the filename (binary-mode sum output) is ignored.
func digestFromManifest(manifest []byte, name string) (string, bool) {
	scanner := bufio.NewScanner(bytes.NewReader(manifest))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}

		if strings.TrimPrefix(fields[1], "*") != name {
			continue
		}

		if !isHexDigest(fields[0]) {
			continue
		}

		return strings.ToLower(fields[0]), true
	}

	return "", false
}
