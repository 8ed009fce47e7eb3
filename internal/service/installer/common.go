package installer

import (
	"os"
	"strings"
	"time"
)

const (
	// ChecksumManifestName is the flat digest manifest published alongside
	// release archives and mirror directories.
	ChecksumManifestName = "checksums.txt"

	// scratchDirPrefix names the run-exclusive temporary directory.
	scratchDirPrefix = "ambar-install-"

	// binaryFileMode is applied to the installed binary.
	binaryFileMode os.FileMode = 0o755

	// installDirMode is used when creating the install directory tree.
	installDirMode os.FileMode = 0o755

	// versionProbeTimeout bounds the subprocess that reads the installed
	// binary's version.
	versionProbeTimeout = 10 * time.Second

	// maxEntrySize caps a single extracted archive entry to guard against
	// decompression bombs.
	maxEntrySize int64 = 1 << 30

	// maxManifestSize caps checksum manifest reads.
	maxManifestSize int64 = 1 << 20

	// digestHexLength is the length of a hex-encoded SHA-256 digest.
	digestHexLength = 64
)

// isHexDigest reports whether s looks like a hex-encoded SHA-256 digest.
func isHexDigest(s string) bool {
	if len(s) != digestHexLength {
		return false
	}

	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}

	return true
}

// parseVersionOutput extracts the semantic version from the binary's version
// output, e.g. "1.4.2" from "version: 1.4.2, commit: abc123, built at: ...".
func parseVersionOutput(output string) (string, error) {
	output = strings.TrimSpace(output)
	if strings.HasPrefix(output, "version: ") {
		parts := strings.Split(output, ",")
		if len(parts) > 0 {
			version := strings.TrimSpace(strings.TrimPrefix(parts[0], "version: "))
			if version != "" {
				return version, nil
			}
		}
	}

	return "", errInvalidVersionOutput
}

// normalizeTag strips a single leading "v" so tags and bare versions compare
// and render consistently.
func normalizeTag(tag string) string {
	return strings.TrimPrefix(strings.TrimSpace(tag), "v")
}
