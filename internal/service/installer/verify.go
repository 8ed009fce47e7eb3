package installer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ambarlabs/ambar-install/internal/logger"
)

// verifyArchive compares the fetched archive's SHA-256 digest against the
// integrity record. Without a digest the check is skipped with a warning. A
// mismatch deletes the artifact and aborts the run; nothing downstream ever
// sees an archive that failed verification.
func (r *runner) verifyArchive(ctx context.Context) error {
	if r.record.Source == SourceNone {
		logger.Warn(ctx, "No checksum available for artifact, skipping integrity verification")
		return nil
	}

	actual, err := fileSHA256(r.archivePath)
	if err != nil {
		return fmt.Errorf("hash artifact: %w", err)
	}

	if !strings.EqualFold(actual, r.record.Digest) {
		if removeErr := os.Remove(r.archivePath); removeErr != nil {
			logger.WarnKV(ctx, "Failed to remove artifact with mismatched digest",
				"path", r.archivePath,
				"error", removeErr)
		}

		return fmt.Errorf("%s: expected %s (%s), computed %s: %w",
			r.desc.ArchiveName, r.record.Digest, r.record.Source, actual, errDigestMismatch)
	}

	logger.InfoKV(ctx, "Artifact integrity verified",
		"digest", actual,
		"source", r.record.Source)

	return nil
}

// fileSHA256 computes a file's SHA-256 digest as lowercase hex, streaming so
// large archives are not held in memory.
func fileSHA256(path string) (string, error) {
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
