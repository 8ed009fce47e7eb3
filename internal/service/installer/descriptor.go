package installer

import (
	"fmt"

	"github.com/ambarlabs/ambar-install/internal/platform"
)

// Descriptor holds the artifact names derived from a component, target
// platform and release tag. Release archives follow the convention
// "<component>-v<version>-<os>-<arch>.tar.gz" (".zip" on Windows), contain a
// single binary named "<component>-<os>-<arch>" (plus ".exe" on Windows), and
// install as "<component>" in the install directory.
type Descriptor struct {
	// ArchiveName is the release asset to fetch.
	ArchiveName string
	// BinaryName is the executable expected inside the archive.
	BinaryName string
	// TargetName is the final name of the installed binary.
	TargetName string
}

// NewDescriptor derives artifact names for one release on one platform.
// The tag is normalized to a single leading "v", so "1.4.2" and "v1.4.2"
// select the same artifact.
func NewDescriptor(component string, target platform.Target, tag string) Descriptor {
	version := normalizeTag(tag)

	return Descriptor{
		ArchiveName: fmt.Sprintf("%s-v%s-%s-%s%s",
			component, version, target.OS, target.Arch, target.ArchiveExt()),
		BinaryName: fmt.Sprintf("%s-%s-%s%s",
			component, target.OS, target.Arch, target.ExeSuffix()),
		TargetName: component + target.ExeSuffix(),
	}
}
