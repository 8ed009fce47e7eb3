package platform

import (
	"context"

	"github.com/shirou/gopsutil/v4/host"
)

// HostInfo carries best-effort host details used for startup diagnostics.
type HostInfo struct {
	// Platform is the OS distribution or product name (e.g. "ubuntu").
	Platform string
	// Family is the distribution family (e.g. "debian").
	Family string
	// Version is the OS or distribution version string.
	Version string
	// KernelArch is the kernel-reported architecture (uname -m style).
	KernelArch string
}

// DescribeHost gathers host platform details for logging. Detection failures
// degrade to an empty HostInfo; only context cancellation is reported as an
// error so callers can distinguish an aborted run from a host without the
// relevant metadata.
func DescribeHost(ctx context.Context) (HostInfo, error) {
	var info HostInfo

	platformName, family, version, err := host.PlatformInformationWithContext(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return HostInfo{}, ctx.Err()
		}
	} else {
		info.Platform = platformName
		info.Family = family
		info.Version = version
	}

	kernelArch, err := host.KernelArch()
	if err == nil {
		info.KernelArch = kernelArch
	}

	return info, nil
}

// Emulated reports whether the kernel architecture differs from the target
// architecture, which happens under translation layers such as Rosetta.
// Unknown kernel architectures are never reported as emulation.
func (h HostInfo) Emulated(t Target) bool {
	if h.KernelArch == "" {
		return false
	}

	kernelTarget, err := Normalize(t.OS, h.KernelArch)
	if err != nil {
		return false
	}

	return kernelTarget.Arch != t.Arch
}
