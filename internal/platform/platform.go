package platform

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Target is the canonical platform pair used to build artifact names.
type Target struct {
	// OS is the canonical operating system tag (linux, darwin, windows).
	OS string
	// Arch is the canonical architecture tag (amd64, arm64, or 386 on windows).
	Arch string
}

const (
	// OSLinux is the canonical tag for Linux hosts.
	OSLinux = "linux"
	// OSDarwin is the canonical tag for macOS hosts.
	OSDarwin = "darwin"
	// OSWindows is the canonical tag for Windows hosts.
	OSWindows = "windows"

	// ArchAMD64 is the canonical tag for 64-bit x86.
	ArchAMD64 = "amd64"
	// ArchARM64 is the canonical tag for 64-bit ARM.
	ArchARM64 = "arm64"
	// Arch386 is the canonical tag for 32-bit x86, supported on Windows only.
	Arch386 = "386"
)

var (
	// ErrUnsupportedOS indicates the operating system has no published artifacts.
	ErrUnsupportedOS = errors.New("unsupported operating system")
	// ErrUnsupportedArch indicates the architecture has no published artifacts.
	ErrUnsupportedArch = errors.New("unsupported architecture")
)

// archAliases maps architecture spellings seen in kernel and asset names
// to canonical tags.
var archAliases = map[string]string{
	"amd64":   ArchAMD64,
	"x86_64":  ArchAMD64,
	"x64":     ArchAMD64,
	"arm64":   ArchARM64,
	"aarch64": ArchARM64,
	"386":     Arch386,
	"x86":     Arch386,
	"i386":    Arch386,
	"i686":    Arch386,
}

// supportedArchs lists the architectures with published artifacts per OS.
var supportedArchs = map[string][]string{
	OSLinux:   {ArchAMD64, ArchARM64},
	OSDarwin:  {ArchAMD64, ArchARM64},
	OSWindows: {ArchAMD64, ArchARM64, Arch386},
}

// Detect maps the running host to its canonical target.
// Unsupported values are reported immediately; there is no silent default.
func Detect() (Target, error) {
	return Normalize(runtime.GOOS, runtime.GOARCH)
}

// Normalize converts OS and architecture spellings (canonical Go values or
// uname-style aliases such as x86_64, aarch64, MINGW64_NT) into a validated
// Target.
func Normalize(osName, archName string) (Target, error) {
	canonicalOS, err := normalizeOS(osName)
	if err != nil {
		return Target{}, err
	}

	canonicalArch, ok := archAliases[strings.ToLower(strings.TrimSpace(archName))]
	if !ok {
		return Target{}, fmt.Errorf("%q: %w", archName, ErrUnsupportedArch)
	}

	target := Target{OS: canonicalOS, Arch: canonicalArch}
	if err := validate(target); err != nil {
		return Target{}, err
	}

	return target, nil
}

// normalizeOS maps OS spellings to canonical tags, treating Windows-flavored
// POSIX environments (MSYS, MinGW, Cygwin kernels) as windows.
func normalizeOS(osName string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(osName))

	switch {
	case name == OSLinux:
		return OSLinux, nil
	case name == OSDarwin || name == "macos" || name == "osx":
		return OSDarwin, nil
	case name == OSWindows,
		strings.HasPrefix(name, "mingw"),
		strings.HasPrefix(name, "msys"),
		strings.HasPrefix(name, "cygwin"):
		return OSWindows, nil
	default:
		return "", fmt.Errorf("%q: %w", osName, ErrUnsupportedOS)
	}
}

// validate checks that artifacts are published for the OS/arch pair.
func validate(t Target) error {
	archs, ok := supportedArchs[t.OS]
	if !ok {
		return fmt.Errorf("%q: %w", t.OS, ErrUnsupportedOS)
	}

	for _, arch := range archs {
		if arch == t.Arch {
			return nil
		}
	}

	return fmt.Errorf("%s on %s (supported: %s): %w",
		t.Arch, t.OS, strings.Join(archs, ", "), ErrUnsupportedArch)
}

// String renders the target as "<os>-<arch>", the form used in artifact names.
func (t Target) String() string {
	return t.OS + "-" + t.Arch
}

// ArchiveExt returns the release archive extension for the target.
func (t Target) ArchiveExt() string {
	if t.OS == OSWindows {
		return ".zip"
	}

	return ".tar.gz"
}

// ExeSuffix returns the executable filename suffix for the target.
func (t Target) ExeSuffix() string {
	if t.OS == OSWindows {
		return ".exe"
	}

	return ""
}
