package guests

import (
	"fmt"

	"github.com/gantry-io/gantry/pkg/guest"
)

// Built-in guest IDs.
const (
	Linux   guest.ID = "linux"
	Debian  guest.ID = "debian"
	Ubuntu  guest.ID = "ubuntu"
	RedHat  guest.ID = "redhat"
	Fedora  guest.ID = "fedora"
	Alpine  guest.ID = "alpine"
	Arch    guest.ID = "arch"
	SUSE    guest.ID = "suse"
	Darwin  guest.ID = "darwin"
	FreeBSD guest.ID = "freebsd"
	Windows guest.ID = "windows"
)

// Builtin returns registries populated with the built-in guest forest
// and capability tables. The forest:
//
//	linux ── debian ── ubuntu
//	     ├── redhat ── fedora
//	     ├── alpine
//	     ├── arch
//	     └── suse
//	darwin
//	freebsd
//	windows
//
// Generic guests are registered before their specializations so that,
// within one specificity group, probing order follows the order below.
func Builtin() (*guest.Registry, *guest.CapabilityRegistry, error) {
	reg := guest.NewRegistry()

	defs := []guest.Definition{
		{ID: Linux, NewDetector: newUnameDetector("Linux")},
		{ID: Debian, Parent: Linux, NewDetector: newOSReleaseDetector("debian")},
		{ID: Ubuntu, Parent: Debian, NewDetector: newOSReleaseDetector("ubuntu")},
		{ID: RedHat, Parent: Linux, NewDetector: newOSReleaseDetector("rhel", "centos", "rocky", "almalinux")},
		{ID: Fedora, Parent: RedHat, NewDetector: newOSReleaseDetector("fedora")},
		{ID: Alpine, Parent: Linux, NewDetector: newOSReleaseDetector("alpine")},
		{ID: Arch, Parent: Linux, NewDetector: newOSReleaseDetector("arch")},
		{ID: SUSE, Parent: Linux, NewDetector: newOSReleaseDetector("opensuse", "sles", "suse")},
		{ID: Darwin, NewDetector: newUnameDetector("Darwin")},
		{ID: FreeBSD, NewDetector: newUnameDetector("FreeBSD")},
		{ID: Windows, NewDetector: func() guest.Detector { return newWindowsDetector() }},
	}

	for _, def := range defs {
		if err := reg.Register(def); err != nil {
			return nil, nil, fmt.Errorf("registering built-in guests: %w", err)
		}
	}

	caps := guest.NewCapabilityRegistry()

	bindings := []struct {
		id   guest.ID
		name string
		fn   guest.Capability
	}{
		{Linux, CapHostnameSet, setHostnameSystemd()},
		{Linux, CapServiceRestart, restartWithSystemctl()},
		{Linux, CapReboot, rebootUnix()},

		// package.install deliberately has no generic linux fallback:
		// there is no distribution-neutral package manager.
		{Debian, CapPackageInstall, installWithApt()},
		{RedHat, CapPackageInstall, installWithDnf()},
		{Alpine, CapPackageInstall, installWithApk()},
		{Arch, CapPackageInstall, installWithPacman()},
		{SUSE, CapPackageInstall, installWithZypper()},

		// Alpine ships OpenRC, not systemd.
		{Alpine, CapServiceRestart, restartWithService()},

		{Darwin, CapHostnameSet, setHostnameDarwin()},
		{Darwin, CapServiceRestart, restartWithLaunchctl()},
		{Darwin, CapReboot, rebootUnix()},

		{FreeBSD, CapHostnameSet, setHostnameFreeBSD()},
		{FreeBSD, CapServiceRestart, restartWithService()},
		{FreeBSD, CapReboot, rebootUnix()},

		{Windows, CapHostnameSet, setHostnameWindows()},
		{Windows, CapReboot, rebootWindows()},

		// Declared but not implemented yet; dispatch reports it as
		// invalid instead of falling back to a unix restart.
		{Windows, CapServiceRestart, nil},
	}

	for _, b := range bindings {
		if err := caps.Register(b.id, b.name, b.fn); err != nil {
			return nil, nil, fmt.Errorf("registering built-in capabilities: %w", err)
		}
	}

	return reg, caps, nil
}
