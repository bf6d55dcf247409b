package guests

import (
	"context"
	"strings"

	"github.com/gantry-io/gantry/pkg/guest"
)

// osReleaseDetector matches a linux distribution through the ID and
// ID_LIKE fields of /etc/os-release.
type osReleaseDetector struct {
	ids []string
}

func newOSReleaseDetector(ids ...string) func() guest.Detector {
	return func() guest.Detector {
		return &osReleaseDetector{ids: ids}
	}
}

func (d *osReleaseDetector) Detect(ctx context.Context, m guest.Machine) (bool, error) {
	stdout, _, err := m.Run(ctx, "cat /etc/os-release 2>/dev/null")
	if err != nil {
		// Not having the file is a non-match, not a failure: the probe
		// runs against non-linux machines too.
		return false, nil
	}

	id, idLike := parseOSRelease(stdout)
	for _, want := range d.ids {
		if id == want {
			return true, nil
		}
		for _, like := range idLike {
			if like == want {
				return true, nil
			}
		}
	}
	return false, nil
}

// parseOSRelease extracts ID and ID_LIKE from os-release content.
func parseOSRelease(content string) (string, []string) {
	var id string
	var idLike []string

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "ID="):
			id = strings.Trim(strings.TrimPrefix(line, "ID="), `"`)
		case strings.HasPrefix(line, "ID_LIKE="):
			raw := strings.Trim(strings.TrimPrefix(line, "ID_LIKE="), `"`)
			idLike = strings.Fields(raw)
		}
	}
	return id, idLike
}

// unameDetector matches a kernel name reported by uname -s.
type unameDetector struct {
	kernel string
}

func newUnameDetector(kernel string) func() guest.Detector {
	return func() guest.Detector {
		return &unameDetector{kernel: kernel}
	}
}

func (d *unameDetector) Detect(ctx context.Context, m guest.Machine) (bool, error) {
	stdout, _, err := m.Run(ctx, "uname -s")
	if err != nil {
		return false, nil
	}
	return strings.EqualFold(strings.TrimSpace(stdout), d.kernel), nil
}

// windowsDetector probes for a Windows shell. uname is absent there, so
// the ver builtin is the discriminator.
type windowsDetector struct{}

func newWindowsDetector() guest.Detector {
	return &windowsDetector{}
}

func (d *windowsDetector) Detect(ctx context.Context, m guest.Machine) (bool, error) {
	stdout, _, err := m.Run(ctx, "cmd.exe /c ver")
	if err != nil {
		return false, nil
	}
	return strings.Contains(stdout, "Windows"), nil
}
