package guests

import (
	"context"
	"fmt"
	"strings"

	"github.com/gantry-io/gantry/pkg/guest"
)

// Capability names implemented by the built-in guests.
const (
	CapHostnameSet    = "hostname.set"
	CapPackageInstall = "package.install"
	CapServiceRestart = "service.restart"
	CapReboot         = "reboot"
)

// escalator is implemented by machines that support privilege
// escalation. Capabilities fall back to a plain run when the machine
// does not provide it.
type escalator interface {
	RunSudo(ctx context.Context, cmd string) (stdout string, stderr string, err error)
}

// runPrivileged executes cmd with escalation when available.
func runPrivileged(ctx context.Context, m guest.Machine, cmd string) (string, string, error) {
	if esc, ok := m.(escalator); ok {
		return esc.RunSudo(ctx, cmd)
	}
	return m.Run(ctx, cmd)
}

// stringArg extracts a required string argument.
func stringArg(args []any, i int, name string) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("missing argument %q", name)
	}
	s, ok := args[i].(string)
	if !ok || s == "" {
		return "", fmt.Errorf("argument %q must be a non-empty string", name)
	}
	return s, nil
}

// stringArgs converts all arguments to strings, requiring at least one.
func stringArgs(args []any, name string) ([]string, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("at least one %q argument is required", name)
	}
	out := make([]string, len(args))
	for i, a := range args {
		s, ok := a.(string)
		if !ok || s == "" {
			return nil, fmt.Errorf("argument %d of %q must be a non-empty string", i, name)
		}
		out[i] = s
	}
	return out, nil
}

// commandCapability wraps a single privileged command into a
// guest.Capability that returns the command's stdout.
func commandCapability(build func(args []any) (string, error)) guest.Capability {
	return func(ctx context.Context, m guest.Machine, args ...any) (any, error) {
		cmd, err := build(args)
		if err != nil {
			return nil, err
		}
		stdout, stderr, err := runPrivileged(ctx, m, cmd)
		if err != nil {
			if stderr != "" {
				return nil, fmt.Errorf("%w: %s", err, stderr)
			}
			return nil, err
		}
		return stdout, nil
	}
}

func setHostnameSystemd() guest.Capability {
	return commandCapability(func(args []any) (string, error) {
		name, err := stringArg(args, 0, "hostname")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("hostnamectl set-hostname %s", name), nil
	})
}

func setHostnameDarwin() guest.Capability {
	return commandCapability(func(args []any) (string, error) {
		name, err := stringArg(args, 0, "hostname")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("scutil --set HostName %s && scutil --set LocalHostName %s", name, name), nil
	})
}

func setHostnameFreeBSD() guest.Capability {
	return commandCapability(func(args []any) (string, error) {
		name, err := stringArg(args, 0, "hostname")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("hostname %s && sysrc hostname=%s", name, name), nil
	})
}

func setHostnameWindows() guest.Capability {
	return commandCapability(func(args []any) (string, error) {
		name, err := stringArg(args, 0, "hostname")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("powershell -Command \"Rename-Computer -NewName '%s' -Force\"", name), nil
	})
}

func installWithApt() guest.Capability {
	return commandCapability(func(args []any) (string, error) {
		pkgs, err := stringArgs(args, "package")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("DEBIAN_FRONTEND=noninteractive apt-get install -y %s", strings.Join(pkgs, " ")), nil
	})
}

func installWithDnf() guest.Capability {
	return commandCapability(func(args []any) (string, error) {
		pkgs, err := stringArgs(args, "package")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("dnf install -y %s", strings.Join(pkgs, " ")), nil
	})
}

func installWithApk() guest.Capability {
	return commandCapability(func(args []any) (string, error) {
		pkgs, err := stringArgs(args, "package")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("apk add --no-cache %s", strings.Join(pkgs, " ")), nil
	})
}

func installWithPacman() guest.Capability {
	return commandCapability(func(args []any) (string, error) {
		pkgs, err := stringArgs(args, "package")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("pacman -S --noconfirm %s", strings.Join(pkgs, " ")), nil
	})
}

func installWithZypper() guest.Capability {
	return commandCapability(func(args []any) (string, error) {
		pkgs, err := stringArgs(args, "package")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("zypper --non-interactive install %s", strings.Join(pkgs, " ")), nil
	})
}

func restartWithSystemctl() guest.Capability {
	return commandCapability(func(args []any) (string, error) {
		svc, err := stringArg(args, 0, "service")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("systemctl restart %s", svc), nil
	})
}

func restartWithService() guest.Capability {
	return commandCapability(func(args []any) (string, error) {
		svc, err := stringArg(args, 0, "service")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("service %s restart", svc), nil
	})
}

func restartWithLaunchctl() guest.Capability {
	return commandCapability(func(args []any) (string, error) {
		svc, err := stringArg(args, 0, "service")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("launchctl kickstart -k system/%s", svc), nil
	})
}

func rebootUnix() guest.Capability {
	return commandCapability(func(args []any) (string, error) {
		return "shutdown -r now", nil
	})
}

func rebootWindows() guest.Capability {
	return commandCapability(func(args []any) (string, error) {
		return "shutdown /r /t 0", nil
	})
}
