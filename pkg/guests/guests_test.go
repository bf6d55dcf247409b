package guests

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/gantry-io/gantry/pkg/guest"
)

// scriptedMachine answers probe commands from a canned table and
// records every privileged command.
type scriptedMachine struct {
	explicit string
	replies  map[string]string
	sudoCmds []string
}

func (m *scriptedMachine) ExplicitGuest() string { return m.explicit }

func (m *scriptedMachine) Run(ctx context.Context, cmd string) (string, string, error) {
	if out, ok := m.replies[cmd]; ok {
		return out, "", nil
	}
	return "", "command not found", fmt.Errorf("exit status 127")
}

func (m *scriptedMachine) RunSudo(ctx context.Context, cmd string) (string, string, error) {
	m.sudoCmds = append(m.sudoCmds, cmd)
	return "", "", nil
}

func ubuntuMachine() *scriptedMachine {
	return &scriptedMachine{
		replies: map[string]string{
			"uname -s":                        "Linux",
			"cat /etc/os-release 2>/dev/null": "NAME=\"Ubuntu\"\nID=ubuntu\nID_LIKE=debian\nVERSION_ID=\"24.04\"",
		},
	}
}

func resolveBuiltin(t *testing.T, m guest.Machine) *guest.Resolver {
	t.Helper()
	reg, caps, err := Builtin()
	if err != nil {
		t.Fatalf("builtin registries: %v", err)
	}
	r := guest.NewResolver(m, reg, caps)
	if err := r.Detect(context.Background()); err != nil {
		t.Fatalf("detect: %v", err)
	}
	return r
}

func TestBuiltin_DetectsUbuntu(t *testing.T) {
	r := resolveBuiltin(t, ubuntuMachine())

	if r.Resolved() != Ubuntu {
		t.Fatalf("expected ubuntu, got %s", r.Resolved())
	}

	chain := r.Chain()
	expected := []guest.ID{Ubuntu, Debian, Linux}
	if len(chain) != len(expected) {
		t.Fatalf("expected chain %v, got %v", expected, chain)
	}
	for i := range expected {
		if chain[i] != expected[i] {
			t.Errorf("chain[%d]: expected %s, got %s", i, expected[i], chain[i])
		}
	}
}

func TestBuiltin_DetectsByIDLike(t *testing.T) {
	// A Debian derivative without its own definition matches debian
	// through ID_LIKE.
	m := &scriptedMachine{
		replies: map[string]string{
			"uname -s":                        "Linux",
			"cat /etc/os-release 2>/dev/null": "ID=raspbian\nID_LIKE=debian",
		},
	}

	r := resolveBuiltin(t, m)
	if r.Resolved() != Debian {
		t.Errorf("expected debian via ID_LIKE, got %s", r.Resolved())
	}
}

func TestBuiltin_DetectsGenericLinux(t *testing.T) {
	m := &scriptedMachine{
		replies: map[string]string{
			"uname -s": "Linux",
			// os-release with an unknown distribution.
			"cat /etc/os-release 2>/dev/null": "ID=gentoo",
		},
	}

	r := resolveBuiltin(t, m)
	if r.Resolved() != Linux {
		t.Errorf("expected generic linux fallback, got %s", r.Resolved())
	}
}

func TestBuiltin_DetectsDarwin(t *testing.T) {
	m := &scriptedMachine{
		replies: map[string]string{"uname -s": "Darwin"},
	}

	r := resolveBuiltin(t, m)
	if r.Resolved() != Darwin {
		t.Errorf("expected darwin, got %s", r.Resolved())
	}
}

func TestBuiltin_DetectsWindows(t *testing.T) {
	m := &scriptedMachine{
		replies: map[string]string{"cmd.exe /c ver": "Microsoft Windows [Version 10.0.20348]"},
	}

	r := resolveBuiltin(t, m)
	if r.Resolved() != Windows {
		t.Errorf("expected windows, got %s", r.Resolved())
	}
}

func TestBuiltin_NothingMatches(t *testing.T) {
	reg, caps, err := Builtin()
	if err != nil {
		t.Fatal(err)
	}

	r := guest.NewResolver(&scriptedMachine{replies: map[string]string{}}, reg, caps)
	err = r.Detect(context.Background())
	if !guest.IsNotDetected(err) {
		t.Fatalf("expected not-detected, got %v", err)
	}
}

func TestBuiltin_PackageInstallUsesApt(t *testing.T) {
	m := ubuntuMachine()
	r := resolveBuiltin(t, m)

	// ubuntu has no own binding; debian's apt implementation is
	// inherited through the chain.
	if _, err := r.Capability(context.Background(), CapPackageInstall, "curl", "jq"); err != nil {
		t.Fatalf("capability: %v", err)
	}

	if len(m.sudoCmds) != 1 {
		t.Fatalf("expected one privileged command, got %v", m.sudoCmds)
	}
	if !strings.Contains(m.sudoCmds[0], "apt-get install -y curl jq") {
		t.Errorf("expected apt-get invocation, got %q", m.sudoCmds[0])
	}
}

func TestBuiltin_ServiceRestartOverride(t *testing.T) {
	// Alpine overrides the generic systemctl restart with OpenRC.
	m := &scriptedMachine{
		replies: map[string]string{
			"uname -s":                        "Linux",
			"cat /etc/os-release 2>/dev/null": "ID=alpine",
		},
	}
	r := resolveBuiltin(t, m)

	if _, err := r.Capability(context.Background(), CapServiceRestart, "sshd"); err != nil {
		t.Fatalf("capability: %v", err)
	}
	if len(m.sudoCmds) != 1 || !strings.Contains(m.sudoCmds[0], "service sshd restart") {
		t.Errorf("expected OpenRC restart, got %v", m.sudoCmds)
	}
}

func TestBuiltin_HostnameSetInherited(t *testing.T) {
	m := ubuntuMachine()
	r := resolveBuiltin(t, m)

	if _, err := r.Capability(context.Background(), CapHostnameSet, "web01"); err != nil {
		t.Fatalf("capability: %v", err)
	}
	if len(m.sudoCmds) != 1 || !strings.Contains(m.sudoCmds[0], "hostnamectl set-hostname web01") {
		t.Errorf("expected hostnamectl, got %v", m.sudoCmds)
	}
}

func TestBuiltin_WindowsHasNoPackageInstall(t *testing.T) {
	m := &scriptedMachine{
		replies: map[string]string{"cmd.exe /c ver": "Microsoft Windows [Version 10.0.20348]"},
	}
	r := resolveBuiltin(t, m)

	if r.HasCapability(CapPackageInstall) {
		t.Error("windows must not advertise package.install")
	}
	_, err := r.Capability(context.Background(), CapPackageInstall, "curl")
	if !guest.IsCapabilityNotFound(err) {
		t.Errorf("expected capability-not-found, got %v", err)
	}
}

func TestBuiltin_WindowsServiceRestartInvalid(t *testing.T) {
	m := &scriptedMachine{
		replies: map[string]string{"cmd.exe /c ver": "Microsoft Windows [Version 10.0.20348]"},
	}
	r := resolveBuiltin(t, m)

	if !r.HasCapability(CapServiceRestart) {
		t.Error("windows should declare service.restart")
	}
	_, err := r.Capability(context.Background(), CapServiceRestart, "spooler")
	if !guest.IsCapabilityInvalid(err) {
		t.Errorf("expected capability-invalid, got %v", err)
	}
}

func TestBuiltin_CapabilityArgValidation(t *testing.T) {
	r := resolveBuiltin(t, ubuntuMachine())

	if _, err := r.Capability(context.Background(), CapPackageInstall); err == nil {
		t.Error("expected error for missing package argument")
	}
	if _, err := r.Capability(context.Background(), CapHostnameSet, 42); err == nil {
		t.Error("expected error for non-string hostname")
	}
}

func TestParseOSRelease(t *testing.T) {
	content := "NAME=\"Rocky Linux\"\nID=\"rocky\"\nID_LIKE=\"rhel centos fedora\"\n"

	id, idLike := parseOSRelease(content)
	if id != "rocky" {
		t.Errorf("expected id rocky, got %q", id)
	}
	if len(idLike) != 3 || idLike[0] != "rhel" {
		t.Errorf("expected ID_LIKE [rhel centos fedora], got %v", idLike)
	}
}
