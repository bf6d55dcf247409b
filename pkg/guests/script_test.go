package guests

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gantry-io/gantry/pkg/guest"
)

func TestScriptDetector_Match(t *testing.T) {
	m := &scriptedMachine{
		replies: map[string]string{"cat /etc/os-release": "ID=gentoo\nID_LIKE=linux"},
	}

	d := newScriptDetector(`
out = run("cat /etc/os-release")
match = "ID=gentoo" in out
`, 0)

	ok, err := d.Detect(context.Background(), m)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if !ok {
		t.Error("expected script to match")
	}
}

func TestScriptDetector_NoMatch(t *testing.T) {
	m := &scriptedMachine{
		replies: map[string]string{"cat /etc/os-release": "ID=ubuntu"},
	}

	d := newScriptDetector(`
out = run("cat /etc/os-release")
match = "ID=gentoo" in out
`, 0)

	ok, err := d.Detect(context.Background(), m)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if ok {
		t.Error("expected script not to match")
	}
}

func TestScriptDetector_FailingCommandIsEmpty(t *testing.T) {
	// run() returns "" when the probe command fails instead of aborting
	// the script.
	m := &scriptedMachine{replies: map[string]string{}}

	d := newScriptDetector(`
out = run("cat /etc/os-release")
match = out == ""
`, 0)

	ok, err := d.Detect(context.Background(), m)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if !ok {
		t.Error("expected empty observation for a failing command")
	}
}

func TestScriptDetector_MissingMatchGlobal(t *testing.T) {
	d := newScriptDetector(`out = run("uname -s")`, 0)

	_, err := d.Detect(context.Background(), &scriptedMachine{})
	if err == nil || !strings.Contains(err.Error(), "match") {
		t.Fatalf("expected missing-global error, got %v", err)
	}
}

func TestScriptDetector_NonBoolMatch(t *testing.T) {
	d := newScriptDetector(`match = "yes"`, 0)

	_, err := d.Detect(context.Background(), &scriptedMachine{})
	if err == nil || !strings.Contains(err.Error(), "bool") {
		t.Fatalf("expected type error, got %v", err)
	}
}

func TestScriptDetector_SyntaxError(t *testing.T) {
	d := newScriptDetector(`match = = true`, 0)

	_, err := d.Detect(context.Background(), &scriptedMachine{})
	if err == nil {
		t.Fatal("expected syntax error")
	}
}

func TestScriptDetector_Timeout(t *testing.T) {
	d := newScriptDetector(`
n = 0
for i in range(100000000):
    n += i
match = False
`, 50*time.Millisecond)

	_, err := d.Detect(context.Background(), &scriptedMachine{})
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestRegisterScriptGuests(t *testing.T) {
	reg := guest.NewRegistry()
	if err := reg.Register(guest.Definition{ID: Linux, NewDetector: newUnameDetector("Linux")}); err != nil {
		t.Fatal(err)
	}

	entries := []ScriptGuest{
		{ID: "gentoo", Parent: Linux, Script: `
out = run("cat /etc/os-release")
match = "ID=gentoo" in out
`},
	}
	if err := RegisterScriptGuests(reg, entries); err != nil {
		t.Fatalf("register: %v", err)
	}

	m := &scriptedMachine{
		replies: map[string]string{
			"uname -s":            "Linux",
			"cat /etc/os-release": "ID=gentoo",
		},
	}

	r := guest.NewResolver(m, reg, guest.NewCapabilityRegistry())
	if err := r.Detect(context.Background()); err != nil {
		t.Fatalf("detect: %v", err)
	}
	if r.Resolved() != "gentoo" {
		t.Errorf("expected gentoo, got %s", r.Resolved())
	}
}

func TestRegisterScriptGuests_EmptyScript(t *testing.T) {
	reg := guest.NewRegistry()
	err := RegisterScriptGuests(reg, []ScriptGuest{{ID: "broken"}})
	if err == nil {
		t.Fatal("expected error for empty script")
	}
}
