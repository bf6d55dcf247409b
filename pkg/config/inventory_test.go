package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleInventory = `
base: {
	user:     "ops"
	key_path: "/home/ops/.ssh/id_ed25519"
}

machines: {
	web01: base & {
		address: "10.0.0.11"
		labels: {env: "prod", role: "web"}
	}
	db01: base & {
		address:         "10.0.0.20"
		port:            2222
		guest:           "debian"
		command_timeout: "5m"
		labels: {env: "prod", protected: "true"}
	}
}

guests: {
	gentoo: {
		parent: "linux"
		script: """
			out = run("cat /etc/os-release")
			match = "ID=gentoo" in out
			"""
		timeout: "10s"
	}
}
`

func TestInventoryParser_ParseInline(t *testing.T) {
	inv, err := NewInventoryParser().ParseInline(sampleInventory)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if len(inv.Machines) != 2 {
		t.Fatalf("expected 2 machines, got %d", len(inv.Machines))
	}

	// Sorted by name.
	db, web := inv.Machines[0], inv.Machines[1]
	if db.Name != "db01" || web.Name != "web01" {
		t.Fatalf("expected [db01 web01], got [%s %s]", db.Name, web.Name)
	}

	// Shared defaults from the base struct unify into both entries.
	if web.User != "ops" || db.User != "ops" {
		t.Error("expected unified user from base")
	}
	if web.KeyPath != "/home/ops/.ssh/id_ed25519" {
		t.Errorf("expected unified key path, got %q", web.KeyPath)
	}

	if db.Port != 2222 {
		t.Errorf("expected port 2222, got %d", db.Port)
	}
	if db.Guest != "debian" {
		t.Errorf("expected pinned guest debian, got %q", db.Guest)
	}
	if db.CommandTimeout != 5*time.Minute {
		t.Errorf("expected 5m command timeout, got %v", db.CommandTimeout)
	}
	if db.Labels["protected"] != "true" {
		t.Errorf("expected protected label, got %v", db.Labels)
	}

	if len(inv.ScriptGuests) != 1 {
		t.Fatalf("expected 1 script guest, got %d", len(inv.ScriptGuests))
	}
	sg := inv.ScriptGuests[0]
	if sg.ID != "gentoo" || sg.Parent != "linux" {
		t.Errorf("unexpected script guest identity: %+v", sg)
	}
	if sg.Timeout != 10*time.Second {
		t.Errorf("expected 10s timeout, got %v", sg.Timeout)
	}
}

func TestInventory_MachineLookup(t *testing.T) {
	inv, err := NewInventoryParser().ParseInline(sampleInventory)
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := inv.Machine("web01"); !ok {
		t.Error("expected web01 to be found")
	}
	if _, ok := inv.Machine("missing"); ok {
		t.Error("expected missing machine to not be found")
	}
}

func TestInventoryParser_ParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventory.cue")
	if err := os.WriteFile(path, []byte(sampleInventory), 0o600); err != nil {
		t.Fatal(err)
	}

	inv, err := NewInventoryParser().Parse([]string{path})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(inv.Machines) != 2 {
		t.Errorf("expected 2 machines, got %d", len(inv.Machines))
	}
	if len(inv.SourceFiles) != 1 || inv.SourceFiles[0] != path {
		t.Errorf("unexpected source files: %v", inv.SourceFiles)
	}
}

func TestInventoryParser_ParseYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventory.yaml")
	content := `
machines:
  web01:
    address: 10.0.0.11
    user: ops
    labels:
      env: prod
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	inv, err := NewInventoryParser().Parse([]string{path})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(inv.Machines) != 1 {
		t.Fatalf("expected 1 machine, got %d", len(inv.Machines))
	}
	if inv.Machines[0].Address != "10.0.0.11" || inv.Machines[0].Labels["env"] != "prod" {
		t.Errorf("unexpected machine: %+v", inv.Machines[0])
	}
}

func TestInventoryParser_UnifiesSources(t *testing.T) {
	dir := t.TempDir()
	defaults := filepath.Join(dir, "defaults.cue")
	hosts := filepath.Join(dir, "hosts.cue")

	if err := os.WriteFile(defaults, []byte(`machines: [_]: {user: "ops"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(hosts, []byte(`machines: web01: {address: "10.0.0.11"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	inv, err := NewInventoryParser().Parse([]string{defaults, hosts})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(inv.Machines) != 1 {
		t.Fatalf("expected 1 machine, got %d", len(inv.Machines))
	}
	if inv.Machines[0].User != "ops" {
		t.Errorf("expected user from defaults file, got %q", inv.Machines[0].User)
	}
}

func TestInventoryParser_SyntaxErrorHasPosition(t *testing.T) {
	_, err := NewInventoryParser().ParseInline(`machines: { web01: { address: }`)
	if err == nil {
		t.Fatal("expected syntax error")
	}
	verr, ok := err.(ValidationError)
	if !ok {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}
	if verr.Line == 0 {
		t.Error("expected a source line in the error")
	}
}

func TestInventoryParser_MissingRequiredField(t *testing.T) {
	_, err := NewInventoryParser().ParseInline(`machines: web01: {user: "ops"}`)
	if err == nil {
		t.Fatal("expected validation error for missing address")
	}
}

func TestInventoryParser_BadDuration(t *testing.T) {
	_, err := NewInventoryParser().ParseInline(`
machines: web01: {
	address:         "10.0.0.11"
	user:            "ops"
	connect_timeout: "fast"
}
`)
	if err == nil {
		t.Fatal("expected duration parse error")
	}
}

func TestInventoryParser_NoSources(t *testing.T) {
	if _, err := NewInventoryParser().Parse(nil); err == nil {
		t.Error("expected error for empty source list")
	}
}
