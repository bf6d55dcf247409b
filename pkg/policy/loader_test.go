package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const testRego = `# Denies package installs on quarantined machines.
package gantry.policies.quarantine

import rego.v1

deny contains msg if {
	input.machine.labels.quarantined == "true"
	input.capability == "package.install"
	msg := "machine is quarantined"
}
`

func TestLoader_LoadRegoFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quarantine.rego")
	if err := os.WriteFile(path, []byte(testRego), 0o600); err != nil {
		t.Fatal(err)
	}

	policies, err := NewLoader(zerolog.Nop()).LoadFromPaths(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if len(policies) != 1 {
		t.Fatalf("expected 1 policy, got %d", len(policies))
	}
	p := policies[0]
	if p.Name != "quarantine" {
		t.Errorf("expected name from file, got %q", p.Name)
	}
	if p.Description != "Denies package installs on quarantined machines." {
		t.Errorf("expected description from leading comment, got %q", p.Description)
	}
	if p.Severity != SeverityWarning || !p.Enabled {
		t.Errorf("unexpected defaults: %+v", p)
	}
}

func TestLoader_LoadJSONFile(t *testing.T) {
	doc := `{
		"name": "deny-all",
		"severity": "error",
		"enabled": true,
		"rego": "package gantry.policies.denyall\n\nimport rego.v1\n\ndeny contains \"nope\" if { true }\n"
	}`
	path := filepath.Join(t.TempDir(), "deny.json")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	policies, err := NewLoader(zerolog.Nop()).LoadFromPaths(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(policies) != 1 || policies[0].Name != "deny-all" || policies[0].Severity != SeverityError {
		t.Errorf("unexpected policies: %+v", policies)
	}
}

func TestLoader_LoadDirectorySkipsBadFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "good.rego"), []byte(testRego), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600); err != nil {
		t.Fatal(err)
	}

	policies, err := NewLoader(zerolog.Nop()).LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(policies) != 1 || policies[0].Name != "quarantine" {
		t.Errorf("expected only the good policy, got %+v", policies)
	}
}

func TestLoader_JSONValidation(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	tests := []struct {
		name string
		doc  string
	}{
		{"missing name", `{"rego": "package x\n"}`},
		{"missing rego", `{"name": "x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "p.json")
			if err := os.WriteFile(path, []byte(tt.doc), 0o600); err != nil {
				t.Fatal(err)
			}
			if _, err := loader.LoadFromPaths(context.Background(), []string{path}); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoader_MissingPath(t *testing.T) {
	_, err := NewLoader(zerolog.Nop()).LoadFromPaths(context.Background(),
		[]string{filepath.Join(t.TempDir(), "absent")})
	if err == nil {
		t.Error("expected error for missing path")
	}
}

func TestLoader_WatchReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quarantine.rego")
	if err := os.WriteFile(path, []byte(testRego), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loader := NewLoader(zerolog.Nop())
	reloaded := make(chan []Policy, 1)
	err := loader.Watch(ctx, []string{dir}, func(policies []Policy) error {
		select {
		case reloaded <- policies:
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer func() { _ = loader.StopWatching() }()

	// Touch the file to trigger a debounced reload.
	if err := os.WriteFile(path, []byte(testRego+"\n# touched\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case policies := <-reloaded:
		if len(policies) != 1 || policies[0].Name != "quarantine" {
			t.Errorf("unexpected reloaded policies: %+v", policies)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("reload callback never fired")
	}
}
