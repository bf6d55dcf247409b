package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gantry.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("expected default level info, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "console" {
		t.Errorf("expected default format console, got %q", cfg.Logging.Format)
	}
	if cfg.Tracing.Exporter != "none" {
		t.Errorf("expected tracing disabled by default, got %q", cfg.Tracing.Exporter)
	}
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
logging:
  level: debug
  format: json
metrics:
  enabled: true
  listen: "0.0.0.0:9000"
policy:
  enabled: true
  dir: /etc/gantry/policies
  watch: true
store:
  path: /var/lib/gantry/state.db
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("logging overrides not applied: %+v", cfg.Logging)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Listen != "0.0.0.0:9000" {
		t.Errorf("metrics overrides not applied: %+v", cfg.Metrics)
	}
	if !cfg.Policy.Watch || cfg.Policy.Dir != "/etc/gantry/policies" {
		t.Errorf("policy overrides not applied: %+v", cfg.Policy)
	}
	if cfg.Store.Path != "/var/lib/gantry/state.db" {
		t.Errorf("store override not applied: %+v", cfg.Store)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad level", "logging:\n  level: verbose\n"},
		{"bad format", "logging:\n  format: xml\n"},
		{"bad listen", "metrics:\n  listen: not-a-hostport\n"},
		{"bad exporter", "tracing:\n  exporter: jaeger\n"},
		{"sample rate out of range", "tracing:\n  sample_rate: 1.5\n"},
		{"watch without dir", "policy:\n  watch: true\n"},
		{"unknown field", "loging:\n  level: info\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
