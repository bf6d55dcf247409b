package ssh

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempKey(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "id_ed25519")
	if err := os.WriteFile(path, []byte("fake key material"), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestConfig_Validate(t *testing.T) {
	keyPath := writeTempKey(t)

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:   "valid key auth",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing host",
			mutate:  func(c *Config) { c.Host = "" },
			wantErr: true,
		},
		{
			name:    "invalid port",
			mutate:  func(c *Config) { c.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "missing user",
			mutate:  func(c *Config) { c.User = "" },
			wantErr: true,
		},
		{
			name:    "password auth without password",
			mutate:  func(c *Config) { c.AuthMethod = AuthMethodPassword },
			wantErr: true,
		},
		{
			name: "password auth with password",
			mutate: func(c *Config) {
				c.AuthMethod = AuthMethodPassword
				c.Password = "secret"
			},
		},
		{
			name:    "missing key file",
			mutate:  func(c *Config) { c.PrivateKeyPath = "/nonexistent/id_rsa" },
			wantErr: true,
		},
		{
			name:    "unsupported auth method",
			mutate:  func(c *Config) { c.AuthMethod = "kerberos" },
			wantErr: true,
		},
		{
			name:    "zero command timeout",
			mutate:  func(c *Config) { c.CommandTimeout = 0 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Host:           "10.0.0.1",
				Port:           22,
				User:           "ops",
				AuthMethod:     AuthMethodKey,
				PrivateKeyPath: keyPath,
				ConnectTimeout: 10 * time.Second,
				CommandTimeout: time.Minute,
			}
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestConfig_Address(t *testing.T) {
	cfg := &Config{Host: "192.0.2.7", Port: 2222}
	if got := cfg.Address(); got != "192.0.2.7:2222" {
		t.Errorf("expected 192.0.2.7:2222, got %s", got)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("db01", "ops")

	if cfg.Port != 22 {
		t.Errorf("expected default port 22, got %d", cfg.Port)
	}
	if cfg.AuthMethod != AuthMethodKey {
		t.Errorf("expected key auth by default, got %s", cfg.AuthMethod)
	}
	if !cfg.StrictHostKeyChecking {
		t.Error("expected strict host key checking by default")
	}
}

func TestNewClient_InvalidConfig(t *testing.T) {
	if _, err := NewClient(&Config{}); err == nil {
		t.Error("expected error for empty config")
	}
}
