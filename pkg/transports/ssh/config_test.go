package ssh

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("10.0.0.5", "builder")

	if cfg.Host != "10.0.0.5" || cfg.User != "builder" {
		t.Errorf("host/user = %q/%q", cfg.Host, cfg.User)
	}
	if cfg.Port != 22 {
		t.Errorf("port = %d, want 22", cfg.Port)
	}
	if cfg.AuthMethod != AuthMethodKey {
		t.Errorf("auth = %q, want key", cfg.AuthMethod)
	}
	if cfg.ConnectTimeout != 30*time.Second {
		t.Errorf("timeout = %v", cfg.ConnectTimeout)
	}
}

func TestConfigValidate(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "id_test")
	if err := os.WriteFile(keyPath, []byte("key material"), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}

	valid := func() *Config {
		cfg := DefaultConfig("10.0.0.5", "builder")
		cfg.PrivateKeyPath = keyPath
		return cfg
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing host", func(c *Config) { c.Host = "" }},
		{"missing user", func(c *Config) { c.User = "" }},
		{"port zero", func(c *Config) { c.Port = 0 }},
		{"port out of range", func(c *Config) { c.Port = 70000 }},
		{"missing key file", func(c *Config) { c.PrivateKeyPath = "/nonexistent/id_rsa" }},
		{"password auth without password", func(c *Config) {
			c.AuthMethod = AuthMethodPassword
			c.Password = ""
		}},
		{"unsupported auth method", func(c *Config) { c.AuthMethod = "agent" }},
		{"non-positive timeout", func(c *Config) { c.ConnectTimeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected rejection")
			}
		})
	}
}

func TestConfigValidatePasswordAuth(t *testing.T) {
	cfg := DefaultConfig("10.0.0.5", "builder")
	cfg.AuthMethod = AuthMethodPassword
	cfg.Password = "hunter2"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("password config rejected: %v", err)
	}
}

func TestConfigAddress(t *testing.T) {
	cfg := DefaultConfig("build.example.com", "builder")
	cfg.Port = 2222

	if got := cfg.Address(); got != "build.example.com:2222" {
		t.Errorf("Address = %q", got)
	}
}
