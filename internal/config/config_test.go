package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "robot.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
host: 192.168.2.105
port: 1337
network_timeout_ms: 250
log_level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Host != "192.168.2.105" {
		t.Errorf("host = %q, want 192.168.2.105", cfg.Host)
	}
	if cfg.Port != 1337 {
		t.Errorf("port = %d, want 1337", cfg.Port)
	}
	if cfg.NetworkTimeout() != 250*time.Millisecond {
		t.Errorf("timeout = %v, want 250ms", cfg.NetworkTimeout())
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level = %q, want debug", cfg.LogLevel)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "host: panda-arm.local\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.NetworkTimeout() != time.Second {
		t.Errorf("default timeout = %v, want 1s", cfg.NetworkTimeout())
	}
	if cfg.LogLevel != "info" {
		t.Errorf("default log level = %q, want info", cfg.LogLevel)
	}
}

func TestLoadMissingHost(t *testing.T) {
	if _, err := Load(writeConfig(t, "port: 1337\n")); err == nil {
		t.Error("load succeeded without a host")
	}
}

func TestLoadBadYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "host: [broken\n")); err == nil {
		t.Error("load succeeded on malformed YAML")
	}
}
