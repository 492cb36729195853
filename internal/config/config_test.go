package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	if cfg.App.Name != "calculator" {
		t.Errorf("expected default app calculator, got %s", cfg.App.Name)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("expected default port 8000, got %d", cfg.Server.Port)
	}
	if cfg.RPC.Address != "0.0.0.0:50051" {
		t.Errorf("expected default rpc address 0.0.0.0:50051, got %s", cfg.RPC.Address)
	}
	if cfg.Schema.Package != "truffle" || cfg.Schema.Service != "Truffle" {
		t.Errorf("expected truffle/Truffle, got %s/%s", cfg.Schema.Package, cfg.Schema.Service)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default log level info, got %s", cfg.Logging.Level)
	}
	if issues := cfg.Validate(); len(issues) != 0 {
		t.Errorf("default config should validate, got %v", issues)
	}
}

func TestLoadFromFiles_NoFiles(t *testing.T) {
	cfg, err := LoadFromFiles()
	if err != nil {
		t.Fatalf("LoadFromFiles with no files should not error: %v", err)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("expected default port 8000, got %d", cfg.Server.Port)
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFromFiles_Formats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"toml", "toolhost.toml", `
[app]
name = "echo"

[server]
port = 9090

[dispatch]
call_timeout = "5s"
`},
		{"yaml", "toolhost.yaml", `
app:
  name: echo
server:
  port: 9090
dispatch:
  call_timeout: 5s
`},
		{"jsonc", "toolhost.jsonc", `{
  // served application
  "app": {"name": "echo"},
  "server": {"port": 9090},
  "dispatch": {"call_timeout": "5s"}, /* trailing comma */
}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadFromFiles(writeFile(t, tt.file, tt.content))
			if err != nil {
				t.Fatalf("LoadFromFiles: %v", err)
			}
			if cfg.App.Name != "echo" {
				t.Errorf("expected app echo, got %s", cfg.App.Name)
			}
			if cfg.Server.Port != 9090 {
				t.Errorf("expected port 9090, got %d", cfg.Server.Port)
			}
			if cfg.Dispatch.GetCallTimeout() != 5*time.Second {
				t.Errorf("expected call timeout 5s, got %v", cfg.Dispatch.GetCallTimeout())
			}
			// Untouched sections keep their defaults.
			if cfg.Server.Host != "0.0.0.0" {
				t.Errorf("expected default host preserved, got %s", cfg.Server.Host)
			}
		})
	}
}

func TestLoadFromFiles_LaterFileWins(t *testing.T) {
	base := writeFile(t, "base.toml", "[server]\nport = 9000\nhost = \"127.0.0.1\"\n")
	override := writeFile(t, "override.toml", "[server]\nport = 9100\n")

	cfg, err := LoadFromFiles(base, override)
	if err != nil {
		t.Fatalf("LoadFromFiles: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("expected port 9100, got %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("expected host from base file, got %s", cfg.Server.Host)
	}
}

func TestLoadFromFiles_Errors(t *testing.T) {
	if _, err := LoadFromFiles(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("expected error for missing file")
	}
	bad := writeFile(t, "bad.toml", "[server\nport = ")
	_, err := LoadFromFiles(bad)
	if err == nil || !strings.Contains(err.Error(), "file 1 of 1") {
		t.Errorf("expected parse error naming the file, got %v", err)
	}
}

func TestLoadFromFiles_EnvOverrides(t *testing.T) {
	t.Setenv("TOOLHOST_APP", "ragchat")
	t.Setenv("TOOLHOST_SERVER_PORT", "7000")
	t.Setenv("TOOLHOST_RPC_ENABLED", "false")
	t.Setenv("TOOLHOST_DISPATCH_MAX_CONCURRENT", "3")
	t.Setenv("TOOLHOST_LOG_LEVEL", "debug")

	path := writeFile(t, "toolhost.toml", "[app]\nname = \"echo\"\n")
	cfg, err := LoadFromFiles(path)
	if err != nil {
		t.Fatalf("LoadFromFiles: %v", err)
	}
	if cfg.App.Name != "ragchat" {
		t.Errorf("env should beat file, got %s", cfg.App.Name)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("expected port 7000, got %d", cfg.Server.Port)
	}
	if cfg.RPC.Enabled {
		t.Error("expected rpc disabled")
	}
	if cfg.Dispatch.MaxConcurrent != 3 {
		t.Errorf("expected max concurrent 3, got %d", cfg.Dispatch.MaxConcurrent)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
}

func TestLoadFromFiles_BadEnvIgnored(t *testing.T) {
	t.Setenv("TOOLHOST_SERVER_PORT", "not-a-port")
	cfg, err := LoadFromFiles()
	if err != nil {
		t.Fatalf("LoadFromFiles: %v", err)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("expected default port kept, got %d", cfg.Server.Port)
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := NewDefaultConfig()
	ApplyFlagOverrides(cfg, Overrides{App: "chat", Port: 9999, RPCAddress: "127.0.0.1:6000"})

	if cfg.App.Name != "chat" {
		t.Errorf("expected app chat, got %s", cfg.App.Name)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("empty host flag should not override, got %s", cfg.Server.Host)
	}
	if cfg.RPC.Address != "127.0.0.1:6000" {
		t.Errorf("expected rpc address override, got %s", cfg.RPC.Address)
	}
}

func TestDurationAccessors_Fallback(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Dispatch.CallTimeout = "soon"
	cfg.Backend.Timeout = ""
	cfg.RPC.ReadTimeout = "-1s"

	if got := cfg.Dispatch.GetCallTimeout(); got != 30*time.Second {
		t.Errorf("GetCallTimeout = %v", got)
	}
	if got := cfg.Backend.GetTimeout(); got != 60*time.Second {
		t.Errorf("GetTimeout = %v", got)
	}
	if got := cfg.RPC.GetReadTimeout(); got != 30*time.Second {
		t.Errorf("GetReadTimeout = %v", got)
	}
	if got := cfg.Server.Addr(); got != "0.0.0.0:8000" {
		t.Errorf("Addr = %s", got)
	}
}

func TestValidate(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.App.Name = " "
	cfg.Server.Port = 70000
	cfg.RPC.Network = "udp"
	cfg.Dispatch.CallTimeout = "soon"
	cfg.Logging.Level = "loud"

	issues := cfg.Validate()
	want := []string{"app.name", "server.port", "rpc.network", "dispatch.call_timeout", "logging.level"}
	if len(issues) != len(want) {
		t.Fatalf("expected %d issues, got %v", len(want), issues)
	}
	joined := strings.Join(issues, "\n")
	for _, w := range want {
		if !strings.Contains(joined, w) {
			t.Errorf("missing issue for %s in %v", w, issues)
		}
	}

	cfg = NewDefaultConfig()
	cfg.RPC.Enabled = false
	cfg.RPC.Network = ""
	if issues := cfg.Validate(); len(issues) != 0 {
		t.Errorf("disabled rpc should not be checked, got %v", issues)
	}
}
