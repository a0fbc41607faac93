package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoadConfig_WritesDefaults(t *testing.T) {
	for _, name := range []string{"config.json", "config.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			cfg, err := LoadConfig(path)
			if err != nil {
				t.Fatalf("LoadConfig() error = %v", err)
			}
			if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
				t.Errorf("expected defaults (-want +got):\n%s", diff)
			}

			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("default config was not written: %v", err)
			}
			if !strings.Contains(string(data), "server_addr") {
				t.Errorf("unexpected default config file:\n%s", data)
			}

			// The written file loads back to the same configuration.
			again, err := LoadConfig(path)
			if err != nil {
				t.Fatalf("LoadConfig() on written defaults error = %v", err)
			}
			if diff := cmp.Diff(cfg, again); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadConfig_Formats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "jsonc",
			file: "config.json",
			content: `{
  /* Only the settings that differ from the defaults. */
  "server_config": {
    "server_addr": ":9000", // behind the proxy
    "log_level": "debug",
  },
  "template_config": {"max_steps": 500},
  "store_config": {"compression": "lz4"},
}`,
		},
		{
			name: "yaml",
			file: "config.yml",
			content: `server_config:
  server_addr: ":9000"
  log_level: debug
template_config:
  max_steps: 500
store_config:
  compression: lz4
`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatalf("failed to write config: %v", err)
			}
			cfg, err := LoadConfig(path)
			if err != nil {
				t.Fatalf("LoadConfig() error = %v", err)
			}

			want := DefaultConfig()
			want.Server.ServerAddr = ":9000"
			want.Server.LogLevel = "debug"
			want.Templates.MaxSteps = 500
			want.Store.Compression = "lz4"
			if diff := cmp.Diff(want, cfg); diff != "" {
				t.Errorf("config mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	for name, content := range map[string]string{
		"syntax":      `{"server_config": `,
		"compression": `{"store_config": {"compression": "brotli"}}`,
		"empty addr":  `{"server_config": {"server_addr": ""}}`,
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				t.Fatalf("failed to write config: %v", err)
			}
			if _, err := LoadConfig(path); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestConfigManager_IsTrusted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"server_config": {"trusted_proxies": ["10.0.0.0/8", "::1", "not-an-ip", "300.0.0.0/8"]}}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	cm, err := NewConfigManager(path)
	if err != nil {
		t.Fatalf("NewConfigManager() error = %v", err)
	}
	cm.SetLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	for ip, want := range map[string]bool{
		"10.20.30.40": true,
		"::1":         true,
		"11.0.0.1":    false,
		"not-an-ip":   false,
		"":            false,
	} {
		if got := cm.IsTrusted(ip); got != want {
			t.Errorf("IsTrusted(%q) = %v, want %v", ip, got, want)
		}
	}

	cfg := cm.Get()
	server := *cfg.Server
	server.TrustedProxies = []string{"11.0.0.1"}
	cfg.Server = &server
	if err = cm.Update(cfg); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if cm.IsTrusted("10.20.30.40") || !cm.IsTrusted("11.0.0.1") {
		t.Error("trusted proxies were not refreshed by Update")
	}
}

func TestParseLogLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"Warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	} {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
