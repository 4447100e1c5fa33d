package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFile_UsesDefaults(t *testing.T) {
	t.Setenv(EnvServiceURL, "")
	t.Setenv(EnvStreamURL, "")

	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Source != path {
		t.Fatalf("cfg.Source = %q, want %q", cfg.Source, path)
	}
	if cfg.ServiceURL != "http://127.0.0.1:5000" {
		t.Fatalf("cfg.ServiceURL = %q", cfg.ServiceURL)
	}
	if cfg.RevealDelayMs != 10 {
		t.Fatalf("cfg.RevealDelayMs = %d, want 10", cfg.RevealDelayMs)
	}
}

func TestLoad_FromTOMLThenEnv(t *testing.T) {
	t.Setenv(EnvServiceURL, "")
	t.Setenv(EnvStreamURL, "ws://env.test/stream")

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`
service_url = "https://audit.example.test"
stream_framing = "json"
reveal_delay_ms = 25
`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServiceURL != "https://audit.example.test" {
		t.Fatalf("cfg.ServiceURL = %q", cfg.ServiceURL)
	}
	if cfg.RevealDelayMs != 25 {
		t.Fatalf("cfg.RevealDelayMs = %d, want 25", cfg.RevealDelayMs)
	}
	if cfg.RequestTimeoutSeconds != 120 {
		t.Fatalf("cfg.RequestTimeoutSeconds = %d, want default 120", cfg.RequestTimeoutSeconds)
	}
	if cfg.StreamURL != "ws://env.test/stream" {
		t.Fatalf("cfg.StreamURL = %q, want env override", cfg.StreamURL)
	}
}

func TestApplyKVOverrides(t *testing.T) {
	got := ApplyKVOverrides(Default(), []string{
		"url=http://10.0.0.1:8080",
		"delay=3",
		"timeout=-1",
		"framing=json",
		"garbage",
	})
	if got.ServiceURL != "http://10.0.0.1:8080" {
		t.Fatalf("ServiceURL = %q", got.ServiceURL)
	}
	if got.RevealDelayMs != 3 {
		t.Fatalf("RevealDelayMs = %d, want 3", got.RevealDelayMs)
	}
	if got.RequestTimeoutSeconds != 120 {
		t.Fatalf("negative timeout should be ignored, got %d", got.RequestTimeoutSeconds)
	}
	if got.Framing() != FramingJSON {
		t.Fatalf("Framing() = %q, want json", got.Framing())
	}
}

func TestResolvedStreamURL(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "socketio from http",
			cfg:  Config{ServiceURL: "http://127.0.0.1:5000"},
			want: "ws://127.0.0.1:5000/socket.io/?EIO=4&transport=websocket",
		},
		{
			name: "json from https",
			cfg:  Config{ServiceURL: "https://audit.test/api/", StreamFraming: "json"},
			want: "wss://audit.test/api/",
		},
		{
			name: "explicit wins",
			cfg:  Config{ServiceURL: "http://x", StreamURL: "ws://y/events"},
			want: "ws://y/events",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.cfg.ResolvedStreamURL()
			if err != nil {
				t.Fatalf("ResolvedStreamURL: %v", err)
			}
			if got != tc.want {
				t.Fatalf("ResolvedStreamURL() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestAnalyzeURL(t *testing.T) {
	cfg := Config{ServiceURL: "http://127.0.0.1:5000/"}
	if got := cfg.AnalyzeURL(); got != "http://127.0.0.1:5000/analyze" {
		t.Fatalf("AnalyzeURL() = %q", got)
	}
}

func TestSave_RoundTripThroughLoad(t *testing.T) {
	t.Setenv(EnvServiceURL, "")
	t.Setenv(EnvStreamURL, "")

	path := filepath.Join(t.TempDir(), "sub", "config.toml")
	cfg := Default()
	cfg.ServiceURL = "http://saved.test"
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.ServiceURL != "http://saved.test" {
		t.Fatalf("loaded.ServiceURL = %q", loaded.ServiceURL)
	}
}

func TestDurations(t *testing.T) {
	cfg := Config{RevealDelayMs: 25, RequestTimeoutSeconds: 3}
	if got := cfg.RevealDelay(); got != 25*time.Millisecond {
		t.Fatalf("RevealDelay() = %v", got)
	}
	if got := cfg.RequestTimeout(); got != 3*time.Second {
		t.Fatalf("RequestTimeout() = %v", got)
	}

	cfg = Config{RevealDelayMs: -1}
	if got := cfg.RevealDelay(); got != 10*time.Millisecond {
		t.Fatalf("negative delay should fall back to default, got %v", got)
	}
	if got := cfg.RequestTimeout(); got != 120*time.Second {
		t.Fatalf("zero timeout should fall back to default, got %v", got)
	}
	if got := (Config{}).RevealDelay(); got != 0 {
		t.Fatalf("zero delay should be kept, got %v", got)
	}
}
