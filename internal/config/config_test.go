package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "studysync.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load() returned an unexpected error: %v", err)
	}
	if cfg != Default() {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestLayering(t *testing.T) {
	path := writeConfig(t, `
db: from-file.db
server:
  base_url: https://file.example.com/
  timeout: 10s
sync:
  workers: 2
log:
  level: debug
`)
	t.Setenv("STUDYSYNC_SERVER__BASE_URL", "https://env.example.com/")
	t.Setenv("STUDYSYNC_SYNC__DEBOUNCE", "750ms")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(flags)
	if err := flags.Parse([]string{"--log-level", "warn"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path, flags)
	if err != nil {
		t.Fatalf("Load() returned an unexpected error: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"file value", cfg.DB, "from-file.db"},
		{"file duration", cfg.Server.Timeout, 10 * time.Second},
		{"env beats file", cfg.Server.BaseURL, "https://env.example.com/"},
		{"env duration", cfg.Sync.Debounce, 750 * time.Millisecond},
		{"flag beats file", cfg.Log.Level, "warn"},
		{"file int", cfg.Sync.Workers, 2},
		{"default kept", cfg.Generation.PollInterval, 2 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestUnchangedFlagsDoNotOverrideFile(t *testing.T) {
	path := writeConfig(t, "db: kept.db\n")
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(flags)
	if err := flags.Parse(nil); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path, flags)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DB != "kept.db" {
		t.Errorf("expected file value to survive, got %q", cfg.DB)
	}
}

func TestInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad level", "log:\n  level: loud\n"},
		{"bad url", "server:\n  base_url: not a url\n"},
		{"zero workers", "sync:\n  workers: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.body), nil); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil); err == nil {
		t.Error("expected an error for a missing config file")
	}
}
