package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/labelmate/labeld/internal/group"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
hub:
  url: ws://hub.local:8123/api/websocket
groups:
  - label: Garage
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Hub.Timeout.Duration() != 30*time.Second {
		t.Errorf("hub timeout = %v, want 30s default", cfg.Hub.Timeout.Duration())
	}
	if cfg.Engine.Debounce.Duration() != 250*time.Millisecond {
		t.Errorf("debounce = %v, want 250ms default", cfg.Engine.Debounce.Duration())
	}
	if cfg.Engine.Suppression.Duration() != time.Second {
		t.Errorf("suppression = %v, want 1s default", cfg.Engine.Suppression.Duration())
	}
	if cfg.Engine.DefaultBrightness != group.DefaultBrightness {
		t.Errorf("default brightness = %d, want %d", cfg.Engine.DefaultBrightness, group.DefaultBrightness)
	}
	if cfg.Database.Path != "./labeld.sqlite" {
		t.Errorf("database path = %q, want default", cfg.Database.Path)
	}
	if cfg.API.Port != 9090 {
		t.Errorf("api port = %d, want 9090 default", cfg.API.Port)
	}
	if got := cfg.Groups[0].GroupType(); got != group.TypeSwitch {
		t.Errorf("group type = %q, want switch default", got)
	}
}

func TestLoadEnvExpansion(t *testing.T) {
	t.Setenv("LABELD_TEST_TOKEN", "secret-token")

	path := writeConfig(t, `
hub:
  url: ${LABELD_TEST_URL:ws://fallback:8123/api/websocket}
  token: ${LABELD_TEST_TOKEN}
groups:
  - label: Office
    type: light
    color: "#112233"
    domains: [light, fan]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Hub.URL != "ws://fallback:8123/api/websocket" {
		t.Errorf("url = %q, want default expansion", cfg.Hub.URL)
	}
	if cfg.Hub.Token != "secret-token" {
		t.Errorf("token = %q, want env value", cfg.Hub.Token)
	}
	if cfg.Groups[0].Color != "#112233" {
		t.Errorf("color = %q", cfg.Groups[0].Color)
	}
	if len(cfg.Groups[0].Domains) != 2 {
		t.Errorf("domains = %v, want the declared override", cfg.Groups[0].Domains)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "missing hub url",
			content: `
groups:
  - label: Garage
`,
		},
		{
			name: "empty group label",
			content: `
hub:
  url: ws://hub.local:8123/api/websocket
groups:
  - label: "  "
`,
		},
		{
			name: "unknown group type",
			content: `
hub:
  url: ws://hub.local:8123/api/websocket
groups:
  - label: Garage
    type: thermostat
`,
		},
		{
			name: "unknown domain override",
			content: `
hub:
  url: ws://hub.local:8123/api/websocket
groups:
  - label: Garage
    domains: [light, sprinkler]
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			if _, err := Load(path); err == nil {
				t.Error("Load() succeeded, want validation error")
			}
		})
	}
}

func TestDurationUnmarshal(t *testing.T) {
	path := writeConfig(t, `
hub:
  url: ws://hub.local:8123/api/websocket
  timeout: 45s
engine:
  debounce: 500ms
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Hub.Timeout.Duration() != 45*time.Second {
		t.Errorf("timeout = %v, want 45s", cfg.Hub.Timeout.Duration())
	}
	if cfg.Engine.Debounce.Duration() != 500*time.Millisecond {
		t.Errorf("debounce = %v, want 500ms", cfg.Engine.Debounce.Duration())
	}
}
