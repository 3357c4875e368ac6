package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hpungsan/thingbot/internal/errors"
)

func TestLoad_DefaultWhenMissing(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Command != "/thing" {
		t.Fatalf("Command = %q, want %q", cfg.Command, "/thing")
	}
	if cfg.OpenSCADPath != DefaultConfig().OpenSCADPath {
		t.Fatalf("OpenSCADPath = %q, want %q", cfg.OpenSCADPath, DefaultConfig().OpenSCADPath)
	}
}

func TestLoad_OverridesFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	data := `{"command": "/stl", "image_width": 640, "thingiverse_base_url": "http://localhost:8080/"}`
	if err := os.WriteFile(configPath, []byte(data), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Command != "/stl" {
		t.Errorf("Command = %q, want %q", cfg.Command, "/stl")
	}
	if cfg.ImageWidth != 640 {
		t.Errorf("ImageWidth = %d, want 640", cfg.ImageWidth)
	}
	if cfg.ImageHeight != DefaultConfig().ImageHeight {
		t.Errorf("ImageHeight = %d, want default %d", cfg.ImageHeight, DefaultConfig().ImageHeight)
	}
	if cfg.ThingiverseBaseURL != "http://localhost:8080" {
		t.Errorf("ThingiverseBaseURL = %q, want trailing slash trimmed", cfg.ThingiverseBaseURL)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	if err := os.WriteFile(configPath, []byte(`{not json}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := Load(tmpDir); err == nil {
		t.Fatalf("Load() expected error, got nil")
	}
}

func TestMerge_NegativeIgnored(t *testing.T) {
	cfg := Merge(DefaultConfig(), &Config{QueueSize: -1, HTTPTimeoutSeconds: -5})

	if cfg.QueueSize != DefaultConfig().QueueSize {
		t.Errorf("QueueSize = %d, want default", cfg.QueueSize)
	}
	if cfg.HTTPTimeout() != 60*time.Second {
		t.Errorf("HTTPTimeout() = %v, want 60s", cfg.HTTPTimeout())
	}
}

func TestMerge_DisabledToolsDeduplicated(t *testing.T) {
	base := &Config{DisabledTools: []string{"stl_preview"}}
	overlay := &Config{DisabledTools: []string{" stl_preview ", "thing_preview", ""}}

	cfg := Merge(base, overlay)

	if len(cfg.DisabledTools) != 2 {
		t.Fatalf("DisabledTools = %v, want 2 entries", cfg.DisabledTools)
	}
	if cfg.DisabledTools[0] != "stl_preview" || cfg.DisabledTools[1] != "thing_preview" {
		t.Errorf("DisabledTools = %v", cfg.DisabledTools)
	}
}

func TestMerge_SlackDebug(t *testing.T) {
	if !Merge(DefaultConfig(), &Config{SlackDebug: true}).SlackDebug {
		t.Errorf("SlackDebug should be enabled by overlay")
	}
	if Merge(DefaultConfig(), &Config{}).SlackDebug {
		t.Errorf("SlackDebug should default to false")
	}
}

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadCredentials(t *testing.T) {
	creds, err := LoadCredentials(envMap(map[string]string{
		EnvSlackBotToken:    "xoxb-1",
		EnvSlackAppToken:    "xapp-1",
		EnvThingiverseToken: " tv-1 ",
	}))
	if err != nil {
		t.Fatalf("LoadCredentials() error = %v", err)
	}
	if creds.SlackBotToken != "xoxb-1" || creds.SlackAppToken != "xapp-1" || creds.ThingiverseToken != "tv-1" {
		t.Errorf("unexpected credentials: %+v", creds)
	}
}

func TestLoadCredentials_Missing(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		missing string
	}{
		{"all missing", map[string]string{}, EnvSlackBotToken},
		{"app token missing", map[string]string{EnvSlackBotToken: "xoxb"}, EnvSlackAppToken},
		{"thingiverse missing", map[string]string{EnvSlackBotToken: "xoxb", EnvSlackAppToken: "xapp"}, EnvThingiverseToken},
		{"blank counts as missing", map[string]string{EnvSlackBotToken: "  "}, EnvSlackBotToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds, err := LoadCredentials(envMap(tt.env))
			if creds != nil {
				t.Fatalf("expected nil credentials, got %+v", creds)
			}
			if !errors.Is(err, errors.ErrMissingToken) {
				t.Fatalf("expected MISSING_TOKEN, got %v", err)
			}
			bErr := err.(*errors.BotError)
			if bErr.Details["env"] != tt.missing {
				t.Errorf("Details[env] = %v, want %q", bErr.Details["env"], tt.missing)
			}
		})
	}
}
