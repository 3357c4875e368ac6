package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds application configuration.
// Secrets are never read from the config file, see Credentials.
type Config struct {
	// Command is the slash command the bot answers to.
	Command string `json:"command"`

	// OpenSCADPath is the openscad binary, looked up in PATH when not absolute.
	OpenSCADPath string `json:"openscad_path"`

	// ImageWidth and ImageHeight are passed to openscad --imgsize.
	ImageWidth  int `json:"image_width"`
	ImageHeight int `json:"image_height"`

	// ColorScheme is passed to openscad --colorscheme.
	ColorScheme string `json:"color_scheme"`

	// PreviewMaxSize bounds the longest side of an uploaded preview, in pixels.
	PreviewMaxSize int `json:"preview_max_size"`

	// WorkspaceRoot is where per-invocation workspaces are created.
	// Empty means os.TempDir().
	WorkspaceRoot string `json:"workspace_root,omitempty"`

	// ThingiverseBaseURL is the Thingiverse API root.
	ThingiverseBaseURL string `json:"thingiverse_base_url"`

	// HTTPTimeoutSeconds bounds each Thingiverse request, including downloads.
	HTTPTimeoutSeconds int `json:"http_timeout_seconds"`

	// MetricsAddr enables the /metrics and /healthz listener when set (e.g. "127.0.0.1:9090").
	MetricsAddr string `json:"metrics_addr,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level"`

	// LogFormat is "json" or "console".
	LogFormat string `json:"log_format"`

	// SlackDebug turns on the Slack SDK's own debug logging.
	SlackDebug bool `json:"slack_debug,omitempty"`

	// QueueSize is the number of acknowledged events that may wait for the worker.
	QueueSize int `json:"queue_size"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Command:            "/thing",
		OpenSCADPath:       "openscad",
		ImageWidth:         1024,
		ImageHeight:        768,
		ColorScheme:        "Tomorrow",
		PreviewMaxSize:     1024,
		ThingiverseBaseURL: "https://api.thingiverse.com",
		HTTPTimeoutSeconds: 60,
		LogLevel:           "info",
		LogFormat:          "json",
		QueueSize:          16,
	}
}

// HTTPTimeout returns HTTPTimeoutSeconds as a duration.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.thingbot.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{
		Command:            pickString(overlay.Command, base.Command),
		OpenSCADPath:       pickString(overlay.OpenSCADPath, base.OpenSCADPath),
		ImageWidth:         pickInt(overlay.ImageWidth, base.ImageWidth),
		ImageHeight:        pickInt(overlay.ImageHeight, base.ImageHeight),
		ColorScheme:        pickString(overlay.ColorScheme, base.ColorScheme),
		PreviewMaxSize:     pickInt(overlay.PreviewMaxSize, base.PreviewMaxSize),
		WorkspaceRoot:      pickString(overlay.WorkspaceRoot, base.WorkspaceRoot),
		ThingiverseBaseURL: strings.TrimRight(pickString(overlay.ThingiverseBaseURL, base.ThingiverseBaseURL), "/"),
		HTTPTimeoutSeconds: pickInt(overlay.HTTPTimeoutSeconds, base.HTTPTimeoutSeconds),
		MetricsAddr:        pickString(overlay.MetricsAddr, base.MetricsAddr),
		LogLevel:           pickString(overlay.LogLevel, base.LogLevel),
		LogFormat:          pickString(overlay.LogFormat, base.LogFormat),
		QueueSize:          pickInt(overlay.QueueSize, base.QueueSize),
	}

	// Booleans: overlay wins if true, else base
	result.SlackDebug = base.SlackDebug || overlay.SlackDebug

	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

func pickString(overlay, base string) string {
	if s := strings.TrimSpace(overlay); s != "" {
		return s
	}
	return base
}

func pickInt(overlay, base int) int {
	if overlay > 0 {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
