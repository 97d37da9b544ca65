package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Mode selects what a run does.
type Mode string

const (
	ModeRun       Mode = "run"        // Ask questions in a loop until interrupted
	ModeLogin     Mode = "login"      // Open a visible browser, wait for sign-in, exit
	ModeAuthCheck Mode = "auth-check" // Report whether the saved session is still signed in
)

// Config holds all chatprobe configuration.
type Config struct {
	Mode        Mode `yaml:"mode"`
	Parallelism int  `yaml:"parallelism"`

	// What to talk to
	Target TargetConfig `yaml:"target"`

	// Browser launch settings
	Browser BrowserConfig `yaml:"browser"`

	// Exchange timing and heuristics
	Chat ChatConfig `yaml:"chat"`

	// Artifact output
	Output OutputConfig `yaml:"output"`

	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Terminal TerminalConfig `yaml:"terminal"`
	Debug    DebugConfig    `yaml:"debug"`
}

// TargetConfig names the chat application under test.
type TargetConfig struct {
	URL      string `yaml:"url"`
	Question string `yaml:"question"`
	AppName  string `yaml:"app_name"` // Token expected in the input's label, e.g. "copilot"
}

// OutputConfig configures where artifacts land and how capture files are awaited.
type OutputConfig struct {
	Dir          string `yaml:"dir"`
	FlushTimeout string `yaml:"flush_timeout"` // Wait for the browser's HAR to appear
	PollInterval string `yaml:"poll_interval"`
	StablePolls  int    `yaml:"stable_polls"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// MetricsConfig configures the Prometheus endpoint. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// TerminalConfig controls stdin handling.
type TerminalConfig struct {
	// RawStdin puts a TTY stdin in raw mode and treats a Ctrl-C byte as an
	// interrupt. Needed when the terminal does not deliver SIGINT.
	RawStdin bool `yaml:"raw_stdin"`
}

// DebugConfig controls failure diagnostics.
type DebugConfig struct {
	Diagnostics bool `yaml:"diagnostics"` // Dump page state when the input cannot be found
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Mode:        ModeRun,
		Parallelism: 2,

		Target: TargetConfig{
			URL:      "https://m365.cloud.microsoft/chat/",
			Question: "what is the weather in boston today",
			AppName:  "copilot",
		},

		Browser: DefaultBrowserConfig(),
		Chat:    DefaultChatConfig(),

		Output: OutputConfig{
			Dir:          "tmp",
			FlushTimeout: "15s",
			PollInterval: "200ms",
			StablePolls:  3,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},

		Debug: DebugConfig{Diagnostics: true},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; environment overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case os.IsNotExist(err):
			// defaults
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config dir: %w", err)
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PARALLELISM"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			c.Parallelism = n
		}
	}
	if v := os.Getenv("HEADLESS"); v != "" {
		c.Browser.Headless = !strings.EqualFold(strings.TrimSpace(v), "false")
	}
	if envFlag("LOGIN_ONLY") {
		c.Mode = ModeLogin
	}
	if envFlag("AUTH_CHECK_ONLY") {
		c.Mode = ModeAuthCheck
	}

	if v := os.Getenv("CHATPROBE_URL"); v != "" {
		c.Target.URL = v
	}
	if v := os.Getenv("CHATPROBE_QUESTION"); v != "" {
		c.Target.Question = v
	}
	if v := os.Getenv("CHATPROBE_OUTPUT_DIR"); v != "" {
		c.Output.Dir = v
	}
	if v := os.Getenv("CHATPROBE_PROFILE_DIR"); v != "" {
		c.Browser.ProfileDir = v
	}
	if v := os.Getenv("CHATPROBE_METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}
}

// envFlag reports whether an env var is "1" or "true".
func envFlag(name string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(name)))
	return v == "1" || v == "true"
}

// Resolve applies mode-dependent settings: auth checks always run headless
// and login always runs headful.
func (c *Config) Resolve() {
	switch c.Mode {
	case ModeAuthCheck:
		c.Browser.Headless = true
	case ModeLogin:
		c.Browser.Headless = false
	}
}

// ArtifactsEnabled reports whether this mode writes capture artifacts.
func (c *Config) ArtifactsEnabled() bool {
	return c.Mode == ModeRun
}

// GetFlushTimeout returns how long to wait for the network capture file.
func (c *Config) GetFlushTimeout() time.Duration {
	return parseDuration(c.Output.FlushTimeout, 15*time.Second)
}

// GetPollInterval returns the capture-file poll interval.
func (c *Config) GetPollInterval() time.Duration {
	return parseDuration(c.Output.PollInterval, 200*time.Millisecond)
}

// ValidModes lists the accepted run modes.
var ValidModes = []Mode{ModeRun, ModeLogin, ModeAuthCheck}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validMode := false
	for _, m := range ValidModes {
		if c.Mode == m {
			validMode = true
			break
		}
	}
	if !validMode {
		return fmt.Errorf("invalid mode: %s (valid: %v)", c.Mode, ValidModes)
	}
	if c.Parallelism < 1 {
		return fmt.Errorf("parallelism must be at least 1, got %d", c.Parallelism)
	}
	if c.Target.URL == "" {
		return fmt.Errorf("target url is required")
	}
	if strings.TrimSpace(c.Target.Question) == "" {
		return fmt.Errorf("target question is required")
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("output dir is required")
	}
	if c.Output.StablePolls < 1 {
		return fmt.Errorf("output stable_polls must be at least 1, got %d", c.Output.StablePolls)
	}
	if c.Chat.MinAnswerLength < 0 {
		return fmt.Errorf("chat min_answer_length must not be negative")
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid logging format: %s (valid: text, json)", c.Logging.Format)
	}
	return nil
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
