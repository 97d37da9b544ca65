package config

import "time"

// BrowserConfig configures the shared browser.
type BrowserConfig struct {
	Headless       bool   `yaml:"headless"`
	ProfileDir     string `yaml:"profile_dir"` // Persistent user data; keeps the sign-in between runs
	Bin            string `yaml:"bin"`         // Browser binary; empty lets the launcher find or fetch one
	NoSandbox      bool   `yaml:"no_sandbox"`
	ViewportWidth  int    `yaml:"viewport_width"`
	ViewportHeight int    `yaml:"viewport_height"`
	NavTimeout     string `yaml:"nav_timeout"`
	SettleDelay    string `yaml:"settle_delay"` // Pause after navigation for redirects
	LoginTimeout   string `yaml:"login_timeout"`
	LoginPoll      string `yaml:"login_poll"`
}

// DefaultBrowserConfig returns the browser defaults.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		Headless:       true,
		ProfileDir:     ".probe-profile",
		ViewportWidth:  1280,
		ViewportHeight: 800,
		NavTimeout:     "60s",
		SettleDelay:    "1500ms",
		LoginTimeout:   "5m",
		LoginPoll:      "2s",
	}
}

// GetNavTimeout returns the navigation timeout.
func (b BrowserConfig) GetNavTimeout() time.Duration {
	return parseDuration(b.NavTimeout, 60*time.Second)
}

// GetSettleDelay returns the post-navigation pause.
func (b BrowserConfig) GetSettleDelay() time.Duration {
	return parseDuration(b.SettleDelay, 1500*time.Millisecond)
}

// GetLoginTimeout returns how long to wait for a human to sign in.
func (b BrowserConfig) GetLoginTimeout() time.Duration {
	return parseDuration(b.LoginTimeout, 5*time.Minute)
}

// GetLoginPoll returns the URL poll interval while waiting for sign-in.
func (b BrowserConfig) GetLoginPoll() time.Duration {
	return parseDuration(b.LoginPoll, 2*time.Second)
}
