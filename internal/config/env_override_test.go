package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvOverrides(t *testing.T) {
	t.Run("parallelism", func(t *testing.T) {
		t.Setenv("PARALLELISM", "5")
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, 5, cfg.Parallelism)
	})

	t.Run("invalid parallelism is ignored", func(t *testing.T) {
		for _, v := range []string{"0", "-3", "many"} {
			t.Setenv("PARALLELISM", v)
			cfg, err := Load("")
			require.NoError(t, err)
			assert.Equal(t, 2, cfg.Parallelism, "PARALLELISM=%q", v)
		}
	})

	t.Run("headless false", func(t *testing.T) {
		t.Setenv("HEADLESS", "FALSE")
		cfg, err := Load("")
		require.NoError(t, err)
		assert.False(t, cfg.Browser.Headless)
	})

	t.Run("headless anything else", func(t *testing.T) {
		t.Setenv("HEADLESS", "0")
		cfg, err := Load("")
		require.NoError(t, err)
		assert.True(t, cfg.Browser.Headless)
	})

	t.Run("login only", func(t *testing.T) {
		t.Setenv("LOGIN_ONLY", "true")
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, ModeLogin, cfg.Mode)

		cfg.Resolve()
		assert.False(t, cfg.Browser.Headless)
		assert.False(t, cfg.ArtifactsEnabled())
	})

	t.Run("auth check wins over login", func(t *testing.T) {
		t.Setenv("LOGIN_ONLY", "1")
		t.Setenv("AUTH_CHECK_ONLY", "1")
		t.Setenv("HEADLESS", "false")
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, ModeAuthCheck, cfg.Mode)

		cfg.Resolve()
		assert.True(t, cfg.Browser.Headless)
	})

	t.Run("flags not set to true are ignored", func(t *testing.T) {
		t.Setenv("LOGIN_ONLY", "yes")
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, ModeRun, cfg.Mode)
	})

	t.Run("chatprobe variables", func(t *testing.T) {
		t.Setenv("CHATPROBE_URL", "https://chat.example/")
		t.Setenv("CHATPROBE_QUESTION", "ping?")
		t.Setenv("CHATPROBE_OUTPUT_DIR", "out")
		t.Setenv("CHATPROBE_PROFILE_DIR", "/tmp/profile")
		t.Setenv("CHATPROBE_METRICS_ADDR", ":9090")

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "https://chat.example/", cfg.Target.URL)
		assert.Equal(t, "ping?", cfg.Target.Question)
		assert.Equal(t, "out", cfg.Output.Dir)
		assert.Equal(t, "/tmp/profile", cfg.Browser.ProfileDir)
		assert.Equal(t, ":9090", cfg.Metrics.Addr)
	})
}
