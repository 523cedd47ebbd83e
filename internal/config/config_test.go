package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("Should apply defaults", func(t *testing.T) {
		cfg, err := Load(viper.New(), "")
		require.NoError(t, err)

		assert.Equal(t, "sqlite://./hydrocalc.db", cfg.Database.URL)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, 5, cfg.Database.MaxIdleConns)
		assert.Equal(t, 5*time.Minute, cfg.Database.ConnMaxLifetime)
		assert.Equal(t, time.Second, cfg.Backend.PollInterval)
		assert.Equal(t, ":8080", cfg.Server.Addr)
		assert.Equal(t, []float64{2.3, 20, 100}, cfg.Annualities)
		assert.Equal(t, "*/5 * * * *", cfg.Scheduler.TaskSweepCron)
		assert.Equal(t, "0 3 * * *", cfg.Scheduler.ArtifactPruneCron)
		assert.Equal(t, 7*24*time.Hour, cfg.Scheduler.ArtifactRetention)
		assert.False(t, cfg.Storage.Enabled)
	})

	t.Run("Should read overrides from the environment", func(t *testing.T) {
		t.Setenv("HYDROCALC_DATABASE_URL", "postgres://user@localhost/hydro")
		t.Setenv("HYDROCALC_BACKEND_POLL_INTERVAL", "250ms")
		t.Setenv("HYDROCALC_ANNUALITIES", "30, 100,300")

		cfg, err := Load(viper.New(), "")
		require.NoError(t, err)

		assert.Equal(t, "postgres://user@localhost/hydro", cfg.Database.URL)
		assert.Equal(t, 250*time.Millisecond, cfg.Backend.PollInterval)
		assert.Equal(t, []float64{30, 100, 300}, cfg.Annualities)
	})

	t.Run("Should read a config file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "hydrocalc.yaml")
		content := "log_level: DEBUG\nbackend:\n  base_url: http://backend:9000\nannualities: [10, 50]\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		cfg, err := Load(viper.New(), path)
		require.NoError(t, err)

		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, "http://backend:9000", cfg.Backend.BaseURL)
		assert.Equal(t, []float64{10, 50}, cfg.Annualities)
	})

	t.Run("Should reject a non-positive annuality", func(t *testing.T) {
		t.Setenv("HYDROCALC_ANNUALITIES", "0,20")

		_, err := Load(viper.New(), "")
		assert.Error(t, err)
	})

	t.Run("Should fail on a missing config file", func(t *testing.T) {
		_, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})
}
