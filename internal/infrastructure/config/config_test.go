package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// Save original env vars and restore after tests
	originalEnv := map[string]string{
		"LEADGEN_APP_NAME":                    os.Getenv("LEADGEN_APP_NAME"),
		"LEADGEN_APP_ENV":                     os.Getenv("LEADGEN_APP_ENV"),
		"LEADGEN_DATABASE_HOST":               os.Getenv("LEADGEN_DATABASE_HOST"),
		"LEADGEN_DATABASE_PORT":               os.Getenv("LEADGEN_DATABASE_PORT"),
		"LEADGEN_DATABASE_PASSWORD":           os.Getenv("LEADGEN_DATABASE_PASSWORD"),
		"LEADGEN_DATABASE_SSLMODE":            os.Getenv("LEADGEN_DATABASE_SSLMODE"),
		"LEADGEN_COLLECTOR_DEFAULT_DAYS_BACK": os.Getenv("LEADGEN_COLLECTOR_DEFAULT_DAYS_BACK"),
		"LEADGEN_COLLECTOR_MAX_RETRIES":       os.Getenv("LEADGEN_COLLECTOR_MAX_RETRIES"),
		"LEADGEN_LOG_LEVEL":                   os.Getenv("LEADGEN_LOG_LEVEL"),
	}

	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	clearEnv := func() {
		for k := range originalEnv {
			os.Unsetenv(k)
		}
	}

	t.Run("loads default values when env vars not set", func(t *testing.T) {
		clearEnv()

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "leadgen-backend", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "leadgen", cfg.Database.DBName)
		assert.Equal(t, "disable", cfg.Database.SSLMode)
		assert.Equal(t, 30, cfg.Collector.DefaultDaysBack)
		assert.Equal(t, 3, cfg.Collector.MaxRetries)
		assert.Equal(t, 2*time.Second, cfg.Collector.RetryBaseDelay)
		assert.Equal(t, 500, cfg.Collector.BatchSize)
		assert.Equal(t, 4, cfg.Collector.MaxConcurrent)
		assert.True(t, cfg.Collector.FallbackEnabled)
		assert.Equal(t, "info", cfg.Log.Level)
	})

	t.Run("loads values from environment variables with LEADGEN prefix", func(t *testing.T) {
		clearEnv()
		os.Setenv("LEADGEN_APP_NAME", "test-app")
		os.Setenv("LEADGEN_DATABASE_HOST", "testdb.local")
		os.Setenv("LEADGEN_DATABASE_PORT", "5433")
		os.Setenv("LEADGEN_COLLECTOR_MAX_RETRIES", "5")
		os.Setenv("LEADGEN_LOG_LEVEL", "debug")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "test-app", cfg.App.Name)
		assert.Equal(t, "testdb.local", cfg.Database.Host)
		assert.Equal(t, 5433, cfg.Database.Port)
		assert.Equal(t, 5, cfg.Collector.MaxRetries)
		assert.Equal(t, "debug", cfg.Log.Level)
	})

	t.Run("production requires database password and ssl", func(t *testing.T) {
		clearEnv()
		os.Setenv("LEADGEN_APP_ENV", "production")

		_, err := Load()
		assert.Error(t, err)
	})
}

func TestDatabaseConfigDSN(t *testing.T) {
	t.Run("escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "user",
			Password: "pass@word#123",
			DBName:   "db",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "pass%40word%23123")
		assert.Contains(t, dsn, "localhost:5432")
		assert.Contains(t, dsn, "sslmode=disable")
	})

	t.Run("handles empty password", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			User:    "user",
			DBName:  "db",
			SSLMode: "disable",
		}
		assert.NotEmpty(t, cfg.DSN())
	})
}

func TestConfigValidate(t *testing.T) {
	base := func() *Config {
		cfg := &Config{}
		applyDefaults(cfg)
		return cfg
	}

	t.Run("rejects idle conns above open conns", func(t *testing.T) {
		cfg := base()
		cfg.Database.MaxIdleConns = 100
		assert.Error(t, cfg.validate())
	})

	t.Run("rejects out of range sampling ratio", func(t *testing.T) {
		cfg := base()
		cfg.Telemetry.SamplingRatio = 1.5
		assert.Error(t, cfg.validate())
	})

	t.Run("rejects source without strategy", func(t *testing.T) {
		cfg := base()
		cfg.Sources = map[string][]SourceSpec{
			"FL": {{Name: "fl_sunbiz", Enabled: true}},
		}
		assert.Error(t, cfg.validate())
	})

	t.Run("accepts well-formed sources", func(t *testing.T) {
		cfg := base()
		cfg.Sources = map[string][]SourceSpec{
			"FL": {{Name: "fl_sunbiz", Strategy: "registrations", Enabled: true}},
		}
		assert.NoError(t, cfg.validate())
	})
}
