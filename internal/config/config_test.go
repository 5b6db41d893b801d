package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
server:
  port: 9000
database:
  postgres:
    host: db.internal
    database: novelmaze
    user: novelmaze
    password: secret
  redis:
    host: cache.internal
gamification:
  xp_per_level: 250
scheduler:
  enabled: true
  timezone: Europe/Paris
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_AppliesFileAndDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, int64(250), cfg.Gamification.XPPerLevel)
	assert.Equal(t, 5432, cfg.Database.Postgres.Port)
	assert.Equal(t, "disable", cfg.Database.Postgres.SSLMode)
	assert.Equal(t, int64(50), cfg.Rewards.StoryCompletedXP)
	assert.Equal(t, "COIN", cfg.Purchase.Currency)
	assert.Equal(t, "/metrics", cfg.Metrics.Prometheus.Path)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("POSTGRES_HOST", "override.internal")
	t.Setenv("GAMIFICATION_XP_PER_LEVEL", "75")

	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "override.internal", cfg.Database.Postgres.Host)
	assert.Equal(t, int64(75), cfg.Gamification.XPPerLevel)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database: DatabaseConfig{
				Postgres: PostgresConfig{Host: "h", Database: "d", User: "u"},
				Redis:    RedisConfig{Host: "r"},
			},
			Gamification: GamificationConfig{XPPerLevel: 100},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing postgres host", func(c *Config) { c.Database.Postgres.Host = "" }, true},
		{"missing redis host", func(c *Config) { c.Database.Redis.Host = "" }, true},
		{"zero xp per level", func(c *Config) { c.Gamification.XPPerLevel = 0 }, true},
		{"negative reward", func(c *Config) { c.Rewards.DailyLoginXP = -1 }, true},
		{"snowflake node out of range", func(c *Config) { c.Purchase.SnowflakeNodeID = 2048 }, true},
		{"webhook without url", func(c *Config) { c.Notifications.WebhookEnable = true }, true},
		{"bad timezone", func(c *Config) {
			c.Scheduler.Enabled = true
			c.Scheduler.Timezone = "Mars/Olympus"
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPostgresConfig_URL(t *testing.T) {
	cfg := PostgresConfig{Host: "db", Port: 5432, User: "nm", Password: "p@ss", Database: "novelmaze", SSLMode: "require"}
	assert.Equal(t, "postgres://nm:p%40ss@db:5432/novelmaze?sslmode=require", cfg.URL())
	assert.Contains(t, cfg.DSN(), "dbname=novelmaze")
}
