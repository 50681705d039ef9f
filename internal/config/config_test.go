package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/papertrade-simulator/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
server:
  host: 127.0.0.1
  port: 9090
  mode: release

database:
  host: db.internal
  port: 5432
  user: sim
  password: secret
  dbname: papertrade
  sslmode: disable

jwt:
  secret: test-secret

engine:
  initial_capital: 50000
  commission_rate: 0.002

risk:
  max_position_size_fraction: 0.25
  max_daily_loss_fraction: 0.10
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.InDelta(t, 50000.0, cfg.Engine.InitialCapital, 1e-9)
	assert.InDelta(t, 0.002, cfg.Engine.CommissionRate, 1e-9)
	assert.InDelta(t, 0.25, cfg.Risk.MaxPositionSizeFraction, 1e-9)

	// Unset values pick up defaults.
	assert.Equal(t, 24, cfg.JWT.ExpireHours)
	assert.Equal(t, 60, cfg.Oracle.TTLSeconds)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("DB_HOST", "replica.internal")
	t.Setenv("JWT_SECRET", "env-secret")

	cfg, err := config.Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "replica.internal", cfg.Database.Host)
	assert.Equal(t, "env-secret", cfg.JWT.Secret)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	_, err := config.Load(writeConfig(t, "engine:\n  commission_rate: 1.5\n"))
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	dsn := cfg.Database.DSN()
	assert.Contains(t, dsn, "host=db.internal")
	assert.Contains(t, dsn, "dbname=papertrade")
	assert.Contains(t, dsn, "sslmode=disable")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
