package config

import (
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10.0, cfg.Planner.ConversionFactor)
	assert.Equal(t, "ssp", cfg.Planner.Solver)
	assert.Equal(t, 20, cfg.Planner.MaxNodes)
	assert.False(t, cfg.Planner.SinkRelay)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 10, cfg.Webhooks.MaxAttempts)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lastbil.yaml")
	yml := `
planner:
  conversion_factor: 4
  solver: simplex
  sink_relay: true
  locator:
    max_iterations: 500
log:
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))
	t.Setenv("PORT", "9090")
	t.Setenv("PLANNER_WORKERS", "3")
	t.Setenv("RATE_RPS", "0.5")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4.0, cfg.Planner.ConversionFactor)
	assert.Equal(t, "simplex", cfg.Planner.Solver)
	assert.True(t, cfg.Planner.SinkRelay)
	assert.Equal(t, 500, cfg.Planner.Locator.MaxIterations)
	// untouched nested defaults survive a partial section
	assert.Equal(t, 1e-10, cfg.Planner.Locator.Tolerance)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 3, cfg.Planner.Workers)
	assert.Equal(t, 0.5, cfg.Server.RateRPS)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("PLANNER_WORKERS", "many")
	_, err := Load("")
	require.ErrorContains(t, err, "PLANNER_WORKERS")

	t.Setenv("PLANNER_WORKERS", "")
	t.Setenv("CONVERSION_FACTOR", "1")
	_, err = Load("")
	require.ErrorContains(t, err, "conversion_factor")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Planner.Solver = "gurobi"
	cfg.Planner.Workers = -1
	cfg.Log.Format = "xml"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "planner.solver")
	assert.Contains(t, err.Error(), "planner.workers")
	assert.Contains(t, err.Error(), "log.format")
}

func TestValidateAuth(t *testing.T) {
	cfg := Default()
	cfg.Auth.Mode = "hmac"
	require.ErrorContains(t, cfg.Validate(), "auth.hmac_secret")

	t.Setenv("AUTH_MODE", "hmac")
	t.Setenv("AUTH_HMAC_SECRET", "k")
	loaded, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "hmac", loaded.Auth.Mode)
	assert.Equal(t, "tenant", loaded.Auth.TenantClaim)

	cfg.Auth.Mode = "oauth"
	require.ErrorContains(t, cfg.Validate(), "auth.mode")
}

func TestConfigureLogger(t *testing.T) {
	defer log.SetLevel(log.GetLevel())
	cfg := Default()
	cfg.Log.Level = "debug"
	cfg.ConfigureLogger()
	assert.Equal(t, log.DebugLevel, log.GetLevel())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
