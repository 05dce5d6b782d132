package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, time.Hour, cfg.Workflow.ScanInterval)
	assert.Equal(t, 2*time.Minute, cfg.Workflow.ScanTimeout)
	assert.Equal(t, "admin", cfg.Workflow.DefaultRecipient)
	assert.Equal(t, "notifications.quotations", cfg.NATS.SubjectPrefix)
	assert.False(t, cfg.NATS.Enabled)
}

func TestLoadEnvOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("WORKFLOW_SCAN_ENABLED", "true")
	t.Setenv("WORKFLOW_SCAN_INTERVAL", "15m")
	t.Setenv("WORKFLOW_DEFAULT_RECIPIENT", "sales-head")
	t.Setenv("ALLOWED_ORIGINS", "https://crm.ooak.photography, ,http://localhost:3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Workflow.ScanEnabled)
	assert.Equal(t, 15*time.Minute, cfg.Workflow.ScanInterval)
	assert.Equal(t, "sales-head", cfg.Workflow.DefaultRecipient)
	assert.Equal(t, []string{"https://crm.ooak.photography", "http://localhost:3000"}, cfg.CORS.AllowedOrigins)
}

func TestParseDurationFallback(t *testing.T) {
	assert.Equal(t, time.Minute, parseDuration("", time.Minute))
	assert.Equal(t, time.Minute, parseDuration("soon", time.Minute))
	assert.Equal(t, 90*time.Second, parseDuration("90s", time.Minute))
}

func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
