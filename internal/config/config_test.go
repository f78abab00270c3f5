package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 10000, cfg.Audit.SummaryCap)
	assert.Equal(t, 2, cfg.Escalation.ReminderDays)
	assert.Equal(t, "log", cfg.Notifications.Channel)
	assert.Equal(t, time.Local, cfg.Location())
}

func TestFromYAMLKeepsDefaultsForMissingKeys(t *testing.T) {
	cfg, err := FromYAML([]byte(`
environment: staging
escalation:
  timezone: America/New_York
notifications:
  channel: webhook
  webhooks:
    - url: https://hooks.example.edu/onboarding
      events: [task_escalated]
`))
	require.NoError(t, err)
	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, 10000, cfg.Audit.SummaryCap)
	assert.Equal(t, "America/New_York", cfg.Location().String())
	require.Len(t, cfg.Notifications.Webhooks, 1)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"channel":  "notifications: {channel: pager}",
		"hook url": "notifications: {webhooks: [{url: 'ftp://x'}]}",
		"timezone": "escalation: {timezone: Mars/Olympus}",
		"archive":  "archive: {type: s3}",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(body))
			require.Error(t, err)
		})
	}
}

func TestLoadOptionalAndLoad(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)

	_, err = Load(dir)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(GenerateDefault("production")), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Environment)
}

func TestEnvOverlay(t *testing.T) {
	t.Setenv("OBL_ENV", "qa")
	t.Setenv("OBL_WEBHOOK_SECRET", "s3cret")
	env, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, "info", env.LogLevel)
	assert.Equal(t, "127.0.0.1:8080", env.HTTPAddr)

	cfg := Default()
	cfg.Notifications.Webhooks = []WebhookConfig{{URL: "https://a"}, {URL: "https://b", Secret: "own"}}
	cfg.ApplyEnv(env)
	assert.Equal(t, "qa", cfg.Environment)
	assert.Equal(t, "s3cret", cfg.Notifications.Webhooks[0].Secret)
	assert.Equal(t, "own", cfg.Notifications.Webhooks[1].Secret)
}
