package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/bounce-pipeline/internal/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://localhost/bounce_test
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8, cfg.Ingest.Partitions)
	assert.Equal(t, 1000, cfg.Ingest.QueueSize)
	assert.Equal(t, 72, cfg.Bounce.DedupTTLHrs)
	assert.Equal(t, 60, cfg.Reconcile.IntervalMinutes)
	assert.Equal(t, 24, cfg.Reconcile.WindowHours)
	assert.Equal(t, 90, cfg.Archive.RetentionDays)
}

func TestLoad_BounceActions(t *testing.T) {
	path := writeConfig(t, `
bounce:
  actions:
    hard:
      action: blocklist
      threshold: 2
    soft:
      action: none
    complaint:
      action: delete
      threshold: 1
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	rule, ok := cfg.Bounce.Rule(domain.BounceTypeHard)
	require.True(t, ok)
	assert.Equal(t, domain.ActionBlocklist, rule.Action)
	assert.Equal(t, 2, rule.Threshold)

	rule, ok = cfg.Bounce.Rule(domain.BounceTypeSoft)
	require.True(t, ok)
	assert.Equal(t, domain.ActionNone, rule.Action)

	rule, ok = cfg.Bounce.Rule(domain.BounceTypeComplaint)
	require.True(t, ok)
	assert.Equal(t, domain.ActionDelete, rule.Action)
}

func TestLoad_MissingKindIsNotDefaulted(t *testing.T) {
	path := writeConfig(t, `
bounce:
  actions:
    hard:
      action: blocklist
      threshold: 2
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	_, ok := cfg.Bounce.Rule(domain.BounceTypeComplaint)
	assert.False(t, ok, "unconfigured kind must not get a default rule")
}

func TestLoad_RejectsZeroThreshold(t *testing.T) {
	path := writeConfig(t, `
bounce:
  actions:
    hard:
      action: blocklist
      threshold: 0
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_RejectsUnknownAction(t *testing.T) {
	path := writeConfig(t, `
bounce:
  actions:
    soft:
      action: quarantine
      threshold: 3
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_NoneActionNeedsNoThreshold(t *testing.T) {
	path := writeConfig(t, `
bounce:
  actions:
    soft:
      action: none
`)
	_, err := Load(path)
	assert.NoError(t, err)
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://localhost/from_yaml
`)
	t.Setenv("DATABASE_URL", "postgres://prod-host/bounce")
	t.Setenv("REDIS_ADDR", "redis-prod:6379")
	t.Setenv("TRACKING_QUEUE_URL", "https://sqs.us-west-2.amazonaws.com/123/tracking")

	cfg, err := LoadFromEnv(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://prod-host/bounce", cfg.Database.URL)
	assert.Equal(t, "redis-prod:6379", cfg.Redis.Addr)
	assert.True(t, cfg.Redis.Enabled)
	assert.True(t, cfg.Tracking.Enabled)
}
