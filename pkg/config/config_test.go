package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xceleratortech/communitiesx/pkg/observability"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("COMMUNITYD_POSTGRES_URL", "postgres://localhost/communities")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, 20, cfg.Database.MaxConns)
	assert.Equal(t, 100, cfg.Notify.TitleMaxLen)
	assert.Equal(t, 16, cfg.Push.Concurrency)
	assert.False(t, cfg.Push.Enabled())
	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("COMMUNITYD_POSTGRES_URL", "postgres://db1/communities")
	t.Setenv("COMMUNITYD_PORT", "3000")
	t.Setenv("COMMUNITYD_LOG_LEVEL", "debug")
	t.Setenv("COMMUNITYD_READ_TIMEOUT", "5s")
	t.Setenv("COMMUNITYD_NOTIFY_RETENTION_DAYS", "30")
	t.Setenv("COMMUNITYD_VAPID_PUBLIC_KEY", "pub")
	t.Setenv("COMMUNITYD_VAPID_PRIVATE_KEY", "priv")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30, cfg.Notify.RetentionDays)
	assert.True(t, cfg.Push.Enabled())
}

func TestValidateRejectsMissingPostgresURL(t *testing.T) {
	os.Unsetenv("COMMUNITYD_POSTGRES_URL")
	t.Setenv("COMMUNITYD_POSTGRES_URL", "")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres URL")
}

func TestValidateRejectsLoneVAPIDKey(t *testing.T) {
	t.Setenv("COMMUNITYD_POSTGRES_URL", "postgres://localhost/communities")
	t.Setenv("COMMUNITYD_VAPID_PUBLIC_KEY", "pub")
	t.Setenv("COMMUNITYD_VAPID_PRIVATE_KEY", "")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VAPID")
}

func TestValidateRejectsSamePorts(t *testing.T) {
	t.Setenv("COMMUNITYD_POSTGRES_URL", "postgres://localhost/communities")
	t.Setenv("COMMUNITYD_PORT", "8080")
	t.Setenv("COMMUNITYD_HEALTH_PORT", "8080")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be different")
}

func TestApplyOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "overlay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
push:
  vapid_public_key: overlay-pub
  vapid_private_key: overlay-priv
  subject: mailto:ops@example.com
`), 0o600))

	cfg := &Config{}
	cfg.Push.Subject = "mailto:default@example.com"

	require.NoError(t, cfg.ApplyOverlay(path))

	assert.Equal(t, "overlay-pub", cfg.Push.VAPIDPublicKey)
	assert.Equal(t, "overlay-priv", cfg.Push.VAPIDPrivateKey)
	assert.Equal(t, "mailto:ops@example.com", cfg.Push.Subject)
}

func TestApplyOverlayKeepsUnsetFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "overlay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("push:\n  vapid_public_key: only-pub\n"), 0o600))

	cfg := &Config{}
	cfg.Push.VAPIDPrivateKey = "env-priv"
	cfg.Push.Subject = "mailto:default@example.com"

	require.NoError(t, cfg.ApplyOverlay(path))

	assert.Equal(t, "only-pub", cfg.Push.VAPIDPublicKey)
	assert.Equal(t, "env-priv", cfg.Push.VAPIDPrivateKey)
	assert.Equal(t, "mailto:default@example.com", cfg.Push.Subject)
}

func TestApplyOverlayRejectsBadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "overlay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("push: [not a map"), 0o600))

	cfg := &Config{}
	assert.Error(t, cfg.ApplyOverlay(path))
}
