package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Parallel()

	cfg, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(DefaultDir, "taskflow.db"), cfg.DB.Path)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, 4, cfg.Scheduler.Concurrency)
	assert.Equal(t, DeliveryLog, cfg.Delivery.Type)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoadReadsYAMLFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
db:
  path: /var/lib/taskflow.db
scheduler:
  interval: 15s
  concurrency: 2
delivery:
  type: smtp
  smtp:
    host: mail.example.com
    port: 2525
    from: reminders@example.com
contacts:
  alice: alice@example.com
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/taskflow.db", cfg.DB.Path)
	assert.Equal(t, 15*time.Second, cfg.Scheduler.Interval)
	assert.Equal(t, 2, cfg.Scheduler.Concurrency)
	assert.Equal(t, DeliverySMTP, cfg.Delivery.Type)
	assert.Equal(t, 2525, cfg.Delivery.SMTP.Port)
	assert.Equal(t, "alice@example.com", cfg.Contacts["alice"])
}

func TestLoadRejectsUnknownDeliveryType(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"delivery": {"type": "pigeon"}}`), 0o644))

	_, err := Load(viper.New(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config schema validation failed")
}

func TestLoadRequiresSMTPHost(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"delivery": {"type": "smtp"}}`), 0o644))

	_, err := Load(viper.New(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delivery.smtp.host")
}

func TestValidateSettingsRejectsBadLogFormat(t *testing.T) {
	t.Parallel()

	err := ValidateSettings(map[string]any{"log": map[string]any{"format": "xml"}})
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	require.Len(t, schemaErr.Problems, 1)
	assert.True(t, strings.HasPrefix(schemaErr.Problems[0], "log.format: "), schemaErr.Problems[0])
	assert.NoError(t, ValidateSettings(map[string]any{"log": map[string]any{"format": "json"}}))
}
