package bootstrap

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "inventory-service", cfg.App.Name)
	assert.Equal(t, 10, cfg.Dispatcher.MinWorkers)
	assert.Equal(t, 50, cfg.Dispatcher.MaxWorkers)
	assert.Equal(t, 100, cfg.Dispatcher.QueueSize)
	assert.Equal(t, 3, cfg.Sync.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Order.ProcessingTimeout)
	assert.Equal(t, 3, cfg.Order.VersionRetry.MaxAttempts)
	assert.Empty(t, cfg.Infra.MySQL.DSN)
}

func TestLoadConfig_FileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app:
  httpPort: 9000
dispatcher:
  minWorkers: 2
  maxWorkers: 4
  queueSize: 8
  keepAlive: 5s
recovery:
  interval: 30s
order:
  processingTimeout: 2s
  versionRetry:
    maxAttempts: 5
infra:
  kafka:
    brokers: ["k1:9092"]
`), 0o600))

	t.Setenv("HTTP_PORT", "9100")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092")
	t.Setenv("MYSQL_DSN", "root:pw@tcp(localhost:3306)/inventory")
	t.Setenv("SQLITE_PATH", "/tmp/inventory.db")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.App.HTTPPort)
	assert.Equal(t, 2, cfg.Dispatcher.MinWorkers)
	assert.Equal(t, 5*time.Second, cfg.Dispatcher.KeepAlive)
	assert.Equal(t, 30*time.Second, cfg.Recovery.Interval)
	assert.Equal(t, 2*time.Second, cfg.Order.ProcessingTimeout)
	assert.Equal(t, 5, cfg.Order.VersionRetry.MaxAttempts)
	assert.Equal(t, 2.0, cfg.Order.VersionRetry.Multiplier)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Infra.Kafka.Brokers)
	assert.Contains(t, cfg.Infra.MySQL.DSN, "parseTime=true")
	assert.Equal(t, "/tmp/inventory.db", cfg.Infra.SQLite.Path)
	// 未覆盖的字段保持默认
	assert.Equal(t, "order-placement-topic", cfg.Infra.Kafka.PlacementTopic)
}

func TestLoadConfig_InvalidInputs(t *testing.T) {
	t.Run("bad port", func(t *testing.T) {
		t.Setenv("HTTP_PORT", "eighty")
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
	t.Run("bad yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("app: [unterminated"), 0o600))
		_, err := LoadConfig(path)
		assert.Error(t, err)
	})
}
