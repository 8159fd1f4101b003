package providers

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoryd/internal/structures"
)

func TestNewConfigProvider_ShippedConfig(t *testing.T) {
	conf, err := NewConfigProvider(&structures.CliFlags{ConfigPath: "../../config/memoryd.yaml"})
	require.NoError(t, err)

	assert.Equal(t, "UserMemoryDaemon", conf.AppName)
	assert.Equal(t, "/var/log/memoryd", conf.Logger.Dir)
	assert.Equal(t, "sqlite", conf.Store.Driver)
	assert.Equal(t, 24*time.Hour, conf.Memory.EngagementMaxAge)
	assert.Equal(t, 10, conf.Memory.CalibrationCadence)
	assert.Equal(t, 72*time.Hour, conf.Erasure.Deadline)
	assert.Equal(t, "lexicon", conf.Classifier.Provider)
}

func TestNewConfigProvider_DefaultsFillMissingSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minimal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
webServer:
  host: 127.0.0.1
  port: 8090
logger:
  level: info
  mode: 0644
  dir: /tmp/memoryd-logs
store:
  dsn: /tmp/memoryd.db
`), 0o600))

	conf, err := NewConfigProvider(&structures.CliFlags{ConfigPath: path, DebugMode: true})
	require.NoError(t, err)

	assert.True(t, conf.Debug)
	assert.Equal(t, 24*time.Hour, conf.Memory.EngagementMaxAge)
	assert.Equal(t, 50, conf.Memory.RecentWindow)
	assert.Equal(t, 100, conf.RateLimit.MaxBatch)
}

func TestNewConfigProvider_RejectsRelativeLogDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
webServer:
  host: 127.0.0.1
  port: 8090
logger:
  level: info
  mode: 0644
  dir: ./var/log
store:
  dsn: /tmp/memoryd.db
`), 0o600))

	_, err := NewConfigProvider(&structures.CliFlags{ConfigPath: path})
	assert.Error(t, err)
}
