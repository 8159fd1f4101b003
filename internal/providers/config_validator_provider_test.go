package providers

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoryd/internal/models"
	"memoryd/internal/structures"
)

func validConfig() *structures.Config {
	return &structures.Config{
		WebServer: structures.Server{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Logger: structures.LoggerConfig{
			Level: "info",
			Mode:  0644,
			Dir:   "/tmp/logs",
		},
		Store: structures.StoreConfig{
			Driver:  "sqlite",
			DSN:     "/tmp/memoryd.db",
			Timeout: 250 * time.Millisecond,
		},
		Breaker: structures.BreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     10 * time.Second,
		},
		Memory: structures.MemoryConfig{
			RecentWindow:       50,
			CalibrationCadence: 10,
			EngagementMaxAge:   24 * time.Hour,
		},
		Learning: structures.LearningConfig{
			Workers:     2,
			QueueSize:   16,
			MaxAttempts: 3,
		},
	}
}

func TestConfigValidator_ValidConfig(t *testing.T) {
	v := NewCnfValidator(validConfig())
	assert.NoError(t, v.Validate())
}

func TestConfigValidator_EmptyHost(t *testing.T) {
	c := validConfig()
	c.WebServer.Host = ""
	assert.Error(t, NewCnfValidator(c).Validate())
}

func TestConfigValidator_ZeroPort(t *testing.T) {
	c := validConfig()
	c.WebServer.Port = 0
	assert.Error(t, NewCnfValidator(c).Validate())
}

func TestConfigValidator_InvalidLogLevel(t *testing.T) {
	c := validConfig()
	c.Logger.Level = "verbose"
	assert.Error(t, NewCnfValidator(c).Validate())
}

func TestConfigValidator_UnknownStoreDriver(t *testing.T) {
	c := validConfig()
	c.Store.Driver = "mongo"
	assert.Error(t, NewCnfValidator(c).Validate())
}

func TestConfigValidator_MissingDSN(t *testing.T) {
	c := validConfig()
	c.Store.DSN = ""
	assert.Error(t, NewCnfValidator(c).Validate())
}

func TestConfigValidator_UnknownPersonaTone(t *testing.T) {
	c := validConfig()
	c.Memory.DefaultPersona.Tone = "sarcastic"
	assert.Error(t, NewCnfValidator(c).Validate())
}

func TestConfigValidator_OpenAIRequiresKey(t *testing.T) {
	c := validConfig()
	c.Classifier.Provider = "openai"
	assert.Error(t, NewCnfValidator(c).Validate())

	c.Classifier.APIKey = "sk-test"
	assert.NoError(t, NewCnfValidator(c).Validate())
}

func TestDefaultPersona_FallsBack(t *testing.T) {
	c := validConfig()
	c.Memory.DefaultPersona = structures.PersonaConfig{EmojiFrequency: 0.3, SoftSell: 0.1}

	p := DefaultPersona(c)
	assert.Equal(t, models.ToneFriendly, p.Tone)
	assert.Equal(t, models.LengthMedium, p.MessageLength)
	assert.Equal(t, 0.3, p.EmojiFrequency)
	assert.Equal(t, 0.1, p.BaseSoftSellProbability)
}

func TestNewConfigProvider_LoadsYAMLWithDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
webServer:
  host: 127.0.0.1
  port: 8090
logger:
  level: debug
  mode: 0644
  dir: /tmp
store:
  driver: sqlite
  dsn: /tmp/memoryd.db
memory:
  recentWindow: 20
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	conf, err := NewConfigProvider(&structures.CliFlags{ConfigPath: path, DebugMode: true})
	require.NoError(t, err)

	assert.Equal(t, "UserMemoryDaemon", conf.AppName)
	assert.True(t, conf.Debug)
	assert.Equal(t, 8090, conf.WebServer.Port)
	assert.Equal(t, 20, conf.Memory.RecentWindow)
	assert.Equal(t, 10, conf.Memory.CalibrationCadence)
	assert.Equal(t, 250*time.Millisecond, conf.Store.Timeout)
	assert.Equal(t, 72*time.Hour, conf.Erasure.Deadline)
	assert.Equal(t, 2*time.Minute, conf.Cache.TTL.Messages)
}

func TestNewConfigProvider_MissingFile(t *testing.T) {
	_, err := NewConfigProvider(&structures.CliFlags{ConfigPath: filepath.Join(t.TempDir(), "nope.yaml")})
	assert.Error(t, err)
}
