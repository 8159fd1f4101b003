package providers

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"memoryd/internal/structures"
)

func setConfigDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.timeout", 250*time.Millisecond)
	v.SetDefault("store.maxOpenConns", 1)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.size", 64)
	v.SetDefault("cache.timeout", 50*time.Millisecond)
	v.SetDefault("cache.compressThreshold", 4096)
	v.SetDefault("cache.ttl.messages", 2*time.Minute)
	v.SetDefault("cache.ttl.emotionalState", 5*time.Minute)
	v.SetDefault("cache.ttl.personality", 30*time.Minute)
	v.SetDefault("cache.ttl.preferences", 30*time.Minute)
	v.SetDefault("cache.ttl.engagement", time.Hour)
	v.SetDefault("breaker.failureThreshold", 5)
	v.SetDefault("breaker.resetTimeout", 10*time.Second)
	v.SetDefault("memory.recentWindow", 50)
	v.SetDefault("memory.calibrationCadence", 10)
	v.SetDefault("memory.engagementMaxAge", 24*time.Hour)
	v.SetDefault("memory.historyLimit", 500)
	v.SetDefault("memory.defaultPersona.tone", "friendly")
	v.SetDefault("memory.defaultPersona.emojiFrequency", 0.5)
	v.SetDefault("memory.defaultPersona.messageLength", "medium")
	v.SetDefault("memory.defaultPersona.softSell", 0.2)
	v.SetDefault("learning.workers", 4)
	v.SetDefault("learning.queueSize", 1024)
	v.SetDefault("learning.maxAttempts", 5)
	v.SetDefault("learning.initialBackoff", 200*time.Millisecond)
	v.SetDefault("learning.maxBackoff", 10*time.Second)
	v.SetDefault("learning.taskTimeout", 5*time.Second)
	v.SetDefault("rateLimit.readsPerSecond", 1500)
	v.SetDefault("rateLimit.writesPerSecond", 750)
	v.SetDefault("rateLimit.burst", 200)
	v.SetDefault("rateLimit.maxBatch", 100)
	v.SetDefault("retention.maxAge", 365*24*time.Hour)
	v.SetDefault("retention.schedule", "0 30 3 * * *")
	v.SetDefault("erasure.deadline", 72*time.Hour)
	v.SetDefault("erasure.sweepInterval", 15*time.Minute)
	v.SetDefault("engagement.refreshSchedule", "0 0 * * * *")
	v.SetDefault("engagement.activeWindow", 7*24*time.Hour)
	v.SetDefault("classifier.provider", "lexicon")
	v.SetDefault("metrics.sampleInterval", 15*time.Second)
	v.SetDefault("classifier.timeout", 2*time.Second)
}

func NewConfigProvider(flags *structures.CliFlags) (*structures.Config, error) {
	var conf structures.Config

	v := viper.New()
	filename := filepath.Base(flags.ConfigPath)
	v.AddConfigPath(filepath.Dir(flags.ConfigPath))
	v.SetConfigName(strings.TrimSuffix(filename, filepath.Ext(filename)))
	v.SetConfigType("yaml")
	setConfigDefaults(v)

	v.BindEnv("logger.level", "MEMORYD_LOG_LEVEL")
	v.BindEnv("store.driver", "MEMORYD_STORE_DRIVER")
	v.BindEnv("store.dsn", "MEMORYD_STORE_DSN")
	v.BindEnv("cache.enabled", "MEMORYD_CACHE_ENABLED")
	v.BindEnv("cache.size", "MEMORYD_CACHE_SIZE")
	v.BindEnv("rateLimit.readsPerSecond", "MEMORYD_READS_PER_SECOND")
	v.BindEnv("rateLimit.writesPerSecond", "MEMORYD_WRITES_PER_SECOND")
	v.BindEnv("classifier.provider", "MEMORYD_CLASSIFIER")
	v.BindEnv("classifier.apiKey", "MEMORYD_CLASSIFIER_API_KEY")
	v.BindEnv("export.archiveDir", "MEMORYD_EXPORT_DIR")

	err := v.ReadInConfig()
	if err != nil {
		return nil, err
	}

	err = v.Unmarshal(&conf)
	if err != nil {
		return nil, fmt.Errorf("unable to decode into config struct: %w", err)
	}

	cnfValidator := NewCnfValidator(&conf)
	err = cnfValidator.Validate()
	if err != nil {
		return nil, err
	}

	conf.AppName = "UserMemoryDaemon"
	conf.Path = flags.ConfigPath
	conf.Debug = flags.DebugMode

	return &conf, nil
}
