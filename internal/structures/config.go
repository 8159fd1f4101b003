package structures

import (
	"net/http"
	"time"
)

type CliFlags struct {
	ConfigPath string
	DebugMode  bool
}

type Route struct {
	Url     string
	Handler http.Handler
}

type Server struct {
	Host string `yaml:"host" validate:"required"`
	Port int    `yaml:"port" validate:"required|uint|min:1"`
}

type LoggerConfig struct {
	Level string `yaml:"level" validate:"required|in:trace,debug,info,warn,error,fatal,panic"`
	Mode  uint32 `yaml:"mode" validate:"required|uint"`
	Dir   string `yaml:"dir" validate:"required|unixPath"`
}

type StoreConfig struct {
	Driver       string        `yaml:"driver" validate:"required|in:sqlite,postgres"`
	DSN          string        `yaml:"dsn" validate:"required"`
	Timeout      time.Duration `yaml:"timeout" validate:"required|min:1"`
	MaxOpenConns int           `yaml:"maxOpenConns"`
}

type CacheTTLConfig struct {
	Messages       time.Duration `yaml:"messages"`
	EmotionalState time.Duration `yaml:"emotionalState"`
	Personality    time.Duration `yaml:"personality"`
	Preferences    time.Duration `yaml:"preferences"`
	Engagement     time.Duration `yaml:"engagement"`
}

type CacheConfig struct {
	Enabled           bool           `yaml:"enabled"`
	Size              int            `yaml:"size"`
	Timeout           time.Duration  `yaml:"timeout"`
	CompressThreshold int            `yaml:"compressThreshold"`
	TTL               CacheTTLConfig `yaml:"ttl"`
}

type BreakerConfig struct {
	FailureThreshold int           `yaml:"failureThreshold" validate:"required|min:1"`
	ResetTimeout     time.Duration `yaml:"resetTimeout" validate:"required|min:1"`
}

type MemoryConfig struct {
	RecentWindow       int           `yaml:"recentWindow" validate:"required|min:1"`
	CalibrationCadence int           `yaml:"calibrationCadence" validate:"required|min:1"`
	EngagementMaxAge   time.Duration `yaml:"engagementMaxAge" validate:"required|min:1"`
	HistoryLimit       int           `yaml:"historyLimit"`
	DefaultPersona     PersonaConfig `yaml:"defaultPersona"`
}

type PersonaConfig struct {
	Tone           string  `yaml:"tone"`
	EmojiFrequency float64 `yaml:"emojiFrequency"`
	MessageLength  string  `yaml:"messageLength"`
	SoftSell       float64 `yaml:"softSell"`
}

type LearningConfig struct {
	Workers        int           `yaml:"workers" validate:"required|min:1"`
	QueueSize      int           `yaml:"queueSize" validate:"required|min:1"`
	MaxAttempts    int           `yaml:"maxAttempts" validate:"required|min:1"`
	InitialBackoff time.Duration `yaml:"initialBackoff"`
	MaxBackoff     time.Duration `yaml:"maxBackoff"`
	TaskTimeout    time.Duration `yaml:"taskTimeout"`
}

type RateLimitConfig struct {
	ReadsPerSecond  float64 `yaml:"readsPerSecond"`
	WritesPerSecond float64 `yaml:"writesPerSecond"`
	Burst           int     `yaml:"burst"`
	MaxBatch        int     `yaml:"maxBatch"`
}

type RetentionConfig struct {
	MaxAge   time.Duration `yaml:"maxAge"`
	Schedule string        `yaml:"schedule"`
}

type ErasureConfig struct {
	Deadline      time.Duration `yaml:"deadline"`
	SweepInterval time.Duration `yaml:"sweepInterval"`
}

type EngagementConfig struct {
	RefreshSchedule string        `yaml:"refreshSchedule"`
	ActiveWindow    time.Duration `yaml:"activeWindow"`
}

type ExportConfig struct {
	ArchiveDir string `yaml:"archiveDir"`
}

type ClassifierConfig struct {
	Provider string        `yaml:"provider" validate:"in:lexicon,openai"`
	Model    string        `yaml:"model"`
	BaseURL  string        `yaml:"baseUrl"`
	APIKey   string        `yaml:"apiKey"`
	Timeout  time.Duration `yaml:"timeout"`
}

type MetricsConfig struct {
	Enabled        bool          `yaml:"enabled"`
	SampleInterval time.Duration `yaml:"sampleInterval"`
}

type Config struct {
	AppName    string
	Debug      bool
	Path       string
	WebServer  Server           `yaml:"webServer"`
	Logger     LoggerConfig     `yaml:"logger"`
	Store      StoreConfig      `yaml:"store"`
	Cache      CacheConfig      `yaml:"cache"`
	Breaker    BreakerConfig    `yaml:"breaker"`
	Memory     MemoryConfig     `yaml:"memory"`
	Learning   LearningConfig   `yaml:"learning"`
	RateLimit  RateLimitConfig  `yaml:"rateLimit"`
	Retention  RetentionConfig  `yaml:"retention"`
	Erasure    ErasureConfig    `yaml:"erasure"`
	Engagement EngagementConfig `yaml:"engagement"`
	Export     ExportConfig     `yaml:"export"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}
