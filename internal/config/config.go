// Package config provides the configuration schema, loader, hot-reload watcher,
// and AWS credentials bridge for signbridge.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Defaults applied by [LoadFromReader] for fields left empty.
const (
	DefaultRegion         = "us-east-1"
	DefaultLanguage       = "en-US"
	DefaultSampleRate     = 16000
	DefaultURLExpiry      = 15 * time.Second
	DefaultBufferMillis   = 100
	DefaultAPITimeout     = 10 * time.Second
	DefaultSpeechFormat   = "mp3"
	DefaultSpeechRate     = 16000
	DefaultSpeechExpiry   = 5 * time.Minute
	DefaultSessionDrain   = 10 * time.Second
	DefaultTranslateFrom  = "auto"
	DefaultTranslateTo    = "en"
	DefaultMaxLabels      = 10
	DefaultMinConfidence  = 80
	minSampleRate         = 8000
	maxSampleRate         = 48000
	maxPresignedURLExpiry = 7 * 24 * time.Hour
)

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	AWS        AWSConfig        `yaml:"aws"`
	Transcribe TranscribeConfig `yaml:"transcribe"`
	Capture    CaptureConfig    `yaml:"capture"`
	API        APIConfig        `yaml:"api"`
	Speech     SpeechConfig     `yaml:"speech"`
	Translate  TranslateConfig  `yaml:"translate"`
	Vision     VisionConfig     `yaml:"vision"`
	Archive    ArchiveConfig    `yaml:"archive"`
}

// ServerConfig holds logging and the optional metrics/health listener.
type ServerConfig struct {
	// ListenAddr is the TCP address for /metrics, /healthz and /readyz
	// (e.g. ":9090"). Empty disables the listener.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// AWSConfig holds the region and optional static credentials. When AccessKeyID
// is empty the aws-sdk-go-v2 default credential chain is used instead.
type AWSConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
}

// HasStaticCredentials reports whether a key pair is configured in the file.
func (a AWSConfig) HasStaticCredentials() bool {
	return a.AccessKeyID != "" || a.SecretAccessKey != ""
}

// TranscribeConfig configures the streaming recognition connection.
type TranscribeConfig struct {
	// Language is a BCP-47 code such as "en-US", or "auto" for automatic
	// language identification among LanguageOptions.
	Language        string        `yaml:"language"`
	LanguageOptions []string      `yaml:"language_options"`
	SampleRate      int           `yaml:"sample_rate"`
	URLExpiry       time.Duration `yaml:"url_expiry"`

	// Endpoint overrides the regional URL, e.g. "wss://localhost:8443".
	Endpoint string `yaml:"endpoint"`

	// DrainTimeout bounds how long a stopping session waits for the service
	// to close the stream after the end-of-stream marker.
	DrainTimeout time.Duration `yaml:"drain_timeout"`
}

// CaptureConfig configures the microphone.
type CaptureConfig struct {
	// BufferMillis is the amount of audio delivered per device read.
	BufferMillis int `yaml:"buffer_ms"`
}

// APIConfig configures the downstream translation/avatar HTTP API.
type APIConfig struct {
	BaseURL     string        `yaml:"base_url"`
	AccessToken string        `yaml:"access_token"`
	Timeout     time.Duration `yaml:"timeout"`
}

// SpeechConfig configures presigned speech-synthesis URLs.
type SpeechConfig struct {
	OutputFormat string        `yaml:"output_format"`
	SampleRate   int           `yaml:"sample_rate"`
	URLExpiry    time.Duration `yaml:"url_expiry"`
}

// TranslateConfig holds the default languages of text translation.
type TranslateConfig struct {
	// SourceLanguage may be "auto" to let the service identify it.
	SourceLanguage string `yaml:"source_language"`
	TargetLanguage string `yaml:"target_language"`
}

// VisionConfig tunes object detection on camera pictures.
type VisionConfig struct {
	MaxLabels int `yaml:"max_labels"`

	// MinConfidence is a percentage in (0, 100].
	MinConfidence float64 `yaml:"min_confidence"`
}

// ArchiveConfig configures the PostgreSQL transcript archive.
type ArchiveConfig struct {
	// PostgresDSN is a pgx connection string. Empty disables archiving.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// applyDefaults fills zero-valued fields with their documented defaults.
func (c *Config) applyDefaults() {
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.AWS.Region == "" {
		c.AWS.Region = DefaultRegion
	}
	if c.Transcribe.Language == "" {
		c.Transcribe.Language = DefaultLanguage
	}
	if c.Transcribe.SampleRate == 0 {
		c.Transcribe.SampleRate = DefaultSampleRate
	}
	if c.Transcribe.URLExpiry == 0 {
		c.Transcribe.URLExpiry = DefaultURLExpiry
	}
	if c.Transcribe.DrainTimeout == 0 {
		c.Transcribe.DrainTimeout = DefaultSessionDrain
	}
	if c.Capture.BufferMillis == 0 {
		c.Capture.BufferMillis = DefaultBufferMillis
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.Speech.OutputFormat == "" {
		c.Speech.OutputFormat = DefaultSpeechFormat
	}
	if c.Speech.SampleRate == 0 {
		c.Speech.SampleRate = DefaultSpeechRate
	}
	if c.Speech.URLExpiry == 0 {
		c.Speech.URLExpiry = DefaultSpeechExpiry
	}
	if c.Translate.SourceLanguage == "" {
		c.Translate.SourceLanguage = DefaultTranslateFrom
	}
	if c.Translate.TargetLanguage == "" {
		c.Translate.TargetLanguage = DefaultTranslateTo
	}
	if c.Vision.MaxLabels == 0 {
		c.Vision.MaxLabels = DefaultMaxLabels
	}
	if c.Vision.MinConfidence == 0 {
		c.Vision.MinConfidence = DefaultMinConfidence
	}
}
