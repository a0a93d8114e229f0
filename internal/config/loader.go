package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidSpeechFormats lists the audio container formats the speech service
// can return.
var ValidSpeechFormats = []string{"mp3", "ogg_vorbis", "pcm"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. An empty document yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// AWS credentials must come as a pair.
	switch {
	case cfg.AWS.AccessKeyID != "" && cfg.AWS.SecretAccessKey == "":
		errs = append(errs, errors.New("aws.secret_access_key is required when aws.access_key_id is set"))
	case cfg.AWS.AccessKeyID == "" && cfg.AWS.SecretAccessKey != "":
		errs = append(errs, errors.New("aws.access_key_id is required when aws.secret_access_key is set"))
	}
	if cfg.AWS.SessionToken != "" && !cfg.AWS.HasStaticCredentials() {
		errs = append(errs, errors.New("aws.session_token requires aws.access_key_id and aws.secret_access_key"))
	}
	if !cfg.AWS.HasStaticCredentials() {
		slog.Debug("no static AWS credentials configured; using the default credential chain")
	}

	// Transcribe
	tc := cfg.Transcribe
	if tc.SampleRate != 0 && (tc.SampleRate < minSampleRate || tc.SampleRate > maxSampleRate) {
		errs = append(errs, fmt.Errorf("transcribe.sample_rate %d is out of range [%d, %d]", tc.SampleRate, minSampleRate, maxSampleRate))
	}
	if tc.URLExpiry < 0 || tc.URLExpiry > maxPresignedURLExpiry {
		errs = append(errs, fmt.Errorf("transcribe.url_expiry %s is out of range (0, %s]", tc.URLExpiry, maxPresignedURLExpiry))
	}
	if tc.DrainTimeout < 0 {
		errs = append(errs, fmt.Errorf("transcribe.drain_timeout %s must not be negative", tc.DrainTimeout))
	}
	if tc.Language == "auto" && len(tc.LanguageOptions) == 1 {
		errs = append(errs, errors.New("transcribe.language_options needs at least two languages for automatic identification"))
	}
	if tc.Language != "auto" && len(tc.LanguageOptions) > 0 {
		slog.Warn("transcribe.language_options is ignored unless transcribe.language is \"auto\"", "language", tc.Language)
	}
	if tc.Endpoint != "" {
		if u, err := url.Parse(tc.Endpoint); err != nil || u.Host == "" || (u.Scheme != "wss" && u.Scheme != "ws") {
			errs = append(errs, fmt.Errorf("transcribe.endpoint %q must be a ws:// or wss:// URL", tc.Endpoint))
		}
	}

	if cfg.Capture.BufferMillis < 0 {
		errs = append(errs, fmt.Errorf("capture.buffer_ms %d must not be negative", cfg.Capture.BufferMillis))
	}

	// API
	if cfg.API.BaseURL != "" {
		u, err := url.Parse(cfg.API.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("api.base_url %q is not an absolute URL", cfg.API.BaseURL))
		}
		if cfg.API.AccessToken == "" {
			slog.Warn("api.base_url is set but api.access_token is empty; requests will be unauthenticated")
		}
	}
	if cfg.API.Timeout < 0 {
		errs = append(errs, fmt.Errorf("api.timeout %s must not be negative", cfg.API.Timeout))
	}

	// Speech
	if cfg.Speech.OutputFormat != "" && !slices.Contains(ValidSpeechFormats, cfg.Speech.OutputFormat) {
		errs = append(errs, fmt.Errorf("speech.output_format %q is invalid; valid values: %v", cfg.Speech.OutputFormat, ValidSpeechFormats))
	}
	if cfg.Speech.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("speech.sample_rate %d must not be negative", cfg.Speech.SampleRate))
	}
	if cfg.Speech.URLExpiry < 0 || cfg.Speech.URLExpiry > maxPresignedURLExpiry {
		errs = append(errs, fmt.Errorf("speech.url_expiry %s is out of range (0, %s]", cfg.Speech.URLExpiry, maxPresignedURLExpiry))
	}

	// Translate and vision
	if cfg.Translate.TargetLanguage == "auto" {
		errs = append(errs, errors.New("translate.target_language must name a language, not \"auto\""))
	}
	if cfg.Vision.MaxLabels < 0 {
		errs = append(errs, fmt.Errorf("vision.max_labels %d must not be negative", cfg.Vision.MaxLabels))
	}
	if cfg.Vision.MinConfidence < 0 || cfg.Vision.MinConfidence > 100 {
		errs = append(errs, fmt.Errorf("vision.min_confidence %g is out of range (0, 100]", cfg.Vision.MinConfidence))
	}

	if cfg.Archive.PostgresDSN == "" {
		slog.Debug("archive.postgres_dsn is empty; finalized transcript segments will not be archived")
	}

	return errors.Join(errs...)
}
