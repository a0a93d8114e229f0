package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/signbridge/internal/config"
)

func TestLoad_FromFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "signbridge.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AWS.AccessKeyID != "AKIDEXAMPLE" {
		t.Errorf("access_key_id: got %q", cfg.AWS.AccessKeyID)
	}
}

func TestLoad_InvalidFileNamesPath(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("server:\n  log_level: loud\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, err := config.Load(path)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if got := err.Error(); !strings.Contains(got, path) {
		t.Errorf("error should name the file, got: %v", err)
	}
}

func TestValidSpeechFormats(t *testing.T) {
	t.Parallel()
	for _, f := range config.ValidSpeechFormats {
		cfg := &config.Config{Speech: config.SpeechConfig{OutputFormat: f}}
		if err := config.Validate(cfg); err != nil {
			t.Errorf("format %q: unexpected error %v", f, err)
		}
	}
}
