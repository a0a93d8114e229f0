package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/signbridge/internal/backend"
	"github.com/MrWong99/signbridge/internal/config"
	"github.com/MrWong99/signbridge/internal/health"
	"github.com/MrWong99/signbridge/internal/observe"
	"github.com/MrWong99/signbridge/internal/session"
	"github.com/MrWong99/signbridge/pkg/transcript"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      config.LogLevel
		want    slog.Level
		wantErr bool
	}{
		{config.LogDebug, slog.LevelDebug, false},
		{config.LogInfo, slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{config.LogWarn, slog.LevelWarn, false},
		{config.LogError, slog.LevelError, false},
		{"loud", 0, true},
	}
	for _, tt := range tests {
		got, err := parseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseLevel(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewHandler_DynamicLevel(t *testing.T) {
	for _, format := range []string{"text", "json", "pretty"} {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			level := new(slog.LevelVar)
			level.Set(slog.LevelWarn)
			h, err := newHandler(format, &buf, level)
			if err != nil {
				t.Fatalf("newHandler: %v", err)
			}
			log := slog.New(h).With("component", "test")

			log.Info("hidden")
			if strings.Contains(buf.String(), "hidden") {
				t.Fatalf("info record written at warn level: %q", buf.String())
			}

			level.Set(slog.LevelDebug)
			log.Debug("visible")
			if !strings.Contains(buf.String(), "visible") {
				t.Fatalf("debug record missing after lowering the level: %q", buf.String())
			}
		})
	}

	if _, err := newHandler("xml", &bytes.Buffer{}, new(slog.LevelVar)); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestCLI_OnConfigChange(t *testing.T) {
	c := &cli{level: new(slog.LevelVar)}
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogInfo}}
	next := &config.Config{Server: config.ServerConfig{LogLevel: config.LogDebug}}

	c.onConfigChange(config.Diff(old, next), next)
	if c.level.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", c.level.Level())
	}

	c.levelPinned = true
	c.onConfigChange(config.Diff(next, old), old)
	if c.level.Level() != slog.LevelDebug {
		t.Errorf("pinned level changed to %v", c.level.Level())
	}
}

func TestReloadOnHangup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signbridge.yaml")
	if err := os.WriteFile(path, []byte("server:\n  log_level: info\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	w, err := config.NewWatcher(path, config.WithInterval(time.Hour))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	reloaded := make(chan config.LogLevel, 1)
	w.Subscribe(func(d config.ConfigDiff, _ *config.Config) { reloaded <- d.NewLogLevel })
	stop := reloadOnHangup(w)
	defer stop()

	if err := os.WriteFile(path, []byte("server:\n  log_level: debug\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := syscall.Kill(os.Getpid(), syscall.SIGHUP); err != nil {
		t.Fatalf("kill: %v", err)
	}
	select {
	case lvl := <-reloaded:
		if lvl != config.LogDebug {
			t.Errorf("reloaded level = %q, want debug", lvl)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("SIGHUP did not trigger a reload")
	}
}

func TestNewRouter(t *testing.T) {
	metrics, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	prom := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("signbridge_session_active 0\n"))
	})
	down := health.Checker{Name: "archive", Check: func(context.Context) error { return errors.New("refused") }}
	r := newRouter(metrics, []health.Checker{down}, prom)

	tests := []struct {
		path     string
		wantCode int
		wantBody string
	}{
		{"/healthz", http.StatusOK, `"status":"ok"`},
		{"/readyz", http.StatusServiceUnavailable, "fail: refused"},
		{"/metrics", http.StatusOK, "signbridge_session_active"},
		{"/nope", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest("GET", tt.path, nil))
		if rec.Code != tt.wantCode {
			t.Errorf("GET %s status = %d, want %d", tt.path, rec.Code, tt.wantCode)
		}
		if !strings.Contains(rec.Body.String(), tt.wantBody) {
			t.Errorf("GET %s body = %q, want it to contain %q", tt.path, rec.Body.String(), tt.wantBody)
		}
	}
}

func TestPrintUpdates(t *testing.T) {
	var buf bytes.Buffer
	update := printUpdates(&buf)

	update(session.Update{Change: transcript.Change{Kind: transcript.ChangePartial, Text: "hel"}})
	update(session.Update{
		State:  transcript.State{DetectedLanguage: "de-DE"},
		Change: transcript.Change{Kind: transcript.ChangeFinal, Text: "Hallo Welt", LanguageChanged: true},
	})
	update(session.Update{Change: transcript.Change{Kind: transcript.ChangeFinal}})

	if got, want := buf.String(), "[de-DE]\nHallo Welt\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestTranscriptText(t *testing.T) {
	st := transcript.State{Confirmed: []string{"Hallo", "wie geht's?"}, Pending: "ignored"}
	if got := transcriptText(st); got != "Hallo wie geht's?" {
		t.Errorf("transcriptText = %q", got)
	}
	if got := transcriptText(transcript.State{}); got != "" {
		t.Errorf("transcriptText(empty) = %q", got)
	}
}

func TestSpeechLanguage(t *testing.T) {
	cfg := func(lang string) *config.Config {
		return &config.Config{Transcribe: config.TranscribeConfig{Language: lang}}
	}
	tests := []struct {
		name     string
		detected string
		cfg      *config.Config
		want     string
	}{
		{"detected wins", "fr-FR", cfg("de-DE"), "fr-FR"},
		{"configured", "", cfg("de-DE"), "de-DE"},
		{"auto falls back", "", cfg("auto"), "en-US"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := speechLanguage(transcript.State{DetectedLanguage: tt.detected}, tt.cfg)
			if got != tt.want {
				t.Errorf("speechLanguage = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPrintResult(t *testing.T) {
	var buf bytes.Buffer
	printResult(&buf, &backend.Result{Topic: "signs", Result: "queued", MessageID: "m-1", SequenceNumber: "7"})
	want := "topic=signs result=queued message_id=m-1 sequence=7\n"
	if buf.String() != want {
		t.Errorf("printResult = %q, want %q", buf.String(), want)
	}
}
