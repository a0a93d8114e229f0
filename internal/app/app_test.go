package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/signbridge/internal/app"
	"github.com/MrWong99/signbridge/internal/config"
	"github.com/MrWong99/signbridge/internal/session"
	tmock "github.com/MrWong99/signbridge/pkg/transcribe/mock"
	"github.com/MrWong99/signbridge/pkg/transcript"
)

const appYAML = `
aws:
  region: eu-central-1
  access_key_id: AKIDEXAMPLE
  secret_access_key: wJalrXUtnFEMI/K7MDENG+bPxRfiCYEXAMPLEKEY
transcribe:
  language: de-DE
  endpoint: wss://transcribe.example.invalid:8443
  drain_timeout: 1s
speech:
  output_format: pcm
`

// swapSource is a config.Source whose config can be replaced mid-test.
type swapSource struct{ p atomic.Pointer[config.Config] }

func (s *swapSource) Current() *config.Config { return s.p.Load() }

func newSource(t *testing.T, extra string) *swapSource {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(appYAML + extra))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	src := &swapSource{}
	src.p.Store(cfg)
	return src
}

type memorySink struct {
	mu   sync.Mutex
	segs []transcript.Segment
}

func (m *memorySink) WriteSegment(_ context.Context, seg transcript.Segment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.segs = append(m.segs, seg)
	return nil
}

func (m *memorySink) Segments() []transcript.Segment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]transcript.Segment(nil), m.segs...)
}

func newApp(t *testing.T, src config.Source, opts ...app.Option) *app.App {
	t.Helper()
	a, err := app.New(context.Background(), src, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func TestNew_RequiresSource(t *testing.T) {
	t.Parallel()
	if _, err := app.New(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil source")
	}
	if _, err := app.New(context.Background(), config.Static{}); err == nil {
		t.Fatal("expected error for empty source")
	}
}

func TestNew_Minimal(t *testing.T) {
	t.Parallel()
	a := newApp(t, newSource(t, ""))

	if _, err := a.Backend(); !errors.Is(err, app.ErrBackendNotConfigured) {
		t.Errorf("Backend() err = %v, want ErrBackendNotConfigured", err)
	}
	if a.Archive() != nil {
		t.Error("Archive() should be nil without a DSN")
	}
	checks := a.Checkers()
	if len(checks) != 1 || checks[0].Name != "credentials" {
		t.Fatalf("Checkers() = %+v, want only credentials", checks)
	}
	if err := checks[0].Check(context.Background()); err != nil {
		t.Errorf("credentials check: %v", err)
	}
}

func TestApp_StartListeningWithoutMicrophone(t *testing.T) {
	t.Parallel()
	a := newApp(t, newSource(t, ""))
	if _, err := a.StartListening(context.Background(), nil); !errors.Is(err, app.ErrNoMicrophone) {
		t.Fatalf("err = %v, want ErrNoMicrophone", err)
	}
}

func TestApp_ListenEndToEnd(t *testing.T) {
	t.Parallel()

	conn := tmock.NewConn()
	conn.OnWrite = endOnSentinel
	dialer := &tmock.Dialer{Conn: conn}
	sink := &memorySink{}
	mic := newMic()

	var (
		umu     sync.Mutex
		updates []session.Update
	)
	a := newApp(t, newSource(t, ""),
		app.WithMicrophone(mic),
		app.WithDialer(dialer),
		app.WithSink(sink),
	)

	s, err := a.StartListening(context.Background(), func(u session.Update) {
		umu.Lock()
		updates = append(updates, u)
		umu.Unlock()
	})
	if err != nil {
		t.Fatalf("StartListening: %v", err)
	}
	if _, err := a.StartListening(context.Background(), nil); !errors.Is(err, app.ErrSessionActive) {
		t.Errorf("second StartListening err = %v, want ErrSessionActive", err)
	}

	conn.PushMessage(tmock.TranscriptMessage("guten", true, ""))
	conn.PushMessage(tmock.TranscriptMessage("guten Tag", false, "de-DE"))
	waitFor(t, "final segment", func() bool { return len(sink.Segments()) == 1 })

	if err := a.StopListening(stopCtx(t)); err != nil {
		t.Fatalf("StopListening: %v", err)
	}
	if got := s.Transcript().ConfirmedText(); got != "guten Tag\n" {
		t.Errorf("ConfirmedText() = %q, want %q", got, "guten Tag\n")
	}

	seg := sink.Segments()[0]
	if seg.SessionID != s.ID() || seg.Index != 0 || seg.Text != "guten Tag" {
		t.Errorf("segment = %+v", seg)
	}

	umu.Lock()
	n := len(updates)
	umu.Unlock()
	if n != 2 {
		t.Errorf("updates = %d, want 2", n)
	}

	urls := dialer.URLs()
	if len(urls) != 1 {
		t.Fatalf("dial count = %d, want 1", len(urls))
	}
	u, err := url.Parse(urls[0])
	if err != nil {
		t.Fatalf("parse dial URL: %v", err)
	}
	if u.Host != "transcribe.example.invalid:8443" {
		t.Errorf("host = %q", u.Host)
	}
	q := u.Query()
	if q.Get("language-code") != "de-DE" || q.Get("sample-rate") != "16000" {
		t.Errorf("query = %v", q)
	}
	if !strings.Contains(q.Get("X-Amz-Credential"), "/eu-central-1/transcribe/") {
		t.Errorf("credential scope = %q", q.Get("X-Amz-Credential"))
	}
}

func TestApp_SessionUsesCurrentConfig(t *testing.T) {
	t.Parallel()

	src := newSource(t, "")
	f := tmock.NewConn()
	f.OnWrite = endOnSentinel
	dialer := &tmock.Dialer{Conn: f}
	a := newApp(t, src, app.WithMicrophone(newMic()), app.WithDialer(dialer), app.WithSink(&memorySink{}))

	next := *src.Current()
	next.Transcribe.Language = "auto"
	next.Transcribe.LanguageOptions = []string{"en-US", "fr-FR"}
	src.p.Store(&next)

	if _, err := a.StartListening(context.Background(), nil); err != nil {
		t.Fatalf("StartListening: %v", err)
	}
	if err := a.StopListening(stopCtx(t)); err != nil {
		t.Fatalf("StopListening: %v", err)
	}

	u, err := url.Parse(dialer.URLs()[0])
	if err != nil {
		t.Fatalf("parse dial URL: %v", err)
	}
	q := u.Query()
	if q.Get("identify-language") != "true" || q.Get("language-options") != "en-US,fr-FR" {
		t.Errorf("query = %v, want automatic identification", q)
	}
}

func TestApp_Backend(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		auths []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		auths = append(auths, r.Header.Get("Authorization"))
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"topic": "signs", "result": "ok", "messageId": "m-1", "sequenceNumber": "1",
		})
	}))
	t.Cleanup(srv.Close)

	src := newSource(t, "api:\n  base_url: "+srv.URL+"\n  access_token: first\n")
	a := newApp(t, src, app.WithHTTPClient(srv.Client()))

	c, err := a.Backend()
	if err != nil {
		t.Fatalf("Backend: %v", err)
	}
	if _, err := c.Translate(context.Background(), "hallo", 2); err != nil {
		t.Fatalf("Translate: %v", err)
	}

	next := *src.Current()
	next.API.AccessToken = "second"
	src.p.Store(&next)

	if _, err := c.StopAll(context.Background()); err != nil {
		t.Fatalf("StopAll: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(auths) != 2 || auths[0] != "first" || auths[1] != "second" {
		t.Errorf("Authorization headers = %q, want [first second]", auths)
	}
}

func TestApp_SpeechURL(t *testing.T) {
	t.Parallel()
	a := newApp(t, newSource(t, ""))

	raw, err := a.SpeechURL(context.Background(), "Guten Tag", "de-DE")
	if err != nil {
		t.Fatalf("SpeechURL: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.Host != "polly.eu-central-1.amazonaws.com" || u.Path != "/v1/speech" {
		t.Errorf("URL = %s", raw)
	}
	q := u.Query()
	if q.Get("OutputFormat") != "pcm" || q.Get("Text") != "Guten Tag" || q.Get("VoiceId") == "" {
		t.Errorf("query = %v", q)
	}

	if _, err := a.SpeechURL(context.Background(), "", "de-DE"); err == nil {
		t.Error("expected error for empty text")
	}
}

func TestApp_ShutdownStopsSession(t *testing.T) {
	t.Parallel()

	conn := tmock.NewConn()
	conn.OnWrite = endOnSentinel
	mic := newMic()
	a, err := app.New(context.Background(), newSource(t, ""),
		app.WithMicrophone(mic),
		app.WithDialer(&tmock.Dialer{Conn: conn}),
		app.WithSink(&memorySink{}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s, err := a.StartListening(context.Background(), nil)
	if err != nil {
		t.Fatalf("StartListening: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if s.State() != session.Closed {
		t.Errorf("state = %s, want closed", s.State())
	}
	if a.Sessions().IsActive() {
		t.Error("slot should be free after Shutdown")
	}
	if got := mic.CloseCalls(); got != 1 {
		t.Errorf("microphone released %d times, want 1", got)
	}

	// Idempotent.
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}
