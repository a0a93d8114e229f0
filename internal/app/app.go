// Package app wires the signbridge subsystems together and manages their
// lifecycle.
//
// An [App] owns the credential provider, the optional transcript archive,
// the optional backend client and the single-slot [SessionManager]. It also
// reaches the translation and picture-analysis services with the same
// credentials. Every
// listen pass reads the current configuration, so settings changed in a
// watched config file apply to the next session without a restart.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/MrWong99/signbridge/internal/archive"
	"github.com/MrWong99/signbridge/internal/backend"
	"github.com/MrWong99/signbridge/internal/config"
	"github.com/MrWong99/signbridge/internal/health"
	"github.com/MrWong99/signbridge/internal/observe"
	"github.com/MrWong99/signbridge/internal/session"
	"github.com/MrWong99/signbridge/pkg/audio"
	"github.com/MrWong99/signbridge/pkg/speech"
	"github.com/MrWong99/signbridge/pkg/transcribe"
	"github.com/MrWong99/signbridge/pkg/translator"
	"github.com/MrWong99/signbridge/pkg/vision"
)

var (
	// ErrNoMicrophone is returned by [App.StartListening] when the App was
	// built without [WithMicrophone].
	ErrNoMicrophone = errors.New("app: no microphone configured")

	// ErrBackendNotConfigured is returned by [App.Backend] when api.base_url
	// is empty.
	ErrBackendNotConfigured = errors.New("app: api.base_url is not configured")
)

// App is the top-level application object. Create one with [New], then call
// [App.StartListening] for each recognition pass and [App.Shutdown] once.
type App struct {
	src        config.Source
	creds      aws.CredentialsProvider
	metrics    *observe.Metrics
	mic        audio.Microphone
	dialer     transcribe.Dialer
	sink       session.SegmentSink
	archive    *archive.Store
	httpClient *http.Client
	backend    *backend.Client
	sessions   *SessionManager

	translateAPI translator.API
	imageAPI     vision.ImageAPI
	docAPI       vision.DocumentAPI

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for [New].
type Option func(*App)

// WithMicrophone sets the capture device. Without it the App can still call
// the backend and build speech URLs, but cannot listen.
func WithMicrophone(m audio.Microphone) Option {
	return func(a *App) { a.mic = m }
}

// WithDialer replaces the WebSocket dialer, e.g. with a mock in tests.
func WithDialer(d transcribe.Dialer) Option {
	return func(a *App) { a.dialer = d }
}

// WithCredentials replaces the config-backed credential provider.
func WithCredentials(p aws.CredentialsProvider) Option {
	return func(a *App) { a.creds = p }
}

// WithSink stores finalized segments in s instead of the Postgres archive
// named by archive.postgres_dsn.
func WithSink(s session.SegmentSink) Option {
	return func(a *App) { a.sink = s }
}

// WithMetrics sets the instruments used by sessions and the backend client.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithHTTPClient sets the client used for backend calls.
func WithHTTPClient(c *http.Client) Option {
	return func(a *App) { a.httpClient = c }
}

// New creates an App. It connects the archive when one is configured and no
// sink was injected, and builds the backend client when api.base_url is set.
func New(ctx context.Context, src config.Source, opts ...Option) (*App, error) {
	if src == nil || src.Current() == nil {
		return nil, errors.New("app: config source is required")
	}
	a := &App{
		src:      src,
		sessions: NewSessionManager(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.creds == nil {
		a.creds = config.NewCredentialsProvider(src)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.dialer == nil {
		a.dialer = transcribe.WebSocketDialer{}
	}

	if err := a.initArchive(ctx); err != nil {
		return nil, err
	}
	if err := a.initBackend(); err != nil {
		a.runClosers(ctx)
		return nil, err
	}
	return a, nil
}

func (a *App) initArchive(ctx context.Context) error {
	if a.sink != nil {
		return nil
	}
	dsn := a.src.Current().Archive.PostgresDSN
	if dsn == "" {
		slog.Debug("transcript archive disabled")
		return nil
	}
	store, err := archive.Open(ctx, dsn)
	if err != nil {
		return fmt.Errorf("app: open archive: %w", err)
	}
	a.archive = store
	a.sink = store
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	return nil
}

func (a *App) initBackend() error {
	cfg := a.src.Current().API
	if cfg.BaseURL == "" {
		return nil
	}
	src := a.src
	opts := []backend.Option{
		backend.WithTimeout(cfg.Timeout),
		backend.WithMetrics(a.metrics),
		backend.WithTokenSource(backend.TokenFunc(func(context.Context) (string, error) {
			return src.Current().API.AccessToken, nil
		})),
	}
	if a.httpClient != nil {
		opts = append(opts, backend.WithHTTPClient(a.httpClient))
	}
	c, err := backend.New(cfg.BaseURL, opts...)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	a.backend = c
	return nil
}

// StartListening opens a new recognition session on the microphone. onUpdate
// receives every applied result and may be nil.
//
// Returns [ErrSessionActive] while another session holds the microphone.
func (a *App) StartListening(ctx context.Context, onUpdate func(session.Update)) (*session.Session, error) {
	if a.mic == nil {
		return nil, ErrNoMicrophone
	}
	return a.sessions.Start(ctx, func() (*session.Session, error) {
		return a.newSession(onUpdate)
	})
}

func (a *App) newSession(onUpdate func(session.Update)) (*session.Session, error) {
	cfg := a.src.Current()
	client, err := transcribe.New(a.creds, transcribeOptions(cfg)...)
	if err != nil {
		return nil, err
	}
	return session.New(session.Config{
		Capture:      audio.NewCapture(a.mic, client.SampleRate()),
		Signer:       client,
		Dialer:       a.dialer,
		Metrics:      a.metrics,
		OnUpdate:     onUpdate,
		Sink:         a.sink,
		DrainTimeout: cfg.Transcribe.DrainTimeout,
	})
}

func transcribeOptions(cfg *config.Config) []transcribe.Option {
	opts := []transcribe.Option{
		transcribe.WithRegion(cfg.AWS.Region),
		transcribe.WithLanguage(cfg.Transcribe.Language),
		transcribe.WithSampleRate(cfg.Transcribe.SampleRate),
		transcribe.WithExpiry(cfg.Transcribe.URLExpiry),
	}
	if len(cfg.Transcribe.LanguageOptions) > 0 {
		opts = append(opts, transcribe.WithLanguageOptions(cfg.Transcribe.LanguageOptions...))
	}
	if cfg.Transcribe.Endpoint != "" {
		opts = append(opts, transcribe.WithEndpoint(cfg.Transcribe.Endpoint))
	}
	return opts
}

// StopListening drains the active session and waits until it is terminal or
// ctx is done.
func (a *App) StopListening(ctx context.Context) error {
	return a.sessions.Stop(ctx)
}

// Sessions exposes the session slot.
func (a *App) Sessions() *SessionManager { return a.sessions }

// Backend returns the backend client.
func (a *App) Backend() (*backend.Client, error) {
	if a.backend == nil {
		return nil, ErrBackendNotConfigured
	}
	return a.backend, nil
}

// Archive returns the transcript archive, or nil when none is configured.
func (a *App) Archive() *archive.Store { return a.archive }

// SpeechURL returns a presigned URL speaking text in language, built from
// the current speech settings.
func (a *App) SpeechURL(ctx context.Context, text, language string) (string, error) {
	cfg := a.src.Current()
	synth, err := speech.New(a.creds,
		speech.WithRegion(cfg.AWS.Region),
		speech.WithOutputFormat(cfg.Speech.OutputFormat),
		speech.WithSampleRate(cfg.Speech.SampleRate),
		speech.WithExpiry(cfg.Speech.URLExpiry),
	)
	if err != nil {
		return "", fmt.Errorf("app: %w", err)
	}
	return synth.URL(ctx, text, language)
}

// Checkers returns the readiness probes for the configured dependencies.
func (a *App) Checkers() []health.Checker {
	checks := []health.Checker{health.CredentialsCheck(a.creds)}
	if a.archive != nil {
		checks = append(checks, health.PingCheck("archive", a.archive))
	}
	return checks
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the active session and then runs the closers in order. If
// ctx expires first, the remaining closers are skipped and the context error
// is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.sessions.Stop(ctx); err != nil && !errors.Is(err, ErrNoSession) {
			slog.Warn("session stop error", "err", err)
			if ctx.Err() != nil {
				shutdownErr = ctx.Err()
				return
			}
		}
		shutdownErr = a.runClosers(ctx)
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

func (a *App) runClosers(ctx context.Context) error {
	for i, closer := range a.closers {
		select {
		case <-ctx.Done():
			slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
			return ctx.Err()
		default:
		}
		if err := closer(); err != nil {
			slog.Warn("closer error", "index", i, "err", err)
		}
	}
	return nil
}
