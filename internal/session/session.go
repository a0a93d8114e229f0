// Package session implements one streaming recognition pass: microphone
// capture, the signed socket handshake, ordered audio upload, inbound result
// decoding and transcript reconciliation.
//
// A [Session] is single-use. It owns its microphone capture and its socket;
// both are released on every exit path. Starting another pass means creating
// another Session.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/signbridge/internal/observe"
	"github.com/MrWong99/signbridge/pkg/audio"
	"github.com/MrWong99/signbridge/pkg/eventstream"
	"github.com/MrWong99/signbridge/pkg/transcribe"
	"github.com/MrWong99/signbridge/pkg/transcript"
)

const (
	defaultDrainTimeout = 10 * time.Second
	sinkTimeout         = 5 * time.Second
)

var (
	// ErrConnection wraps socket-level failures: dial, read and write errors
	// other than a normal close.
	ErrConnection = errors.New("session: connection error")

	// ErrAlreadyStarted is returned by Start on a session that is not Idle.
	ErrAlreadyStarted = errors.New("session: already started")

	// ErrStopped is returned by Start when Stop was called while opening.
	ErrStopped = errors.New("session: stopped while opening")

	// errStreamEnded ends the receive loop after a normal close.
	errStreamEnded = errors.New("session: stream ended")
)

// Capture is the audio source of a session. [*audio.Capture] implements it.
type Capture interface {
	Open(ctx context.Context) error
	Frames() <-chan audio.AudioFrame
	Stop() error
}

// URLSigner returns a fresh presigned connection URL. [*transcribe.Client]
// implements it.
type URLSigner interface {
	PresignURL(ctx context.Context) (string, error)
}

// SegmentSink stores finalized transcript segments.
type SegmentSink interface {
	WriteSegment(ctx context.Context, seg transcript.Segment) error
}

// Update is delivered to [Config.OnUpdate] after every applied result.
type Update struct {
	SessionID string
	State     transcript.State
	Change    transcript.Change
}

// Config holds the dependencies of a [Session].
type Config struct {
	// Capture supplies audio frames. Required.
	Capture Capture

	// Signer produces the connection URL. Required.
	Signer URLSigner

	// Dialer opens the socket. Required.
	Dialer transcribe.Dialer

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// OnUpdate is called from the receive goroutine after each applied
	// result. It must not block for long. May be nil.
	OnUpdate func(Update)

	// Sink receives finalized segments. Errors are logged only. May be nil.
	Sink SegmentSink

	// DrainTimeout bounds how long a draining session waits for the service
	// to close the stream. Defaults to 10s.
	DrainTimeout time.Duration
}

// Session is one streaming recognition pass. All exported methods are safe
// for concurrent use.
type Session struct {
	id      string
	cfg     Config
	metrics *observe.Metrics
	rec     *transcript.Reconciler

	mu        sync.Mutex
	state     State
	err       error
	conn      transcribe.Conn
	stopAsked bool
	segments  int

	stopReq  chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	// halted suppresses outbound sends once the stream is over.
	halted atomic.Bool
	// closing marks a socket close initiated by the session itself.
	closing atomic.Bool
}

// New returns an Idle session.
func New(cfg Config) (*Session, error) {
	if cfg.Capture == nil || cfg.Signer == nil || cfg.Dialer == nil {
		return nil, errors.New("session: capture, signer and dialer are required")
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = defaultDrainTimeout
	}
	m := cfg.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Session{
		id:      uuid.NewString(),
		cfg:     cfg,
		metrics: m,
		rec:     transcript.NewReconciler(),
		stopReq: make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// ID returns the unique session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error that ended the session, if any. An exception received
// while draining is reported here even though the session is Closed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Transcript returns a snapshot of the session transcript.
func (s *Session) Transcript() transcript.State {
	return s.rec.State()
}

// Done is closed once the session reached a terminal state.
func (s *Session) Done() <-chan struct{} { return s.done }

// Start opens the session: it acquires the microphone, signs a fresh URL,
// dials the socket and begins streaming. It returns once audio is flowing or
// with the error that moved the session to Failed. Everything acquired before
// a failure is released.
func (s *Session) Start(ctx context.Context) (err error) {
	s.mu.Lock()
	if s.state != Idle {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.state = Opening
	s.mu.Unlock()

	log := slog.With("session_id", s.id)
	started := time.Now()
	ctx, span := observe.StartSpan(ctx, "session.open")
	span.SetAttributes(attribute.String("session.id", s.id))
	defer func() { observe.EndSpan(span, err) }()

	if err := s.cfg.Capture.Open(ctx); err != nil {
		return s.abortOpen(nil, fmt.Errorf("session: open capture: %w", err))
	}

	url, err := s.cfg.Signer.PresignURL(ctx)
	if err != nil {
		return s.abortOpen(nil, fmt.Errorf("session: sign url: %w", err))
	}

	conn, err := s.cfg.Dialer.Dial(ctx, url)
	if err != nil {
		return s.abortOpen(nil, fmt.Errorf("%w: %w", ErrConnection, err))
	}

	s.mu.Lock()
	if s.stopAsked {
		s.mu.Unlock()
		return s.abortOpen(conn, ErrStopped)
	}
	s.state = Streaming
	s.conn = conn
	s.mu.Unlock()

	s.metrics.SessionOpenDuration.Record(ctx, time.Since(started).Seconds())
	s.metrics.ActiveSessions.Add(ctx, 1)
	log.Info("session streaming", "open_duration", time.Since(started))

	runCtx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return s.sendLoop(gctx, conn) })
	g.Go(func() error { return s.receiveLoop(gctx, conn) })
	go func() {
		err := g.Wait()
		cancel()
		s.finish(conn, err)
	}()
	return nil
}

// abortOpen releases what Start acquired and records the terminal state.
func (s *Session) abortOpen(conn transcribe.Conn, cause error) error {
	if err := s.cfg.Capture.Stop(); err != nil {
		slog.Warn("session: release microphone", "session_id", s.id, "err", err)
	}
	if conn != nil {
		_ = conn.Close()
	}

	s.mu.Lock()
	final := Failed
	if s.stopAsked {
		final = Closed
		cause = ErrStopped
	}
	s.state = final
	s.err = cause
	s.mu.Unlock()
	close(s.done)

	s.metrics.RecordSessionOutcome(context.Background(), final.String())
	if final == Failed {
		slog.Error("session failed to open", "session_id", s.id, "err", cause)
	}
	return cause
}

// Stop requests the end of audio. The microphone is released before Stop
// returns. A streaming session moves to Draining, sends the end-of-stream
// sentinel and keeps receiving results until the service closes the stream.
// Stop is idempotent; calls after the first, and calls on a terminal session,
// do nothing.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		switch s.state {
		case Idle:
			s.state = Closed
			close(s.done)
		case Opening:
			s.stopAsked = true
		case Streaming:
			s.state = Draining
		}
		s.mu.Unlock()

		if err := s.cfg.Capture.Stop(); err != nil {
			slog.Warn("session: release microphone", "session_id", s.id, "err", err)
		}
		close(s.stopReq)
		slog.Info("session stop requested", "session_id", s.id)
	})
}

// Wait blocks until the session is terminal or ctx is done. It returns nil
// for Closed and the cause for Failed.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Failed {
		return s.err
	}
	return nil
}

// beginDrain moves Streaming to Draining. Other states are left alone.
func (s *Session) beginDrain() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Streaming {
		s.state = Draining
	}
}

func (s *Session) sendLoop(ctx context.Context, conn transcribe.Conn) error {
	frames := s.cfg.Capture.Frames()

	for {
		select {
		case f, ok := <-frames:
			if !ok {
				// Capture ended on its own: treat as a stop.
				slog.Info("session capture ended", "session_id", s.id)
				s.beginDrain()
				_ = s.cfg.Capture.Stop()
				return s.drain(ctx, conn, nil)
			}
			if err := s.send(ctx, conn, transcribe.AudioEvent(f.Data)); err != nil {
				return err
			}
		case <-s.stopReq:
			s.beginDrain()
			return s.drain(ctx, conn, frames)
		case <-ctx.Done():
			return nil
		}
	}
}

// drain forwards frames captured before the stop, sends the sentinel once
// and waits for the service to close the stream.
func (s *Session) drain(ctx context.Context, conn transcribe.Conn, frames <-chan audio.AudioFrame) error {
	if frames != nil {
		for f := range frames {
			if err := s.send(ctx, conn, transcribe.AudioEvent(f.Data)); err != nil {
				return err
			}
		}
	}
	if err := s.send(ctx, conn, transcribe.EndOfStream()); err != nil {
		return err
	}
	slog.Debug("session sent end of stream", "session_id", s.id)

	timer := time.NewTimer(s.cfg.DrainTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
		slog.Warn("session drain timed out, closing", "session_id", s.id, "timeout", s.cfg.DrainTimeout)
		s.closing.Store(true)
		_ = conn.Close()
	}
	return nil
}

func (s *Session) send(ctx context.Context, conn transcribe.Conn, m eventstream.Message) error {
	if s.halted.Load() || ctx.Err() != nil {
		return nil
	}
	b, err := eventstream.Marshal(m)
	if err != nil {
		return fmt.Errorf("session: encode audio event: %w", err)
	}
	if err := conn.Write(ctx, b); err != nil {
		if ctx.Err() != nil || s.halted.Load() {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}
	s.metrics.RecordFrameSent(ctx, len(b))
	return nil
}

func (s *Session) receiveLoop(ctx context.Context, conn transcribe.Conn) error {
	log := slog.With("session_id", s.id)
	for {
		b, err := conn.Read(ctx)
		if err != nil {
			s.halted.Store(true)
			switch {
			case errors.Is(err, io.EOF):
				return errStreamEnded
			case s.closing.Load():
				return errStreamEnded
			case ctx.Err() != nil:
				return nil
			default:
				return fmt.Errorf("%w: %w", ErrConnection, err)
			}
		}
		s.metrics.FramesReceived.Add(ctx, 1)

		msg, err := eventstream.Unmarshal(b)
		if err != nil {
			log.Warn("session dropped corrupt frame", "err", err, "len", len(b))
			s.metrics.RecordFrameDropped(ctx, "corrupt")
			continue
		}
		in, err := transcribe.Decode(msg)
		if err != nil {
			log.Warn("session dropped unexpected message", "err", err)
			s.metrics.RecordFrameDropped(ctx, "unexpected")
			continue
		}
		if in.Exception != nil {
			s.halted.Store(true)
			log.Warn("session received exception", "type", in.Exception.Type, "message", in.Exception.Message)
			return in.Exception
		}
		if in.Transcript != nil {
			s.apply(ctx, *in.Transcript)
		}
	}
}

func (s *Session) apply(ctx context.Context, ev transcript.Event) {
	st, ch := s.rec.Apply(ev)
	if ch.Kind == transcript.ChangeNone && !ch.LanguageChanged {
		return
	}
	if ch.Kind != transcript.ChangeNone {
		s.metrics.RecordTranscriptResult(ctx, ch.Kind.String())
	}
	if ch.LanguageChanged {
		slog.Info("session detected language", "session_id", s.id, "language", st.DetectedLanguage)
	}

	if ch.Kind == transcript.ChangeFinal && ch.Text != "" && s.cfg.Sink != nil {
		s.mu.Lock()
		idx := s.segments
		s.segments++
		s.mu.Unlock()

		sctx, cancel := context.WithTimeout(ctx, sinkTimeout)
		err := s.cfg.Sink.WriteSegment(sctx, transcript.Segment{
			SessionID: s.id,
			Index:     idx,
			Text:      ch.Text,
			Language:  st.DetectedLanguage,
			At:        time.Now().UTC(),
		})
		cancel()
		if err != nil {
			slog.Warn("session: archive segment", "session_id", s.id, "index", idx, "err", err)
		}
	}

	if s.cfg.OnUpdate != nil {
		s.cfg.OnUpdate(Update{SessionID: s.id, State: st, Change: ch})
	}
}

// finish releases the microphone and socket and records the terminal state.
func (s *Session) finish(conn transcribe.Conn, cause error) {
	if err := s.cfg.Capture.Stop(); err != nil {
		slog.Warn("session: release microphone", "session_id", s.id, "err", err)
	}
	s.closing.Store(true)
	if err := conn.Close(); err != nil {
		slog.Debug("session: close socket", "session_id", s.id, "err", err)
	}

	s.mu.Lock()
	prev := s.state
	var exc *transcribe.Exception
	switch {
	case cause == nil || errors.Is(cause, errStreamEnded):
		s.state = Closed
	case errors.As(cause, &exc) && prev == Draining:
		s.state = Closed
		s.err = cause
	default:
		s.state = Failed
		s.err = cause
	}
	final := s.state
	s.mu.Unlock()
	close(s.done)

	ctx := context.Background()
	s.metrics.ActiveSessions.Add(ctx, -1)
	s.metrics.RecordSessionOutcome(ctx, final.String())
	if final == Failed {
		slog.Error("session failed", "session_id", s.id, "from", prev.String(), "err", cause)
		return
	}
	slog.Info("session closed", "session_id", s.id, "from", prev.String())
}
