// Package portaudio implements [audio.Microphone] on top of the PortAudio
// default input device.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"

	"github.com/MrWong99/signbridge/pkg/audio"
)

// DefaultBufferDuration is the amount of audio delivered per Read, in
// milliseconds.
const DefaultBufferDuration = 100

// errClosed is returned by Read after Close.
var errClosed = errors.New("portaudio: stream closed")

// Microphone opens the system default input device.
type Microphone struct {
	bufferMillis int
}

// Option configures a [Microphone].
type Option func(*Microphone)

// WithBufferDuration sets how many milliseconds of audio one Read returns.
func WithBufferDuration(ms int) Option {
	return func(m *Microphone) {
		if ms > 0 {
			m.bufferMillis = ms
		}
	}
}

// New returns a Microphone for the default input device.
func New(opts ...Option) *Microphone {
	m := &Microphone{bufferMillis: DefaultBufferDuration}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Open implements [audio.Microphone]. The device is captured mono at its
// default sample rate.
func (m *Microphone) Open(_ context.Context) (audio.InputStream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: portaudio: initialize: %w", audio.ErrCaptureUnavailable, err)
	}

	dev, err := portaudio.DefaultInputDevice()
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("%w: portaudio: default input device: %w", audio.ErrCaptureUnavailable, err)
	}
	if dev == nil || dev.MaxInputChannels < 1 || dev.DefaultSampleRate <= 0 {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("%w: portaudio: no usable input device", audio.ErrCaptureUnavailable)
	}

	rate := int(dev.DefaultSampleRate)
	buf := make([]float32, rate*m.bufferMillis/1000)
	stream, err := portaudio.OpenDefaultStream(1, 0, dev.DefaultSampleRate, len(buf), buf)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("%w: portaudio: open stream: %w", audio.ErrCaptureUnavailable, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("%w: portaudio: start stream: %w", audio.ErrCaptureUnavailable, err)
	}

	return &inputStream{
		stream: stream,
		buf:    buf,
		format: audio.Format{SampleRate: rate, Channels: 1},
	}, nil
}

type inputStream struct {
	// mu serialises Read against Close; Close waits for at most one buffer.
	mu     sync.Mutex
	closed atomic.Bool

	stream *portaudio.Stream
	buf    []float32
	format audio.Format
}

func (s *inputStream) Format() audio.Format { return s.format }

func (s *inputStream) Read() ([]float32, error) {
	if s.closed.Load() {
		return nil, errClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return nil, errClosed
	}
	if err := s.stream.Read(); err != nil {
		return nil, fmt.Errorf("portaudio: read: %w", err)
	}
	out := make([]float32, len(s.buf))
	copy(out, s.buf)
	return out, nil
}

func (s *inputStream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(s.stream.Stop(), s.stream.Close(), portaudio.Terminate())
}
