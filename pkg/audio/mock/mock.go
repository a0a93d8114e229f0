// Package mock provides an in-memory [audio.Microphone] for unit tests.
//
// The mock is safe for concurrent use. It records every Open and Close so
// tests can assert that the device was acquired and released exactly once.
//
// Typical usage:
//
//	mic := &mock.Microphone{
//	    Format: audio.Format{SampleRate: 44100, Channels: 1},
//	    Chunks: [][]float32{chunkA, chunkB},
//	}
//	c := audio.NewCapture(mic, 16000)
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/MrWong99/signbridge/pkg/audio"
)

// ErrClosed is returned by [Stream.Read] once the stream was closed.
var ErrClosed = errors.New("mock: stream closed")

// Microphone is a mock implementation of [audio.Microphone].
// Set the exported fields before use; inspect the call counters after.
type Microphone struct {
	mu sync.Mutex

	// Format is reported by every opened stream.
	Format audio.Format

	// Chunks are delivered in order by Read. Once exhausted, Read blocks until
	// the stream is closed, unless EndAfterChunks is set.
	Chunks [][]float32

	// EndAfterChunks makes Read return ReadError (or [ErrClosed]) after the
	// last chunk instead of blocking, simulating a device that goes away.
	EndAfterChunks bool

	// ReadError is returned by Read after the chunks when EndAfterChunks is set.
	ReadError error

	// OpenError is returned by Open when non-nil.
	OpenError error

	// CloseError is returned by Stream.Close.
	CloseError error

	openCalls  int
	closeCalls int
}

// Open implements [audio.Microphone].
func (m *Microphone) Open(_ context.Context) (audio.InputStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openCalls++
	if m.OpenError != nil {
		return nil, m.OpenError
	}
	chunks := make([][]float32, len(m.Chunks))
	copy(chunks, m.Chunks)
	return &Stream{mic: m, chunks: chunks, closed: make(chan struct{})}, nil
}

// OpenCalls returns how many times Open was called.
func (m *Microphone) OpenCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openCalls
}

// CloseCalls returns how many times a stream opened from m was closed.
func (m *Microphone) CloseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCalls
}

// Stream is the [audio.InputStream] returned by [Microphone.Open].
type Stream struct {
	mic *Microphone

	mu       sync.Mutex
	chunks   [][]float32
	closed   chan struct{}
	isClosed bool
}

// Format implements [audio.InputStream].
func (s *Stream) Format() audio.Format {
	s.mic.mu.Lock()
	defer s.mic.mu.Unlock()
	return s.mic.Format
}

// Read implements [audio.InputStream].
func (s *Stream) Read() ([]float32, error) {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if len(s.chunks) > 0 {
		next := s.chunks[0]
		s.chunks = s.chunks[1:]
		s.mu.Unlock()
		return next, nil
	}
	s.mu.Unlock()

	s.mic.mu.Lock()
	end, readErr := s.mic.EndAfterChunks, s.mic.ReadError
	s.mic.mu.Unlock()
	if end {
		if readErr != nil {
			return nil, readErr
		}
		return nil, ErrClosed
	}

	<-s.closed
	return nil, ErrClosed
}

// Close implements [audio.InputStream]. Every call is counted so that double
// releases are visible to tests.
func (s *Stream) Close() error {
	s.mu.Lock()
	if !s.isClosed {
		s.isClosed = true
		close(s.closed)
	}
	s.mu.Unlock()

	s.mic.mu.Lock()
	defer s.mic.mu.Unlock()
	s.mic.closeCalls++
	return s.mic.CloseError
}
