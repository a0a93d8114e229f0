// Package mock provides in-memory implementations of [transcribe.Dialer] and
// [transcribe.Conn] for unit tests.
//
// Conn records every outbound message in order. Inbound messages are queued
// with Push / PushMessage and the peer close is simulated with End.
package mock

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/MrWong99/signbridge/pkg/eventstream"
	"github.com/MrWong99/signbridge/pkg/transcribe"
)

// ErrClosed is returned by Read and Write after Close.
var ErrClosed = errors.New("mock: connection closed")

// Conn is a mock implementation of [transcribe.Conn].
type Conn struct {
	// OnWrite, when set, is called after each recorded write, outside the lock.
	OnWrite func(c *Conn, b []byte)

	// WriteError is returned by Write when non-nil. The message is not recorded.
	WriteError error

	mu         sync.Mutex
	writes     [][]byte
	inbound    chan []byte
	endErr     error
	ended      bool
	closed     chan struct{}
	closeOnce  sync.Once
	closeCalls int
}

// NewConn returns a Conn with room for 64 queued inbound messages.
func NewConn() *Conn {
	return &Conn{
		inbound: make(chan []byte, 64),
		closed:  make(chan struct{}),
	}
}

// Write implements [transcribe.Conn].
func (c *Conn) Write(_ context.Context, b []byte) error {
	c.mu.Lock()
	select {
	case <-c.closed:
		c.mu.Unlock()
		return ErrClosed
	default:
	}
	if c.WriteError != nil {
		err := c.WriteError
		c.mu.Unlock()
		return err
	}
	c.writes = append(c.writes, append([]byte(nil), b...))
	hook := c.OnWrite
	c.mu.Unlock()

	if hook != nil {
		hook(c, b)
	}
	return nil
}

// Read implements [transcribe.Conn]. Queued messages are returned before the
// end-of-stream error set by End.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	select {
	case b, ok := <-c.inbound:
		if !ok {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.endErr != nil {
				return nil, c.endErr
			}
			return nil, io.EOF
		}
		return b, nil
	case <-c.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close implements [transcribe.Conn].
func (c *Conn) Close() error {
	c.mu.Lock()
	c.closeCalls++
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// Push queues a raw inbound frame.
func (c *Conn) Push(b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return
	}
	c.inbound <- b
}

// PushMessage marshals m and queues it. It panics on an invalid message.
func (c *Conn) PushMessage(m eventstream.Message) {
	b, err := eventstream.Marshal(m)
	if err != nil {
		panic(err)
	}
	c.Push(b)
}

// End simulates the peer closing the stream after the queued messages. A nil
// err is a normal close (io.EOF). Later calls are ignored.
func (c *Conn) End(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return
	}
	c.ended = true
	c.endErr = err
	close(c.inbound)
}

// Writes returns a copy of every recorded outbound message, in order.
func (c *Conn) Writes() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.writes))
	copy(out, c.writes)
	return out
}

// CloseCalls returns how many times Close was called.
func (c *Conn) CloseCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCalls
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Dialer is a mock implementation of [transcribe.Dialer].
type Dialer struct {
	// Conn is returned by Dial.
	Conn *Conn

	// Err is returned by Dial when non-nil.
	Err error

	mu   sync.Mutex
	urls []string
}

// Dial implements [transcribe.Dialer].
func (d *Dialer) Dial(_ context.Context, url string) (transcribe.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, url)
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Conn, nil
}

// URLs returns every URL passed to Dial.
func (d *Dialer) URLs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...)
}

// TranscriptMessage builds an inbound TranscriptEvent frame payload for a
// single result.
func TranscriptMessage(text string, partial bool, lang string) eventstream.Message {
	var h eventstream.Headers
	h.Set(transcribe.HeaderMessageType, eventstream.StringValue(transcribe.MessageTypeEvent))
	h.Set(transcribe.HeaderEventType, eventstream.StringValue(transcribe.EventTypeTranscript))
	h.Set(":content-type", eventstream.StringValue("application/json"))

	body := `{"Transcript":{"Results":[{"IsPartial":` + boolJSON(partial)
	if lang != "" {
		body += `,"LanguageCode":` + quote(lang)
	}
	body += `,"Alternatives":[{"Transcript":` + quote(text) + `}]}]}}`
	return eventstream.Message{Headers: h, Payload: []byte(body)}
}

// ExceptionMessage builds an inbound exception frame.
func ExceptionMessage(typ, message string) eventstream.Message {
	var h eventstream.Headers
	h.Set(transcribe.HeaderMessageType, eventstream.StringValue(transcribe.MessageTypeException))
	h.Set(transcribe.HeaderExceptionType, eventstream.StringValue(typ))
	return eventstream.Message{Headers: h, Payload: []byte(`{"Message":` + quote(message) + `}`)}
}

func boolJSON(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
