package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/coder/websocket"

	"github.com/MrWong99/signbridge/pkg/eventstream"
)

// Conn is one bidirectional binary message stream.
type Conn interface {
	// Write sends one binary message.
	Write(ctx context.Context, b []byte) error

	// Read returns the next binary message. A normal close by the peer is
	// reported as [io.EOF].
	Read(ctx context.Context) ([]byte, error)

	// Close performs a normal close of the stream.
	Close() error
}

// Dialer opens a [Conn] to a presigned URL.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebSocketDialer dials the service over WebSocket.
type WebSocketDialer struct {
	// HTTPClient is used for the handshake. Nil means http.DefaultClient.
	HTTPClient *http.Client
}

// Dial implements [Dialer].
func (d WebSocketDialer) Dial(ctx context.Context, rawURL string) (Conn, error) {
	conn, resp, err := websocket.Dial(ctx, rawURL, &websocket.DialOptions{
		HTTPClient: d.HTTPClient,
	})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("transcribe: dial: handshake status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("transcribe: dial: %w", err)
	}
	conn.SetReadLimit(eventstream.MaxMessageLen)
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Write(ctx context.Context, b []byte) error {
	if err := c.conn.Write(ctx, websocket.MessageBinary, b); err != nil {
		return fmt.Errorf("transcribe: write: %w", err)
	}
	return nil
}

func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	for {
		typ, b, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("transcribe: read: %w", err)
		}
		if typ != websocket.MessageBinary {
			slog.Debug("transcribe: ignoring text message", "len", len(b))
			continue
		}
		return b, nil
	}
}

func (c *wsConn) Close() error {
	err := c.conn.Close(websocket.StatusNormalClosure, "")
	if err != nil && !errors.Is(err, net.ErrClosed) && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
		return fmt.Errorf("transcribe: close: %w", err)
	}
	return nil
}
