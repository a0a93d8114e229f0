// Package eventstream encodes and decodes the length-prefixed, CRC-protected
// binary message framing used by streaming speech services.
//
// A message on the wire is laid out as:
//
//	total length    uint32 big-endian, includes every byte below
//	headers length  uint32 big-endian
//	prelude CRC     CRC-32 (IEEE) of the 8 bytes above
//	headers         headers length bytes
//	payload         total - headers - 16 bytes
//	message CRC     CRC-32 (IEEE) of everything before it
//
// Every header is a one-byte name length, the name, a one-byte type tag and
// the type-specific value. Multi-byte integers are big-endian.
package eventstream

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"time"

	"github.com/google/uuid"
)

const (
	preludeLen = 12
	crcLen     = 4

	// MinMessageLen is the size of a message with no headers and no payload.
	MinMessageLen = preludeLen + crcLen

	// MaxMessageLen is the largest accepted total message length.
	MaxMessageLen = 16 << 20

	// MaxHeadersLen is the largest accepted headers block.
	MaxHeadersLen = 128 << 10

	// MaxHeaderNameLen is the longest header name, in bytes.
	MaxHeaderNameLen = 255

	maxValueLen = 1<<16 - 1
)

// ErrCorruptFrame is wrapped by every decode failure: short input, length or
// CRC mismatch, unknown header type, or a truncated header.
var ErrCorruptFrame = errors.New("eventstream: corrupt frame")

// ErrInvalidMessage is wrapped by encode failures for messages that cannot be
// represented on the wire.
var ErrInvalidMessage = errors.New("eventstream: invalid message")

// DecodeError describes why a frame was rejected.
type DecodeError struct {
	// Offset is the byte position in the frame where decoding failed.
	Offset int
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("eventstream: corrupt frame at offset %d: %s", e.Offset, e.Reason)
}

// Unwrap lets callers match with errors.Is(err, ErrCorruptFrame).
func (e *DecodeError) Unwrap() error { return ErrCorruptFrame }

func corrupt(off int, format string, args ...any) error {
	return &DecodeError{Offset: off, Reason: fmt.Sprintf(format, args...)}
}

// Message is one decoded frame.
type Message struct {
	Headers Headers
	Payload []byte
}

// Marshal encodes m into a single frame.
func Marshal(m Message) ([]byte, error) {
	var hdr bytes.Buffer
	for _, h := range m.Headers {
		if err := encodeHeader(&hdr, h); err != nil {
			return nil, err
		}
	}
	if hdr.Len() > MaxHeadersLen {
		return nil, fmt.Errorf("%w: headers block of %d bytes exceeds %d", ErrInvalidMessage, hdr.Len(), MaxHeadersLen)
	}

	total := preludeLen + hdr.Len() + len(m.Payload) + crcLen
	if total > MaxMessageLen {
		return nil, fmt.Errorf("%w: message of %d bytes exceeds %d", ErrInvalidMessage, total, MaxMessageLen)
	}

	out := make([]byte, total)
	binary.BigEndian.PutUint32(out[0:4], uint32(total))
	binary.BigEndian.PutUint32(out[4:8], uint32(hdr.Len()))
	binary.BigEndian.PutUint32(out[8:12], crc32.ChecksumIEEE(out[0:8]))
	n := preludeLen
	n += copy(out[n:], hdr.Bytes())
	n += copy(out[n:], m.Payload)
	binary.BigEndian.PutUint32(out[n:], crc32.ChecksumIEEE(out[:n]))
	return out, nil
}

func encodeHeader(w *bytes.Buffer, h Header) error {
	if len(h.Name) == 0 || len(h.Name) > MaxHeaderNameLen {
		return fmt.Errorf("%w: header name %q must be 1-%d bytes", ErrInvalidMessage, h.Name, MaxHeaderNameLen)
	}
	if h.Value == nil {
		return fmt.Errorf("%w: header %q has no value", ErrInvalidMessage, h.Name)
	}
	w.WriteByte(byte(len(h.Name)))
	w.WriteString(h.Name)
	w.WriteByte(h.Value.typ())

	var scratch [8]byte
	switch v := h.Value.(type) {
	case BoolValue:
	case ByteValue:
		w.WriteByte(byte(v))
	case ShortValue:
		binary.BigEndian.PutUint16(scratch[:2], uint16(v))
		w.Write(scratch[:2])
	case IntValue:
		binary.BigEndian.PutUint32(scratch[:4], uint32(v))
		w.Write(scratch[:4])
	case LongValue:
		binary.BigEndian.PutUint64(scratch[:8], uint64(v))
		w.Write(scratch[:8])
	case BytesValue:
		if len(v) > maxValueLen {
			return fmt.Errorf("%w: header %q value of %d bytes is too long", ErrInvalidMessage, h.Name, len(v))
		}
		binary.BigEndian.PutUint16(scratch[:2], uint16(len(v)))
		w.Write(scratch[:2])
		w.Write(v)
	case StringValue:
		if len(v) > maxValueLen {
			return fmt.Errorf("%w: header %q value of %d bytes is too long", ErrInvalidMessage, h.Name, len(v))
		}
		binary.BigEndian.PutUint16(scratch[:2], uint16(len(v)))
		w.Write(scratch[:2])
		w.WriteString(string(v))
	case TimestampValue:
		binary.BigEndian.PutUint64(scratch[:8], uint64(time.Time(v).UnixMilli()))
		w.Write(scratch[:8])
	case UUIDValue:
		w.Write(v[:])
	default:
		return fmt.Errorf("%w: header %q has unsupported value type %T", ErrInvalidMessage, h.Name, h.Value)
	}
	return nil
}

// Unmarshal decodes exactly one frame. b must hold the whole frame and
// nothing else. Unmarshal never panics; every failure wraps [ErrCorruptFrame].
func Unmarshal(b []byte) (Message, error) {
	if len(b) < MinMessageLen {
		return Message{}, corrupt(0, "frame of %d bytes is shorter than %d", len(b), MinMessageLen)
	}
	total := binary.BigEndian.Uint32(b[0:4])
	hdrLen := binary.BigEndian.Uint32(b[4:8])

	if uint64(total) != uint64(len(b)) {
		return Message{}, corrupt(0, "total length %d does not match frame size %d", total, len(b))
	}
	if total > MaxMessageLen {
		return Message{}, corrupt(0, "total length %d exceeds %d", total, MaxMessageLen)
	}
	if want, got := binary.BigEndian.Uint32(b[8:12]), crc32.ChecksumIEEE(b[0:8]); want != got {
		return Message{}, corrupt(8, "prelude crc %08x, computed %08x", want, got)
	}
	if hdrLen > MaxHeadersLen || uint64(hdrLen) > uint64(total)-MinMessageLen {
		return Message{}, corrupt(4, "headers length %d does not fit in frame of %d", hdrLen, total)
	}
	end := int(total) - crcLen
	if want, got := binary.BigEndian.Uint32(b[end:]), crc32.ChecksumIEEE(b[:end]); want != got {
		return Message{}, corrupt(end, "message crc %08x, computed %08x", want, got)
	}

	hdrEnd := preludeLen + int(hdrLen)
	headers, err := decodeHeaders(b[preludeLen:hdrEnd], preludeLen)
	if err != nil {
		return Message{}, err
	}

	payload := make([]byte, end-hdrEnd)
	copy(payload, b[hdrEnd:end])
	return Message{Headers: headers, Payload: payload}, nil
}

func decodeHeaders(b []byte, base int) (Headers, error) {
	var out Headers
	off := 0
	need := func(n int) error {
		if len(b)-off < n {
			return corrupt(base+off, "truncated header: need %d bytes, have %d", n, len(b)-off)
		}
		return nil
	}

	for off < len(b) {
		if err := need(1); err != nil {
			return nil, err
		}
		nameLen := int(b[off])
		off++
		if nameLen == 0 {
			return nil, corrupt(base+off-1, "empty header name")
		}
		if err := need(nameLen + 1); err != nil {
			return nil, err
		}
		name := string(b[off : off+nameLen])
		off += nameLen
		tag := b[off]
		off++

		var v HeaderValue
		switch tag {
		case typeBoolTrue:
			v = BoolValue(true)
		case typeBoolFalse:
			v = BoolValue(false)
		case typeByte:
			if err := need(1); err != nil {
				return nil, err
			}
			v = ByteValue(int8(b[off]))
			off++
		case typeShort:
			if err := need(2); err != nil {
				return nil, err
			}
			v = ShortValue(int16(binary.BigEndian.Uint16(b[off:])))
			off += 2
		case typeInt:
			if err := need(4); err != nil {
				return nil, err
			}
			v = IntValue(int32(binary.BigEndian.Uint32(b[off:])))
			off += 4
		case typeLong:
			if err := need(8); err != nil {
				return nil, err
			}
			v = LongValue(int64(binary.BigEndian.Uint64(b[off:])))
			off += 8
		case typeBytes, typeString:
			if err := need(2); err != nil {
				return nil, err
			}
			n := int(binary.BigEndian.Uint16(b[off:]))
			off += 2
			if err := need(n); err != nil {
				return nil, err
			}
			raw := b[off : off+n]
			off += n
			if tag == typeString {
				v = StringValue(raw)
			} else {
				v = BytesValue(bytes.Clone(raw))
			}
		case typeTimestamp:
			if err := need(8); err != nil {
				return nil, err
			}
			v = TimestampValue(time.UnixMilli(int64(binary.BigEndian.Uint64(b[off:]))))
			off += 8
		case typeUUID:
			if err := need(16); err != nil {
				return nil, err
			}
			var u uuid.UUID
			copy(u[:], b[off:off+16])
			v = UUIDValue(u)
			off += 16
		default:
			return nil, corrupt(base+off-1, "unknown header type %d for %q", tag, name)
		}
		out = append(out, Header{Name: name, Value: v})
	}
	return out, nil
}

// ReadMessage reads one frame from r. It is meant for byte streams; framed
// transports such as WebSocket deliver whole frames and use [Unmarshal].
func ReadMessage(r io.Reader) (Message, error) {
	var prelude [preludeLen]byte
	if _, err := io.ReadFull(r, prelude[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Message{}, corrupt(0, "truncated prelude")
		}
		return Message{}, err
	}
	total := binary.BigEndian.Uint32(prelude[0:4])
	if want, got := binary.BigEndian.Uint32(prelude[8:12]), crc32.ChecksumIEEE(prelude[0:8]); want != got {
		return Message{}, corrupt(8, "prelude crc %08x, computed %08x", want, got)
	}
	if total < MinMessageLen || total > MaxMessageLen {
		return Message{}, corrupt(0, "total length %d out of range", total)
	}
	frame := make([]byte, total)
	copy(frame, prelude[:])
	if _, err := io.ReadFull(r, frame[preludeLen:]); err != nil {
		return Message{}, corrupt(preludeLen, "truncated frame: %v", err)
	}
	return Unmarshal(frame)
}

// WriteMessage encodes m and writes it to w.
func WriteMessage(w io.Writer, m Message) error {
	b, err := Marshal(m)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}
