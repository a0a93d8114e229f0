package eventstream

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Header value type tags as they appear on the wire.
const (
	typeBoolTrue  byte = 0
	typeBoolFalse byte = 1
	typeByte      byte = 2
	typeShort     byte = 3
	typeInt       byte = 4
	typeLong      byte = 5
	typeBytes     byte = 6
	typeString    byte = 7
	typeTimestamp byte = 8
	typeUUID      byte = 9
)

// HeaderValue is a typed header value. The set of implementations is closed;
// they are the ten wire types of the format.
type HeaderValue interface {
	// typ returns the wire tag for the value.
	typ() byte
	String() string
}

// BoolValue is encoded as type tag 0 (true) or 1 (false) with no value bytes.
type BoolValue bool

// ByteValue is a signed 8-bit integer.
type ByteValue int8

// ShortValue is a signed 16-bit integer.
type ShortValue int16

// IntValue is a signed 32-bit integer.
type IntValue int32

// LongValue is a signed 64-bit integer.
type LongValue int64

// BytesValue is an opaque byte string of at most 65535 bytes.
type BytesValue []byte

// StringValue is a UTF-8 string of at most 65535 bytes.
type StringValue string

// TimestampValue is encoded as milliseconds since the Unix epoch. Anything
// finer than a millisecond is truncated, so such a value does not survive a
// round trip unchanged.
type TimestampValue time.Time

// UUIDValue is a 16-byte UUID.
type UUIDValue uuid.UUID

func (v BoolValue) typ() byte {
	if v {
		return typeBoolTrue
	}
	return typeBoolFalse
}
func (ByteValue) typ() byte      { return typeByte }
func (ShortValue) typ() byte     { return typeShort }
func (IntValue) typ() byte       { return typeInt }
func (LongValue) typ() byte      { return typeLong }
func (BytesValue) typ() byte     { return typeBytes }
func (StringValue) typ() byte    { return typeString }
func (TimestampValue) typ() byte { return typeTimestamp }
func (UUIDValue) typ() byte      { return typeUUID }

func (v BoolValue) String() string  { return fmt.Sprint(bool(v)) }
func (v ByteValue) String() string  { return fmt.Sprint(int8(v)) }
func (v ShortValue) String() string { return fmt.Sprint(int16(v)) }
func (v IntValue) String() string   { return fmt.Sprint(int32(v)) }
func (v LongValue) String() string  { return fmt.Sprint(int64(v)) }
func (v BytesValue) String() string { return fmt.Sprintf("%x", []byte(v)) }
func (v StringValue) String() string {
	return string(v)
}
func (v TimestampValue) String() string {
	return time.Time(v).UTC().Format(time.RFC3339Nano)
}
func (v UUIDValue) String() string { return uuid.UUID(v).String() }

// Header is one named, typed header.
type Header struct {
	Name  string
	Value HeaderValue
}

// Headers is an ordered header list. Encoding preserves the order.
type Headers []Header

// Get returns the value of the first header named name, or nil.
func (h Headers) Get(name string) HeaderValue {
	for _, hdr := range h {
		if hdr.Name == name {
			return hdr.Value
		}
	}
	return nil
}

// Set replaces the first header named name or appends a new one.
func (h *Headers) Set(name string, v HeaderValue) {
	for i := range *h {
		if (*h)[i].Name == name {
			(*h)[i].Value = v
			return
		}
	}
	*h = append(*h, Header{Name: name, Value: v})
}

// Del removes every header named name.
func (h *Headers) Del(name string) {
	out := (*h)[:0]
	for _, hdr := range *h {
		if hdr.Name != name {
			out = append(out, hdr)
		}
	}
	*h = out
}

// GetString returns the value of a string header, or "" when the header is
// absent or of another type.
func (h Headers) GetString(name string) string {
	if v, ok := h.Get(name).(StringValue); ok {
		return string(v)
	}
	return ""
}
