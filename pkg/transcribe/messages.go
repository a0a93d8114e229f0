package transcribe

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MrWong99/signbridge/pkg/eventstream"
	"github.com/MrWong99/signbridge/pkg/transcript"
)

// Header names and values of the streaming protocol.
const (
	HeaderMessageType   = ":message-type"
	HeaderEventType     = ":event-type"
	HeaderExceptionType = ":exception-type"
	HeaderErrorCode     = ":error-code"
	HeaderErrorMessage  = ":error-message"

	MessageTypeEvent     = "event"
	MessageTypeException = "exception"
	MessageTypeError     = "error"

	EventTypeAudio      = "AudioEvent"
	EventTypeTranscript = "TranscriptEvent"
)

// ErrUnexpectedMessage is returned by [Decode] for a well-formed frame that is
// not part of the protocol, or an event with an unreadable payload.
var ErrUnexpectedMessage = errors.New("transcribe: unexpected message")

// Exception is a terminal error reported by the service.
type Exception struct {
	// Type is the exception name, e.g. "BadRequestException".
	Type    string
	Message string
}

func (e *Exception) Error() string {
	if e.Message == "" {
		return "transcribe: " + e.Type
	}
	return fmt.Sprintf("transcribe: %s: %s", e.Type, e.Message)
}

// AudioEvent wraps a chunk of PCM audio in an outbound message.
func AudioEvent(pcm []byte) eventstream.Message {
	var h eventstream.Headers
	h.Set(HeaderMessageType, eventstream.StringValue(MessageTypeEvent))
	h.Set(HeaderEventType, eventstream.StringValue(EventTypeAudio))
	return eventstream.Message{Headers: h, Payload: pcm}
}

// EndOfStream returns the audio event with an empty body that tells the
// service no more audio follows.
func EndOfStream() eventstream.Message {
	return AudioEvent(nil)
}

// Inbound is a decoded service message. Exactly one of Transcript and
// Exception is set, unless the event type is not one the client consumes.
type Inbound struct {
	MessageType string
	EventType   string
	Transcript  *transcript.Event
	Exception   *Exception
}

// Terminal reports whether the message ends the stream.
func (in Inbound) Terminal() bool { return in.Exception != nil }

type transcriptEvent struct {
	Transcript transcript.Event `json:"Transcript"`
}

type exceptionBody struct {
	Message string `json:"Message"`
}

// Decode classifies msg and decodes its payload.
func Decode(msg eventstream.Message) (Inbound, error) {
	mt := msg.Headers.GetString(HeaderMessageType)
	in := Inbound{MessageType: mt}

	switch mt {
	case MessageTypeEvent:
		in.EventType = msg.Headers.GetString(HeaderEventType)
		if in.EventType != EventTypeTranscript {
			return in, nil
		}
		var ev transcriptEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return in, fmt.Errorf("%w: decode %s: %w", ErrUnexpectedMessage, in.EventType, err)
		}
		in.Transcript = &ev.Transcript
		return in, nil

	case MessageTypeException:
		var body exceptionBody
		if len(msg.Payload) > 0 {
			if err := json.Unmarshal(msg.Payload, &body); err != nil {
				body.Message = string(msg.Payload)
			}
		}
		in.Exception = &Exception{
			Type:    msg.Headers.GetString(HeaderExceptionType),
			Message: body.Message,
		}
		return in, nil

	case MessageTypeError:
		in.Exception = &Exception{
			Type:    msg.Headers.GetString(HeaderErrorCode),
			Message: msg.Headers.GetString(HeaderErrorMessage),
		}
		return in, nil

	default:
		return in, fmt.Errorf("%w: message type %q", ErrUnexpectedMessage, mt)
	}
}
