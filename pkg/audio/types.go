package audio

import (
	"fmt"
	"time"
)

// AudioFrame is one chunk of captured audio ready for the wire.
// Frames are produced in capture order by [Capture] and are never empty: an
// empty frame on the wire means end-of-audio, so producers must drop chunks
// that resample to zero samples.
type AudioFrame struct {
	// Data is signed 16-bit little-endian PCM.
	Data []byte

	// SampleRate in Hz of Data (the capture target rate, e.g. 16000).
	SampleRate int

	// Channels is always 1 for frames produced by [Capture].
	Channels int

	// Timestamp marks where this frame starts, relative to capture start.
	Timestamp time.Duration
}

// Samples returns the number of PCM samples per channel held in the frame.
func (f AudioFrame) Samples() int {
	if f.Channels <= 0 {
		return len(f.Data) / 2
	}
	return len(f.Data) / (2 * f.Channels)
}

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Usable reports whether f describes a stream that can be captured.
func (f Format) Usable() bool {
	return f.SampleRate > 0 && f.Channels > 0
}

// String returns a human-readable form, e.g. "48000Hz stereo".
func (f Format) String() string {
	ch := "mono"
	if f.Channels == 2 {
		ch = "stereo"
	} else if f.Channels > 2 || f.Channels <= 0 {
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}
