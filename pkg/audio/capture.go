package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCaptureUnavailable is returned when the microphone cannot be acquired or
// reports no usable audio format. No frames are produced in that case.
var ErrCaptureUnavailable = errors.New("audio: capture unavailable")

// ErrCaptureStopped is returned by [Capture.Open] once the capture was stopped.
// A Capture is single-use.
var ErrCaptureStopped = errors.New("audio: capture already stopped")

// frameBuffer is the number of encoded frames that may queue between the
// device reader and the consumer before the reader blocks.
const frameBuffer = 64

// Microphone is a physical input device. Open acquires it; closing the returned
// stream releases it.
type Microphone interface {
	// Open acquires the device. Implementations return an error wrapping
	// [ErrCaptureUnavailable] when access is denied or no device exists.
	Open(ctx context.Context) (InputStream, error)
}

// InputStream is an acquired microphone delivering raw float32 samples at the
// device's native format.
type InputStream interface {
	// Format reports the native sample rate and channel count. A zero value
	// means the device has no usable format.
	Format() Format

	// Read blocks until the next chunk of interleaved samples in [-1, 1] is
	// available. After Close, Read must return an error promptly.
	Read() ([]float32, error)

	// Close releases the device.
	Close() error
}

// Capture turns an [InputStream] into a lazy, non-restartable sequence of
// [AudioFrame] values at a fixed target rate, encoded as 16-bit PCM.
//
// The device is acquired by Open and released exactly once: by Stop, or by the
// reader goroutine when the device fails.
type Capture struct {
	mic        Microphone
	targetRate int

	mu      sync.Mutex
	stream  InputStream
	format  Format
	frames  chan AudioFrame
	stopped bool

	done        chan struct{}
	stopOnce    sync.Once
	releaseOnce sync.Once
	releaseErr  error
}

// NewCapture returns a Capture reading from mic and producing mono frames at
// targetRate Hz.
func NewCapture(mic Microphone, targetRate int) *Capture {
	return &Capture{
		mic:        mic,
		targetRate: targetRate,
		done:       make(chan struct{}),
	}
}

// Open acquires the microphone and validates its format. On failure nothing
// stays acquired and the returned error wraps [ErrCaptureUnavailable].
func (c *Capture) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return ErrCaptureStopped
	}
	if c.stream != nil {
		return errors.New("audio: capture already open")
	}
	if c.targetRate <= 0 {
		return fmt.Errorf("%w: invalid target rate %d", ErrCaptureUnavailable, c.targetRate)
	}

	stream, err := c.mic.Open(ctx)
	if err != nil {
		if errors.Is(err, ErrCaptureUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrCaptureUnavailable, err)
	}

	f := stream.Format()
	if !f.Usable() {
		_ = stream.Close()
		return fmt.Errorf("%w: no usable audio format (%s)", ErrCaptureUnavailable, f)
	}

	c.stream = stream
	c.format = f
	slog.Debug("microphone acquired", "format", f.String(), "target_rate", c.targetRate)
	return nil
}

// Format returns the native device format. Zero before Open.
func (c *Capture) Format() Format {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.format
}

// Frames starts frame production on first call and returns the frame channel.
// Later calls return the same channel. The channel is closed when the capture
// stops or the device fails. Calling Frames before a successful Open, or after
// Stop, returns an already-closed channel.
func (c *Capture) Frames() <-chan AudioFrame {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.frames != nil {
		return c.frames
	}
	c.frames = make(chan AudioFrame, frameBuffer)
	if c.stream == nil || c.stopped {
		close(c.frames)
		return c.frames
	}
	go c.run(c.stream, c.format, c.frames)
	return c.frames
}

// Stop releases the microphone synchronously and ends frame production. It is
// idempotent; every call returns the result of the single release.
func (c *Capture) Stop() error {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.stopped = true
		c.mu.Unlock()
		close(c.done)
		c.release()
	})
	return c.releaseErr
}

func (c *Capture) release() {
	c.releaseOnce.Do(func() {
		c.mu.Lock()
		stream := c.stream
		c.mu.Unlock()
		if stream == nil {
			return
		}
		c.releaseErr = stream.Close()
		slog.Debug("microphone released")
	})
}

func (c *Capture) run(stream InputStream, format Format, out chan<- AudioFrame) {
	defer close(out)

	res := NewResampler(format.SampleRate, c.targetRate)
	var produced int64

	for {
		chunk, err := stream.Read()
		if err != nil {
			select {
			case <-c.done:
			default:
				slog.Warn("audio capture: device read failed", "err", err)
				c.release()
			}
			return
		}

		pcm := res.Process(Downmix(chunk, format.Channels))
		if len(pcm) == 0 {
			continue
		}
		frame := AudioFrame{
			Data:       EncodePCM16(pcm),
			SampleRate: c.targetRate,
			Channels:   1,
			Timestamp:  time.Duration(produced) * time.Second / time.Duration(c.targetRate),
		}
		produced += int64(len(pcm))

		select {
		case out <- frame:
		case <-c.done:
			return
		}
	}
}
