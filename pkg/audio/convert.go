package audio

import "math"

// Resampler converts a mono float32 sample stream from one rate to another
// using linear interpolation.
//
// The read position is tracked as an exact rational number (numerator over
// the output rate), and the last input sample of each chunk is carried into
// the next call. Feeding a stream in arbitrary chunks therefore yields
// exactly the same output as feeding it in one piece: no samples are dropped
// or repeated at chunk boundaries.
//
// A Resampler holds per-stream state; create one per stream.
type Resampler struct {
	inRate  int64
	outRate int64

	// pos is the position of the next output sample relative to the start of
	// the next input chunk, in units of 1/outRate input samples. It is >= -outRate
	// between calls, where -outRate addresses prev.
	pos  int64
	prev float32
}

// NewResampler returns a Resampler from inRate to outRate Hz. Both rates must
// be positive; when they are equal the resampler copies its input.
func NewResampler(inRate, outRate int) *Resampler {
	return &Resampler{inRate: int64(inRate), outRate: int64(outRate)}
}

// Process resamples the next chunk of the stream and returns the output
// samples it completes. The result may be empty for very short chunks when
// downsampling; the pending position is kept for the next call.
func (r *Resampler) Process(in []float32) []float32 {
	if len(in) == 0 {
		return nil
	}
	if r.inRate <= 0 || r.outRate <= 0 || r.inRate == r.outRate {
		out := make([]float32, len(in))
		copy(out, in)
		return out
	}

	n := int64(len(in))
	sample := func(i int64) float32 {
		if i < 0 {
			return r.prev
		}
		return in[i]
	}

	// Upper bound on the output length, to size the slice once.
	est := (n*r.outRate)/r.inRate + 2
	out := make([]float32, 0, est)

	last := (n - 1) * r.outRate
	for r.pos <= last {
		idx := floorDiv(r.pos, r.outRate)
		rem := r.pos - idx*r.outRate
		s0 := sample(idx)
		if rem == 0 {
			out = append(out, s0)
		} else {
			s1 := sample(idx + 1)
			frac := float32(rem) / float32(r.outRate)
			out = append(out, s0+(s1-s0)*frac)
		}
		r.pos += r.inRate
	}

	r.pos -= n * r.outRate
	r.prev = in[n-1]
	return out
}

// Reset clears the carried position so the resampler can start a new stream.
func (r *Resampler) Reset() {
	r.pos = 0
	r.prev = 0
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// EncodePCM16 converts float32 samples in [-1, 1] to signed 16-bit
// little-endian PCM. Out-of-range samples are clamped.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		var v int16
		if s < 0 {
			v = int16(math.Round(float64(s) * 0x8000))
		} else {
			v = int16(math.Round(float64(s) * 0x7FFF))
		}
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// Downmix averages interleaved multi-channel samples into mono. Mono input is
// returned unchanged; trailing partial frames are dropped.
func Downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for c := range channels {
			sum += samples[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}
