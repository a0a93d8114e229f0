// Package speech produces presigned, time-limited URLs that play synthesized
// speech for a piece of text.
//
// The URL is a SigV4 query-signed GET against the speech-synthesis service,
// so any HTTP audio player can fetch it without further credentials. The
// voice is chosen from the text language; voices that support it use the
// neural engine.
package speech

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/MrWong99/signbridge/pkg/sigv4"
)

const (
	// ServiceName is the SigV4 signing name of the service.
	ServiceName = "polly"

	// SpeechPath is the synthesis endpoint path.
	SpeechPath = "/v1/speech"

	// MaxTextLen is the longest text, in characters, accepted per request.
	MaxTextLen = 3000

	defaultFormat     = "mp3"
	defaultSampleRate = 16000
	defaultExpiry     = 5 * time.Minute
)

var (
	// ErrNoVoice is returned for a language without a configured voice.
	ErrNoVoice = errors.New("speech: no voice for language")

	// ErrInvalidText is returned for empty or oversized text.
	ErrInvalidText = errors.New("speech: invalid text")
)

// Engine is the synthesis quality tier.
type Engine string

const (
	EngineStandard Engine = "standard"
	EngineNeural   Engine = "neural"
)

// voices maps a language tag, or its primary subtag, to a voice.
var voices = map[string]string{
	"ar":    "Zeina",
	"arb":   "Zeina",
	"zh":    "Zhiyu",
	"zh-TW": "Zhiyu",
	"zh-CN": "Zhiyu",
	"da":    "Mads",
	"nl":    "Ruben",
	"en":    "Matthew",
	"en-US": "Joanna",
	"en-GB": "Amy",
	"en-AU": "Olivia",
	"en-IN": "Kajal",
	"hi-IN": "Kajal",
	"fr":    "Mathieu",
	"fr-FR": "Lea",
	"fr-CA": "Gabrielle",
	"de":    "Vicki",
	"de-DE": "Vicki",
	"is":    "Karl",
	"it":    "Bianca",
	"it-IT": "Bianca",
	"ja":    "Takumi",
	"ja-JP": "Takumi",
	"ko":    "Seoyeon",
	"ko-KR": "Seoyeon",
	"no":    "Liv",
	"pl":    "Jacek",
	"pt":    "Cristiano",
	"pt-BR": "Camila",
	"ro":    "Carmen",
	"ru":    "Maxim",
	"es":    "Conchita",
	"es-MX": "Mia",
	"es-US": "Lupe",
	"sv":    "Astrid",
	"tr":    "Filiz",
	"cy":    "Gwyneth",
}

var neuralVoices = map[string]bool{
	"Vicki": true, "Gabrielle": true, "Lupe": true, "Olivia": true, "Amy": true,
	"Emma": true, "Brian": true, "Aria": true, "Ayanda": true, "Ivy": true,
	"Joanna": true, "Kendra": true, "Kimberly": true, "Salli": true, "Joey": true,
	"Justin": true, "Kevin": true, "Matthew": true, "Bianca": true, "Seoyeon": true,
	"Camila": true, "Lucia": true, "Lea": true, "Takumi": true, "Kajal": true,
	"Zhiyu": true,
}

// Voice returns the voice and engine used for language. An exact tag match
// wins over the primary subtag ("de-AT" falls back to "de").
func Voice(language string) (string, Engine, error) {
	v, ok := voices[language]
	if !ok {
		if primary, _, found := strings.Cut(language, "-"); found {
			v, ok = voices[primary]
		}
	}
	if !ok {
		return "", "", fmt.Errorf("%w %q", ErrNoVoice, language)
	}
	if neuralVoices[v] {
		return v, EngineNeural, nil
	}
	return v, EngineStandard, nil
}

// Option is a functional option for [New].
type Option func(*Synthesizer)

// WithRegion sets the service region.
func WithRegion(region string) Option {
	return func(s *Synthesizer) { s.region = region }
}

// WithOutputFormat sets the audio container, e.g. "mp3" or "ogg_vorbis".
func WithOutputFormat(f string) Option {
	return func(s *Synthesizer) { s.format = f }
}

// WithSampleRate sets the output sample rate in Hz.
func WithSampleRate(rate int) Option {
	return func(s *Synthesizer) { s.sampleRate = rate }
}

// WithExpiry sets how long a URL stays valid.
func WithExpiry(d time.Duration) Option {
	return func(s *Synthesizer) { s.expiry = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Synthesizer) { s.now = now }
}

// Synthesizer builds presigned speech URLs.
type Synthesizer struct {
	creds      aws.CredentialsProvider
	region     string
	format     string
	sampleRate int
	expiry     time.Duration
	now        func() time.Time
}

// New returns a Synthesizer signing with creds.
func New(creds aws.CredentialsProvider, opts ...Option) (*Synthesizer, error) {
	if creds == nil {
		return nil, errors.New("speech: credentials provider is required")
	}
	s := &Synthesizer{
		creds:      creds,
		region:     "us-east-1",
		format:     defaultFormat,
		sampleRate: defaultSampleRate,
		expiry:     defaultExpiry,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sampleRate <= 0 {
		return nil, fmt.Errorf("speech: sample rate %d must be positive", s.sampleRate)
	}
	return s, nil
}

// URL returns a presigned URL that streams text spoken in language.
func (s *Synthesizer) URL(ctx context.Context, text, language string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidText)
	}
	if n := utf8.RuneCountInString(text); n > MaxTextLen {
		return "", fmt.Errorf("%w: %d characters exceeds %d", ErrInvalidText, n, MaxTextLen)
	}
	voice, engine, err := Voice(language)
	if err != nil {
		return "", err
	}

	creds, err := s.creds.Retrieve(ctx)
	if err != nil {
		return "", fmt.Errorf("speech: retrieve credentials: %w", err)
	}

	q := url.Values{}
	q.Set("Engine", string(engine))
	q.Set("OutputFormat", s.format)
	q.Set("SampleRate", strconv.Itoa(s.sampleRate))
	q.Set("Text", text)
	q.Set("TextType", "text")
	q.Set("VoiceId", voice)

	u, err := sigv4.Presign(sigv4.Request{
		Method:      "GET",
		Host:        "polly." + s.region + ".amazonaws.com",
		Path:        SpeechPath,
		Service:     ServiceName,
		Region:      s.region,
		Credentials: creds,
		Expires:     s.expiry,
		Query:       q,
	}, s.now())
	if err != nil {
		return "", fmt.Errorf("speech: presign: %w", err)
	}
	return u.String(), nil
}
