// Package transcribe binds the event-stream codec and the SigV4 signer to the
// streaming speech-recognition WebSocket API.
//
// A [Client] produces a fresh presigned connection URL per session, builds the
// outbound audio messages and decodes inbound messages into transcript events
// or service exceptions. The transport itself is abstracted by [Dialer] and
// [Conn]; [WebSocketDialer] is the production implementation.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/MrWong99/signbridge/pkg/sigv4"
)

const (
	// ServiceName is the SigV4 signing name of the service.
	ServiceName = "transcribe"

	// StreamPath is the WebSocket endpoint path.
	StreamPath = "/stream-transcription-websocket"

	// LanguageAuto enables automatic language identification.
	LanguageAuto = "auto"

	defaultRegion     = "us-east-1"
	defaultLanguage   = "en-US"
	defaultSampleRate = 16000
	defaultExpiry     = 15 * time.Second
	streamPort        = 8443
)

// DefaultLanguageOptions are the candidate languages offered to automatic
// language identification when none are configured.
var DefaultLanguageOptions = []string{
	"zh-CN", "en-US", "fr-FR", "de-DE", "it-IT", "ja-JP", "ko-KR", "pt-BR", "es-US",
}

// Option is a functional option for configuring a [Client].
type Option func(*Client)

// WithRegion sets the service region, e.g. "eu-central-1".
func WithRegion(region string) Option {
	return func(c *Client) {
		c.region = region
	}
}

// WithLanguage sets the recognition language code, or [LanguageAuto] to let
// the service identify the language.
func WithLanguage(lang string) Option {
	return func(c *Client) {
		c.language = lang
	}
}

// WithLanguageOptions sets the candidates for automatic identification.
func WithLanguageOptions(langs ...string) Option {
	return func(c *Client) {
		c.languageOptions = append([]string(nil), langs...)
	}
}

// WithSampleRate declares the PCM sample rate of the audio that will be sent.
func WithSampleRate(rate int) Option {
	return func(c *Client) {
		c.sampleRate = rate
	}
}

// WithExpiry sets how long a presigned URL stays valid.
func WithExpiry(d time.Duration) Option {
	return func(c *Client) {
		c.expiry = d
	}
}

// WithEndpoint overrides the service endpoint, e.g. "wss://localhost:8443".
// An invalid URL is reported by [New].
func WithEndpoint(raw string) Option {
	return func(c *Client) {
		c.endpoint = raw
	}
}

// WithClock replaces time.Now for signing.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// Client holds the connection settings for streaming recognition. It is safe
// for concurrent use.
type Client struct {
	creds aws.CredentialsProvider

	region          string
	language        string
	languageOptions []string
	sampleRate      int
	expiry          time.Duration
	endpoint        string
	scheme          string
	host            string
	now             func() time.Time
}

// New creates a Client. Credentials are retrieved from creds on every
// [Client.PresignURL] call, so refreshed temporary credentials take effect on
// the next session.
func New(creds aws.CredentialsProvider, opts ...Option) (*Client, error) {
	if creds == nil {
		return nil, errors.New("transcribe: credentials provider must not be nil")
	}
	c := &Client{
		creds:           creds,
		region:          defaultRegion,
		language:        defaultLanguage,
		languageOptions: DefaultLanguageOptions,
		sampleRate:      defaultSampleRate,
		expiry:          defaultExpiry,
		now:             time.Now,
	}
	for _, o := range opts {
		o(c)
	}

	if c.sampleRate <= 0 {
		return nil, fmt.Errorf("transcribe: invalid sample rate %d", c.sampleRate)
	}
	if c.language == LanguageAuto && len(c.languageOptions) < 2 {
		return nil, errors.New("transcribe: automatic language identification needs at least two language options")
	}

	c.scheme = "wss"
	c.host = fmt.Sprintf("transcribestreaming.%s.amazonaws.com:%d", c.region, streamPort)
	if c.endpoint != "" {
		u, err := url.Parse(c.endpoint)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("transcribe: invalid endpoint %q", c.endpoint)
		}
		c.scheme, c.host = u.Scheme, u.Host
	}
	return c, nil
}

// SampleRate returns the declared audio sample rate.
func (c *Client) SampleRate() int { return c.sampleRate }

// Language returns the configured language code or [LanguageAuto].
func (c *Client) Language() string { return c.language }

// PresignURL retrieves current credentials and returns a freshly signed
// connection URL. Signed URLs expire quickly and must not be reused across
// connection attempts.
func (c *Client) PresignURL(ctx context.Context) (string, error) {
	creds, err := c.creds.Retrieve(ctx)
	if err != nil {
		return "", fmt.Errorf("transcribe: retrieve credentials: %w", err)
	}

	u, err := sigv4.Presign(sigv4.Request{
		Method:      "GET",
		Scheme:      c.scheme,
		Host:        c.host,
		Path:        StreamPath,
		Service:     ServiceName,
		Region:      c.region,
		Credentials: creds,
		Expires:     c.expiry,
		Query:       c.query(),
	}, c.now())
	if err != nil {
		return "", fmt.Errorf("transcribe: presign: %w", err)
	}
	return u.String(), nil
}

func (c *Client) query() url.Values {
	q := url.Values{}
	q.Set("media-encoding", "pcm")
	q.Set("sample-rate", strconv.Itoa(c.sampleRate))
	if c.language == LanguageAuto {
		q.Set("identify-language", "true")
		q.Set("language-options", strings.Join(c.languageOptions, ","))
	} else {
		q.Set("language-code", c.language)
	}
	return q
}
