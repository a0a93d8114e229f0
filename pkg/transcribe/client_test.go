package transcribe_test

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"github.com/MrWong99/signbridge/pkg/sigv4"
	"github.com/MrWong99/signbridge/pkg/transcribe"
)

var fixedNow = func() time.Time { return time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC) }

func staticCreds() aws.CredentialsProvider {
	return credentials.NewStaticCredentialsProvider("AKIDEXAMPLE", "secret", "token")
}

func presign(t *testing.T, opts ...transcribe.Option) *url.URL {
	t.Helper()
	c, err := transcribe.New(staticCreds(), append([]transcribe.Option{transcribe.WithClock(fixedNow)}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	raw, err := c.PresignURL(context.Background())
	if err != nil {
		t.Fatalf("PresignURL: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return u
}

func assertEqual(t *testing.T, field, want, got string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %q, want %q", field, got, want)
	}
}

func TestPresignURL_Defaults(t *testing.T) {
	u := presign(t)
	q := u.Query()

	assertEqual(t, "scheme", "wss", u.Scheme)
	assertEqual(t, "host", "transcribestreaming.us-east-1.amazonaws.com:8443", u.Host)
	assertEqual(t, "path", transcribe.StreamPath, u.Path)
	assertEqual(t, "media-encoding", "pcm", q.Get("media-encoding"))
	assertEqual(t, "sample-rate", "16000", q.Get("sample-rate"))
	assertEqual(t, "language-code", "en-US", q.Get("language-code"))
	assertEqual(t, "expires", "15", q.Get("X-Amz-Expires"))
	assertEqual(t, "token", "token", q.Get("X-Amz-Security-Token"))
	assertEqual(t, "credential", "AKIDEXAMPLE/20240601/us-east-1/transcribe/aws4_request", q.Get("X-Amz-Credential"))
	if q.Get("identify-language") != "" {
		t.Error("identify-language must not be set for a fixed language")
	}
	if q.Get("X-Amz-Signature") == "" {
		t.Error("missing signature")
	}
}

func TestPresignURL_AutoLanguage(t *testing.T) {
	u := presign(t,
		transcribe.WithLanguage(transcribe.LanguageAuto),
		transcribe.WithRegion("eu-west-1"),
		transcribe.WithSampleRate(44100),
	)
	q := u.Query()
	assertEqual(t, "identify-language", "true", q.Get("identify-language"))
	assertEqual(t, "language-options", strings.Join(transcribe.DefaultLanguageOptions, ","), q.Get("language-options"))
	assertEqual(t, "sample-rate", "44100", q.Get("sample-rate"))
	assertEqual(t, "host", "transcribestreaming.eu-west-1.amazonaws.com:8443", u.Host)
	if q.Get("language-code") != "" {
		t.Error("language-code must not be set in auto mode")
	}
}

func TestPresignURL_Endpoint(t *testing.T) {
	u := presign(t, transcribe.WithEndpoint("ws://127.0.0.1:9999"))
	assertEqual(t, "scheme", "ws", u.Scheme)
	assertEqual(t, "host", "127.0.0.1:9999", u.Host)
}

func TestPresignURL_FreshCredentialsEachCall(t *testing.T) {
	var calls atomic.Int32
	provider := aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		n := calls.Add(1)
		return aws.Credentials{AccessKeyID: "AKID", SecretAccessKey: "secret-" + string(rune('0'+n))}, nil
	})
	c, err := transcribe.New(provider, transcribe.WithClock(fixedNow))
	if err != nil {
		t.Fatal(err)
	}
	a, err := c.PresignURL(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.PresignURL(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Errorf("credentials retrieved %d times, want 2", calls.Load())
	}
	if a == b {
		t.Error("rotated secret must produce a different URL")
	}
}

func TestPresignURL_MissingCredentials(t *testing.T) {
	provider := aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return aws.Credentials{AccessKeyID: "AKID"}, nil
	})
	c, err := transcribe.New(provider)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.PresignURL(context.Background()); !errors.Is(err, sigv4.ErrMissingCredentials) {
		t.Errorf("got %v, want ErrMissingCredentials", err)
	}
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		creds aws.CredentialsProvider
		opts  []transcribe.Option
	}{
		{"nil credentials", nil, nil},
		{"bad sample rate", staticCreds(), []transcribe.Option{transcribe.WithSampleRate(0)}},
		{"bad endpoint", staticCreds(), []transcribe.Option{transcribe.WithEndpoint("::nope")}},
		{"auto with one option", staticCreds(), []transcribe.Option{
			transcribe.WithLanguage(transcribe.LanguageAuto),
			transcribe.WithLanguageOptions("en-US"),
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := transcribe.New(tc.creds, tc.opts...); err == nil {
				t.Error("expected error")
			}
		})
	}
}
