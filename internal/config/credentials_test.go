package config_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/MrWong99/signbridge/internal/config"
)

type swapSource struct{ cfg *config.Config }

func (s *swapSource) Current() *config.Config { return s.cfg }

type countingProvider struct {
	creds aws.Credentials
	err   error
	calls int
}

func (p *countingProvider) Retrieve(context.Context) (aws.Credentials, error) {
	p.calls++
	return p.creds, p.err
}

func TestCredentialsProvider_Static(t *testing.T) {
	t.Parallel()
	src := &swapSource{cfg: &config.Config{AWS: config.AWSConfig{
		Region: "eu-central-1", AccessKeyID: "AKID1", SecretAccessKey: "s1", SessionToken: "t1",
	}}}
	fb := &countingProvider{}
	p := config.NewCredentialsProvider(src, config.WithFallback(fb))

	creds, err := p.Retrieve(context.Background())
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if creds.AccessKeyID != "AKID1" || creds.SecretAccessKey != "s1" || creds.SessionToken != "t1" {
		t.Errorf("credentials: got %+v", creds)
	}
	if fb.calls != 0 {
		t.Errorf("fallback consulted %d times with static keys present", fb.calls)
	}
	if p.Region() != "eu-central-1" {
		t.Errorf("Region: got %q", p.Region())
	}

	// A reloaded config is visible on the next Retrieve.
	src.cfg = &config.Config{AWS: config.AWSConfig{AccessKeyID: "AKID2", SecretAccessKey: "s2"}}
	creds, err = p.Retrieve(context.Background())
	if err != nil {
		t.Fatalf("Retrieve after reload: %v", err)
	}
	if creds.AccessKeyID != "AKID2" || creds.SessionToken != "" {
		t.Errorf("credentials after reload: got %+v", creds)
	}
}

func TestCredentialsProvider_Fallback(t *testing.T) {
	t.Parallel()
	fb := &countingProvider{creds: aws.Credentials{AccessKeyID: "ENV", SecretAccessKey: "envsecret"}}
	p := config.NewCredentialsProvider(config.Static{Config: &config.Config{}}, config.WithFallback(fb))

	creds, err := p.Retrieve(context.Background())
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if creds.AccessKeyID != "ENV" {
		t.Errorf("AccessKeyID: got %q, want ENV", creds.AccessKeyID)
	}
	if fb.calls != 1 {
		t.Errorf("fallback calls: got %d, want 1", fb.calls)
	}
}

func TestCredentialsProvider_FallbackError(t *testing.T) {
	t.Parallel()
	boom := errors.New("no chain")
	p := config.NewCredentialsProvider(
		config.Static{Config: &config.Config{}},
		config.WithFallback(&countingProvider{err: boom}),
	)
	if _, err := p.Retrieve(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Retrieve error: got %v, want wrapping %v", err, boom)
	}
}
