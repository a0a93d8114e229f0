package config

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// CredentialsProvider is an [aws.CredentialsProvider] backed by a config
// [Source]. Every Retrieve reads the current config, so keys rotated into the
// watched file are used by the next signed request. When the file carries no
// static keys the aws-sdk-go-v2 default chain (environment, shared config,
// instance role) is consulted instead.
type CredentialsProvider struct {
	src Source

	mu       sync.Mutex
	fallback aws.CredentialsProvider
}

// CredentialsOption configures a [CredentialsProvider].
type CredentialsOption func(*CredentialsProvider)

// WithFallback replaces the default credential chain.
func WithFallback(p aws.CredentialsProvider) CredentialsOption {
	return func(c *CredentialsProvider) {
		c.fallback = p
	}
}

// NewCredentialsProvider returns a provider reading from src.
func NewCredentialsProvider(src Source, opts ...CredentialsOption) *CredentialsProvider {
	p := &CredentialsProvider{src: src}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Retrieve implements [aws.CredentialsProvider].
func (p *CredentialsProvider) Retrieve(ctx context.Context) (aws.Credentials, error) {
	cfg := p.src.Current()
	if cfg.AWS.HasStaticCredentials() {
		static := credentials.NewStaticCredentialsProvider(
			cfg.AWS.AccessKeyID, cfg.AWS.SecretAccessKey, cfg.AWS.SessionToken)
		return static.Retrieve(ctx)
	}

	fb, err := p.defaultChain(ctx, cfg.AWS.Region)
	if err != nil {
		return aws.Credentials{}, err
	}
	creds, err := fb.Retrieve(ctx)
	if err != nil {
		return aws.Credentials{}, fmt.Errorf("config: default credential chain: %w", err)
	}
	return creds, nil
}

// Region returns the region of the current config.
func (p *CredentialsProvider) Region() string {
	return p.src.Current().AWS.Region
}

func (p *CredentialsProvider) defaultChain(ctx context.Context, region string) (aws.CredentialsProvider, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fallback != nil {
		return p.fallback, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("config: load default aws config: %w", err)
	}
	if awsCfg.Credentials == nil {
		return nil, fmt.Errorf("config: no aws credentials configured")
	}
	p.fallback = awsCfg.Credentials
	return p.fallback, nil
}
