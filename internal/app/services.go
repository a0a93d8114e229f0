package app

import (
	"context"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/signbridge/internal/observe"
	"github.com/MrWong99/signbridge/pkg/translator"
	"github.com/MrWong99/signbridge/pkg/vision"
)

// WithTranslateAPI replaces the translation service client.
func WithTranslateAPI(api translator.API) Option {
	return func(a *App) { a.translateAPI = api }
}

// WithVisionAPI replaces the image and document analysis clients.
func WithVisionAPI(images vision.ImageAPI, docs vision.DocumentAPI) Option {
	return func(a *App) {
		a.imageAPI = images
		a.docAPI = docs
	}
}

// awsConfig describes the SDK clients for the current region. Credentials
// resolve through the App's provider on every call so rotated keys apply,
// and the SDK retryer is disabled.
func (a *App) awsConfig() aws.Config {
	client := a.httpClient
	if client == nil {
		client = &http.Client{Transport: observe.Transport(nil)}
	}
	return aws.Config{
		Region:      a.src.Current().AWS.Region,
		Credentials: a.creds,
		HTTPClient:  client,
		Retryer:     func() aws.Retryer { return aws.NopRetryer{} },
	}
}

func (a *App) newTranslator() *translator.Translator {
	if a.translateAPI != nil {
		t, _ := translator.New(a.translateAPI)
		return t
	}
	return translator.NewFromConfig(a.awsConfig())
}

func (a *App) newVisionReader() *vision.Reader {
	cfg := a.src.Current().Vision
	opts := []vision.Option{
		vision.WithMaxLabels(cfg.MaxLabels),
		vision.WithMinConfidence(cfg.MinConfidence),
	}
	if a.imageAPI != nil || a.docAPI != nil {
		return vision.New(a.imageAPI, a.docAPI, opts...)
	}
	return vision.NewFromConfig(a.awsConfig(), opts...)
}

// Translate translates text between two languages. Empty languages fall
// back to translate.source_language and translate.target_language.
func (a *App) Translate(ctx context.Context, text, source, target string) (res translator.Result, err error) {
	cfg := a.src.Current().Translate
	if source == "" {
		source = cfg.SourceLanguage
	}
	if target == "" {
		target = cfg.TargetLanguage
	}
	ctx, span := observe.StartSpan(ctx, "translate.text")
	span.SetAttributes(
		attribute.String("translate.source", source),
		attribute.String("translate.target", target),
	)
	defer func() { observe.EndSpan(span, err) }()

	res, err = a.newTranslator().Translate(ctx, text, source, target)
	if err != nil {
		observe.Logger(ctx).Warn("translation failed", "source", source, "target", target, "err", err)
	}
	return res, err
}

// ReadText returns the lines of text in a camera picture.
func (a *App) ReadText(ctx context.Context, image []byte) (lines []string, err error) {
	ctx, span := observe.StartSpan(ctx, "vision.text")
	span.SetAttributes(attribute.Int("vision.bytes", len(image)))
	defer func() { observe.EndSpan(span, err) }()
	return a.newVisionReader().Text(ctx, image)
}

// ReadDocument returns the lines of a document page.
func (a *App) ReadDocument(ctx context.Context, doc []byte) (lines []string, err error) {
	ctx, span := observe.StartSpan(ctx, "vision.document")
	span.SetAttributes(attribute.Int("vision.bytes", len(doc)))
	defer func() { observe.EndSpan(span, err) }()
	return a.newVisionReader().Document(ctx, doc)
}

// DescribeObjects names the objects in a camera picture as one sentence in
// language. The sentence is built in English and translated for any other
// language.
func (a *App) DescribeObjects(ctx context.Context, image []byte, language string) (sentence string, err error) {
	ctx, span := observe.StartSpan(ctx, "vision.objects")
	span.SetAttributes(attribute.Int("vision.bytes", len(image)))
	defer func() { observe.EndSpan(span, err) }()

	names, err := a.newVisionReader().Objects(ctx, image)
	if err != nil {
		return "", err
	}
	sentence = vision.Describe(names)
	if language == "" || translator.Code(language) == "en" {
		return sentence, nil
	}
	res, err := a.newTranslator().Translate(ctx, sentence, "en", language)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Text), nil
}
