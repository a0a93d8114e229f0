// Package translator translates short texts between languages with the
// managed translation service.
//
// Language tags as used elsewhere in signbridge ("de-DE", "arb") are reduced
// to the codes the service accepts before each call. The source language may
// be [LanguageAuto] to let the service identify it.
package translator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/translate"
)

// LanguageAuto asks the service to detect the source language.
const LanguageAuto = "auto"

// MaxTextBytes is the largest UTF-8 text accepted per request.
const MaxTextBytes = 10000

var (
	// ErrInvalidText is returned for empty or oversized text.
	ErrInvalidText = errors.New("translator: invalid text")

	// ErrInvalidLanguage is returned for a missing language or an automatic
	// target language.
	ErrInvalidLanguage = errors.New("translator: invalid language")
)

// API is the subset of the service client used here. *translate.Client
// satisfies it.
type API interface {
	TranslateText(ctx context.Context, in *translate.TranslateTextInput, optFns ...func(*translate.Options)) (*translate.TranslateTextOutput, error)
}

// Result is a finished translation.
type Result struct {
	Text string

	// Source is the source language code, the detected one when the request
	// asked for [LanguageAuto].
	Source string
	Target string
}

// Translator translates text through an [API].
type Translator struct {
	api API
}

// New returns a Translator calling api.
func New(api API) (*Translator, error) {
	if api == nil {
		return nil, errors.New("translator: api is required")
	}
	return &Translator{api: api}, nil
}

// NewFromConfig builds the service client from cfg.
func NewFromConfig(cfg aws.Config, optFns ...func(*translate.Options)) *Translator {
	return &Translator{api: translate.NewFromConfig(cfg, optFns...)}
}

// Translate translates text from source to target. Identical source and
// target codes return text unchanged without calling the service.
func (t *Translator) Translate(ctx context.Context, text, source, target string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, fmt.Errorf("%w: empty", ErrInvalidText)
	}
	if len(text) > MaxTextBytes {
		return Result{}, fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidText, len(text), MaxTextBytes)
	}
	src, dst := Code(source), Code(target)
	switch {
	case src == "":
		return Result{}, fmt.Errorf("%w: source is empty", ErrInvalidLanguage)
	case dst == "" || dst == LanguageAuto:
		return Result{}, fmt.Errorf("%w: target %q", ErrInvalidLanguage, target)
	case src == dst:
		return Result{Text: text, Source: src, Target: dst}, nil
	}

	out, err := t.api.TranslateText(ctx, &translate.TranslateTextInput{
		Text:               aws.String(text),
		SourceLanguageCode: aws.String(src),
		TargetLanguageCode: aws.String(dst),
	})
	if err != nil {
		return Result{}, fmt.Errorf("translator: translate %s to %s: %w", src, dst, err)
	}
	res := Result{
		Text:   aws.ToString(out.TranslatedText),
		Source: aws.ToString(out.SourceLanguageCode),
		Target: aws.ToString(out.TargetLanguageCode),
	}
	if res.Source == "" {
		res.Source = src
	}
	if res.Target == "" {
		res.Target = dst
	}
	return res, nil
}

// regional lists the tags the service distinguishes from their primary
// language.
var regional = map[string]string{
	"zh-tw": "zh-TW",
	"fr-ca": "fr-CA",
	"es-mx": "es-MX",
	"pt-pt": "pt-PT",
	"fa-af": "fa-AF",
}

// aliases maps recognizer and voice codes onto translation codes.
var aliases = map[string]string{
	"arb": "ar",
	"cmn": "zh",
	"yue": "zh-TW",
}

// Code reduces a language tag to a translation language code: "en-US"
// becomes "en", "zh-TW" stays, "arb" becomes "ar".
func Code(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" || strings.EqualFold(tag, LanguageAuto) {
		return strings.ToLower(tag)
	}
	lower := strings.ToLower(strings.ReplaceAll(tag, "_", "-"))
	if c, ok := regional[lower]; ok {
		return c
	}
	primary, _, _ := strings.Cut(lower, "-")
	if c, ok := aliases[primary]; ok {
		return c
	}
	return primary
}

// RightToLeft reports whether text in the language code is written right to
// left.
func RightToLeft(code string) bool {
	switch Code(code) {
	case "ar", "he", "fa", "fa-AF", "ps", "ur":
		return true
	}
	return false
}
