// Package vision reads the world through a camera picture: printed text in a
// scene, the lines of a document page, and the objects in view.
//
// Scene text and objects come from the image-analysis service, documents
// from the document-analysis service. Only whole lines are returned; word
// level detections are dropped.
package vision

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	rktypes "github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	txtypes "github.com/aws/aws-sdk-go-v2/service/textract/types"
)

// Size limits of inline image and document bytes.
const (
	MaxImageBytes    = 5 << 20
	MaxDocumentBytes = 10 << 20

	defaultMaxLabels     = 10
	defaultMinConfidence = 80
)

var (
	// ErrInvalidImage is returned for empty or oversized input.
	ErrInvalidImage = errors.New("vision: invalid image")

	// ErrNothingDetected is returned when a picture holds no text or no
	// objects.
	ErrNothingDetected = errors.New("vision: nothing detected")
)

// ImageAPI is the subset of the image-analysis client used here.
// *rekognition.Client satisfies it.
type ImageAPI interface {
	DetectText(ctx context.Context, in *rekognition.DetectTextInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectTextOutput, error)
	DetectLabels(ctx context.Context, in *rekognition.DetectLabelsInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectLabelsOutput, error)
}

// DocumentAPI is the subset of the document-analysis client used here.
// *textract.Client satisfies it.
type DocumentAPI interface {
	DetectDocumentText(ctx context.Context, in *textract.DetectDocumentTextInput, optFns ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error)
}

// Option is a functional option for [New].
type Option func(*Reader)

// WithMaxLabels caps how many objects [Reader.Objects] asks for.
func WithMaxLabels(n int) Option {
	return func(r *Reader) {
		if n > 0 {
			r.maxLabels = int32(n)
		}
	}
}

// WithMinConfidence drops objects detected with a lower confidence, in
// percent.
func WithMinConfidence(pct float64) Option {
	return func(r *Reader) {
		if pct > 0 {
			r.minConfidence = float32(pct)
		}
	}
}

// Reader runs detections against the two services.
type Reader struct {
	images        ImageAPI
	docs          DocumentAPI
	maxLabels     int32
	minConfidence float32
}

// New returns a Reader. Either API may be nil, which disables the
// operations that need it.
func New(images ImageAPI, docs DocumentAPI, opts ...Option) *Reader {
	r := &Reader{
		images:        images,
		docs:          docs,
		maxLabels:     defaultMaxLabels,
		minConfidence: defaultMinConfidence,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// NewFromConfig builds both service clients from cfg.
func NewFromConfig(cfg aws.Config, opts ...Option) *Reader {
	return New(rekognition.NewFromConfig(cfg), textract.NewFromConfig(cfg), opts...)
}

func checkBytes(b []byte, limit int) error {
	if len(b) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidImage)
	}
	if len(b) > limit {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidImage, len(b), limit)
	}
	return nil
}

// Text returns the lines of text visible in image, top to bottom.
func (r *Reader) Text(ctx context.Context, image []byte) ([]string, error) {
	if r.images == nil {
		return nil, errors.New("vision: no image client")
	}
	if err := checkBytes(image, MaxImageBytes); err != nil {
		return nil, err
	}
	out, err := r.images.DetectText(ctx, &rekognition.DetectTextInput{
		Image: &rktypes.Image{Bytes: image},
	})
	if err != nil {
		return nil, fmt.Errorf("vision: detect text: %w", err)
	}
	var lines []string
	for _, d := range out.TextDetections {
		if d.Type != rktypes.TextTypesLine {
			continue
		}
		if s := strings.TrimSpace(aws.ToString(d.DetectedText)); s != "" {
			lines = append(lines, s)
		}
	}
	if len(lines) == 0 {
		return nil, ErrNothingDetected
	}
	return lines, nil
}

// Document returns the lines of a scanned page in reading order. doc is a
// PNG, JPEG, PDF or TIFF.
func (r *Reader) Document(ctx context.Context, doc []byte) ([]string, error) {
	if r.docs == nil {
		return nil, errors.New("vision: no document client")
	}
	if err := checkBytes(doc, MaxDocumentBytes); err != nil {
		return nil, err
	}
	out, err := r.docs.DetectDocumentText(ctx, &textract.DetectDocumentTextInput{
		Document: &txtypes.Document{Bytes: doc},
	})
	if err != nil {
		return nil, fmt.Errorf("vision: detect document text: %w", err)
	}
	var lines []string
	for _, b := range out.Blocks {
		if b.BlockType != txtypes.BlockTypeLine {
			continue
		}
		if s := strings.TrimSpace(aws.ToString(b.Text)); s != "" {
			lines = append(lines, s)
		}
	}
	if len(lines) == 0 {
		return nil, ErrNothingDetected
	}
	return lines, nil
}

// Objects names the objects in image, most confident first. A label that is
// only the parent category of another label ("Vehicle" above "Car") is left
// out.
func (r *Reader) Objects(ctx context.Context, image []byte) ([]string, error) {
	if r.images == nil {
		return nil, errors.New("vision: no image client")
	}
	if err := checkBytes(image, MaxImageBytes); err != nil {
		return nil, err
	}
	out, err := r.images.DetectLabels(ctx, &rekognition.DetectLabelsInput{
		Image:         &rktypes.Image{Bytes: image},
		MaxLabels:     aws.Int32(r.maxLabels),
		MinConfidence: aws.Float32(r.minConfidence),
	})
	if err != nil {
		return nil, fmt.Errorf("vision: detect labels: %w", err)
	}

	parents := make(map[string]bool)
	for _, l := range out.Labels {
		for _, p := range l.Parents {
			parents[aws.ToString(p.Name)] = true
		}
	}
	var names []string
	for _, l := range out.Labels {
		name := aws.ToString(l.Name)
		if name == "" || parents[name] || slices.Contains(names, name) {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil, ErrNothingDetected
	}
	return names, nil
}

// Describe turns object names into the English sentence that is read aloud,
// e.g. "I see dog, grass".
func Describe(objects []string) string {
	lower := make([]string, len(objects))
	for i, o := range objects {
		lower[i] = strings.ToLower(o)
	}
	return "I see " + strings.Join(lower, ", ")
}
