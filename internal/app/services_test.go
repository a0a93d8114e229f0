package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	rktypes "github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	txtypes "github.com/aws/aws-sdk-go-v2/service/textract/types"
	"github.com/aws/aws-sdk-go-v2/service/translate"

	"github.com/MrWong99/signbridge/internal/app"
	"github.com/MrWong99/signbridge/pkg/vision"
)

// echoTranslate prefixes the text with the target language.
type echoTranslate struct {
	mu    sync.Mutex
	calls []*translate.TranslateTextInput
	err   error
}

func (e *echoTranslate) TranslateText(_ context.Context, in *translate.TranslateTextInput, _ ...func(*translate.Options)) (*translate.TranslateTextOutput, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, in)
	if e.err != nil {
		return nil, e.err
	}
	return &translate.TranslateTextOutput{
		TranslatedText:     aws.String(aws.ToString(in.TargetLanguageCode) + ": " + aws.ToString(in.Text)),
		SourceLanguageCode: in.SourceLanguageCode,
		TargetLanguageCode: in.TargetLanguageCode,
	}, nil
}

func (e *echoTranslate) last() *translate.TranslateTextInput {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.calls) == 0 {
		return nil
	}
	return e.calls[len(e.calls)-1]
}

type sceneAPI struct {
	lines  []string
	labels []rktypes.Label
	in     *rekognition.DetectLabelsInput
}

func (s *sceneAPI) DetectText(context.Context, *rekognition.DetectTextInput, ...func(*rekognition.Options)) (*rekognition.DetectTextOutput, error) {
	out := &rekognition.DetectTextOutput{}
	for _, l := range s.lines {
		out.TextDetections = append(out.TextDetections, rktypes.TextDetection{
			DetectedText: aws.String(l), Type: rktypes.TextTypesLine,
		})
	}
	return out, nil
}

func (s *sceneAPI) DetectLabels(_ context.Context, in *rekognition.DetectLabelsInput, _ ...func(*rekognition.Options)) (*rekognition.DetectLabelsOutput, error) {
	s.in = in
	return &rekognition.DetectLabelsOutput{Labels: s.labels}, nil
}

type pageAPI struct{ lines []string }

func (p pageAPI) DetectDocumentText(context.Context, *textract.DetectDocumentTextInput, ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error) {
	out := &textract.DetectDocumentTextOutput{}
	for _, l := range p.lines {
		out.Blocks = append(out.Blocks, txtypes.Block{BlockType: txtypes.BlockTypeLine, Text: aws.String(l)})
	}
	return out, nil
}

var jpeg = []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10}

func TestApp_TranslateUsesConfiguredDefaults(t *testing.T) {
	t.Parallel()
	api := &echoTranslate{}
	a := newApp(t, newSource(t, "translate:\n  target_language: es-MX\n"), app.WithTranslateAPI(api))

	res, err := a.Translate(context.Background(), "where is the station", "", "")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if res.Text != "es-MX: where is the station" {
		t.Errorf("text = %q", res.Text)
	}
	in := api.last()
	if aws.ToString(in.SourceLanguageCode) != "auto" || aws.ToString(in.TargetLanguageCode) != "es-MX" {
		t.Errorf("languages = %s -> %s", aws.ToString(in.SourceLanguageCode), aws.ToString(in.TargetLanguageCode))
	}

	if _, err := a.Translate(context.Background(), "guten Tag", "de-DE", "en-US"); err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got := aws.ToString(api.last().SourceLanguageCode); got != "de" {
		t.Errorf("explicit source = %q, want de", got)
	}
}

func TestApp_TranslateError(t *testing.T) {
	t.Parallel()
	boom := errors.New("unsupported language pair")
	a := newApp(t, newSource(t, ""), app.WithTranslateAPI(&echoTranslate{err: boom}))
	if _, err := a.Translate(context.Background(), "hi", "en", "xx"); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

func TestApp_ReadTextAndDocument(t *testing.T) {
	t.Parallel()
	a := newApp(t, newSource(t, ""), app.WithVisionAPI(
		&sceneAPI{lines: []string{"STOP"}},
		pageAPI{lines: []string{"Invoice", "Total: 12 EUR"}},
	))

	lines, err := a.ReadText(context.Background(), jpeg)
	if err != nil || len(lines) != 1 || lines[0] != "STOP" {
		t.Errorf("ReadText = %q, %v", lines, err)
	}
	lines, err = a.ReadDocument(context.Background(), jpeg)
	if err != nil || len(lines) != 2 || lines[1] != "Total: 12 EUR" {
		t.Errorf("ReadDocument = %q, %v", lines, err)
	}
}

func TestApp_ReadTextNothingDetected(t *testing.T) {
	t.Parallel()
	a := newApp(t, newSource(t, ""), app.WithVisionAPI(&sceneAPI{}, nil))
	if _, err := a.ReadText(context.Background(), jpeg); !errors.Is(err, vision.ErrNothingDetected) {
		t.Fatalf("err = %v, want ErrNothingDetected", err)
	}
}

func TestApp_DescribeObjects(t *testing.T) {
	t.Parallel()
	scene := &sceneAPI{labels: []rktypes.Label{
		{Name: aws.String("Bicycle"), Parents: []rktypes.Parent{{Name: aws.String("Vehicle")}}},
		{Name: aws.String("Vehicle")},
		{Name: aws.String("Tree")},
	}}
	api := &echoTranslate{}
	a := newApp(t, newSource(t, "vision:\n  max_labels: 4\n  min_confidence: 60\n"),
		app.WithVisionAPI(scene, nil), app.WithTranslateAPI(api))

	got, err := a.DescribeObjects(context.Background(), jpeg, "en-US")
	if err != nil {
		t.Fatalf("DescribeObjects: %v", err)
	}
	if got != "I see bicycle, tree" {
		t.Errorf("english sentence = %q", got)
	}
	if api.last() != nil {
		t.Error("english output must not be translated")
	}
	if aws.ToInt32(scene.in.MaxLabels) != 4 || aws.ToFloat32(scene.in.MinConfidence) != 60 {
		t.Errorf("detect params = %d/%v, want the configured 4/60",
			aws.ToInt32(scene.in.MaxLabels), aws.ToFloat32(scene.in.MinConfidence))
	}

	got, err = a.DescribeObjects(context.Background(), jpeg, "de-DE")
	if err != nil {
		t.Fatalf("DescribeObjects: %v", err)
	}
	if got != "de: I see bicycle, tree" {
		t.Errorf("translated sentence = %q", got)
	}
	if in := api.last(); aws.ToString(in.SourceLanguageCode) != "en" {
		t.Errorf("source = %q, want en", aws.ToString(in.SourceLanguageCode))
	}
}
