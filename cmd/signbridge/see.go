package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrWong99/signbridge/pkg/translator"
	"github.com/MrWong99/signbridge/pkg/vision"
)

// Messages printed, and read aloud with --speak, when a picture is empty.
const (
	noTextMessage    = "No text detected. Please try again!"
	noObjectsMessage = "No objects detected. Please try again!"
	fallbackSpeech   = "en-US"
)

type seeKind int

const (
	seeText seeKind = iota
	seeDocument
	seeObjects
)

type seeOptions struct {
	language string
	speak    bool
}

// worldReader is the part of the App the picture commands use.
type worldReader interface {
	ReadText(ctx context.Context, image []byte) ([]string, error)
	ReadDocument(ctx context.Context, doc []byte) ([]string, error)
	DescribeObjects(ctx context.Context, image []byte, language string) (string, error)
	SpeechURL(ctx context.Context, text, language string) (string, error)
}

func (c *cli) seeCmd() *cobra.Command {
	var opts seeOptions
	cmd := &cobra.Command{
		Use:   "see",
		Short: "Read the world from a camera picture",
		Long: `see sends a picture to the image analysis services and prints what they
found. Pass "-" as the file to read the picture from stdin.`,
	}
	cmd.PersistentFlags().StringVarP(&opts.language, "language", "l", fallbackSpeech, "language of the result and its speech")
	cmd.PersistentFlags().BoolVar(&opts.speak, "speak", false, "print a speech URL reading the result aloud")

	sub := []struct {
		use, short string
		kind       seeKind
		limit      int
	}{
		{"text <image>", "Print the lines of text visible in a picture", seeText, vision.MaxImageBytes},
		{"document <file>", "Print the lines of a scanned document page", seeDocument, vision.MaxDocumentBytes},
		{"objects <image>", "Describe the objects in a picture", seeObjects, vision.MaxImageBytes},
	}
	for _, s := range sub {
		cmd.AddCommand(&cobra.Command{
			Use:   s.use,
			Short: s.short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				data, err := readPicture(args[0], cmd.InOrStdin(), s.limit)
				if err != nil {
					return err
				}
				a, err := c.newApp(cmd.Context())
				if err != nil {
					return err
				}
				defer shutdownApp(a)
				return see(cmd.Context(), a, cmd.OutOrStdout(), s.kind, data, opts)
			},
		})
	}
	return cmd
}

// readPicture reads path, or stdin for "-", refusing anything over limit.
func readPicture(path string, stdin io.Reader, limit int) ([]byte, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(io.LimitReader(r, int64(limit)+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) > limit {
		return nil, fmt.Errorf("%s is larger than %d bytes", path, limit)
	}
	return data, nil
}

func see(ctx context.Context, r worldReader, out io.Writer, kind seeKind, data []byte, opts seeOptions) error {
	var (
		text  string
		lines []string
		err   error
	)
	switch kind {
	case seeText:
		lines, err = r.ReadText(ctx, data)
	case seeDocument:
		lines, err = r.ReadDocument(ctx, data)
	case seeObjects:
		text, err = r.DescribeObjects(ctx, data, opts.language)
	}

	language := opts.language
	switch {
	case errors.Is(err, vision.ErrNothingDetected):
		text, language = noTextMessage, fallbackSpeech
		if kind == seeObjects {
			text = noObjectsMessage
		}
	case err != nil:
		return err
	case kind != seeObjects:
		text = strings.Join(lines, "\n")
	}

	fmt.Fprintln(out, text)
	if !opts.speak {
		return nil
	}
	// Spoken text runs the lines together as one sentence.
	u, err := r.SpeechURL(ctx, strings.ReplaceAll(text, "\n", ", "), language)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, u)
	return nil
}

type translateOptions struct {
	from, to string
	speak    bool
}

// textTranslator is the part of the App translate-text uses.
type textTranslator interface {
	Translate(ctx context.Context, text, source, target string) (translator.Result, error)
	SpeechURL(ctx context.Context, text, language string) (string, error)
}

func (c *cli) translateTextCmd() *cobra.Command {
	var opts translateOptions
	cmd := &cobra.Command{
		Use:   "translate-text <text>",
		Short: "Translate text with the translation service",
		Long: `translate-text translates text directly, without the avatar backend. The
languages default to translate.source_language and translate.target_language.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer shutdownApp(a)
			return translateText(cmd.Context(), a, cmd.OutOrStdout(), strings.Join(args, " "), opts)
		},
	}
	cmd.Flags().StringVar(&opts.from, "from", "", `source language, or "auto"`)
	cmd.Flags().StringVar(&opts.to, "to", "", "target language")
	cmd.Flags().BoolVar(&opts.speak, "speak", false, "print a speech URL reading the translation aloud")
	return cmd
}

func translateText(ctx context.Context, t textTranslator, out io.Writer, text string, opts translateOptions) error {
	res, err := t.Translate(ctx, text, opts.from, opts.to)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, res.Text)
	if !opts.speak {
		return nil
	}
	u, err := t.SpeechURL(ctx, res.Text, res.Target)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, u)
	return nil
}
