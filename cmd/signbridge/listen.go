package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/signbridge/internal/app"
	"github.com/MrWong99/signbridge/internal/config"
	"github.com/MrWong99/signbridge/internal/session"
	"github.com/MrWong99/signbridge/pkg/audio/portaudio"
	"github.com/MrWong99/signbridge/pkg/transcribe"
	"github.com/MrWong99/signbridge/pkg/transcript"
)

type listenOptions struct {
	iterations  int
	speak       bool
	translateTo string
}

func (c *cli) listenCmd() *cobra.Command {
	var opts listenOptions
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Transcribe the microphone until Enter is pressed",
		Long: `listen opens the default microphone and streams it for recognition. Final
segments are printed as they arrive. Press Enter (or Ctrl+C) to stop; the
session drains so that the last words are not lost.

When server.listen_addr is set, /healthz, /readyz and /metrics are served
while listening.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.listen(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().IntVar(&opts.iterations, "translate", 0, "send the transcript to the backend with this many iterations (0 disables)")
	cmd.Flags().BoolVar(&opts.speak, "speak", false, "print a speech URL reading the transcript back")
	cmd.Flags().StringVar(&opts.translateTo, "translate-to", "", "translate the transcript into this language; --speak then reads the translation")
	return cmd
}

func (c *cli) listen(ctx context.Context, in io.Reader, out io.Writer, opts listenOptions) error {
	if opts.iterations < 0 {
		return errors.New("--translate must not be negative")
	}
	cfg := c.watcher.Current()
	mic := portaudio.New(portaudio.WithBufferDuration(cfg.Capture.BufferMillis))

	a, err := c.newApp(ctx, app.WithMicrophone(mic))
	if err != nil {
		return err
	}
	defer shutdownApp(a)

	if addr := cfg.Server.ListenAddr; addr != "" {
		srv := startStatusServer(addr, newRouter(c.metrics, a.Checkers(), c.telemetry.Handler()))
		defer srv.close()
	}

	s, err := a.StartListening(ctx, printUpdates(out))
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Listening. Press Enter to stop.")

	enter := make(chan struct{})
	go func() {
		_, _ = bufio.NewReader(in).ReadString('\n')
		close(enter)
	}()
	select {
	case <-enter:
	case <-ctx.Done():
	case <-s.Done():
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.watcher.Current().Transcribe.DrainTimeout+5*time.Second)
	defer cancel()
	err = a.StopListening(stopCtx)
	if errors.Is(err, app.ErrNoSession) {
		err = s.Err()
	}
	st := s.Transcript()
	if err != nil && s.State() == session.Failed {
		return fmt.Errorf("listen: %w", err)
	}

	text := transcriptText(st)
	if text == "" {
		fmt.Fprintln(out, "No speech recognized.")
		return nil
	}
	if opts.iterations > 0 {
		b, err := a.Backend()
		if err != nil {
			return err
		}
		res, err := b.Translate(ctx, text, opts.iterations)
		if err != nil {
			return err
		}
		printResult(out, res)
	}
	spoken, language := text, speechLanguage(st, c.watcher.Current())
	if opts.translateTo != "" {
		res, err := a.Translate(ctx, text, transcriptLanguage(st, c.watcher.Current()), opts.translateTo)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "[%s] %s\n", res.Target, res.Text)
		spoken, language = res.Text, opts.translateTo
	}
	if opts.speak {
		u, err := a.SpeechURL(ctx, spoken, language)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, u)
	}
	return nil
}

// printUpdates prints each final segment on its own line.
func printUpdates(out io.Writer) func(session.Update) {
	return func(u session.Update) {
		if u.Change.LanguageChanged {
			fmt.Fprintf(out, "[%s]\n", u.State.DetectedLanguage)
		}
		switch u.Change.Kind {
		case transcript.ChangeFinal:
			if u.Change.Text != "" {
				fmt.Fprintln(out, u.Change.Text)
			}
		case transcript.ChangePartial:
			slog.Debug("partial result", "session_id", u.SessionID, "text", u.Change.Text)
		}
	}
}

// transcriptText joins the finalized segments into one message.
func transcriptText(st transcript.State) string {
	return strings.TrimSpace(strings.Join(st.Confirmed, " "))
}

// speechLanguage picks the language to read the transcript back in: the
// detected one, else the configured one, else American English.
func speechLanguage(st transcript.State, cfg *config.Config) string {
	if st.DetectedLanguage != "" {
		return st.DetectedLanguage
	}
	if lang := cfg.Transcribe.Language; lang != "" && lang != transcribe.LanguageAuto {
		return lang
	}
	return config.DefaultLanguage
}

// transcriptLanguage is the source language for translating the transcript,
// or "" to use translate.source_language.
func transcriptLanguage(st transcript.State, cfg *config.Config) string {
	if st.DetectedLanguage != "" {
		return st.DetectedLanguage
	}
	if lang := cfg.Transcribe.Language; lang != transcribe.LanguageAuto {
		return lang
	}
	return ""
}
