package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/signbridge/internal/archive"
	"github.com/MrWong99/signbridge/internal/backend"
	"github.com/MrWong99/signbridge/pkg/transcript"
)

func (c *cli) translateCmd() *cobra.Command {
	var iterations int
	cmd := &cobra.Command{
		Use:   "translate <message>",
		Short: "Send a message to the avatar backend for signing",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer shutdownApp(a)
			b, err := a.Backend()
			if err != nil {
				return err
			}
			res, err := b.Translate(cmd.Context(), strings.Join(args, " "), iterations)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
	cmd.Flags().IntVarP(&iterations, "iterations", "n", 1, "how many times the avatar repeats the message")
	return cmd
}

func (c *cli) avatarCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "avatar <name>",
		Short: "Switch the avatar shown by the backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer shutdownApp(a)
			b, err := a.Backend()
			if err != nil {
				return err
			}
			res, err := b.ChangeAvatar(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
}

func (c *cli) stopAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop-all",
		Short: "Stop every animation queued on the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer shutdownApp(a)
			b, err := a.Backend()
			if err != nil {
				return err
			}
			res, err := b.StopAll(cmd.Context())
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
}

func (c *cli) speakCmd() *cobra.Command {
	var language string
	cmd := &cobra.Command{
		Use:   "speak <text>",
		Short: "Print a presigned URL that reads text aloud",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer shutdownApp(a)
			u, err := a.SpeechURL(cmd.Context(), strings.Join(args, " "), language)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), u)
			return nil
		},
	}
	cmd.Flags().StringVarP(&language, "language", "l", "en-US", "language tag selecting the voice")
	return cmd
}

func (c *cli) searchCmd() *cobra.Command {
	var opts archive.SearchOpts
	var since time.Duration
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search the transcript archive",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer shutdownApp(a)
			store := a.Archive()
			if store == nil {
				return fmt.Errorf("archive.postgres_dsn is not configured")
			}
			if since > 0 {
				opts.After = time.Now().Add(-since)
			}
			segs, err := store.Search(cmd.Context(), strings.Join(args, " "), opts)
			if err != nil {
				return err
			}
			return printSegments(cmd.OutOrStdout(), segs)
		},
	}
	cmd.Flags().StringVar(&opts.SessionID, "session", "", "only search this session")
	cmd.Flags().DurationVar(&since, "since", 0, "only search segments newer than this, e.g. 24h")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of results")
	return cmd
}

func (c *cli) historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <session-id>",
		Short: "Print the archived transcript of one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer shutdownApp(a)
			store := a.Archive()
			if store == nil {
				return fmt.Errorf("archive.postgres_dsn is not configured")
			}
			segs, err := store.Segments(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printSegments(cmd.OutOrStdout(), segs)
		},
	}
}

func printSegments(out io.Writer, segs []transcript.Segment) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSESSION\t#\tLANG\tTEXT")
	for _, s := range segs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			s.At.Local().Format(time.DateTime), s.SessionID, s.Index, s.Language, s.Text)
	}
	return tw.Flush()
}

func printResult(out io.Writer, res *backend.Result) {
	fmt.Fprintf(out, "topic=%s result=%s message_id=%s sequence=%s\n",
		res.Topic, res.Result, res.MessageID, res.SequenceNumber)
}
