package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/Harshitk-cp/verdict/internal/buildconfig"
	"github.com/Harshitk-cp/verdict/internal/client"
	"github.com/Harshitk-cp/verdict/internal/domain"
	"github.com/Harshitk-cp/verdict/internal/prompt"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type openOptions struct {
	*RootOptions
	EvidenceA string
	EvidenceB string
	FileA     string
	FileB     string
	Persona   string
}

func newOpenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &openOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "open",
		Short: "Open a case and print the initial verdict",
		Example: `  verdictctl open --a "I paid last time" --b "I drove both ways"
  verdictctl open --a-file side_a.txt --b-file side_b.txt --persona judge`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := evidence(opts.EvidenceA, opts.FileA)
			if err != nil {
				return err
			}
			b, err := evidence(opts.EvidenceB, opts.FileB)
			if err != nil {
				return err
			}

			out, err := opts.client().OpenCase(cmd.Context(), client.OpenCaseRequest{
				EvidenceA: a,
				EvidenceB: b,
				Persona:   opts.Persona,
			})
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if opts.Format == "json" {
				return writeJSON(w, out)
			}
			fmt.Fprintf(w, "Case %s (%s)\n\n%s\n\nWinner: %s\n", out.CaseID, out.Persona, out.Verdict, out.Winner)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.EvidenceA, "a", "", "evidence for side A")
	cmd.Flags().StringVar(&opts.EvidenceB, "b", "", "evidence for side B")
	cmd.Flags().StringVar(&opts.FileA, "a-file", "", "read side A evidence from a file")
	cmd.Flags().StringVar(&opts.FileB, "b-file", "", "read side B evidence from a file")
	cmd.Flags().StringVar(&opts.Persona, "persona", "", "adjudicator persona ("+strings.Join(prompt.PersonaNames(), ", ")+")")
	cmd.MarkFlagsMutuallyExclusive("a", "a-file")
	cmd.MarkFlagsMutuallyExclusive("b", "b-file")

	return cmd
}

func evidence(text, path string) (string, error) {
	if path == "" {
		return text, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read evidence: %w", err)
	}
	return string(data), nil
}

func newSubmitCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "submit CASE_ID SIDE CONTENT",
		Short:   "Submit a follow-up turn and print the re-evaluation",
		Example: `  verdictctl submit 3f0c... A "Here is the receipt."`,
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseCaseID(args[0])
			if err != nil {
				return err
			}
			side := domain.Side(strings.ToUpper(args[1]))
			if !domain.ValidSide(string(side)) {
				return fmt.Errorf("side must be A or B, got %q", args[1])
			}

			out, err := opts.client().SubmitTurn(cmd.Context(), id, side, args[2])
			w := cmd.OutOrStdout()
			if err != nil {
				var apiErr *client.APIError
				if errors.As(err, &apiErr) && apiErr.TurnAccepted {
					fmt.Fprintf(w, "Turn %d was recorded but no re-evaluation is available (%s).\n", apiErr.Sequence, apiErr.Kind)
				}
				return err
			}

			if opts.Format == "json" {
				return writeJSON(w, out)
			}
			fmt.Fprintf(w, "Turn %d (side %s), %d remaining\n\n%s\n", out.Sequence, out.Side, out.RemainingTurns, out.Response)
			return nil
		},
	}
}

func newShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show CASE_ID",
		Short: "Show a case with its verdict and turns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseCaseID(args[0])
			if err != nil {
				return err
			}
			c, err := opts.client().GetCase(cmd.Context(), id)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if opts.Format == "json" {
				return writeJSON(w, c)
			}
			printCase(w, c)
			return nil
		},
	}
}

func printCase(w io.Writer, c *client.Case) {
	fmt.Fprintf(w, "Case %s (%s)\nState: %s, %d turns remaining\n", c.CaseID, c.Persona, c.State, c.RemainingTurns)
	for _, ev := range c.Evidence {
		fmt.Fprintf(w, "\nEvidence %s:\n%s\n", ev.Side, ev.Content)
	}
	fmt.Fprintf(w, "\nVerdict (winner %s):\n%s\n", c.Winner, c.Verdict)
	for _, t := range c.Turns {
		fmt.Fprintf(w, "\n[%d] Side %s: %s\n", t.Sequence, t.Side, t.Content)
		if t.Reevaluation != nil {
			fmt.Fprintf(w, "    -> %s\n", *t.Reevaluation)
		} else {
			fmt.Fprintf(w, "    -> (no re-evaluation)\n")
		}
	}
}

func newWatchCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch CASE_ID",
		Short: "Stream turn events for a case until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseCaseID(args[0])
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			w := cmd.OutOrStdout()
			return opts.client().Watch(ctx, id, func(evt domain.CaseEvent) error {
				if opts.Format == "json" {
					return writeJSON(w, evt)
				}
				printEvent(w, evt)
				return nil
			})
		},
	}
}

func printEvent(w io.Writer, evt domain.CaseEvent) {
	switch {
	case evt.Type == domain.EventStreamReady:
		fmt.Fprintf(w, "watching case %s (%d turns remaining)\n", evt.CaseID, evt.RemainingTurns)
	case evt.Turn == nil:
		fmt.Fprintf(w, "%s\n", evt.Type)
	case evt.Turn.Reevaluation != nil:
		fmt.Fprintf(w, "[%d] Side %s: %s\n    -> %s\n", evt.Turn.Sequence, evt.Turn.Side, evt.Turn.Content, *evt.Turn.Reevaluation)
	default:
		fmt.Fprintf(w, "[%d] Side %s: %s\n    -> (no re-evaluation)\n", evt.Turn.Sequence, evt.Turn.Side, evt.Turn.Content)
	}
}

func newVersionCommand(opts *RootOptions) *cobra.Command {
	var remote bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print client and, with --remote, server versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			result := map[string]buildconfig.Info{"client": buildconfig.Get()}
			if remote {
				info, err := opts.client().Version(cmd.Context())
				if err != nil {
					return err
				}
				result["server"] = *info
			}

			if opts.Format == "json" {
				return writeJSON(w, result)
			}
			fmt.Fprintf(w, "client: %s\n", result["client"])
			if info, ok := result["server"]; ok {
				fmt.Fprintf(w, "server: %s\n", info)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "also query the server")
	return cmd
}

func parseCaseID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid case id %q", s)
	}
	return id, nil
}
