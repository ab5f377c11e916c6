package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/alasdair-cooper/watch-history/internal/engine"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database  string
	FlowToken string // optional - specific flow only
}

// ReplaySummary is the JSON output of the replay command.
type ReplaySummary struct {
	Flows            []engine.ReplayResult `json:"flows"`
	TotalFlows       int                   `json:"total_flows"`
	AllDeterministic bool                  `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay journalled flows and verify determinism",
		Long: `Re-feed journalled flows into a fresh decision core and compare every
request batch it returns with the recorded one. Effects are not executed;
recorded responses are delivered instead.

Each flow gets its own core built from the configured script or command.

Exit codes:
  0 - All flows are deterministic
  1 - At least one flow diverged
  2 - Command error (journal not found, malformed journal, etc.)

Examples:
  watchshell replay
  watchshell replay --db ./watch-journal.db --flow 0190c3e2-...
  watchshell replay --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "journal database (default journal.path)")
	cmd.Flags().StringVar(&opts.FlowToken, "flow", "", "replay specific flow only")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg.Log, opts.Verbose)

	st, err := openJournal(opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	var tokens []string
	if opts.FlowToken != "" {
		tokens = []string{opts.FlowToken}
	} else if tokens, err = st.ReadFlowTokens(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to list flows", err)
	}

	summary := ReplaySummary{Flows: make([]engine.ReplayResult, 0, len(tokens)), AllDeterministic: true}
	for _, token := range tokens {
		entries, err := st.ReadFlow(ctx, token)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to read flow %s", token), err)
		}
		if len(entries) == 0 {
			return NewExitError(ExitCommandError, fmt.Sprintf("flow not found: %s", token))
		}

		c, closeCore, err := newCore(cfg, logger)
		if err != nil {
			return err
		}
		res, err := engine.Replay(ctx, c, entries)
		if closeCore != nil {
			if cerr := closeCore(); cerr != nil {
				logger.Warn("failed to stop core", "error", cerr)
			}
		}
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay flow %s", token), err)
		}
		logger.Debug("flow replayed", "flow", token, "calls", res.Calls, "divergences", len(res.Divergences))

		summary.Flows = append(summary.Flows, res)
		if !res.Deterministic() {
			summary.AllDeterministic = false
		}
	}
	summary.TotalFlows = len(summary.Flows)

	formatter := newFormatter(opts.RootOptions, cmd)
	if err := formatter.Emit(summary, func(w io.Writer) { printReplay(w, summary) }); err != nil {
		return err
	}
	if !summary.AllDeterministic {
		return NewExitError(ExitFailure, "replay diverged from the journal")
	}
	return nil
}

func printReplay(w io.Writer, s ReplaySummary) {
	if s.TotalFlows == 0 {
		fmt.Fprintln(w, "No flows found in journal.")
		return
	}
	for _, f := range s.Flows {
		if f.Deterministic() {
			fmt.Fprintf(w, "%s: %d calls, deterministic\n", f.FlowToken, f.Calls)
			continue
		}
		fmt.Fprintf(w, "%s: %d calls, %d divergence(s)\n", f.FlowToken, f.Calls, len(f.Divergences))
		for _, d := range f.Divergences {
			fmt.Fprintf(w, "  seq %d %s: %s\n", d.Seq, d.Kind, d.Message)
		}
	}
	if s.AllDeterministic {
		fmt.Fprintf(w, "\nAll %d flow(s) deterministic.\n", s.TotalFlows)
	}
}
