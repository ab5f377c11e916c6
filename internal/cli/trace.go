package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alasdair-cooper/watch-history/internal/harness"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Effect   string // optional - only requests of this effect kind
}

// TraceResult is the JSON output of the trace command.
type TraceResult struct {
	FlowToken string               `json:"flow_token"`
	Timeline  []harness.TraceEntry `json:"timeline"`
	Stats     TraceStats           `json:"stats"`
}

// TraceStats summarizes a flow.
type TraceStats struct {
	Entries   int `json:"entries"`
	Events    int `json:"events"`
	Requests  int `json:"requests"`
	Responses int `json:"responses"`
	Failures  int `json:"failures"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace <flow-token>",
		Short: "Show the journalled timeline of a flow",
		Long: `Decode one journalled flow into a timeline of the event, every request
the core issued and every response the shell delivered.

Examples:
  watchshell trace 0190c3e2-...
  watchshell trace 0190c3e2-... --effect http
  watchshell trace 0190c3e2-... --db ./watch-journal.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "journal database (default journal.path)")
	cmd.Flags().StringVar(&opts.Effect, "effect", "", "only show requests of this effect (render, http, redirect, key_value)")

	return cmd
}

func runTrace(opts *TraceOptions, flowToken string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := openJournal(opts.RootOptions, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	entries, err := st.ReadFlow(ctx, flowToken)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read flow", err)
	}
	if len(entries) == 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("flow not found: %s", flowToken))
	}
	timeline, err := harness.BuildTrace(entries)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to decode journal", err)
	}

	result := TraceResult{FlowToken: flowToken, Timeline: filterTimeline(timeline, opts.Effect)}
	for _, e := range timeline {
		switch e.Type {
		case harness.TraceEvent:
			result.Stats.Events++
		case harness.TraceRequest:
			result.Stats.Requests++
		case harness.TraceResponse:
			result.Stats.Responses++
			if strings.HasPrefix(e.Outcome, "error") {
				result.Stats.Failures++
			}
		}
	}
	result.Stats.Entries = len(entries)

	formatter := newFormatter(opts.RootOptions, cmd)
	return formatter.Emit(result, func(w io.Writer) { printTrace(w, result) })
}

// filterTimeline keeps events, responses and requests of the given effect.
func filterTimeline(timeline []harness.TraceEntry, effect string) []harness.TraceEntry {
	if effect == "" {
		return timeline
	}
	out := []harness.TraceEntry{}
	for _, e := range timeline {
		if e.Type == harness.TraceRequest && e.Effect != effect {
			continue
		}
		out = append(out, e)
	}
	return out
}

func printTrace(w io.Writer, r TraceResult) {
	fmt.Fprintf(w, "Flow %s\n\n", r.FlowToken)
	for _, e := range r.Timeline {
		switch e.Type {
		case harness.TraceEvent:
			fmt.Fprintf(w, "%5d  event     %s %s\n", e.Seq, e.Event, e.Detail)
		case harness.TraceRequest:
			fmt.Fprintf(w, "%5d  request   #%d %s %s\n", e.Seq, e.RequestID, e.Effect, e.Detail)
		case harness.TraceResponse:
			fmt.Fprintf(w, "%5d  response  #%d %s\n", e.Seq, e.RequestID, e.Outcome)
		}
	}
	fmt.Fprintf(w, "\n%d journal entries: %d event(s), %d request(s), %d response(s), %d failed\n",
		r.Stats.Entries, r.Stats.Events, r.Stats.Requests, r.Stats.Responses, r.Stats.Failures)
}
