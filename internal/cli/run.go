package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alasdair-cooper/watch-history/internal/ir"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Callback string
}

// RunResult is the JSON output of the run command.
type RunResult struct {
	Events   []string      `json:"events"`
	View     *ir.ViewModel `json:"view"`
	OpenURLs []string      `json:"open_urls"`
	Errors   []string      `json:"errors,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run [event...]",
		Short: "Submit events and print the resulting view",
		Long: `Submit events to the decision core one at a time, executing every
effect they cause, then print the final view.

Events are initial_load and login_button_clicked. With no events and no
--callback, initial_load is sent. --callback sends a callback_received event
after the listed events; its URL must start with callback.redirect_uri.

Redirects requested by the core are printed as "open: <url>".

Exit codes:
  0 - Every update completed
  1 - An update aborted
  2 - Command error (bad event, callback URL, config)

Examples:
  watchshell run
  watchshell run login_button_clicked
  watchshell run --callback 'http://localhost:8080/callback?code=abc'`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Callback, "callback", "", "OAuth callback URL to deliver after the events")

	return cmd
}

func runEvents(opts *RunOptions, words []string, cmd *cobra.Command) error {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sh, err := openShell(ctx, opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer sh.Close()

	if len(words) == 0 && opts.Callback == "" {
		words = []string{ir.EventInitialLoad.String()}
	}
	events := make([]ir.Event, 0, len(words)+1)
	for _, w := range words {
		ev, err := parseEvent(sh.cfg, w)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid event", err)
		}
		events = append(events, ev)
	}
	if opts.Callback != "" {
		if !sh.cfg.AcceptsCallback(opts.Callback) {
			return NewExitError(ExitCommandError,
				fmt.Sprintf("callback URL %q does not match callback.redirect_uri %s", opts.Callback, sh.cfg.Callback.RedirectURI))
		}
		events = append(events, ir.CallbackReceived(opts.Callback))
	}

	formatter := newFormatter(opts.RootOptions, cmd)
	sub := sh.engine.ShellEvents().Subscribe()
	defer sub.Close()

	result := RunResult{OpenURLs: []string{}}
	for _, ev := range events {
		result.Events = append(result.Events, ev.Kind.String())
		formatter.VerboseLog("submitting %s", ev.Kind)
		if err := sh.engine.Update(ctx, ev); err != nil {
			sh.logger.Error("update failed", "event", ev.Kind, "error", err)
			result.Errors = append(result.Errors, err.Error())
		}
		for _, se := range drainShellEvents(sub.C()) {
			result.OpenURLs = append(result.OpenURLs, se.URL)
			if !formatter.JSON() {
				fmt.Fprintf(cmd.OutOrStdout(), "open: %s\n", se.URL)
			}
		}
		if ctx.Err() != nil {
			break
		}
	}
	result.View = sh.engine.View().Load()

	if err := formatter.Emit(result, func(w io.Writer) { printView(w, result.View) }); err != nil {
		return err
	}
	if len(result.Errors) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d update(s) aborted", len(result.Errors)))
	}
	return nil
}

func drainShellEvents(ch <-chan ir.ShellEvent) []ir.ShellEvent {
	var out []ir.ShellEvent
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}
