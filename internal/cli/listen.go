package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/alasdair-cooper/watch-history/internal/ir"
	"github.com/alasdair-cooper/watch-history/internal/view"
)

// NewListenCommand creates the listen command.
func NewListenCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Read events from stdin and stream view updates",
		Long: `Run the engine loop, reading one event per line from stdin.

A line is an event name (initial_load, login_button_clicked) or an OAuth
callback URL. Blank lines and lines starting with # are skipped. New log
entries, user changes and redirects are printed as they happen; with
--format json every view snapshot is printed as one JSON line instead.

The loop ends at end of input once every submitted event has settled,
or on Ctrl-C.

Example:
  printf 'initial_load\nlogin_button_clicked\n' | watchshell listen`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListen(rootOpts, cmd)
		},
	}
	return cmd
}

func runListen(opts *RootOptions, cmd *cobra.Command) error {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sh, err := openShell(ctx, opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer sh.Close()

	eng := sh.engine
	sub := eng.ShellEvents().Subscribe()
	defer sub.Close()

	// Input is read outside the group: a blocked stdin read cannot be
	// interrupted, and end of input only needs to stop the engine.
	go func() {
		defer eng.Stop()
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			ev, err := parseEvent(sh.cfg, line)
			if err != nil {
				sh.logger.Warn("skipping input line", "line", line, "error", err)
				continue
			}
			if !eng.Submit(ev) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			sh.logger.Error("reading input failed", "error", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})
	g.Go(func() error {
		defer close(done)
		return eng.Run(gctx)
	})
	g.Go(func() error {
		w := &viewWriter{out: cmd.OutOrStdout(), json: opts.Format == "json"}
		return w.watch(done, eng.View(), sub.C())
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// viewWriter prints what changed between view snapshots.
type viewWriter struct {
	out  io.Writer
	json bool

	logged int
	user   string
}

func (w *viewWriter) watch(done <-chan struct{}, cell *view.Cell, shellEvents <-chan ir.ShellEvent) error {
	var seen uint64
	for {
		changed := cell.Changed()
		if v := cell.Version(); v != seen {
			seen = v
			if err := w.write(cell.Load()); err != nil {
				return err
			}
		}
		select {
		case <-done:
			for _, ev := range drainShellEvents(shellEvents) {
				if err := w.open(ev.URL); err != nil {
					return err
				}
			}
			if cell.Version() != seen {
				return w.write(cell.Load())
			}
			return nil
		case ev, ok := <-shellEvents:
			if !ok {
				shellEvents = nil
				continue
			}
			if err := w.open(ev.URL); err != nil {
				return err
			}
		case <-changed:
		}
	}
}

func (w *viewWriter) write(vm *ir.ViewModel) error {
	if w.json {
		return json.NewEncoder(w.out).Encode(vm)
	}
	if len(vm.Log) < w.logged {
		w.logged = 0
	}
	printLog(w.out, vm.Log[w.logged:])
	w.logged = len(vm.Log)

	name := ""
	if vm.UserInfo != nil {
		name = vm.UserInfo.Name
	}
	if name != w.user {
		w.user = name
		if name == "" {
			fmt.Fprintln(w.out, "signed out")
		} else {
			fmt.Fprintf(w.out, "signed in as %s\n", name)
		}
	}
	return nil
}

func (w *viewWriter) open(url string) error {
	if w.json {
		return json.NewEncoder(w.out).Encode(map[string]string{"open_url": url})
	}
	_, err := fmt.Fprintf(w.out, "open: %s\n", url)
	return err
}
