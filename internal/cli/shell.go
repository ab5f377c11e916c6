package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alasdair-cooper/watch-history/internal/broadcast"
	"github.com/alasdair-cooper/watch-history/internal/config"
	"github.com/alasdair-cooper/watch-history/internal/core"
	"github.com/alasdair-cooper/watch-history/internal/effects"
	"github.com/alasdair-cooper/watch-history/internal/engine"
	"github.com/alasdair-cooper/watch-history/internal/ir"
	"github.com/alasdair-cooper/watch-history/internal/kv"
	"github.com/alasdair-cooper/watch-history/internal/store"
	"github.com/alasdair-cooper/watch-history/internal/telemetry"
)

// shell is a fully wired engine with the resources it owns.
type shell struct {
	cfg     *config.Config
	logger  *slog.Logger
	engine  *engine.Engine
	kv      kv.Store
	journal *store.Store // nil unless journal.enabled

	closers []func() error
}

// openShell builds the engine described by the config: key-value store,
// executors, decision core, optional journal and optional tracing.
// Diagnostics and spans go to stderr.
func openShell(ctx context.Context, opts *RootOptions, stderr io.Writer) (_ *shell, err error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	logger := newLogger(stderr, cfg.Log, opts.Verbose)
	slog.SetDefault(logger)

	s := &shell{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(cfg.Telemetry.ServiceName, stderr, logger)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to initialize tracing", err)
		}
		s.closers = append(s.closers, func() error { return shutdown(context.Background()) })
	}

	s.kv, err = kv.Open(cfg.Storage.Path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open storage", err)
	}
	s.closers = append(s.closers, s.kv.Close)

	c, closeCore, err := newCore(cfg, logger)
	if err != nil {
		return nil, err
	}
	if closeCore != nil {
		s.closers = append(s.closers, closeCore)
	}

	engineOpts := []engine.Option{
		engine.WithMaxSteps(cfg.Engine.MaxSteps),
		engine.WithSequential(cfg.Engine.Sequential),
		engine.WithLogger(logger),
		engine.WithShellEvents(broadcast.New[ir.ShellEvent](cfg.Events.Buffer, logger)),
	}
	if cfg.Journal.Enabled {
		s.journal, err = store.Open(cfg.Journal.Path)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		s.closers = append(s.closers, s.journal.Close)

		// Continue the sequence so entries from earlier runs keep their order.
		last, err := s.journal.MaxSeq(ctx)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to read journal", err)
		}
		engineOpts = append(engineOpts, engine.WithJournal(s.journal), engine.WithClock(engine.NewClockAt(last)))
	}

	network := effects.NewNetwork(
		effects.WithTimeout(cfg.Network.Timeout),
		effects.WithBlockPrivateNetworks(cfg.Network.BlockPrivateNetworks),
		effects.WithTracing(cfg.Telemetry.Enabled),
		effects.WithNetworkLogger(logger),
	)
	storage := effects.NewStorage(s.kv,
		effects.WithStorageTimeout(cfg.Storage.Timeout),
		effects.WithStorageLogger(logger),
	)
	s.engine = engine.New(c, network, storage, engineOpts...)

	logger.Debug("shell ready",
		"storage", cfg.Storage.Path,
		"journal", cfg.Journal.Enabled,
		"sequential", cfg.Engine.Sequential,
	)
	return s, nil
}

// Close releases everything in reverse order of acquisition.
func (s *shell) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// newCore starts the configured decision core. The returned close function
// is nil for in-process cores.
func newCore(cfg *config.Config, logger *slog.Logger) (core.Core, func() error, error) {
	if len(cfg.Core.Command) > 0 {
		p, err := core.StartProcess(cfg.Core.Command[0], cfg.Core.Command[1:], os.Environ(), logger)
		if err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "failed to start core process", err)
		}
		return p, p.Close, nil
	}

	script := core.DefaultScript()
	if cfg.Core.Script != "" {
		s, err := core.LoadScript(cfg.Core.Script)
		if err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "failed to load core script", err)
		}
		script = s
	}
	return core.NewScriptCore(script, core.WithVars(scriptVars(cfg))), nil, nil
}

// scriptVars merges config vars over the callback redirect URI, so the
// script and the callback check agree unless a var says otherwise.
func scriptVars(cfg *config.Config) map[string]string {
	vars := map[string]string{"redirect_uri": cfg.Callback.RedirectURI}
	for k, v := range cfg.Core.Vars {
		vars[k] = v
	}
	return vars
}

// parseEvent turns a CLI word into an event. A word that is a URL is treated
// as an OAuth callback and must match callback.redirect_uri.
func parseEvent(cfg *config.Config, word string) (ir.Event, error) {
	if kind, err := ir.ParseEventKind(word); err == nil {
		if kind == ir.EventCallbackReceived {
			return ir.Event{}, fmt.Errorf("callback_received needs a URL; pass the callback URL itself")
		}
		return ir.Event{Kind: kind}, nil
	}
	if cfg.AcceptsCallback(word) {
		return ir.CallbackReceived(word), nil
	}
	return ir.Event{}, fmt.Errorf("unknown event %q (want initial_load, login_button_clicked or a callback URL under %s)", word, cfg.Callback.RedirectURI)
}
