package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/alasdair-cooper/watch-history/internal/kv"
)

// KVResult is the JSON output of the kv subcommands.
type KVResult struct {
	Key    string   `json:"key,omitempty"`
	Value  *string  `json:"value,omitempty"`
	Found  bool     `json:"found"`
	Keys   []string `json:"keys,omitempty"`
	Action string   `json:"action"`
}

// NewKVCommand creates the kv command group for inspecting the shell's
// key-value store.
func NewKVCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kv",
		Short: "Inspect and edit the key-value store",
		Long: `Read and write the key-value store the core's storage effects use
(storage.path from the config).

Examples:
  watchshell kv list
  watchshell kv get github_tokens
  watchshell kv set github_tokens gho_xxx
  watchshell kv delete github_tokens`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "get <key>",
		Short:         "Print a value",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withKV(rootOpts, cmd, func(ctx context.Context, s kv.Store) (KVResult, error) {
				value, found, err := s.Get(ctx, args[0])
				if err != nil {
					return KVResult{}, err
				}
				res := KVResult{Action: "get", Key: args[0], Found: found}
				if found {
					v := string(value)
					res.Value = &v
				}
				return res, nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "set <key> <value>",
		Short:         "Store a value",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withKV(rootOpts, cmd, func(ctx context.Context, s kv.Store) (KVResult, error) {
				if err := s.Set(ctx, args[0], []byte(args[1])); err != nil {
					return KVResult{}, err
				}
				return KVResult{Action: "set", Key: args[0], Found: true}, nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "delete <key>",
		Short:         "Remove a key",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withKV(rootOpts, cmd, func(ctx context.Context, s kv.Store) (KVResult, error) {
				existed, err := s.Exists(ctx, args[0])
				if err != nil {
					return KVResult{}, err
				}
				if err := s.Delete(ctx, args[0]); err != nil {
					return KVResult{}, err
				}
				return KVResult{Action: "delete", Key: args[0], Found: existed}, nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "list [prefix]",
		Short:         "List keys, optionally by prefix",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}
			return withKV(rootOpts, cmd, func(ctx context.Context, s kv.Store) (KVResult, error) {
				keys, err := s.ListKeys(ctx, prefix)
				if err != nil {
					return KVResult{}, err
				}
				return KVResult{Action: "list", Keys: keys, Found: len(keys) > 0}, nil
			})
		},
	})

	return cmd
}

func withKV(opts *RootOptions, cmd *cobra.Command, fn func(context.Context, kv.Store) (KVResult, error)) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	s, err := kv.Open(cfg.Storage.Path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open storage", err)
	}
	defer s.Close()

	res, err := fn(ctx, s)
	if err != nil {
		return WrapExitError(ExitFailure, fmt.Sprintf("kv %s failed", cmd.Name()), err)
	}

	formatter := newFormatter(opts, cmd)
	if err := formatter.Emit(res, func(w io.Writer) { printKV(w, res) }); err != nil {
		return err
	}
	if res.Action == "get" && !res.Found {
		return NewExitError(ExitFailure, fmt.Sprintf("key not found: %s", res.Key))
	}
	return nil
}

func printKV(w io.Writer, r KVResult) {
	switch r.Action {
	case "get":
		if r.Value != nil {
			fmt.Fprintln(w, *r.Value)
		}
	case "set":
		fmt.Fprintf(w, "set %s\n", r.Key)
	case "delete":
		if r.Found {
			fmt.Fprintf(w, "deleted %s\n", r.Key)
		} else {
			fmt.Fprintf(w, "%s did not exist\n", r.Key)
		}
	case "list":
		for _, k := range r.Keys {
			fmt.Fprintln(w, k)
		}
	}
}
