package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/alasdair-cooper/watch-history/internal/core"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Script string                 `json:"script"`
	Valid  bool                   `json:"valid"`
	Rules  int                    `json:"rules"`
	Errors []core.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [script]",
		Short: "Check a core script without running it",
		Long: `Parse a YAML or CUE core script and report every problem with its
field path and error code. Without an argument the built-in script is checked.

Exit codes:
  0 - Script is valid
  1 - Script has validation errors
  2 - Script could not be read or parsed`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runValidate(rootOpts, path, cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	name := "(built-in)"
	script := core.DefaultScript()
	if path != "" {
		name = path
		s, err := core.LoadScript(path)
		if s == nil {
			// Read or parse failure; validation failures still return the script.
			_ = formatter.Error("E100", err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to load script", err)
		}
		script = s
	}
	formatter.VerboseLog("Validating %s (%d rules)", name, len(script.Rules))

	result := ValidationResult{Script: name, Rules: len(script.Rules), Errors: core.Validate(script)}
	result.Valid = len(result.Errors) == 0

	if err := formatter.Emit(result, func(w io.Writer) { printValidation(w, result) }); err != nil {
		return err
	}
	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("%d validation error(s)", len(result.Errors)))
	}
	return nil
}

func printValidation(w io.Writer, r ValidationResult) {
	if r.Valid {
		fmt.Fprintf(w, "✓ %s: %d rules valid\n", r.Script, r.Rules)
		return
	}
	fmt.Fprintf(w, "✗ %s: %d error(s)\n", r.Script, len(r.Errors))
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  %s\n", e.Error())
	}
}
