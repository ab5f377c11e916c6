package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/alasdair-cooper/watch-history/internal/store"
)

// openJournal opens an existing journal: the --db path when given, else
// journal.path from the config.
func openJournal(opts *RootOptions, db string) (*store.Store, error) {
	if db == "" {
		cfg, err := loadConfig(opts)
		if err != nil {
			return nil, err
		}
		db = cfg.Journal.Path
	}
	if _, err := os.Stat(db); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("journal not found: %s", db))
		}
		return nil, WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	st, err := store.Open(db)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	return st, nil
}
