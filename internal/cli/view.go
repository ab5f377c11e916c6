package cli

import (
	"fmt"
	"io"

	"github.com/alasdair-cooper/watch-history/internal/ir"
)

func printView(w io.Writer, vm *ir.ViewModel) {
	if vm.UserInfo != nil {
		fmt.Fprintf(w, "Signed in as %s\n", vm.UserInfo.Name)
	} else {
		fmt.Fprintln(w, "Not signed in")
	}

	fmt.Fprintf(w, "\nFilms (%d):\n", len(vm.Films))
	for _, f := range vm.Films {
		fmt.Fprintf(w, "  %-30s %s", f.Title, f.Rating)
		if f.YearWatched != 0 {
			fmt.Fprintf(w, "  watched %04d", f.YearWatched)
			if f.MonthWatched != 0 {
				fmt.Fprintf(w, "-%02d", f.MonthWatched)
			}
		}
		fmt.Fprintln(w)
	}

	if len(vm.Log) > 0 {
		fmt.Fprintln(w, "\nLog:")
		printLog(w, vm.Log)
	}
}

func printLog(w io.Writer, entries []ir.LogEntry) {
	for _, e := range entries {
		fmt.Fprintf(w, "  [%s] %s\n", e.Level, e.Message)
	}
}
