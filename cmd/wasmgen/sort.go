package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wippyai/wasmbind/declsort"
	"github.com/wippyai/wasmbind/errors"
)

func newSortCommand(app *App) *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "sort <file.go>...",
		Short: "Reorder declarations so definitions precede their uses",
		Long: `Sort rewrites Go files in place so every top-level declaration appears
after the declarations it references. Imports stay first and comments travel
with their declarations. A dependency cycle is reported and the file is left
untouched.

With --check nothing is written and the command exits with status 1 if any
file is out of order.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSort(cmd, app, args, check)
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "report unsorted files without rewriting them")
	return cmd
}

func runSort(cmd *cobra.Command, app *App, files []string, check bool) error {
	var unsorted []string
	for _, file := range files {
		if !check {
			if err := declsort.RewriteFile(file); err != nil {
				return err
			}
			app.Log.Debug("sorted", "file", file)
			continue
		}

		src, err := os.ReadFile(file)
		if err != nil {
			return errors.Wrap(errors.PhaseResolve, errors.KindInvalidInput, err, "read "+file)
		}
		out, err := declsort.Rewrite(src)
		if err != nil {
			return err
		}
		if !bytes.Equal(src, out) {
			unsorted = append(unsorted, file)
			fmt.Fprintln(cmd.OutOrStdout(), file)
		}
	}
	if len(unsorted) > 0 {
		return &ExitError{Code: 1, Err: fmt.Errorf("%d file(s) not in dependency order", len(unsorted))}
	}
	return nil
}
