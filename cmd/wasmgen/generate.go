package main

import (
	"github.com/spf13/cobra"

	"github.com/wippyai/wasmbind/bindgen"
)

func newGenerateCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate <include-dir>",
		Short: "Generate Go bindings from the C headers in a directory",
		Long: `Generate scans the runtime C headers in include-dir and writes cgo
bindings whose declarations are ordered so that each appears after the
declarations it depends on.`,
		Example: `  wasmgen generate ./wasmtime/include --prefix wasm_ --prefix wasmtime_ -o capi/capi.go
  wasmgen generate ./include --platform aarch64-macos --header wasm.h`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, app, args[0])
		},
	}

	flags := cmd.Flags()
	flags.StringP("out", "o", "-", "output file, - for stdout")
	flags.String("package", "capi", "Go package name of the output")
	flags.StringSlice("prefix", nil, "keep only functions and constants with this C prefix (repeatable)")
	flags.StringSlice("header", nil, "scan only these header files (default: every *.h)")
	flags.StringSlice("include", nil, "headers named in the cgo preamble (default: scanned headers)")
	return cmd
}

func runGenerate(cmd *cobra.Command, app *App, dir string) error {
	cfg := app.Config
	target, err := cfg.Target()
	if err != nil {
		return err
	}
	opts := bindgen.Options{
		Package:   cfg.Package,
		Platform:  target,
		Headers:   cfg.Headers,
		Includes:  cfg.Includes,
		Prefixes:  cfg.Prefixes,
		Generator: cfg.Generator,
	}
	if app.Debug != nil {
		opts.Logger = app.Debug.Named("bindgen")
	}
	app.Log.Debug("generating", "dir", dir, "platform", target.Triple(), "package", cfg.Package, "prefixes", joinList(cfg.Prefixes))

	if cfg.Out == "" || cfg.Out == "-" {
		src, err := bindgen.Generate(dir, opts)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(src)
		return err
	}
	if err := bindgen.GenerateFile(dir, cfg.Out, opts); err != nil {
		return err
	}
	app.Log.Info("bindings written", "file", cfg.Out, "platform", target.Triple())
	return nil
}
