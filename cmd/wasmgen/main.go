// Command wasmgen generates cgo bindings from runtime C headers, orders Go
// declarations by dependency, and resolves prebuilt runtime artifacts.
package main

import (
	"context"
	"errors"
	"os"
)

func main() {
	app := newApp(os.Stdout, os.Stderr)
	err := newRootCommand(app).ExecuteContext(context.Background())
	if err == nil {
		return
	}
	app.Log.Error(err)
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.Code)
	}
	os.Exit(1)
}
