package bindgen

import (
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/wasmbind/bindgen/internal/ctoken"
	"github.com/wippyai/wasmbind/declsort"
	"github.com/wippyai/wasmbind/errors"
	"github.com/wippyai/wasmbind/platform"
)

// Options configures a generator run.
type Options struct {
	// Package is the Go package name of the output. Default "capi".
	Package string

	// Platform selects the data model and build constraint. The zero value
	// means the host.
	Platform platform.Platform

	// Headers restricts scanning to these file names within the directory.
	// Empty means every *.h file, in lexical order.
	Headers []string

	// Includes lists the headers named in the cgo preamble. Empty means the
	// scanned headers.
	Includes []string

	// Prefixes keeps only functions and constants whose C name starts with
	// one of them. Types are always emitted since kept declarations may use them.
	Prefixes []string

	// Generator names the tool in the Code generated line.
	Generator string

	// Logger receives scan and emit diagnostics. Nil means the package logger.
	Logger *zap.Logger
}

func (o Options) wants(name string) bool {
	if len(o.Prefixes) == 0 {
		return true
	}
	for _, p := range o.Prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

func (o Options) withDefaults() (Options, error) {
	if o.Package == "" {
		o.Package = "capi"
	}
	if o.Generator == "" {
		o.Generator = "wasmgen"
	}
	if o.Platform == (platform.Platform{}) {
		host, err := platform.Host()
		if err != nil {
			return o, err
		}
		o.Platform = host
	}
	return o, nil
}

// Generate scans the C headers in dir and returns Go bindings for them,
// formatted and with declarations in dependency order.
func Generate(dir string, opts Options) ([]byte, error) {
	src, err := generate(dir, opts)
	if err != nil {
		return nil, err
	}
	return declsort.Rewrite(src)
}

// GenerateFile writes the bindings for the headers in dir to out.
func GenerateFile(dir, out string, opts Options) error {
	src, err := generate(dir, opts)
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, src, 0o644); err != nil {
		return errors.Wrap(errors.PhaseGenerate, errors.KindInvalidInput, err, "writing "+out)
	}
	return declsort.RewriteFile(out)
}

func generate(dir string, opts Options) ([]byte, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	base := opts.Logger
	if base == nil {
		base = Logger()
	}
	log := base.With(zap.String("dir", dir), zap.String("platform", opts.Platform.Triple()))

	files, err := headerFiles(dir, opts.Headers)
	if err != nil {
		return nil, err
	}

	h := newHeader()
	pp := newPreproc(opts.Platform)
	for _, path := range files {
		if err := scan(h, pp, path, log); err != nil {
			return nil, err
		}
	}
	log.Debug("headers scanned",
		zap.Int("files", len(files)),
		zap.Int("records", len(h.records)),
		zap.Int("funcs", len(h.funcs)))

	return newEmitter(h, pp, opts, log).emit()
}

func headerFiles(dir string, names []string) ([]string, error) {
	if len(names) > 0 {
		files := make([]string, len(names))
		for i, n := range names {
			files[i] = filepath.Join(dir, n)
		}
		return files, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseGenerate, errors.KindNotFound, err, "reading header directory "+dir)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".h" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, errors.NotFound(errors.PhaseGenerate, "header", dir)
	}
	slices.Sort(files)
	return files, nil
}

func scan(h *header, pp *preproc, path string, log *zap.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(errors.PhaseGenerate, errors.KindNotFound, err, "reading "+path)
	}
	name := filepath.Base(path)
	h.files = append(h.files, path)

	toks := pp.run(ctoken.Tokenize(string(data)), func(macro string, value []ctoken.Token, line int) {
		h.defines = append(h.defines, &define{name: macro, value: value, pos: name + ":" + strconv.Itoa(line)})
	})
	p := &parser{h: h, pp: pp, file: name, toks: toks, log: log}
	return p.parse()
}
