package main

import (
	"bytes"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wippyai/wasmbind/errors"
)

const engineHeader = `#ifndef WASM_H
#define WASM_H
#include <stdint.h>
#define WASM_PAGE_SIZE 0x10000
typedef struct wasm_engine_t wasm_engine_t;
wasm_engine_t* wasm_engine_new(void);
void wasm_engine_delete(wasm_engine_t* engine);
int32_t other_helper(int32_t x);
#endif
`

const sha = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

// execute runs wasmgen with args from dir and returns stdout.
func execute(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	var out, errOut bytes.Buffer
	cmd := newRootCommand(newApp(&out, &errOut))
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestGenerateCommand(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "include", "wasm.h"), engineHeader)

	out, err := execute(t, dir, "generate", "include", "--platform", "x86_64-linux", "--prefix", "wasm_,WASM_", "--package", "wasmcapi")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	for _, want := range []string{"//go:build linux && amd64", "package wasmcapi", "func WasmEngineNew() *WasmEngine", "WasmPageSize"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "OtherHelper") {
		t.Errorf("prefix filter ignored:\n%s", out)
	}
}

func TestGenerateCommand_OutFileAndConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "include", "wasm.h"), engineHeader)
	writeFile(t, filepath.Join(dir, "wasmgen.toml"), "package = \"fromconfig\"\nplatform = \"aarch64-macos\"\n")

	out, err := execute(t, dir, "generate", "include", "-o", "capi.go")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out != "" {
		t.Errorf("stdout = %q, want empty", out)
	}
	src, err := os.ReadFile(filepath.Join(dir, "capi.go"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(src), "package fromconfig") || !strings.Contains(string(src), "//go:build darwin && arm64") {
		t.Errorf("config file not applied:\n%s", src)
	}
}

func TestGenerateCommand_EnvOverridesConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "include", "wasm.h"), engineHeader)
	writeFile(t, filepath.Join(dir, "wasmgen.toml"), "package = \"fromconfig\"\n")
	t.Setenv("WASMGEN_PACKAGE", "fromenv")

	out, err := execute(t, dir, "generate", "include", "--platform", "x86_64-linux")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.Contains(out, "package fromenv") {
		t.Errorf("env not applied:\n%s", out)
	}
}

func TestGenerateCommand_Errors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "empty", "README"), "no headers")

	tests := []struct {
		name string
		args []string
		want error
	}{
		{"no headers", []string{"generate", "empty"}, errors.ErrNotFound},
		{"malformed platform", []string{"generate", "empty", "--platform", "x86_64"}, errors.ErrInvalidInput},
		{"unknown architecture", []string{"generate", "empty", "--platform", "sparc-solaris"}, errors.ErrUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, dir, tt.args...)
			if !stderrors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

const unsortedSrc = `package demo

func area(s Shape) int { return s.W * s.H }

type Shape struct {
	W, H int
}
`

func TestSortCommand(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "demo.go")
	writeFile(t, file, unsortedSrc)

	out, err := execute(t, dir, "sort", "--check", "demo.go")
	var exitErr *ExitError
	if !stderrors.As(err, &exitErr) || exitErr.Code != 1 {
		t.Fatalf("check error = %v, want exit 1", err)
	}
	if strings.TrimSpace(out) != "demo.go" {
		t.Errorf("check output = %q", out)
	}

	if _, err := execute(t, dir, "sort", "demo.go"); err != nil {
		t.Fatalf("sort: %v", err)
	}
	src, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Index(string(src), "type Shape") > strings.Index(string(src), "func area") {
		t.Errorf("declarations not reordered:\n%s", src)
	}

	if _, err := execute(t, dir, "sort", "--check", "demo.go"); err != nil {
		t.Errorf("check after sort: %v", err)
	}
}

func TestSortCommand_Cycle(t *testing.T) {
	dir := t.TempDir()
	src := "package demo\n\nvar a = b\n\nvar b = a\n"
	writeFile(t, filepath.Join(dir, "cycle.go"), src)

	_, err := execute(t, dir, "sort", "cycle.go")
	var cycle *errors.CycleError
	if !stderrors.As(err, &cycle) {
		t.Fatalf("error = %v, want CycleError", err)
	}
	got, err := os.ReadFile(filepath.Join(dir, "cycle.go"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != src {
		t.Errorf("file modified on cycle:\n%s", got)
	}
}

func TestResolveCommand(t *testing.T) {
	dir := t.TempDir()
	manifest := "version = \"36.0.2\"\n\n[artifacts.\"x86_64-linux\"]\n" +
		"url = \"https://releases.example.com/wasmtime-v36.0.2-x86_64-linux-c-api.tar.xz\"\n" +
		"sha256 = \"" + sha + "\"\n"
	writeFile(t, filepath.Join(dir, "artifacts.toml"), manifest)
	writeFile(t, filepath.Join(dir, "archive.tar.xz"), "test")

	out, err := execute(t, dir, "resolve", "--platform", "x86_64-linux", "--cache-dir", "cache", "--verify", "archive.tar.xz")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	for _, want := range []string{
		"36.0.2",
		"wasmtime-v36.0.2-x86_64-linux-c-api.tar.xz",
		filepath.Join("cache", "36.0.2", "x86_64-linux", "include"),
		"verified",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out, err = execute(t, dir, "resolve", "--list")
	if err != nil || strings.TrimSpace(out) != "x86_64-linux" {
		t.Errorf("list = %q, %v", out, err)
	}
}

func TestResolveCommand_Errors(t *testing.T) {
	dir := t.TempDir()
	manifest := "version = \"1\"\n\n[artifacts.\"x86_64-linux\"]\nurl = \"https://x.test/a.tar.gz\"\nsha256 = \"" + sha + "\"\n"
	writeFile(t, filepath.Join(dir, "artifacts.toml"), manifest)
	writeFile(t, filepath.Join(dir, "bad.tar.gz"), "tampered")

	tests := []struct {
		name string
		args []string
		want error
	}{
		{"missing manifest", []string{"resolve", "--manifest", "nope.toml"}, errors.ErrNotFound},
		{"unknown platform", []string{"resolve", "--platform", "aarch64-linux"}, errors.ErrNotFound},
		{"hash mismatch", []string{"resolve", "--platform", "x86_64-linux", "--verify", "bad.tar.gz"}, errors.ErrHashMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, dir, tt.args...)
			if !stderrors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestResolveCommand_TokenNotPrinted(t *testing.T) {
	dir := t.TempDir()
	manifest := "version = \"1\"\n\n[artifacts.\"x86_64-linux\"]\nurl = \"https://x.test/a.tar.gz\"\nsha256 = \"" + sha + "\"\n"
	writeFile(t, filepath.Join(dir, "artifacts.toml"), manifest)
	t.Setenv("WASMGEN_GITHUB_TOKEN", "ghp_secret")

	out, err := execute(t, dir, "resolve", "--platform", "x86_64-linux")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "ghp_secret") || !strings.Contains(out, "token configured") {
		t.Errorf("output = %q", out)
	}
}

func TestVersionString(t *testing.T) {
	origVersion, origCommit := Version, Commit
	t.Cleanup(func() { Version, Commit = origVersion, origCommit })

	if got := versionString(); got != "dev (built from source)" {
		t.Errorf("versionString() = %q", got)
	}
	Version, Commit = "v0.3.0", "abc1234"
	if got := versionString(); got != "v0.3.0 (commit: abc1234)" {
		t.Errorf("versionString() = %q", got)
	}
}

