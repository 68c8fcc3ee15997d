// Package artifact reads the manifest of prebuilt runtime archives and
// locates the archive, include and lib directories for a platform.
//
// A manifest is a TOML document:
//
//	version = "36.0.2"
//
//	[artifacts."x86_64-linux"]
//	url = "https://example.com/wasmtime-v36.0.2-x86_64-linux-c-api.tar.xz"
//	sha256 = "9f2c..."
//	include = "wasmtime-v36.0.2-x86_64-linux-c-api/include"
//	lib = "wasmtime-v36.0.2-x86_64-linux-c-api/lib"
//
// Table keys are target triples in any form [platform.Parse] accepts.
package artifact

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/wippyai/wasmbind/errors"
	"github.com/wippyai/wasmbind/platform"
)

// Manifest lists archives by platform triple.
type Manifest struct {
	Version   string           `toml:"version"`
	Artifacts map[string]Entry `toml:"artifacts"`
}

// Entry describes one archive.
type Entry struct {
	URL    string `toml:"url"`
	SHA256 string `toml:"sha256"`

	// Include and Lib are directories relative to the extracted archive.
	// They default to "include" and "lib".
	Include string `toml:"include,omitempty"`
	Lib     string `toml:"lib,omitempty"`
}

// Artifact is the manifest entry selected for a platform.
type Artifact struct {
	Entry
	Version  string
	Platform platform.Platform
}

// Paths are local directories of an extracted artifact.
type Paths struct {
	Root    string
	Include string
	Lib     string
}

// Load reads and validates the manifest at path.
func Load(file string) (*Manifest, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return nil, errors.NotFound(errors.PhaseManifest, "manifest", file)
		}
		return nil, errors.Wrap(errors.PhaseManifest, errors.KindInvalidInput, err, "reading "+file)
	}
	m, err := Parse(data)
	if err != nil {
		var e *errors.Error
		if stderrors.As(err, &e) {
			e.Path = append([]string{file}, e.Path...)
		}
		return nil, err
	}
	return m, nil
}

// Parse decodes a manifest. Unknown keys are rejected and artifact keys
// are normalized to canonical triples.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return nil, decodeError(err)
	}

	if m.Version == "" {
		return nil, errors.New(errors.PhaseManifest, errors.KindInvalidInput).
			Path("version").
			Detail("missing version").
			Build()
	}

	keys := make([]string, 0, len(m.Artifacts))
	for k := range m.Artifacts {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	artifacts := make(map[string]Entry, len(m.Artifacts))
	for _, key := range keys {
		entry := m.Artifacts[key]
		p, err := platform.Parse(key)
		if err != nil {
			return nil, errors.New(errors.PhaseManifest, errors.KindInvalidInput).
				Path("artifacts", key).
				Cause(err).
				Detail("invalid target triple").
				Build()
		}
		if err := entry.validate(); err != nil {
			err.Path = append([]string{"artifacts", key}, err.Path...)
			return nil, err
		}
		triple := p.Triple()
		if _, dup := artifacts[triple]; dup {
			return nil, errors.New(errors.PhaseManifest, errors.KindInvalidInput).
				Path("artifacts", key).
				Detail("duplicate entry for %s", triple).
				Build()
		}
		entry.SHA256 = strings.ToLower(entry.SHA256)
		artifacts[triple] = entry
	}
	m.Artifacts = artifacts
	return &m, nil
}

func decodeError(err error) error {
	var derr *toml.DecodeError
	if stderrors.As(err, &derr) {
		row, col := derr.Position()
		return errors.New(errors.PhaseManifest, errors.KindParse).
			Cause(err).
			Detail("parsing manifest TOML at line %d, column %d", row, col).
			Build()
	}
	var serr *toml.StrictMissingError
	if stderrors.As(err, &serr) {
		return errors.New(errors.PhaseManifest, errors.KindParse).
			Cause(err).
			Detail("unknown manifest keys: %s", strings.TrimSpace(serr.String())).
			Build()
	}
	return errors.ParseFailed(errors.PhaseManifest, "manifest TOML", err)
}

func (e Entry) validate() *errors.Error {
	u, err := url.Parse(e.URL)
	if e.URL == "" || err != nil || u.Scheme == "" || path.Base(u.Path) == "/" || path.Base(u.Path) == "." {
		return errors.New(errors.PhaseManifest, errors.KindInvalidInput).
			Path("url").
			Detail("invalid archive url %q", e.URL).
			Build()
	}
	if !isHexHash(e.SHA256) {
		return errors.New(errors.PhaseManifest, errors.KindInvalidInput).
			Path("sha256").
			Detail("expected 64 hex digits, got %q", e.SHA256).
			Build()
	}
	for key, dir := range map[string]string{"include": e.Include, "lib": e.Lib} {
		if filepath.IsAbs(dir) || slices.Contains(strings.Split(filepath.ToSlash(dir), "/"), "..") {
			return errors.New(errors.PhaseManifest, errors.KindInvalidInput).
				Path(key).
				Detail("directory %q escapes the archive", dir).
				Build()
		}
	}
	return nil
}

// Marshal encodes the manifest as TOML.
func (m *Manifest) Marshal() ([]byte, error) {
	data, err := toml.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseManifest, errors.KindInvalidInput, err, "encoding manifest")
	}
	return data, nil
}

// Platforms returns the triples the manifest covers, sorted.
func (m *Manifest) Platforms() []string {
	triples := make([]string, 0, len(m.Artifacts))
	for t := range m.Artifacts {
		triples = append(triples, t)
	}
	slices.Sort(triples)
	return triples
}

// Resolve selects the archive for p.
func (m *Manifest) Resolve(p platform.Platform) (Artifact, error) {
	entry, ok := m.Artifacts[p.Triple()]
	if !ok {
		return Artifact{}, errors.NotFound(errors.PhaseManifest, "artifact", p.Triple())
	}
	return Artifact{Entry: entry, Version: m.Version, Platform: p}, nil
}

// ArchiveName is the file name of the archive in its URL.
func (a Artifact) ArchiveName() string {
	u, err := url.Parse(a.URL)
	if err != nil {
		return path.Base(a.URL)
	}
	return path.Base(u.Path)
}

// Paths returns the local directories of the artifact extracted under root:
// <root>/<version>/<triple>/{include,lib}.
func (a Artifact) Paths(root string) Paths {
	dir := filepath.Join(root, a.Version, a.Platform.Triple())
	include, lib := a.Include, a.Lib
	if include == "" {
		include = "include"
	}
	if lib == "" {
		lib = "lib"
	}
	return Paths{
		Root:    dir,
		Include: filepath.Join(dir, filepath.FromSlash(include)),
		Lib:     filepath.Join(dir, filepath.FromSlash(lib)),
	}
}

// Verify checks the SHA-256 digest of the archive at path.
func (a Artifact) Verify(archive string) error {
	got, err := ComputeFileHash(archive)
	if err != nil {
		return err
	}
	if !strings.EqualFold(got, a.SHA256) {
		return errors.HashMismatch(archive, strings.ToLower(a.SHA256), got)
	}
	return nil
}

// ComputeFileHash returns the lowercase hex SHA-256 digest of the file at path.
func ComputeFileHash(file string) (string, error) {
	f, err := os.Open(file)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return "", errors.NotFound(errors.PhaseManifest, "archive", file)
		}
		return "", errors.Wrap(errors.PhaseManifest, errors.KindInvalidInput, err, "opening "+file)
	}
	defer func() {
		_ = f.Close()
	}()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.Wrap(errors.PhaseManifest, errors.KindInvalidInput, err, "hashing "+file)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func isHexHash(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
