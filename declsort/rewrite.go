package declsort

import (
	"bytes"
	"go/format"
	"os"

	"go.uber.org/zap"

	"github.com/wippyai/wasmbind/errors"
)

// Rewrite reorders the declarations of a Go source file and formats it.
func Rewrite(src []byte) ([]byte, error) {
	file, err := Parse(src)
	if err != nil {
		return nil, err
	}
	nodes, err := sortNodes(file.Nodes)
	if err != nil {
		return nil, err
	}

	var b bytes.Buffer
	b.WriteString(file.Header)
	b.WriteByte('\n')
	for _, n := range nodes {
		b.WriteByte('\n')
		b.WriteString(n.Text)
		b.WriteByte('\n')
	}
	if file.Trailer != "" {
		b.WriteByte('\n')
		b.WriteString(file.Trailer)
		b.WriteByte('\n')
	}

	out, err := format.Source(b.Bytes())
	if err != nil {
		return nil, errors.Wrap(errors.PhaseResolve, errors.KindParse, err, "format reordered source")
	}
	return out, nil
}

// RewriteFile rewrites the file at path in place. The file is left
// untouched when ordering fails or nothing moved.
func RewriteFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrap(errors.PhaseResolve, errors.KindInvalidInput, err, "stat "+path)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(errors.PhaseResolve, errors.KindInvalidInput, err, "read "+path)
	}
	out, err := Rewrite(src)
	if err != nil {
		return err
	}
	if bytes.Equal(out, src) {
		Logger().Debug("declarations already ordered", zap.String("path", path))
		return nil
	}
	if err := os.WriteFile(path, out, info.Mode().Perm()); err != nil {
		return errors.Wrap(errors.PhaseResolve, errors.KindInvalidInput, err, "write "+path)
	}
	Logger().Info("declarations reordered", zap.String("path", path))
	return nil
}
