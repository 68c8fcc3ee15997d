package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/wippyai/wasmbind/native"
	"github.com/wippyai/wasmbind/runtime"
	"github.com/wippyai/wasmbind/value"
)

// parseArgs converts command line strings to Go values of the given kinds.
func parseArgs(raw []string, kinds []value.Kind) ([]any, error) {
	if len(raw) != len(kinds) {
		return nil, fmt.Errorf("expected %d arguments, got %d", len(kinds), len(raw))
	}
	args := make([]any, len(raw))
	for i, s := range raw {
		v, err := parseArg(strings.TrimSpace(s), kinds[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		args[i] = v
	}
	return args, nil
}

func parseArg(s string, k value.Kind) (any, error) {
	switch k {
	case value.KindI32:
		// Accept the unsigned range too; the bits are what the guest sees.
		if v, err := strconv.ParseInt(s, 0, 32); err == nil {
			return int32(v), nil
		}
		v, err := strconv.ParseUint(s, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid i32 %q", s)
		}
		return int32(uint32(v)), nil
	case value.KindI64:
		if v, err := strconv.ParseInt(s, 0, 64); err == nil {
			return v, nil
		}
		v, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid i64 %q", s)
		}
		return int64(v), nil
	case value.KindF32:
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid f32 %q", s)
		}
		return float32(v), nil
	case value.KindF64:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid f64 %q", s)
		}
		return v, nil
	case value.KindExternRef, value.KindFuncRef:
		if s != "null" && s != "" {
			return nil, fmt.Errorf("only null %s can be passed from the command line", k)
		}
		return nil, nil
	}
	return nil, fmt.Errorf("%s arguments are not supported", k)
}

func formatResult(r any) string {
	switch v := r.(type) {
	case nil:
		return "()"
	case []any:
		parts := make([]string, len(v))
		for i, x := range v {
			parts[i] = formatResult(x)
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case float32:
		return formatFloat(float64(v), 32)
	case float64:
		return formatFloat(v, 64)
	case *runtime.Func:
		if v == nil {
			return "null"
		}
		return "funcref"
	case [16]byte:
		return fmt.Sprintf("%x", v[:])
	}
	return fmt.Sprint(r)
}

func formatFloat(f float64, bits int) string {
	if math.IsNaN(f) {
		return "nan"
	}
	return strconv.FormatFloat(f, 'g', -1, bits)
}

func externTypeString(t native.ExternType) string {
	switch t.Kind {
	case native.ExternFunc:
		return "func" + t.Func.String()
	case native.ExternGlobal:
		mut := "const"
		if t.Global.Mutable {
			mut = "mut"
		}
		return "global " + mut + " " + t.Global.Kind.String()
	case native.ExternMemory:
		return "memory " + limitsString(t.Memory)
	case native.ExternTable:
		return "table " + t.Table.Elem.String() + " " + limitsString(t.Table.Limits)
	}
	return t.Kind.String()
}

func limitsString(l native.Limits) string {
	if l.HasMax {
		return fmt.Sprintf("%d..%d", l.Min, l.Max)
	}
	return fmt.Sprintf("%d..", l.Min)
}

// envHost provides the "env" imports demo modules use for output.
type envHost struct {
	out func(string)
}

func (envHost) Namespace() string { return "env" }

func (h envHost) Register() map[string]any {
	return map[string]any{
		"print_i32": func(v int32) { h.out(strconv.FormatInt(int64(v), 10)) },
		"print_i64": func(v int64) { h.out(strconv.FormatInt(v, 10)) },
		"print_f64": func(v float64) { h.out(formatFloat(v, 64)) },
	}
}
