package declsort

import (
	"go.uber.org/zap"

	"github.com/wippyai/wasmbind/errors"
)

// Kind classifies a declaration.
type Kind uint8

const (
	KindType       Kind = iota // type declarations
	KindFunc                   // functions and methods
	KindConstAlias             // const X = Y, Y a bare identifier
	KindConstValue             // every other const and var
)

func (k Kind) String() string {
	switch k {
	case KindType:
		return "type"
	case KindFunc:
		return "func"
	case KindConstAlias:
		return "const_alias"
	case KindConstValue:
		return "const_value"
	default:
		return "unknown"
	}
}

// Node is one top-level declaration.
type Node struct {
	// Name identifies the node. Methods are named Recv.Method.
	Name string
	// Text is the printed declaration including its doc comment.
	Text string
	// Deps are the names this declaration references. Names outside the
	// node set and the node's own name are ignored by Order.
	Deps []string
	Kind Kind
}

// Order returns the node names in dependency order.
// It fails with *errors.CycleError when some nodes can never be emitted.
func Order(nodes []*Node) ([]string, error) {
	sorted, err := sortNodes(nodes)
	if err != nil || sorted == nil {
		return nil, err
	}
	names := make([]string, len(sorted))
	for i, n := range sorted {
		names[i] = n.Name
	}
	return names, nil
}

// sortNodes is Order over the nodes themselves, so repeated names such as
// init functions keep their own text.
func sortNodes(nodes []*Node) ([]*Node, error) {
	if len(nodes) == 0 {
		return nil, nil
	}

	// The first node with a name is the one references resolve to.
	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		if _, ok := index[n.Name]; !ok {
			index[n.Name] = i
		}
	}

	deps := make([][]int, len(nodes))
	for i, n := range nodes {
		seen := make(map[int]bool, len(n.Deps))
		for _, d := range n.Deps {
			j, ok := index[d]
			if !ok || d == n.Name || j == i || seen[j] {
				continue
			}
			seen[j] = true
			deps[i] = append(deps[i], j)
		}
	}

	emitted := make([]bool, len(nodes))
	out := make([]*Node, 0, len(nodes))
	rest := make([]int, 0, len(nodes))
	for i, n := range nodes {
		if len(deps[i]) == 0 {
			emitted[i] = true
			out = append(out, n)
			continue
		}
		rest = append(rest, i)
	}

	passes := 0
	for len(rest) > 0 {
		passes++
		next := rest[:0]
		for _, i := range rest {
			if !ready(deps[i], emitted) {
				next = append(next, i)
				continue
			}
			emitted[i] = true
			out = append(out, nodes[i])
		}
		if len(next) == len(rest) {
			names := make([]string, len(next))
			for k, i := range next {
				names[k] = nodes[i].Name
			}
			return nil, &errors.CycleError{Names: names}
		}
		rest = next
	}

	Logger().Debug("declarations ordered", zap.Int("nodes", len(out)), zap.Int("passes", passes))
	return out, nil
}

func ready(deps []int, emitted []bool) bool {
	for _, j := range deps {
		if !emitted[j] {
			return false
		}
	}
	return true
}
