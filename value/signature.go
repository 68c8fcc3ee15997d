package value

import (
	"slices"
	"strings"
)

// Signature is a function type: ordered parameter and result kinds.
type Signature struct {
	Params  []Kind
	Results []Kind
}

// NewSignature copies params and results into a Signature.
func NewSignature(params, results []Kind) Signature {
	return Signature{
		Params:  append([]Kind(nil), params...),
		Results: append([]Kind(nil), results...),
	}
}

// Equal reports whether s and o have the same params and results.
func (s Signature) Equal(o Signature) bool {
	return slices.Equal(s.Params, o.Params) && slices.Equal(s.Results, o.Results)
}

func (s Signature) String() string {
	var b strings.Builder
	writeKinds(&b, s.Params)
	b.WriteString(" -> ")
	writeKinds(&b, s.Results)
	return b.String()
}

func writeKinds(b *strings.Builder, kinds []Kind) {
	b.WriteByte('(')
	for i, k := range kinds {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k.String())
	}
	b.WriteByte(')')
}
