package ctoken

import (
	"strings"
	"unicode"
)

type Type int

const (
	Ident Type = iota
	Number
	String
	Char
	Punct
	Directive
)

func (t Type) String() string {
	switch t {
	case Ident:
		return "identifier"
	case Number:
		return "number"
	case String:
		return "string"
	case Char:
		return "character"
	case Punct:
		return "punctuation"
	case Directive:
		return "directive"
	}
	return "unknown"
}

type Token struct {
	Value string
	Type  Type
	Line  int
}

// Is reports whether t is the punctuation or identifier s.
func (t Token) Is(s string) bool {
	return (t.Type == Punct || t.Type == Ident) && t.Value == s
}

var puncts = []string{
	"...", "<<", ">>", "&&", "||", "==", "!=", "<=", ">=", "->", "##",
}

// Tokenize splits C source into tokens. Comments are dropped. A
// preprocessor line, continuations joined and comments removed, becomes
// one Directive token holding the text after '#'.
func Tokenize(input string) []Token {
	var tokens []Token
	line := 1
	lineStart := true
	runes := []rune(input)

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if r == '\n' {
			line++
			lineStart = true
			continue
		}
		if unicode.IsSpace(r) {
			continue
		}

		if r == '/' && i+1 < len(runes) && runes[i+1] == '/' {
			for i+1 < len(runes) && runes[i+1] != '\n' {
				i++
			}
			continue
		}
		if r == '/' && i+1 < len(runes) && runes[i+1] == '*' {
			i += 2
			for i < len(runes) && !(runes[i] == '*' && i+1 < len(runes) && runes[i+1] == '/') {
				if runes[i] == '\n' {
					line++
				}
				i++
			}
			i++
			continue
		}

		if r == '#' && lineStart {
			start := line
			var b strings.Builder
			i++
			for i < len(runes) && runes[i] != '\n' {
				switch {
				case runes[i] == '\\' && i+1 < len(runes) && runes[i+1] == '\n':
					b.WriteByte(' ')
					line++
					i += 2
					continue
				case runes[i] == '/' && i+1 < len(runes) && runes[i+1] == '/':
					for i < len(runes) && runes[i] != '\n' {
						i++
					}
					continue
				case runes[i] == '/' && i+1 < len(runes) && runes[i+1] == '*':
					i += 2
					for i < len(runes) && !(runes[i] == '*' && i+1 < len(runes) && runes[i+1] == '/') {
						if runes[i] == '\n' {
							line++
						}
						i++
					}
					i += 2
					b.WriteByte(' ')
					continue
				}
				b.WriteRune(runes[i])
				i++
			}
			i--
			tokens = append(tokens, Token{strings.TrimSpace(b.String()), Directive, start})
			continue
		}
		lineStart = false

		if r == '"' || r == '\'' {
			start := i
			i++
			for i < len(runes) && runes[i] != r && runes[i] != '\n' {
				if runes[i] == '\\' {
					i++
				}
				i++
			}
			typ := String
			if r == '\'' {
				typ = Char
			}
			end := min(i+1, len(runes))
			tokens = append(tokens, Token{string(runes[start:end]), typ, line})
			continue
		}

		if unicode.IsDigit(r) || (r == '.' && i+1 < len(runes) && unicode.IsDigit(runes[i+1])) {
			start := i
			for i < len(runes) {
				c := runes[i]
				if unicode.IsDigit(c) || unicode.IsLetter(c) || c == '.' || c == '_' ||
					((c == '-' || c == '+') && (runes[i-1] == 'e' || runes[i-1] == 'E' || runes[i-1] == 'p' || runes[i-1] == 'P')) {
					i++
				} else {
					break
				}
			}
			tokens = append(tokens, Token{string(runes[start:i]), Number, line})
			i--
			continue
		}

		if unicode.IsLetter(r) || r == '_' {
			start := i
			for i < len(runes) && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_') {
				i++
			}
			tokens = append(tokens, Token{string(runes[start:i]), Ident, line})
			i--
			continue
		}

		matched := false
		for _, p := range puncts {
			if strings.HasPrefix(string(runes[i:min(i+len(p), len(runes))]), p) {
				tokens = append(tokens, Token{p, Punct, line})
				i += len(p) - 1
				matched = true
				break
			}
		}
		if !matched {
			tokens = append(tokens, Token{string(r), Punct, line})
		}
	}

	return tokens
}
