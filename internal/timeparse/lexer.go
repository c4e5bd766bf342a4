package timeparse

import (
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokWord
	tokColon
	tokSymbol
)

type token struct {
	kind tokenKind
	text string
}

// tokenize splits a lowercased expression into numbers, words and colons.
// Whitespace only separates tokens, so "9pm" and "9 pm" lex identically.
func tokenize(expr string) []token {
	var toks []token
	runes := []rune(strings.ToLower(expr))
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case unicode.IsDigit(r):
			j := i
			for j < len(runes) && unicode.IsDigit(runes[j]) {
				j++
			}
			toks = append(toks, token{kind: tokNumber, text: string(runes[i:j])})
			i = j
		case unicode.IsLetter(r):
			j := i
			for j < len(runes) && unicode.IsLetter(runes[j]) {
				j++
			}
			toks = append(toks, token{kind: tokWord, text: string(runes[i:j])})
			i = j
		case r == ':':
			toks = append(toks, token{kind: tokColon, text: ":"})
			i++
		default:
			toks = append(toks, token{kind: tokSymbol, text: string(r)})
			i++
		}
	}
	return toks
}
