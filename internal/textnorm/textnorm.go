// Package textnorm normalises player-typed text so that comparisons of names
// and guesses do not depend on case, Unicode composition or stray spaces.
package textnorm

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Clean composes to NFC, trims and collapses inner whitespace runs to a
// single space.
func Clean(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

// Fold is Clean plus Unicode case folding. Two strings that fold to the same
// value are considered equal.
func Fold(s string) string {
	return cases.Fold().String(Clean(s))
}
