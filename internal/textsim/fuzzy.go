package textsim

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Ratio returns a character-level similarity in [0, 1] between a and b using
// the Ratcliff/Obershelp sequence matcher. Identical strings score 1.0.
func Ratio(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	m := difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, ""))
	return m.Ratio()
}
