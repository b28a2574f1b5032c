// Package fold normalises card names for accent- and case-insensitive lookup.
package fold

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Letters that do not decompose into a base letter plus marks.
var ligatures = strings.NewReplacer(
	"Æ", "AE", "æ", "ae",
	"Œ", "OE", "œ", "oe",
	"ß", "ss",
	"Ø", "O", "ø", "o",
	"Ł", "L", "ł", "l",
	"Đ", "D", "đ", "d",
	"Þ", "Th", "þ", "th",
)

// Name returns s with diacritics removed, ligatures expanded and letters
// lower-cased: "Lim-Dûl's Vault" becomes "lim-dul's vault" and
// "Æther Vial" becomes "aether vial".
func Name(s string) string {
	// Transformers carry state, so each call builds its own chain.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, ligatures.Replace(s))
	if err != nil {
		stripped = s
	}
	return cases.Lower(language.Und).String(stripped)
}
