// Package email derives presentation values from addresses.
package email

import (
	"strings"
	"unicode"
)

// DisplayName turns the local part of an address into a greeting name:
// "maria.lopez+camino@example.org" becomes "Maria Lopez". Tags after '+'
// are ignored and an unusable local part yields the whole address.
func DisplayName(address string) string {
	local, _, found := strings.Cut(address, "@")
	if !found || local == "" {
		return address
	}
	local, _, _ = strings.Cut(local, "+")

	words := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-'
	})
	if len(words) == 0 {
		return address
	}
	for i, w := range words {
		words[i] = capitalize(w)
	}
	return strings.Join(words, " ")
}

func capitalize(s string) string {
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
