package shared

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeText NFC-normalizes and trims free text. Item names and barcodes
// arrive from Arabic-language clients where the same string can be composed
// in multiple Unicode forms; normalizing on write keeps code uniqueness
// checks and searches byte-comparable.
func NormalizeText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
