package util

import (
	"crypto/sha1"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// TextKey creates a stable key for a piece of text, used to detect
// duplicate poems whose full text is identical after normalization.
// The text is NFC-normalized and stripped of whitespace before hashing
// so that layout differences between corpus files do not split keys.
func TextKey(text string) string {
	normalized := norm.NFC.String(text)
	var b strings.Builder
	b.Grow(len(normalized))
	for _, r := range normalized {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	h := sha1.Sum([]byte(b.String()))
	return fmt.Sprintf("%x", h)
}

// NormalizeText NFC-normalizes text and trims surrounding whitespace.
// Corpus files mix composed and decomposed forms for the same characters.
func NormalizeText(text string) string {
	return strings.TrimSpace(norm.NFC.String(text))
}
