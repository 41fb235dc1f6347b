package metadata

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInvalidISBN is returned for input that cannot be a 10 or 13 digit ISBN.
// It is a caller error: nothing is dispatched to the sources.
var ErrInvalidISBN = errors.New("invalid ISBN: must be 10 or 13 digits")

var (
	isbnStripRe = regexp.MustCompile(`[^0-9Xx]`)
	isbn10Re    = regexp.MustCompile(`^\d{9}[\dX]$`)
	isbn13Re    = regexp.MustCompile(`^\d{13}$`)
)

// NormalizeISBN strips separators and qualifiers ("978-602-1234", "0306406152 (pbk.)")
// down to the bare digits plus a possible X check digit, uppercased.
// Idempotent: NormalizeISBN(NormalizeISBN(x)) == NormalizeISBN(x).
func NormalizeISBN(raw string) string {
	return strings.ToUpper(isbnStripRe.ReplaceAllString(raw, ""))
}

// ValidateISBN normalizes raw and verifies it has a 10 or 13 digit shape.
func ValidateISBN(raw string) (string, error) {
	isbn := NormalizeISBN(raw)
	switch len(isbn) {
	case 10:
		if isbn10Re.MatchString(isbn) {
			return isbn, nil
		}
	case 13:
		if isbn13Re.MatchString(isbn) {
			return isbn, nil
		}
	}
	return "", ErrInvalidISBN
}

// StripPrefix13 drops the 978/979 bookland prefix from a 13-digit ISBN so it
// can be compared against older records that only carry the 10-digit core.
// Anything else is returned unchanged.
func StripPrefix13(isbn string) string {
	if len(isbn) == 13 && (strings.HasPrefix(isbn, "978") || strings.HasPrefix(isbn, "979")) {
		return isbn[3:]
	}
	return isbn
}
