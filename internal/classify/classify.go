// Package classify assigns library classifications (DDC, LCC, call number,
// subject headings) to canonical records through a three-layer cascade:
// verified local cache, Open Library, then a generative model primed with
// examples already catalogued in this library.
package classify

import (
	"strings"
	"time"
	"unicode"
)

// Cache entry provenance.
const (
	CacheSourceManual      = "manual"
	CacheSourceOpenLibrary = "openlibrary"
	CacheSourceAI          = "ai"
)

// CacheEntry is one row of the classification cache. Verified rows were
// confirmed by a librarian and short-circuit the cascade.
type CacheEntry struct {
	ISBN       string    `json:"isbn"`
	Title      string    `json:"title"`
	Authors    *string   `json:"authors"`
	DDC        *string   `json:"ddc"`
	LCC        *string   `json:"lcc"`
	CallNumber *string   `json:"callNumber"`
	Subjects   *string   `json:"subjects"`
	Source     string    `json:"source"`
	Verified   bool      `json:"verified"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// BuildCallNumber derives a shelving call number: the DDC followed by the
// first three letters of the first author's surname, uppercased
// ("650.1 NEW"). An inverted "Surname, Given" form is honored; otherwise
// the last space-separated token is taken as the surname.
func BuildCallNumber(ddc, author string) string {
	if ddc == "" {
		return ""
	}
	author = strings.TrimSpace(author)
	surname := author
	if i := strings.Index(author, ","); i >= 0 {
		surname = strings.TrimSpace(author[:i])
	} else if i := strings.LastIndex(author, " "); i >= 0 {
		surname = author[i+1:]
	}

	var letters []rune
	for _, r := range strings.ToUpper(surname) {
		if unicode.IsLetter(r) {
			letters = append(letters, r)
		}
		if len(letters) == 3 {
			break
		}
	}
	if len(letters) == 0 {
		return ddc
	}
	return ddc + " " + string(letters)
}
