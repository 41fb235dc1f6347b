package metadata

import (
	"encoding/json"
	"time"
)

// Source tags recorded on a canonical record for provenance.
const (
	SourceGoogle      = "google"
	SourceOpenLibrary = "openlibrary"
	SourceLoC         = "loc"
	SourcePerpusnas   = "perpusnas"
	SourceLocalCache  = "local_cache"
	SourceAI          = "ai"
)

// Classification trust levels.
const (
	TrustHigh   = "high"
	TrustMedium = "medium"
	TrustLow    = "low"
)

// ChangeEvent is one entry in the append-only classification change log.
type ChangeEvent struct {
	At      time.Time `json:"at"`
	Model   string    `json:"model"`
	Changes []string  `json:"changes"`
}

// BookMetadata is the canonical record every adapter produces and every
// consumer reads. ISBN is always present and normalized; every other field
// is independently nullable. Nil pointers marshal as JSON null, which callers
// must treat the same as a missing key.
type BookMetadata struct {
	ISBN          string   `json:"isbn"`
	Title         *string  `json:"title"`
	Subtitle      *string  `json:"subtitle"`
	Authors       []string `json:"authors"`
	Publisher     *string  `json:"publisher"`
	PublishedDate *string  `json:"publishedDate"`
	Description   *string  `json:"description"`
	PageCount     *int     `json:"pageCount"`
	Categories    []string `json:"categories"`
	Language      *string  `json:"language"`
	Thumbnail     *string  `json:"thumbnail"`
	Source        string   `json:"source"`

	// Extended cataloging fields, filled by the classification cascade
	// or by sources that carry library-grade data (OAI-PMH harvest).
	DDC          *string `json:"ddc,omitempty"`
	LCC          *string `json:"lcc,omitempty"`
	CallNumber   *string `json:"callNumber,omitempty"`
	Subjects     *string `json:"subjects,omitempty"` // semicolon-joined headings
	Series       *string `json:"series,omitempty"`
	Edition      *string `json:"edition,omitempty"`
	Collation    *string `json:"collation,omitempty"`
	GMD          *string `json:"gmd,omitempty"`
	PublishPlace *string `json:"publishPlace,omitempty"`

	ClassificationTrust *string       `json:"classificationTrust,omitempty"`
	IsAIEnhanced        bool          `json:"isAiEnhanced,omitempty"`
	EnhancedAt          *time.Time    `json:"enhancedAt,omitempty"`
	ChangeLog           []ChangeEvent `json:"changeLog,omitempty"`
}

// SourceResult wraps one adapter's outcome. Absence of data is Data == nil,
// never an error escaping the adapter boundary.
type SourceResult struct {
	Data     *BookMetadata `json:"data"`
	Source   string        `json:"source"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"-"`
}

// DurationMs is what gets reported to callers.
func (r SourceResult) DurationMs() int64 {
	return r.Duration.Milliseconds()
}

// MarshalJSON emits the duration in milliseconds. time.Duration's default
// integer encoding is nanoseconds, which no client wants to read.
func (r SourceResult) MarshalJSON() ([]byte, error) {
	type plain SourceResult
	return json.Marshal(struct {
		plain
		DurationMs int64 `json:"durationMs"`
	}{plain(r), r.DurationMs()})
}

// NewEmpty returns a canonical record with only ISBN and source tag set.
func NewEmpty(isbn, source string) *BookMetadata {
	return &BookMetadata{
		ISBN:       isbn,
		Authors:    []string{},
		Categories: []string{},
		Source:     source,
	}
}

// Ptr returns a pointer to v. Convenient for filling nullable fields.
func Ptr[T any](v T) *T {
	return &v
}

// FirstAuthor returns the first author name, or "" when none.
func (m *BookMetadata) FirstAuthor() string {
	if m == nil || len(m.Authors) == 0 {
		return ""
	}
	return m.Authors[0]
}
