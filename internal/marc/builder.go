// Package marc serializes canonical records into binary MARC21 (ISO 2709)
// for import into library systems such as Koha and SLiMS.
//
// Layout: 24-byte leader, directory (12 bytes per field: 3-char tag,
// 4-digit length, 5-digit start offset), then the data block. Fields end
// with a field terminator and the record with a record terminator. The
// leader carries the total record length and the data block's base address,
// so assembly is two-pass: serialize every field first, then compute the
// directory and leader from the resulting byte lengths.
package marc

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"

	"shelfmark/internal/metadata"
)

const (
	fieldTerminator   = 0x1e
	recordTerminator  = 0x1d
	subfieldDelimiter = 0x1f

	leaderLength      = 24
	summaryMaxRunes   = 500
	maxSubjectFields  = 5
	originatingSystem = "ShelfMark"
)

// field is one MARC field before serialization. Control fields (00X) carry
// value; variable fields carry indicators and subfields.
type field struct {
	tag        string
	indicators string
	value      string
	subfields  []subfield
}

type subfield struct {
	code  byte
	value string
}

// Build serializes one canonical record.
func Build(m *metadata.BookMetadata) []byte {
	return buildAt(m, time.Now().UTC())
}

// BuildBatch concatenates per-record serializations with no separator;
// each record is self-delimited by its terminator.
func BuildBatch(records []*metadata.BookMetadata) []byte {
	now := time.Now().UTC()
	var out bytes.Buffer
	for _, m := range records {
		out.Write(buildAt(m, now))
	}
	return out.Bytes()
}

func buildAt(m *metadata.BookMetadata, now time.Time) []byte {
	isbn := m.ISBN
	if isbn == "" {
		isbn = "unknown"
	}

	fields := []field{
		{tag: "001", value: isbn},
		{tag: "003", value: originatingSystem},
		{tag: "005", value: formatMarcDate(now)},
		{tag: "008", value: build008(m, now)},
	}

	if m.ISBN != "" {
		fields = append(fields, field{tag: "020", indicators: "  ",
			subfields: []subfield{{'a', m.ISBN}}})
	}
	if lang := deref(m.Language); lang != "" {
		fields = append(fields, field{tag: "041", indicators: "0 ",
			subfields: []subfield{{'a', clip(lang, 3)}}})
	}
	if ddc := deref(m.DDC); ddc != "" {
		fields = append(fields, field{tag: "082", indicators: "04",
			subfields: []subfield{{'a', ddc}}})
	}
	if lcc := deref(m.LCC); lcc != "" {
		fields = append(fields, field{tag: "050", indicators: " 4",
			subfields: []subfield{{'a', lcc}}})
	}
	if len(m.Authors) > 0 {
		fields = append(fields, field{tag: "100", indicators: "1 ",
			subfields: []subfield{{'a', m.Authors[0]}}})
	}
	if title := deref(m.Title); title != "" {
		sf := []subfield{{'a', title}}
		if subtitle := deref(m.Subtitle); subtitle != "" {
			sf = append(sf, subfield{'b', subtitle})
		}
		if gmd := deref(m.GMD); gmd != "" {
			sf = append(sf, subfield{'h', gmd})
		}
		if len(m.Authors) > 0 {
			sf = append(sf, subfield{'c', strings.Join(m.Authors, ", ")})
		}
		fields = append(fields, field{tag: "245", indicators: "10", subfields: sf})
	}
	if edition := deref(m.Edition); edition != "" {
		fields = append(fields, field{tag: "250", indicators: "  ",
			subfields: []subfield{{'a', edition}}})
	}
	if place, publisher, date := deref(m.PublishPlace), deref(m.Publisher), deref(m.PublishedDate); place != "" || publisher != "" || date != "" {
		var sf []subfield
		if place != "" {
			sf = append(sf, subfield{'a', place})
		}
		if publisher != "" {
			sf = append(sf, subfield{'b', publisher})
		}
		if date != "" {
			sf = append(sf, subfield{'c', date})
		}
		fields = append(fields, field{tag: "264", indicators: " 1", subfields: sf})
	}
	if collation := physicalDescription(m); collation != "" {
		fields = append(fields, field{tag: "300", indicators: "  ",
			subfields: []subfield{{'a', collation}}})
	}
	if series := deref(m.Series); series != "" {
		fields = append(fields, field{tag: "490", indicators: "0 ",
			subfields: []subfield{{'a', series}}})
	}
	if desc := deref(m.Description); desc != "" {
		fields = append(fields, field{tag: "520", indicators: "  ",
			subfields: []subfield{{'a', clip(desc, summaryMaxRunes)}}})
	}
	for i, subject := range splitSubjects(deref(m.Subjects)) {
		if i == maxSubjectFields {
			break
		}
		fields = append(fields, field{tag: "650", indicators: " 0",
			subfields: []subfield{{'a', subject}}})
	}
	for _, coauthor := range m.Authors[min(1, len(m.Authors)):] {
		fields = append(fields, field{tag: "700", indicators: "1 ",
			subfields: []subfield{{'a', coauthor}}})
	}

	return assemble(fields)
}

// assemble runs the second pass: directory offsets and the leader are
// byte counts, never rune counts, or every later field is corrupted.
func assemble(fields []field) []byte {
	var data, directory bytes.Buffer

	for _, f := range fields {
		payload := f.payload()
		start := data.Len()
		length := len(payload) + 1 // + field terminator
		fmt.Fprintf(&directory, "%s%04d%05d", f.tag, length, start)
		data.Write(payload)
		data.WriteByte(fieldTerminator)
	}

	baseAddress := leaderLength + directory.Len() + 1
	recordLength := baseAddress + data.Len() + 1

	var out bytes.Buffer
	out.Grow(recordLength)
	out.WriteString(buildLeader(recordLength, baseAddress))
	out.Write(directory.Bytes())
	out.WriteByte(fieldTerminator)
	out.Write(data.Bytes())
	out.WriteByte(recordTerminator)
	return out.Bytes()
}

func (f field) payload() []byte {
	if len(f.subfields) == 0 {
		return []byte(f.value)
	}
	var buf bytes.Buffer
	indicators := f.indicators
	if indicators == "" {
		indicators = "  "
	}
	buf.WriteString(indicators)
	for _, sf := range f.subfields {
		buf.WriteByte(subfieldDelimiter)
		buf.WriteByte(sf.code)
		buf.WriteString(sf.value)
	}
	return buf.Bytes()
}

// buildLeader emits the fixed 24-byte header: record length, status "n",
// type "a" (language material), level "m" (monograph), indicator and
// subfield code counts, base address, and the 4500 entry map.
func buildLeader(recordLength, baseAddress int) string {
	return fmt.Sprintf("%05dnam  22%05d   4500", recordLength, baseAddress)
}

var leadingYear = regexp.MustCompile(`^\d{4}`)

// build008 emits the fixed 40-character data elements block: entry date at
// 0-5, publication year at 7-10, language at 35-37.
func build008(m *metadata.BookMetadata, now time.Time) string {
	year := leadingYear.FindString(deref(m.PublishedDate))
	if year == "" {
		year = "    "
	}
	lang := clip(deref(m.Language), 3)
	if lang == "" {
		lang = "eng"
	}
	return fmt.Sprintf("%ss%s%s%-3s  ", now.Format("060102"), year, strings.Repeat(" ", 24), lang)
}

// formatMarcDate renders field 005: YYYYMMDDHHMMSS.0
func formatMarcDate(t time.Time) string {
	return t.Format("20060102150405") + ".0"
}

func physicalDescription(m *metadata.BookMetadata) string {
	if collation := deref(m.Collation); collation != "" {
		return collation
	}
	if m.PageCount != nil && *m.PageCount > 0 {
		return fmt.Sprintf("%d p.", *m.PageCount)
	}
	return ""
}

func splitSubjects(joined string) []string {
	if joined == "" {
		return nil
	}
	var subjects []string
	for _, s := range strings.Split(joined, ";") {
		if s = strings.TrimSpace(s); s != "" {
			subjects = append(subjects, s)
		}
	}
	return subjects
}

func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
