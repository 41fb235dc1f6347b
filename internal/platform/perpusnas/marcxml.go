package perpusnas

import (
	"regexp"
	"strings"
)

// RawMarcRecord is the flat intermediate form of one harvested MARCXML
// record. It exists only to be converted into a canonical record and is
// never exposed to callers of the adapter.
type RawMarcRecord struct {
	OAIID        string
	Title        string
	Subtitle     string
	Author       string
	AddedAuthors []string
	Publisher    string
	PublishPlace string
	Year         string
	Language     string
	Collation    string
	Subjects     []string
	ISBN         string
}

// AllAuthors returns primary plus additional authors in order.
func (r *RawMarcRecord) AllAuthors() []string {
	var out []string
	if r.Author != "" {
		out = append(out, r.Author)
	}
	return append(out, r.AddedAuthors...)
}

// marcRecord mirrors the MARCXML slim schema. encoding/xml matches local
// element names regardless of namespace prefix, and slice fields absorb one
// or many occurrences of a repeatable element, so the protocol's
// single-vs-array ambiguity never reaches field extraction.
type marcRecord struct {
	Leader        string         `xml:"leader"`
	ControlFields []controlField `xml:"controlfield"`
	DataFields    []dataField    `xml:"datafield"`
}

type controlField struct {
	Tag   string `xml:"tag,attr"`
	Value string `xml:",chardata"`
}

type dataField struct {
	Tag       string     `xml:"tag,attr"`
	Ind1      string     `xml:"ind1,attr"`
	Ind2      string     `xml:"ind2,attr"`
	Subfields []subfield `xml:"subfield"`
}

type subfield struct {
	Code  string `xml:"code,attr"`
	Value string `xml:",chardata"`
}

func (f dataField) subfield(code string) string {
	for _, sf := range f.Subfields {
		if sf.Code == code {
			return sf.Value
		}
	}
	return ""
}

var (
	yearRe         = regexp.MustCompile(`\d{4}`)
	isbnKeepRe     = regexp.MustCompile(`[^0-9Xx]`)
	trimAuthorRe   = regexp.MustCompile(`[,;.]+$`)
	trimTitleRe    = regexp.MustCompile(`[/:;]+$`)
	trimPubRe      = regexp.MustCompile(`[,;:]+$`)
	trimSubjectRe  = regexp.MustCompile(`\.+$`)
	fourDigitsOnly = regexp.MustCompile(`^\d{4}$`)
)

// parseMARCXML extracts the cataloging fields we care about from one record.
// Partial extraction always succeeds; nil is returned only when the record
// container itself is missing.
func parseMARCXML(rec *marcRecord) *RawMarcRecord {
	if rec == nil {
		return nil
	}

	raw := &RawMarcRecord{}

	// Control field 008 carries publication year (offset 7-11) and language
	// code (offset 35-38) at fixed positions.
	for _, cf := range rec.ControlFields {
		if cf.Tag != "008" {
			continue
		}
		text := cf.Value
		if len(text) >= 38 {
			if year := text[7:11]; fourDigitsOnly.MatchString(year) {
				raw.Year = year
			}
			if lang := strings.TrimSpace(text[35:38]); lang != "" {
				raw.Language = lang
			}
		}
	}

	for _, f := range rec.DataFields {
		switch f.Tag {
		case "020":
			isbn := isbnKeepRe.ReplaceAllString(f.subfield("a"), "")
			if len(isbn) > 13 {
				isbn = isbn[:13]
			}
			raw.ISBN = strings.ToUpper(isbn)

		case "100":
			raw.Author = trimField(f.subfield("a"), trimAuthorRe)

		case "245":
			raw.Title = trimField(f.subfield("a"), trimTitleRe)
			raw.Subtitle = trimField(f.subfield("b"), trimTitleRe)

		case "260", "264":
			if raw.PublishPlace == "" {
				raw.PublishPlace = trimField(f.subfield("a"), trimPubRe)
			}
			if raw.Publisher == "" {
				raw.Publisher = trimField(f.subfield("b"), trimPubRe)
			}
			if raw.Year == "" {
				if match := yearRe.FindString(f.subfield("c")); match != "" {
					raw.Year = match
				}
			}

		case "300":
			parts := []string{}
			if extent := trimField(f.subfield("a"), trimPubRe); extent != "" {
				parts = append(parts, extent)
			}
			if dimensions := trimField(f.subfield("c"), trimPubRe); dimensions != "" {
				parts = append(parts, dimensions)
			}
			raw.Collation = strings.Join(parts, " ; ")

		case "650", "651", "653":
			subject := trimField(f.subfield("a"), trimSubjectRe)
			if subject != "" && !contains(raw.Subjects, subject) {
				raw.Subjects = append(raw.Subjects, subject)
			}

		case "700":
			added := trimField(f.subfield("a"), trimAuthorRe)
			if added != "" && added != raw.Author {
				raw.AddedAuthors = append(raw.AddedAuthors, added)
			}
		}
	}

	return raw
}

func trimField(s string, trailing *regexp.Regexp) string {
	return strings.TrimSpace(trailing.ReplaceAllString(strings.TrimSpace(s), ""))
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
