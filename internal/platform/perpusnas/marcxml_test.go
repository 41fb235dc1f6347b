package perpusnas

import (
	"encoding/xml"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRecordXML = `
<marc:record xmlns:marc="http://www.loc.gov/MARC21/slim">
  <marc:leader>00000nam a2200000 a 4500</marc:leader>
  <marc:controlfield tag="008">230115s2022    io            000 0 ind d</marc:controlfield>
  <marc:datafield tag="020" ind1=" " ind2=" ">
    <marc:subfield code="a">978-623-0012-34-5 (pbk.)</marc:subfield>
  </marc:datafield>
  <marc:datafield tag="100" ind1="1" ind2=" ">
    <marc:subfield code="a">Pramoedya Ananta Toer,</marc:subfield>
  </marc:datafield>
  <marc:datafield tag="245" ind1="1" ind2="0">
    <marc:subfield code="a">Bumi manusia :</marc:subfield>
    <marc:subfield code="b">sebuah roman /</marc:subfield>
  </marc:datafield>
  <marc:datafield tag="260" ind1=" " ind2=" ">
    <marc:subfield code="a">Jakarta :</marc:subfield>
    <marc:subfield code="b">Hasta Mitra,</marc:subfield>
    <marc:subfield code="c">cetakan 2022.</marc:subfield>
  </marc:datafield>
  <marc:datafield tag="300" ind1=" " ind2=" ">
    <marc:subfield code="a">535 halaman ;</marc:subfield>
    <marc:subfield code="c">21 cm</marc:subfield>
  </marc:datafield>
  <marc:datafield tag="650" ind1=" " ind2="4">
    <marc:subfield code="a">Fiksi Indonesia.</marc:subfield>
  </marc:datafield>
  <marc:datafield tag="650" ind1=" " ind2="4">
    <marc:subfield code="a">Fiksi Indonesia.</marc:subfield>
  </marc:datafield>
  <marc:datafield tag="653" ind1=" " ind2=" ">
    <marc:subfield code="a">Roman sejarah</marc:subfield>
  </marc:datafield>
  <marc:datafield tag="700" ind1="1" ind2=" ">
    <marc:subfield code="a">Pramoedya Ananta Toer,</marc:subfield>
  </marc:datafield>
  <marc:datafield tag="700" ind1="1" ind2=" ">
    <marc:subfield code="a">Max Lane;</marc:subfield>
  </marc:datafield>
</marc:record>`

func decodeRecord(t *testing.T, payload string) *marcRecord {
	t.Helper()
	var rec marcRecord
	require.NoError(t, xml.Unmarshal([]byte(payload), &rec))
	return &rec
}

func TestParseMARCXML(t *testing.T) {
	raw := parseMARCXML(decodeRecord(t, sampleRecordXML))
	require.NotNil(t, raw)

	t.Run("isbn stripped and truncated", func(t *testing.T) {
		assert.Equal(t, "9786230012345", raw.ISBN)
	})

	t.Run("title and subtitle trim trailing punctuation", func(t *testing.T) {
		assert.Equal(t, "Bumi manusia", raw.Title)
		assert.Equal(t, "sebuah roman", raw.Subtitle)
	})

	t.Run("publication field", func(t *testing.T) {
		assert.Equal(t, "Jakarta", raw.PublishPlace)
		assert.Equal(t, "Hasta Mitra", raw.Publisher)
	})

	t.Run("control field 008 wins the year", func(t *testing.T) {
		// 008 offset 7-11 is 2022; 260$c also carries 2022 but must not overwrite
		assert.Equal(t, "2022", raw.Year)
	})

	t.Run("language from 008 offset 35-38", func(t *testing.T) {
		assert.Equal(t, "ind", raw.Language)
	})

	t.Run("collation joins extent and dimensions", func(t *testing.T) {
		assert.Equal(t, "535 halaman ; 21 cm", raw.Collation)
	})

	t.Run("subjects deduplicated across 650 and 653", func(t *testing.T) {
		assert.Equal(t, []string{"Fiksi Indonesia", "Roman sejarah"}, raw.Subjects)
	})

	t.Run("700 identical to primary author skipped", func(t *testing.T) {
		assert.Equal(t, "Pramoedya Ananta Toer", raw.Author)
		assert.Equal(t, []string{"Max Lane"}, raw.AddedAuthors)
		assert.Equal(t, []string{"Pramoedya Ananta Toer", "Max Lane"}, raw.AllAuthors())
	})
}

func TestParseMARCXMLRepeatableTolerance(t *testing.T) {
	single := `<record><datafield tag="650"><subfield code="a">Work.</subfield></datafield></record>`
	multiple := `<record>
		<datafield tag="650"><subfield code="a">Work.</subfield></datafield>
		<datafield tag="650"><subfield code="a">Attention.</subfield></datafield>
	</record>`

	t.Run("single occurrence yields one-element list", func(t *testing.T) {
		raw := parseMARCXML(decodeRecord(t, single))
		assert.Equal(t, []string{"Work"}, raw.Subjects)
	})

	t.Run("multiple occurrences yield same shape", func(t *testing.T) {
		raw := parseMARCXML(decodeRecord(t, multiple))
		assert.Equal(t, []string{"Work", "Attention"}, raw.Subjects)
	})
}

func TestParseMARCXMLPartial(t *testing.T) {
	t.Run("nil record container returns nil", func(t *testing.T) {
		assert.Nil(t, parseMARCXML(nil))
	})

	t.Run("missing fields extract to zero values", func(t *testing.T) {
		raw := parseMARCXML(decodeRecord(t, `<record></record>`))
		require.NotNil(t, raw)
		assert.Empty(t, raw.Title)
		assert.Empty(t, raw.ISBN)
		assert.Empty(t, raw.Subjects)
	})

	t.Run("short 008 ignored", func(t *testing.T) {
		raw := parseMARCXML(decodeRecord(t, `<record><controlfield tag="008">230115s2022</controlfield></record>`))
		assert.Empty(t, raw.Year)
		assert.Empty(t, raw.Language)
	})

	t.Run("260 year used when 008 absent", func(t *testing.T) {
		raw := parseMARCXML(decodeRecord(t, `<record>
			<datafield tag="264"><subfield code="c">[2019]</subfield></datafield>
		</record>`))
		assert.Equal(t, "2019", raw.Year)
	})
}
