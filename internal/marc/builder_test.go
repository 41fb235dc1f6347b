package marc

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"shelfmark/internal/metadata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord() *metadata.BookMetadata {
	m := metadata.NewEmpty("9780525536512", metadata.SourceGoogle)
	m.Title = metadata.Ptr("Digital Minimalism")
	m.Subtitle = metadata.Ptr("Choosing a Focused Life in a Noisy World")
	m.Authors = []string{"Cal Newport", "Second Author"}
	m.Publisher = metadata.Ptr("Portfolio")
	m.PublishedDate = metadata.Ptr("2019-02-05")
	m.PublishPlace = metadata.Ptr("New York")
	m.Description = metadata.Ptr("A timely and enlightening guide to living better with less technology.")
	m.PageCount = metadata.Ptr(304)
	m.Language = metadata.Ptr("en")
	m.DDC = metadata.Ptr("303.48")
	m.LCC = metadata.Ptr("HM851")
	m.Subjects = metadata.Ptr("Information technology; Technology addiction; Self-control")
	m.Series = metadata.Ptr("Self-help essentials")
	m.Edition = metadata.Ptr("1st ed.")
	return m
}

type directoryEntry struct {
	tag    string
	length int
	start  int
}

// parseStructure cracks a built record back open using only the leader and
// directory arithmetic, which is exactly what a consuming ILS does.
func parseStructure(t *testing.T, rec []byte) (baseAddress int, entries []directoryEntry) {
	t.Helper()
	require.GreaterOrEqual(t, len(rec), leaderLength)

	recordLength, err := strconv.Atoi(string(rec[0:5]))
	require.NoError(t, err)
	assert.Equal(t, len(rec), recordLength, "leader record length must equal emitted byte length")

	baseAddress, err = strconv.Atoi(string(rec[12:17]))
	require.NoError(t, err)

	directory := rec[leaderLength : baseAddress-1]
	require.Equal(t, byte(fieldTerminator), rec[baseAddress-1], "directory must end with a field terminator")
	require.Zero(t, len(directory)%12, "directory entries are 12 bytes wide")

	for i := 0; i < len(directory); i += 12 {
		entry := directory[i : i+12]
		length, err := strconv.Atoi(string(entry[3:7]))
		require.NoError(t, err)
		start, err := strconv.Atoi(string(entry[7:12]))
		require.NoError(t, err)
		entries = append(entries, directoryEntry{tag: string(entry[0:3]), length: length, start: start})
	}
	return baseAddress, entries
}

func TestBuildStructure(t *testing.T) {
	rec := buildAt(sampleRecord(), time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	baseAddress, entries := parseStructure(t, rec)
	require.NotEmpty(t, entries)

	t.Run("terminators", func(t *testing.T) {
		assert.Equal(t, byte(recordTerminator), rec[len(rec)-1])
		assert.Equal(t, byte(fieldTerminator), rec[len(rec)-2])
	})

	t.Run("directory entries bound fields without overlap or gap", func(t *testing.T) {
		offset := 0
		for _, e := range entries {
			assert.Equal(t, offset, e.start, "tag %s start offset", e.tag)
			end := baseAddress + e.start + e.length
			assert.Equal(t, byte(fieldTerminator), rec[end-1], "tag %s must end with field terminator", e.tag)
			offset = e.start + e.length
		}
		// The data block ends right before the record terminator.
		assert.Equal(t, len(rec)-1, baseAddress+offset)
	})

	t.Run("stable tag order", func(t *testing.T) {
		var tags []string
		for _, e := range entries {
			tags = append(tags, e.tag)
		}
		assert.Equal(t, []string{
			"001", "003", "005", "008",
			"020", "041", "082", "050", "100", "245", "250", "264", "300", "490", "520",
			"650", "650", "650", "700",
		}, tags)
	})
}

func fieldData(t *testing.T, rec []byte, tag string) []string {
	t.Helper()
	baseAddress, entries := parseStructure(t, rec)
	var out []string
	for _, e := range entries {
		if e.tag == tag {
			start := baseAddress + e.start
			out = append(out, string(rec[start:start+e.length-1]))
		}
	}
	return out
}

func TestBuildFieldContent(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rec := buildAt(sampleRecord(), now)

	t.Run("control fields", func(t *testing.T) {
		assert.Equal(t, []string{"9780525536512"}, fieldData(t, rec, "001"))
		assert.Equal(t, []string{"ShelfMark"}, fieldData(t, rec, "003"))
		assert.Equal(t, []string{"20250601120000.0"}, fieldData(t, rec, "005"))
	})

	t.Run("008 positional year and language", func(t *testing.T) {
		f := fieldData(t, rec, "008")
		require.Len(t, f, 1)
		require.Len(t, f[0], 40)
		assert.Equal(t, "250601", f[0][0:6])
		assert.Equal(t, "s", f[0][6:7])
		assert.Equal(t, "2019", f[0][7:11])
		assert.Equal(t, "en ", f[0][35:38])
	})

	t.Run("245 carries title, subtitle, and responsibility", func(t *testing.T) {
		f := fieldData(t, rec, "245")
		require.Len(t, f, 1)
		assert.Equal(t, "10\x1faDigital Minimalism\x1fbChoosing a Focused Life in a Noisy World\x1fcCal Newport, Second Author", f[0])
	})

	t.Run("264 publication statement", func(t *testing.T) {
		f := fieldData(t, rec, "264")
		require.Len(t, f, 1)
		assert.Equal(t, " 1\x1faNew York\x1fbPortfolio\x1fc2019-02-05", f[0])
	})

	t.Run("subjects become repeated 650s", func(t *testing.T) {
		f := fieldData(t, rec, "650")
		assert.Equal(t, []string{
			" 0\x1faInformation technology",
			" 0\x1faTechnology addiction",
			" 0\x1faSelf-control",
		}, f)
	})

	t.Run("co-authors become 700s", func(t *testing.T) {
		assert.Equal(t, []string{"1 \x1faSecond Author"}, fieldData(t, rec, "700"))
	})
}

func TestBuildEdgeCases(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("summary truncated to 500 characters", func(t *testing.T) {
		m := sampleRecord()
		m.Description = metadata.Ptr(strings.Repeat("x", 600))
		f := fieldData(t, buildAt(m, now), "520")
		require.Len(t, f, 1)
		assert.Equal(t, "  \x1fa"+strings.Repeat("x", 500), f[0])
	})

	t.Run("at most five subject fields", func(t *testing.T) {
		m := sampleRecord()
		m.Subjects = metadata.Ptr("a; b; c; d; e; f; g")
		assert.Len(t, fieldData(t, buildAt(m, now), "650"), 5)
	})

	t.Run("page count used when collation missing", func(t *testing.T) {
		m := sampleRecord()
		m.Collation = nil
		m.PageCount = metadata.Ptr(304)
		assert.Equal(t, []string{"  \x1fa304 p."}, fieldData(t, buildAt(m, now), "300"))
	})

	t.Run("multibyte data keeps offsets valid", func(t *testing.T) {
		m := sampleRecord()
		m.Title = metadata.Ptr("Bumi Manusia 人間の大地")
		m.Description = metadata.Ptr(strings.Repeat("日", 520))
		rec := buildAt(m, now)
		parseStructure(t, rec) // asserts byte-accurate lengths and bounds
		f := fieldData(t, rec, "520")
		require.Len(t, f, 1)
		assert.Equal(t, "  \x1fa"+strings.Repeat("日", 500), f[0])
	})

	t.Run("sparse record still emits control fields", func(t *testing.T) {
		m := metadata.NewEmpty("9786020633176", metadata.SourcePerpusnas)
		rec := buildAt(m, now)
		_, entries := parseStructure(t, rec)
		var tags []string
		for _, e := range entries {
			tags = append(tags, e.tag)
		}
		assert.Equal(t, []string{"001", "003", "005", "008", "020"}, tags)

		f := fieldData(t, rec, "008")
		require.Len(t, f, 1)
		assert.Equal(t, "    ", f[0][7:11])
		assert.Equal(t, "eng", f[0][35:38])
	})
}

func TestBuildBatch(t *testing.T) {
	a := sampleRecord()
	b := metadata.NewEmpty("9786020633176", metadata.SourcePerpusnas)
	b.Title = metadata.Ptr("Supernova")

	batch := BuildBatch([]*metadata.BookMetadata{a, b})

	// Records are self-delimited: the batch is the two serializations
	// back to back with no separator.
	first, err := strconv.Atoi(string(batch[0:5]))
	require.NoError(t, err)
	assert.Equal(t, byte(recordTerminator), batch[first-1])

	second := batch[first:]
	secondLen, err := strconv.Atoi(string(second[0:5]))
	require.NoError(t, err)
	assert.Equal(t, len(second), secondLen)
	assert.Equal(t, byte(recordTerminator), second[secondLen-1])
}
