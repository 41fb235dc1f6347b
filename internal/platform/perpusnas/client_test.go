package perpusnas

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func oaiListRecords(records ...string) string {
	body := ""
	for i, rec := range records {
		body += fmt.Sprintf(`<record><header><identifier>oai:inlislite:%d</identifier></header><metadata>%s</metadata></record>`, i+1, rec)
	}
	return `<?xml version="1.0" encoding="UTF-8"?>
<OAI-PMH xmlns="http://www.openarchives.org/OAI/2.0/"><ListRecords>` + body + `</ListRecords></OAI-PMH>`
}

func marcRecordXML(isbn, title string) string {
	return fmt.Sprintf(`<record xmlns="http://www.loc.gov/MARC21/slim">
		<controlfield tag="008">230115s2021    io            000 0 ind d</controlfield>
		<datafield tag="020"><subfield code="a">%s</subfield></datafield>
		<datafield tag="100"><subfield code="a">Dewi Lestari,</subfield></datafield>
		<datafield tag="245"><subfield code="a">%s /</subfield></datafield>
		<datafield tag="260"><subfield code="a">Bandung :</subfield><subfield code="b">Bentang,</subfield></datafield>
	</record>`, isbn, title)
}

func newTestClient(t *testing.T, endpoints ...string) *Client {
	t.Helper()
	return NewClient(endpoints, "shelfmark-test/1.0", slog.New(slog.DiscardHandler))
}

func TestFetch(t *testing.T) {
	t.Run("matches isbn in harvested batch", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "ListRecords", r.URL.Query().Get("verb"))
			assert.Equal(t, "marcxml", r.URL.Query().Get("metadataPrefix"))
			fmt.Fprint(w, oaiListRecords(
				marcRecordXML("9786020000001", "Buku lain"),
				marcRecordXML("9786020633176", "Supernova"),
			))
		}))
		defer srv.Close()

		got, err := newTestClient(t, srv.URL).Fetch(context.Background(), "978-602-0633-17-6")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "9786020633176", got.ISBN)
		require.NotNil(t, got.Title)
		assert.Equal(t, "Supernova", *got.Title)
		assert.Equal(t, []string{"Dewi Lestari"}, got.Authors)
		require.NotNil(t, got.Language)
		assert.Equal(t, "ind", *got.Language)
	})

	t.Run("matches record that only carries the stripped core", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, oaiListRecords(marcRecordXML("6020633176", "Supernova")))
		}))
		defer srv.Close()

		got, err := newTestClient(t, srv.URL).Fetch(context.Background(), "9786020633176")
		require.NoError(t, err)
		require.NotNil(t, got)
		// The resolved record keeps the caller's 13-digit form.
		assert.Equal(t, "9786020633176", got.ISBN)
	})

	t.Run("language defaults to id when 008 is absent", func(t *testing.T) {
		rec := `<record><datafield tag="020"><subfield code="a">9786020633176</subfield></datafield>
			<datafield tag="245"><subfield code="a">Supernova</subfield></datafield></record>`
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, oaiListRecords(rec))
		}))
		defer srv.Close()

		got, err := newTestClient(t, srv.URL).Fetch(context.Background(), "9786020633176")
		require.NoError(t, err)
		require.NotNil(t, got.Language)
		assert.Equal(t, "id", *got.Language)
	})

	t.Run("reachable endpoint without the isbn is not found, no failover", func(t *testing.T) {
		var secondHit bool
		first := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, oaiListRecords(marcRecordXML("9786020000001", "Buku lain")))
		}))
		defer first.Close()
		second := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			secondHit = true
		}))
		defer second.Close()

		_, err := newTestClient(t, first.URL, second.URL).Fetch(context.Background(), "9786020633176")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.False(t, secondHit, "a clean miss must not trigger failover")
	})

	t.Run("fails over on http error", func(t *testing.T) {
		first := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer first.Close()
		second := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, oaiListRecords(marcRecordXML("9786020633176", "Supernova")))
		}))
		defer second.Close()

		got, err := newTestClient(t, first.URL, second.URL).Fetch(context.Background(), "9786020633176")
		require.NoError(t, err)
		require.NotNil(t, got.Title)
		assert.Equal(t, "Supernova", *got.Title)
	})

	t.Run("fails over on oai protocol error", func(t *testing.T) {
		first := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `<?xml version="1.0"?><OAI-PMH xmlns="http://www.openarchives.org/OAI/2.0/"><error code="badVerb">Illegal verb</error></OAI-PMH>`)
		}))
		defer first.Close()
		second := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, oaiListRecords(marcRecordXML("9786020633176", "Supernova")))
		}))
		defer second.Close()

		got, err := newTestClient(t, first.URL, second.URL).Fetch(context.Background(), "9786020633176")
		require.NoError(t, err)
		require.NotNil(t, got)
	})

	t.Run("all endpoints down", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		_, err := newTestClient(t, srv.URL).Fetch(context.Background(), "9786020633176")
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrNotFound))
	})
}

func TestCheckConnection(t *testing.T) {
	t.Run("first healthy endpoint wins", func(t *testing.T) {
		down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer down.Close()
		up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Identify", r.URL.Query().Get("verb"))
			fmt.Fprint(w, `<?xml version="1.0"?><OAI-PMH xmlns="http://www.openarchives.org/OAI/2.0/"><Identify/></OAI-PMH>`)
		}))
		defer up.Close()

		status := newTestClient(t, down.URL, up.URL).CheckConnection(context.Background())
		assert.True(t, status.Available)
		assert.Equal(t, up.URL, status.Endpoint)
		assert.Len(t, status.Errors, 1)
	})

	t.Run("no endpoint reachable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		status := newTestClient(t, srv.URL).CheckConnection(context.Background())
		assert.False(t, status.Available)
		assert.Equal(t, "none", status.Endpoint)
		assert.NotEmpty(t, status.Errors)
	})
}
