// Package openlibrary fetches book metadata and shelving classifications
// from the Open Library API. https://openlibrary.org/developers/api
package openlibrary

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"shelfmark/internal/metadata"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL   = "https://openlibrary.org"
	defaultCoversURL = "https://covers.openlibrary.org"
	requestTimeout   = 10 * time.Second

	// Cap on concurrent author-key resolutions per edition.
	maxAuthorLookups = 5
)

type Client struct {
	httpClient *http.Client
	baseURL    string
	coversURL  string
	userAgent  string
	limiter    *rate.Limiter
	log        *slog.Logger
}

func NewClient(userAgent string, log *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    defaultBaseURL,
		coversURL:  defaultCoversURL,
		userAgent:  userAgent,
		limiter:    rate.NewLimiter(rate.Every(time.Second/5), 1),
		log:        log,
	}
}

// Name is the source tag this adapter contributes.
func (c *Client) Name() string { return metadata.SourceOpenLibrary }

type edition struct {
	Title         string          `json:"title"`
	Subtitle      string          `json:"subtitle"`
	Authors       []keyRef        `json:"authors"`
	Publishers    []string        `json:"publishers"`
	PublishDate   string          `json:"publish_date"`
	Description   json.RawMessage `json:"description"`
	NumberOfPages int             `json:"number_of_pages"`
	Subjects      []string        `json:"subjects"`
	Languages     []keyRef        `json:"languages"`
	Covers        []int64         `json:"covers"`
}

type keyRef struct {
	Key string `json:"key"`
}

type author struct {
	Name         string `json:"name"`
	PersonalName string `json:"personal_name"`
}

// Fetch performs a direct edition lookup by ISBN, then resolves author-key
// references into display names with bounded parallelism. A failed author
// lookup drops that one name; it never aborts the fetch.
func (c *Client) Fetch(ctx context.Context, isbn string) (*metadata.BookMetadata, error) {
	var ed edition
	found, err := c.get(ctx, fmt.Sprintf("%s/isbn/%s.json", c.baseURL, isbn), &ed)
	if err != nil {
		return nil, err
	}
	if !found {
		c.log.Info("no edition", "source", c.Name(), "isbn", isbn)
		return nil, nil
	}

	m := metadata.NewEmpty(isbn, metadata.SourceOpenLibrary)
	if ed.Title != "" {
		m.Title = metadata.Ptr(ed.Title)
	}
	if ed.Subtitle != "" {
		m.Subtitle = metadata.Ptr(ed.Subtitle)
	}
	if len(ed.Publishers) > 0 {
		m.Publisher = metadata.Ptr(ed.Publishers[0])
	}
	if ed.PublishDate != "" {
		m.PublishedDate = metadata.Ptr(ed.PublishDate)
	}
	if desc := decodeDescription(ed.Description); desc != "" {
		m.Description = metadata.Ptr(desc)
	}
	if ed.NumberOfPages > 0 {
		m.PageCount = metadata.Ptr(ed.NumberOfPages)
	}
	if len(ed.Subjects) > 10 {
		m.Categories = append(m.Categories, ed.Subjects[:10]...)
	} else {
		m.Categories = append(m.Categories, ed.Subjects...)
	}
	if len(ed.Languages) > 0 {
		// key is like "/languages/eng"
		parts := strings.Split(ed.Languages[0].Key, "/")
		if code := parts[len(parts)-1]; code != "" {
			m.Language = metadata.Ptr(code)
		}
	}
	if len(ed.Covers) > 0 {
		m.Thumbnail = metadata.Ptr(fmt.Sprintf("%s/b/id/%d-M.jpg", c.coversURL, ed.Covers[0]))
	}

	m.Authors = append(m.Authors, c.resolveAuthors(ctx, isbn, ed.Authors)...)
	return m, nil
}

func (c *Client) resolveAuthors(ctx context.Context, isbn string, refs []keyRef) []string {
	if len(refs) > maxAuthorLookups {
		refs = refs[:maxAuthorLookups]
	}

	names := make([]string, len(refs))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxAuthorLookups)
	for i, ref := range refs {
		g.Go(func() error {
			var a author
			found, err := c.get(gctx, c.baseURL+ref.Key+".json", &a)
			if err != nil || !found {
				c.log.Info("author lookup failed", "source", c.Name(), "isbn", isbn, "key", ref.Key)
				return nil
			}
			name := a.Name
			if name == "" {
				name = a.PersonalName
			}
			mu.Lock()
			names[i] = name
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != "" {
			out = append(out, n)
		}
	}
	return out
}

// Classification is the free shelving data Open Library carries for some
// editions; it feeds the second layer of the classification cascade.
type Classification struct {
	Title    string
	DDC      string
	LCC      string
	Subjects []string
}

type bibData struct {
	Title           string `json:"title"`
	Classifications struct {
		DeweyDecimalClass []string `json:"dewey_decimal_class"`
		LCClassifications []string `json:"lc_classifications"`
	} `json:"classifications"`
	Subjects []struct {
		Name string `json:"name"`
	} `json:"subjects"`
}

// Classification queries the bib-data endpoint by ISBN. A book without data
// returns (nil, nil).
func (c *Client) Classification(ctx context.Context, isbn string) (*Classification, error) {
	u := fmt.Sprintf("%s/api/books?bibkeys=ISBN:%s&jscmd=data&format=json", c.baseURL, isbn)

	var payload map[string]bibData
	found, err := c.get(ctx, u, &payload)
	if err != nil {
		return nil, err
	}
	book, ok := payload["ISBN:"+isbn]
	if !found || !ok {
		c.log.Info("no classification data", "source", c.Name(), "isbn", isbn)
		return nil, nil
	}

	cl := &Classification{Title: book.Title}
	if len(book.Classifications.DeweyDecimalClass) > 0 {
		cl.DDC = book.Classifications.DeweyDecimalClass[0]
	}
	if len(book.Classifications.LCClassifications) > 0 {
		cl.LCC = book.Classifications.LCClassifications[0]
	}
	for i, s := range book.Subjects {
		if i == 7 {
			break
		}
		cl.Subjects = append(cl.Subjects, s.Name)
	}
	return cl, nil
}

// get issues one GET and decodes the body. Returns found=false on 404.
func (c *Client) get(ctx context.Context, url string, target interface{}) (bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("openlibrary: unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return false, fmt.Errorf("openlibrary decode: %w", err)
	}
	return true, nil
}

// decodeDescription handles the two shapes Open Library emits: a bare string
// or a {"type": ..., "value": ...} wrapper.
func decodeDescription(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var wrapped struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil {
		return wrapped.Value
	}
	return ""
}
