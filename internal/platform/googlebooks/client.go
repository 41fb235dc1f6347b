// Package googlebooks fetches book metadata from the Google Books volumes API.
// https://developers.google.com/books/docs/v1/using
package googlebooks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"shelfmark/internal/metadata"
	"shelfmark/internal/platform/httpretry"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://www.googleapis.com/books/v1"
	requestTimeout = 10 * time.Second
)

type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limiter    *rate.Limiter
	retry      httpretry.Policy
	log        *slog.Logger
}

func NewClient(userAgent string, log *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    defaultBaseURL,
		userAgent:  userAgent,
		limiter:    rate.NewLimiter(rate.Every(time.Second/5), 1),
		retry:      httpretry.Policy{Attempts: 3, BaseDelay: 150 * time.Millisecond},
		log:        log,
	}
}

// Name is the source tag this adapter contributes.
func (c *Client) Name() string { return metadata.SourceGoogle }

type volumeInfo struct {
	Title         string   `json:"title"`
	Subtitle      string   `json:"subtitle"`
	Authors       []string `json:"authors"`
	Publisher     string   `json:"publisher"`
	PublishedDate string   `json:"publishedDate"`
	Description   string   `json:"description"`
	PageCount     int      `json:"pageCount"`
	Categories    []string `json:"categories"`
	Language      string   `json:"language"`
	ImageLinks    struct {
		Thumbnail      string `json:"thumbnail"`
		SmallThumbnail string `json:"smallThumbnail"`
	} `json:"imageLinks"`
	IndustryIdentifiers []struct {
		Type       string `json:"type"`
		Identifier string `json:"identifier"`
	} `json:"industryIdentifiers"`
}

type volumesResponse struct {
	TotalItems int `json:"totalItems"`
	Items      []struct {
		VolumeInfo volumeInfo `json:"volumeInfo"`
	} `json:"items"`
}

// Fetch looks the ISBN up with a strict `isbn:` query first. Google falls back
// to fuzzy search when it has no exact hit, so a result whose embedded
// identifiers do not match the requested ISBN is a miss, not a hit; one
// looser keyword query is tried before giving up.
func (c *Client) Fetch(ctx context.Context, isbn string) (*metadata.BookMetadata, error) {
	volume, err := c.query(ctx, "isbn:"+isbn)
	if err != nil {
		return nil, err
	}
	if volume != nil && identifiersMatch(volume, isbn) {
		return c.convert(isbn, volume), nil
	}
	if volume != nil {
		c.log.Info("identifier mismatch on strict query, retrying loose", "source", c.Name(), "isbn", isbn)
	}

	volume, err = c.query(ctx, isbn)
	if err != nil {
		return nil, err
	}
	if volume == nil || !identifiersMatch(volume, isbn) {
		c.log.Info("no matching volume", "source", c.Name(), "isbn", isbn)
		return nil, nil
	}
	return c.convert(isbn, volume), nil
}

func (c *Client) query(ctx context.Context, q string) (*volumeInfo, error) {
	u := fmt.Sprintf("%s/volumes?q=%s&maxResults=1", c.baseURL, url.QueryEscape(q))

	resp, err := httpretry.Do(ctx, c.retry, func() (*http.Response, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.userAgent)
		return c.httpClient.Do(req)
	})
	if err != nil {
		return nil, fmt.Errorf("googlebooks query: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("googlebooks query: unexpected status %d", resp.StatusCode)
	}

	var data volumesResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("googlebooks decode: %w", err)
	}
	if len(data.Items) == 0 {
		return nil, nil
	}
	v := data.Items[0].VolumeInfo
	return &v, nil
}

func identifiersMatch(v *volumeInfo, isbn string) bool {
	want := metadata.NormalizeISBN(isbn)
	for _, id := range v.IndustryIdentifiers {
		got := metadata.NormalizeISBN(id.Identifier)
		if got == want || got == metadata.StripPrefix13(want) {
			return true
		}
	}
	return false
}

func (c *Client) convert(isbn string, v *volumeInfo) *metadata.BookMetadata {
	m := metadata.NewEmpty(isbn, metadata.SourceGoogle)

	if v.Title != "" {
		m.Title = metadata.Ptr(v.Title)
	}
	if v.Subtitle != "" {
		m.Subtitle = metadata.Ptr(v.Subtitle)
	}
	m.Authors = append(m.Authors, v.Authors...)
	if v.Publisher != "" {
		m.Publisher = metadata.Ptr(v.Publisher)
	}
	if v.PublishedDate != "" {
		m.PublishedDate = metadata.Ptr(v.PublishedDate)
	}
	if v.Description != "" {
		m.Description = metadata.Ptr(v.Description)
	}
	if v.PageCount > 0 {
		m.PageCount = metadata.Ptr(v.PageCount)
	}
	m.Categories = append(m.Categories, v.Categories...)
	if v.Language != "" {
		m.Language = metadata.Ptr(v.Language)
	}
	thumbnail := v.ImageLinks.Thumbnail
	if thumbnail == "" {
		thumbnail = v.ImageLinks.SmallThumbnail
	}
	if thumbnail != "" {
		m.Thumbnail = metadata.Ptr(strings.Replace(thumbnail, "http://", "https://", 1))
	}
	return m
}
