// Package loc fetches book metadata from the Library of Congress search API.
// https://www.loc.gov/apis/
package loc

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
)

const (
	defaultBaseURL = "https://www.loc.gov"
	requestTimeout = 5 * time.Second
)

type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	log        *slog.Logger
}

func NewClient(userAgent string, log *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    defaultBaseURL,
		userAgent:  userAgent,
		log:        log,
	}
}

// Name is the source tag this adapter contributes.
func (c *Client) Name() string { return metadata.SourceLoC }

type searchResponse struct {
	Results []searchItem `json:"results"`
}

// LoC is inconsistent about which fields are present and whether they are
// scalars or arrays; everything is normalized defensively below.
type searchItem struct {
	Title       string   `json:"title"`
	Contributor []string `json:"contributor"`
	Date        string   `json:"date"`
	Description []string `json:"description"`
	Subject     []string `json:"subject"`
	Language    []string `json:"language"`
	ImageURL    []string `json:"image_url"`
}

// Fetch issues a free-text keyword search for the ISBN and takes the top hit.
func (c *Client) Fetch(ctx context.Context, isbn string) (*metadata.BookMetadata, error) {
	u := fmt.Sprintf("%s/books/?q=%s&fo=json&c=1", c.baseURL, url.QueryEscape(isbn))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("loc: unexpected status %d", resp.StatusCode)
	}

	var data searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("loc decode: %w", err)
	}
	if len(data.Results) == 0 {
		c.log.Info("no results", "source", c.Name(), "isbn", isbn)
		return nil, nil
	}
	return c.convert(isbn, data.Results[0]), nil
}

func (c *Client) convert(isbn string, item searchItem) *metadata.BookMetadata {
	m := metadata.NewEmpty(isbn, metadata.SourceLoC)

	// LoC titles often embed the subtitle after a colon.
	if item.Title != "" {
		title, subtitle, found := strings.Cut(item.Title, ":")
		m.Title = metadata.Ptr(strings.TrimSpace(title))
		if found && strings.TrimSpace(subtitle) != "" {
			m.Subtitle = metadata.Ptr(strings.TrimSpace(subtitle))
		}
	}

	for _, contributor := range item.Contributor {
		if !strings.Contains(strings.ToLower(contributor), "publisher") {
			m.Authors = append(m.Authors, contributor)
		}
	}

	if item.Date != "" {
		m.PublishedDate = metadata.Ptr(item.Date)
	}
	if len(item.Description) > 0 {
		m.Description = metadata.Ptr(strings.Join(item.Description, " "))
	}
	if len(item.Subject) > 10 {
		m.Categories = append(m.Categories, item.Subject[:10]...)
	} else {
		m.Categories = append(m.Categories, item.Subject...)
	}
	if len(item.Language) > 0 && item.Language[0] != "" {
		m.Language = metadata.Ptr(item.Language[0])
	}
	if len(item.ImageURL) > 0 && item.ImageURL[0] != "" {
		m.Thumbnail = metadata.Ptr(item.ImageURL[0])
	}
	return m
}
