// Package perpusnas harvests Indonesian national bibliography records from
// Perpustakaan Nasional RI over OAI-PMH with MARCXML payloads.
// https://inlislite.perpusnas.go.id/?read=oaipmhservice
//
// OAI-PMH has no ISBN-indexed lookup, so each endpoint returns a batch of
// records that is scanned linearly for the target ISBN.
package perpusnas

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"shelfmark/internal/metadata"
)

// ErrNotFound means a reachable endpoint served its batch and the ISBN was
// not in it: the book is absent, the connection is fine. Connectivity and
// protocol failures are reported as ordinary errors instead.
var ErrNotFound = errors.New("perpusnas: isbn not found in harvested records")

const (
	endpointTimeout = 8 * time.Second
	probeTimeout    = 5 * time.Second
)

// DefaultEndpoints returns the candidate OAI-PMH endpoints in priority order.
func DefaultEndpoints() []string {
	return []string{
		"https://inlislitev3.perpusnas.go.id/opac/oai",
		"http://demo.inlislitev3.perpusnas.go.id/opac/oai",
		"http://203.176.180.116:8123/opac/oai",
	}
}

type Client struct {
	httpClient *http.Client
	endpoints  []string
	userAgent  string
	log        *slog.Logger
}

func NewClient(endpoints []string, userAgent string, log *slog.Logger) *Client {
	if len(endpoints) == 0 {
		endpoints = DefaultEndpoints()
	}
	return &Client{
		httpClient: &http.Client{},
		endpoints:  endpoints,
		userAgent:  userAgent,
		log:        log,
	}
}

// Name is the source tag this adapter contributes.
func (c *Client) Name() string { return metadata.SourcePerpusnas }

type oaiResponse struct {
	XMLName     xml.Name  `xml:"OAI-PMH"`
	Error       *oaiError `xml:"error"`
	ListRecords struct {
		Records []oaiRecord `xml:"record"`
	} `xml:"ListRecords"`
}

type oaiError struct {
	Code string `xml:"code,attr"`
	Text string `xml:",chardata"`
}

type oaiRecord struct {
	Header struct {
		Identifier string `xml:"identifier"`
	} `xml:"header"`
	Metadata struct {
		Record *marcRecord `xml:"record"`
	} `xml:"metadata"`
}

// Fetch tries each endpoint in priority order. A transport or protocol
// failure moves on to the next endpoint; a successfully scanned batch
// without the ISBN stops the failover with ErrNotFound.
func (c *Client) Fetch(ctx context.Context, isbn string) (*metadata.BookMetadata, error) {
	norm := metadata.NormalizeISBN(isbn)

	var lastErr error
	for _, endpoint := range c.endpoints {
		raw, err := c.harvest(ctx, endpoint, norm)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, err
			}
			c.log.Warn("endpoint failed", "source", c.Name(), "endpoint", endpoint, "isbn", norm, "error", err)
			lastErr = err
			continue
		}
		c.log.Info("harvested record", "source", c.Name(), "endpoint", endpoint, "isbn", norm, "oai_id", raw.OAIID)
		return c.convert(norm, raw), nil
	}
	return nil, fmt.Errorf("perpusnas: all endpoints failed: %w", lastErr)
}

func (c *Client) harvest(ctx context.Context, endpoint, isbn string) (*RawMarcRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, endpointTimeout)
	defer cancel()

	u := endpoint + "?verb=ListRecords&metadataPrefix=marcxml"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/xml, text/xml")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("perpusnas: unexpected status %d from %s", resp.StatusCode, endpoint)
	}

	var envelope oaiResponse
	if err := xml.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("perpusnas decode: %w", err)
	}
	if envelope.Error != nil {
		return nil, fmt.Errorf("perpusnas: oai-pmh error [%s]: %s",
			envelope.Error.Code, strings.TrimSpace(envelope.Error.Text))
	}

	stripped := metadata.StripPrefix13(isbn)
	for _, rec := range envelope.ListRecords.Records {
		raw := parseMARCXML(rec.Metadata.Record)
		if raw == nil {
			continue
		}
		// Older source records often carry only the 10-digit core.
		if raw.ISBN == isbn || raw.ISBN == stripped {
			raw.OAIID = rec.Header.Identifier
			return raw, nil
		}
	}
	return nil, ErrNotFound
}

func (c *Client) convert(isbn string, raw *RawMarcRecord) *metadata.BookMetadata {
	m := metadata.NewEmpty(isbn, metadata.SourcePerpusnas)

	if raw.Title != "" {
		m.Title = metadata.Ptr(raw.Title)
	}
	if raw.Subtitle != "" {
		m.Subtitle = metadata.Ptr(raw.Subtitle)
	}
	m.Authors = append(m.Authors, raw.AllAuthors()...)
	if raw.Publisher != "" {
		m.Publisher = metadata.Ptr(raw.Publisher)
	}
	if raw.Year != "" {
		m.PublishedDate = metadata.Ptr(raw.Year)
	}
	language := raw.Language
	if language == "" {
		language = "id"
	}
	m.Language = metadata.Ptr(language)
	if raw.PublishPlace != "" {
		m.PublishPlace = metadata.Ptr(raw.PublishPlace)
	}
	if raw.Collation != "" {
		m.Collation = metadata.Ptr(raw.Collation)
	}
	if len(raw.Subjects) > 0 {
		m.Subjects = metadata.Ptr(strings.Join(raw.Subjects, "; "))
	}
	return m
}

// Status reports the outcome of a connectivity probe.
type Status struct {
	Available    bool     `json:"available"`
	Endpoint     string   `json:"endpoint"`
	ResponseTime int64    `json:"responseTimeMs"`
	Errors       []string `json:"errors,omitempty"`
}

// CheckConnection probes each endpoint with a lightweight Identify request
// and reports the first one that answers.
func (c *Client) CheckConnection(ctx context.Context) Status {
	start := time.Now()
	var probeErrors []string

	for _, endpoint := range c.endpoints {
		err := c.identify(ctx, endpoint)
		if err == nil {
			return Status{
				Available:    true,
				Endpoint:     endpoint,
				ResponseTime: time.Since(start).Milliseconds(),
				Errors:       probeErrors,
			}
		}
		probeErrors = append(probeErrors, fmt.Sprintf("%s: %v", endpoint, err))
	}

	return Status{
		Available:    false,
		Endpoint:     "none",
		ResponseTime: time.Since(start).Milliseconds(),
		Errors:       probeErrors,
	}
}

func (c *Client) identify(ctx context.Context, endpoint string) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?verb=Identify", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/xml, text/xml")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
