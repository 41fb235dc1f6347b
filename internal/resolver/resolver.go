// Package resolver fans an ISBN out to every configured source in parallel
// and reconciles whatever came back into one canonical record.
package resolver

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"shelfmark/internal/metadata"
)

// ErrNotFound means the ISBN was well formed but no source contributed data.
var ErrNotFound = errors.New("resolver: no source returned data")

// Source is one external catalog. Fetch returns (nil, nil) on a clean miss;
// any error is absorbed here and never reaches the caller.
type Source interface {
	Name() string
	Fetch(ctx context.Context, isbn string) (*metadata.BookMetadata, error)
}

// Meta describes how a resolution went, for the response envelope.
type Meta struct {
	DurationMs   int64                   `json:"durationMs"`
	Attempted    int                     `json:"sourcesAttempted"`
	Found        int                     `json:"sourcesFound"`
	Completeness int                     `json:"completeness"`
	Sources      []metadata.SourceResult `json:"sources"`
}

// priority is the fixed merge ladder, high to low. Completion order of the
// fan-out never affects it.
var priority = map[string]int{
	metadata.SourceGoogle:      0,
	metadata.SourceOpenLibrary: 1,
	metadata.SourcePerpusnas:   2,
	metadata.SourceLoC:         3,
}

type Service struct {
	sources []Source
	log     *slog.Logger
}

func NewService(sources []Source, log *slog.Logger) *Service {
	return &Service{sources: sources, log: log}
}

// Resolve validates the ISBN, queries every source concurrently, waits for
// all of them to settle, and merges the partial records in priority order.
// Partial data from a single source is a success, not an error.
func (s *Service) Resolve(ctx context.Context, isbn string) (*metadata.BookMetadata, Meta, error) {
	start := time.Now()

	norm, err := metadata.ValidateISBN(isbn)
	if err != nil {
		return nil, Meta{}, err
	}

	results := make([]metadata.SourceResult, len(s.sources))
	var wg sync.WaitGroup
	for i, src := range s.sources {
		wg.Add(1)
		go func(i int, src Source) {
			defer wg.Done()
			began := time.Now()
			data, err := src.Fetch(ctx, norm)
			result := metadata.SourceResult{
				Source:   src.Name(),
				Data:     data,
				Duration: time.Since(began),
			}
			if err != nil {
				result.Error = err.Error()
				result.Data = nil
			}
			results[i] = result
		}(i, src)
	}
	wg.Wait()

	sort.SliceStable(results, func(a, b int) bool {
		return rank(results[a].Source) < rank(results[b].Source)
	})

	var found int
	ordered := make([]*metadata.BookMetadata, 0, len(results))
	for _, r := range results {
		if r.Data != nil {
			found++
			ordered = append(ordered, r.Data)
		}
	}

	meta := Meta{
		DurationMs: time.Since(start).Milliseconds(),
		Attempted:  len(s.sources),
		Found:      found,
		Sources:    results,
	}

	if found == 0 {
		s.log.Info("resolution found nothing", "isbn", norm, "sources_attempted", meta.Attempted)
		return nil, meta, ErrNotFound
	}

	merged := metadata.Merge(ordered)
	merged.ISBN = norm
	meta.Completeness = metadata.Completeness(merged)

	s.log.Info("resolved",
		"isbn", norm,
		"sources_found", found,
		"completeness", meta.Completeness,
		"duration_ms", meta.DurationMs,
	)
	return merged, meta, nil
}

func rank(source string) int {
	if r, ok := priority[source]; ok {
		return r
	}
	return len(priority)
}
