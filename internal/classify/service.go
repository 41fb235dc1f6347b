package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"shelfmark/internal/metadata"
	"shelfmark/internal/platform/gemini"
	"shelfmark/internal/platform/openlibrary"
)

// ErrRateLimited means the generative layer was throttled upstream.
// Callers should translate it to a 429 and retry later.
var ErrRateLimited = errors.New("classify: ai layer rate limited")

// ragExampleLimit caps how many cached books prime the model prompt.
const ragExampleLimit = 3

// LibraryClassifier is the free layer-2 lookup (Open Library).
type LibraryClassifier interface {
	Classification(ctx context.Context, isbn string) (*openlibrary.Classification, error)
}

// Enhancer is the generative layer-3 model.
type Enhancer interface {
	Enhance(ctx context.Context, m *metadata.BookMetadata, examples []gemini.Example) (*gemini.Enhancement, error)
}

type Service struct {
	cache    Cache
	library  LibraryClassifier
	enhancer Enhancer
	model    string
	log      *slog.Logger
	now      func() time.Time
}

func NewService(cache Cache, library LibraryClassifier, enhancer Enhancer, model string, log *slog.Logger) *Service {
	return &Service{
		cache:    cache,
		library:  library,
		enhancer: enhancer,
		model:    model,
		log:      log,
		now:      time.Now,
	}
}

// Classify runs the cascade for one record and returns an enhanced copy.
// The input record is never mutated. Layer order is fixed: a verified cache
// row wins with zero network calls, Open Library is tried next because it is
// free, and the model runs last.
func (s *Service) Classify(ctx context.Context, m *metadata.BookMetadata) (*metadata.BookMetadata, error) {
	isbn, err := metadata.ValidateISBN(m.ISBN)
	if err != nil {
		return nil, err
	}

	if out := s.fromCache(ctx, isbn, m); out != nil {
		return out, nil
	}
	if out := s.fromOpenLibrary(ctx, isbn, m); out != nil {
		return out, nil
	}
	return s.fromModel(ctx, isbn, m)
}

func (s *Service) fromCache(ctx context.Context, isbn string, m *metadata.BookMetadata) *metadata.BookMetadata {
	entry, err := s.cache.GetByISBN(ctx, isbn)
	if err != nil {
		s.log.Warn("cache lookup failed", "isbn", isbn, "error", err)
		return nil
	}
	if entry == nil || !entry.Verified {
		return nil
	}

	s.log.Info("classification cache hit", "isbn", isbn, "source", entry.Source)
	out := *m
	out.DDC = entry.DDC
	out.LCC = entry.LCC
	out.CallNumber = entry.CallNumber
	out.Subjects = entry.Subjects
	out.ClassificationTrust = metadata.Ptr(metadata.TrustHigh)
	out.Source = metadata.SourceLocalCache
	out.IsAIEnhanced = false
	return &out
}

func (s *Service) fromOpenLibrary(ctx context.Context, isbn string, m *metadata.BookMetadata) *metadata.BookMetadata {
	ol, err := s.library.Classification(ctx, isbn)
	if err != nil {
		s.log.Warn("open library classification failed", "isbn", isbn, "error", err)
		return nil
	}
	if ol == nil || ol.DDC == "" {
		return nil
	}

	s.log.Info("open library classification hit", "isbn", isbn, "ddc", ol.DDC, "lcc", ol.LCC)

	callNumber := BuildCallNumber(ol.DDC, m.FirstAuthor())
	entry := &CacheEntry{
		ISBN:     isbn,
		Title:    firstNonEmpty(deref(m.Title), ol.Title),
		Source:   CacheSourceOpenLibrary,
		Verified: false,
	}
	entry.DDC = metadata.Ptr(ol.DDC)
	if ol.LCC != "" {
		entry.LCC = metadata.Ptr(ol.LCC)
	}
	if callNumber != "" {
		entry.CallNumber = metadata.Ptr(callNumber)
	}
	if len(ol.Subjects) > 0 {
		entry.Subjects = metadata.Ptr(strings.Join(ol.Subjects, "; "))
	}
	if len(m.Authors) > 0 {
		entry.Authors = metadata.Ptr(strings.Join(m.Authors, "; "))
	}
	if err := s.cache.InsertIfAbsent(ctx, entry); err != nil {
		s.log.Warn("cache insert failed", "isbn", isbn, "error", err)
	}

	out := *m
	out.DDC = entry.DDC
	out.LCC = entry.LCC
	out.CallNumber = entry.CallNumber
	if entry.Subjects != nil {
		out.Subjects = entry.Subjects
	}
	out.ClassificationTrust = metadata.Ptr(metadata.TrustMedium)
	out.Source = metadata.SourceOpenLibrary
	out.IsAIEnhanced = false
	return &out
}

func (s *Service) fromModel(ctx context.Context, isbn string, m *metadata.BookMetadata) (*metadata.BookMetadata, error) {
	examples := s.similarExamples(ctx, m)

	enh, err := s.enhancer.Enhance(ctx, m, examples)
	if err != nil {
		if errors.Is(err, gemini.ErrRateLimited) {
			return nil, ErrRateLimited
		}
		return nil, fmt.Errorf("classify: ai layer: %w", err)
	}

	if enh.DDC != nil || enh.LCC != nil {
		entry := &CacheEntry{
			ISBN:       isbn,
			Title:      deref(m.Title),
			DDC:        enh.DDC,
			LCC:        enh.LCC,
			CallNumber: enh.CallNumber,
			Subjects:   enh.Subjects,
			Source:     CacheSourceAI,
			Verified:   false,
		}
		if len(m.Authors) > 0 {
			entry.Authors = metadata.Ptr(strings.Join(m.Authors, "; "))
		}
		if err := s.cache.InsertIfAbsent(ctx, entry); err != nil {
			s.log.Warn("cache insert failed", "isbn", isbn, "error", err)
		}
	}

	now := s.now()
	out := *m
	out.DDC = enh.DDC
	out.LCC = enh.LCC
	out.CallNumber = enh.CallNumber
	if enh.Subjects != nil {
		out.Subjects = enh.Subjects
	}
	trust := metadata.TrustLow
	if enh.Trust == metadata.TrustMedium {
		trust = metadata.TrustMedium
	}
	out.ClassificationTrust = metadata.Ptr(trust)
	out.Source = metadata.SourceAI
	out.IsAIEnhanced = true
	out.EnhancedAt = &now
	out.ChangeLog = append(append([]metadata.ChangeEvent{}, m.ChangeLog...), metadata.ChangeEvent{
		At:      now,
		Model:   s.model,
		Changes: enh.AILog,
	})
	return &out, nil
}

// similarExamples pulls up to three cached books sharing the title's first
// word so the model imitates call numbers already on our shelves.
func (s *Service) similarExamples(ctx context.Context, m *metadata.BookMetadata) []gemini.Example {
	token, _, _ := strings.Cut(strings.TrimSpace(deref(m.Title)), " ")
	if token == "" {
		return nil
	}

	entries, err := s.cache.FindSimilarByTitle(ctx, token, ragExampleLimit)
	if err != nil {
		s.log.Warn("similar-title lookup failed", "title_token", token, "error", err)
		return nil
	}

	var examples []gemini.Example
	for _, e := range entries {
		if e.DDC == nil {
			continue
		}
		examples = append(examples, gemini.Example{
			Title:      e.Title,
			DDC:        *e.DDC,
			CallNumber: deref(e.CallNumber),
		})
	}
	return examples
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
