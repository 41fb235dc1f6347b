package classify

import (
	"context"
)

// Cache defines the contract for the classification cache store.
// GetByISBN returns (nil, nil) when the ISBN has never been classified.
type Cache interface {
	GetByISBN(ctx context.Context, isbn string) (*CacheEntry, error)
	InsertIfAbsent(ctx context.Context, entry *CacheEntry) error
	FindSimilarByTitle(ctx context.Context, token string, limit int) ([]CacheEntry, error)
}
