package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-webhook-ingest/dedup"
)

const processingRecordCacheKeyPrefix = "go-webhook-ingest::processing_record::v1"

// CachedRecordReader serves processing-record lookups through a read-through
// cache. It is a status/reporting surface only: the claim path always goes
// straight to the ledger, since dedup correctness depends on the database
// unique index, never on cache state.
type CachedRecordReader struct {
	base  dedup.Ledger
	cache repositorycache.CacheService
}

func NewCachedRecordReader(
	base dedup.Ledger,
	cacheService repositorycache.CacheService,
) (*CachedRecordReader, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base processing ledger is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: record cache service is required")
	}
	return &CachedRecordReader{base: base, cache: cacheService}, nil
}

// ProcessingRecordCacheKey returns the deterministic cache key for a record
// lookup: go-webhook-ingest::processing_record::v1::<source>::<event_id> with
// each segment URL-path escaped.
func ProcessingRecordCacheKey(source string, eventID string) (string, error) {
	source = strings.TrimSpace(source)
	eventID = strings.TrimSpace(eventID)
	if source == "" || eventID == "" {
		return "", fmt.Errorf("sqlstore: source and event id are required for cache key")
	}
	return strings.Join([]string{
		processingRecordCacheKeyPrefix,
		url.PathEscape(source),
		url.PathEscape(eventID),
	}, "::"), nil
}

func (r *CachedRecordReader) Get(ctx context.Context, source string, eventID string) (dedup.Record, error) {
	if r == nil || r.base == nil || r.cache == nil {
		return dedup.Record{}, fmt.Errorf("sqlstore: cached record reader is not configured")
	}
	cacheKey, err := ProcessingRecordCacheKey(source, eventID)
	if err != nil {
		return dedup.Record{}, err
	}
	return repositorycache.GetOrFetch(ctx, r.cache, cacheKey, func(ctx context.Context) (dedup.Record, error) {
		return r.base.Get(ctx, source, eventID)
	})
}

// Invalidate drops a cached record after its status changes, so the next
// lookup reflects the settled state.
func (r *CachedRecordReader) Invalidate(ctx context.Context, source string, eventID string) error {
	if r == nil || r.cache == nil {
		return fmt.Errorf("sqlstore: cached record reader is not configured")
	}
	cacheKey, err := ProcessingRecordCacheKey(source, eventID)
	if err != nil {
		return err
	}
	return r.cache.Delete(ctx, cacheKey)
}
