package indexer

import (
	"bytes"
	"context"
	"io"
)

// IndexerCache is a simple interface for storage, making it swappable (File vs SQLite)
type IndexerCache interface {
	Get(id string) ([]byte, error)
	Put(id string, data []byte) error
}

// CachedIndexer "Decorates" a standard indexer with caching logic
type CachedIndexer struct {
	inner Indexer
	cache IndexerCache
}

func NewCachedIndexer(inner Indexer, cache IndexerCache) *CachedIndexer {
	return &CachedIndexer{inner: inner, cache: cache}
}

func (c *CachedIndexer) Name() string { return c.inner.Name() }

func (c *CachedIndexer) Search(ctx context.Context, query string) ([]SearchResult, error) {
	// We typically don't cache search results at the file level,
	// but we could in a database later. For now, pass through.
	return c.inner.Search(ctx, query)
}

func (c *CachedIndexer) DownloadNZB(ctx context.Context, res SearchResult) (io.ReadCloser, error) {
	if data, err := c.cache.Get(res.ID); err == nil {
		return io.NopCloser(bytes.NewReader(data)), nil
	}

	rc, err := c.inner.DownloadNZB(ctx, res)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	_ = c.cache.Put(res.ID, data)
	return io.NopCloser(bytes.NewReader(data)), nil
}
