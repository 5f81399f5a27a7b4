package indexer

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/labstack/echo/v5"
)

// store is the subset of the NZB cache/search history a Manager needs.
type store interface {
	SaveReleases(ctx context.Context, results []SearchResult) error
	GetRelease(ctx context.Context, id string) (SearchResult, error)
	GetNZBReader(key string) (io.ReadCloser, error)
	CreateNZBWriter(key string) (io.WriteCloser, error)
	Exists(key string) bool
}

type logger interface {
	Debug(format string, v ...interface{})
	Info(format string, v ...interface{})
	Warn(format string, v ...interface{})
	Error(format string, v ...interface{})
}

// BaseManager fans a search out across every registered Indexer and caches
// both the result metadata and the NZB blob itself once downloaded.
type BaseManager struct {
	mu       sync.RWMutex
	indexers map[string]Indexer
	store    store
	logger   logger
}

// NewManager initializes a new manager with a physical file store.
func NewManager(s store) *BaseManager {
	return &BaseManager{
		indexers: make(map[string]Indexer),
		store:    s,
	}
}

// AddIndexer registers a new indexer (usually a CachedIndexer) to the manager.
func (m *BaseManager) AddIndexer(idx Indexer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexers[idx.Name()] = idx
}

// SearchAll queries all indexers loaded by the manager
func (m *BaseManager) SearchAll(ctx context.Context, query string) ([]SearchResult, error) {
	var wg sync.WaitGroup
	resultsChan := make(chan []SearchResult, len(m.indexers))

	m.mu.RLock()
	for _, idx := range m.indexers {
		wg.Add(1)
		go func(i Indexer) {
			defer wg.Done()

			searchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()

			res, err := i.Search(searchCtx, query)
			if err != nil {
				if m.logger != nil {
					m.logger.Error("Indexer %s error: %v", i.Name(), err)
				}
				return
			}

			for idx := range res {
				if res[idx].ID == "" {
					res[idx].SetCompositeID()
				}
			}
			resultsChan <- res
		}(idx)
	}
	m.mu.RUnlock()

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	var allResults []SearchResult
	for res := range resultsChan {
		allResults = append(allResults, res...)
	}

	if len(allResults) > 0 {
		_ = m.store.SaveReleases(ctx, allResults)
	}

	return allResults, nil
}

// GetResultByID looks up a cached search result by its composite ID.
func (m *BaseManager) GetResultByID(ctx context.Context, id string) (SearchResult, error) {
	return m.store.GetRelease(ctx, id)
}

// FetchNZB streams the NZB blob for id to the HTTP response, downloading it
// from the owning indexer on a cache miss and caching it for next time.
func (m *BaseManager) FetchNZB(ctx context.Context, id string, c *echo.Context) error {
	if m.store.Exists(id) {
		r, err := m.store.GetNZBReader(id)
		if err != nil {
			return err
		}
		defer r.Close()
		return c.Stream(200, "application/x-nzb", r)
	}

	res, err := m.store.GetRelease(ctx, id)
	if err != nil {
		return fmt.Errorf("indexer: result %s not found: %w", id, err)
	}

	m.mu.RLock()
	idx, ok := m.indexers[res.Source]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("indexer: source %q not registered", res.Source)
	}

	data, err := idx.DownloadNZB(ctx, res)
	if err != nil {
		return fmt.Errorf("indexer: downloading nzb: %w", err)
	}
	defer data.Close()

	if w, err := m.store.CreateNZBWriter(id); err == nil {
		defer w.Close()
		return c.Stream(200, "application/x-nzb", io.TeeReader(data, w))
	}
	return c.Stream(200, "application/x-nzb", data)
}
