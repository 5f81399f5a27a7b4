package controllers

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/datallboy/gonzb/internal/app"
	"github.com/datallboy/gonzb/internal/assembler"
	"github.com/datallboy/gonzb/internal/config"
	"github.com/datallboy/gonzb/internal/events"
	"github.com/datallboy/gonzb/internal/indexer"
	"github.com/datallboy/gonzb/internal/job"
	"github.com/datallboy/gonzb/internal/logger"
	"github.com/datallboy/gonzb/internal/processor"
	"github.com/datallboy/gonzb/internal/segment"
	"github.com/datallboy/gonzb/internal/store"
	"github.com/labstack/echo/v5"
)

// noopDownloader never actually dials a provider; tests that exercise the
// HTTP layer only need a job to exist and be submittable, not to complete.
type noopDownloader struct{}

func (noopDownloader) DownloadSegment(ctx context.Context, segmentID, messageID string) (*segment.Decoded, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// fakeIndexer lets controller tests stand in for a real Newznab backend.
type fakeIndexer struct {
	searchResults []indexer.SearchResult
	byID          map[string]indexer.SearchResult
}

func (f *fakeIndexer) SearchAll(ctx context.Context, query string) ([]indexer.SearchResult, error) {
	return f.searchResults, nil
}

func (f *fakeIndexer) FetchNZB(ctx context.Context, id string, c *echo.Context) error {
	return c.String(200, "<nzb/>")
}

func (f *fakeIndexer) GetResultByID(ctx context.Context, id string) (indexer.SearchResult, error) {
	res, ok := f.byID[id]
	if !ok {
		return indexer.SearchResult{}, context.Canceled
	}
	return res, nil
}

func newTestApp(t *testing.T) *app.Context {
	t.Helper()
	dir := t.TempDir()

	s, err := store.NewPersistentStore(filepath.Join(dir, "gonzb.db"), filepath.Join(dir, "blobs"))
	if err != nil {
		t.Fatalf("NewPersistentStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	asm := assembler.New(filepath.Join(dir, "spill"))
	bus := events.NewBus()
	mgr := job.New(noopDownloader{}, asm, nil, s, bus, logger.Discard())
	builder := processor.NewBuilder(logger.Discard(), filepath.Join(dir, "out"))

	return &app.Context{
		Config:   &config.Config{},
		Logger:   logger.Discard(),
		Indexer:  &fakeIndexer{byID: map[string]indexer.SearchResult{}},
		NZBStore: s,
		Jobs:     mgr,
		Events:   bus,
		Builder:  builder,
	}
}
