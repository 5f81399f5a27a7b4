package api

import (
	"context"
	"net/http"
	"net/http/httptest"
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

type blockingDownloader struct{}

func (blockingDownloader) DownloadSegment(ctx context.Context, segmentID, messageID string) (*segment.Decoded, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type emptyIndexer struct{}

func (emptyIndexer) SearchAll(ctx context.Context, query string) ([]indexer.SearchResult, error) {
	return nil, nil
}
func (emptyIndexer) FetchNZB(ctx context.Context, id string, c *echo.Context) error {
	return c.NoContent(http.StatusNotFound)
}
func (emptyIndexer) GetResultByID(ctx context.Context, id string) (indexer.SearchResult, error) {
	return indexer.SearchResult{}, nil
}

func newRoutedServer(t *testing.T) *httptest.Server {
	t.Helper()
	dir := t.TempDir()

	s, err := store.NewPersistentStore(filepath.Join(dir, "gonzb.db"), filepath.Join(dir, "blobs"))
	if err != nil {
		t.Fatalf("NewPersistentStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	asm := assembler.New(filepath.Join(dir, "spill"))
	bus := events.NewBus()
	mgr := job.New(blockingDownloader{}, asm, nil, s, bus, logger.Discard())
	builder := processor.NewBuilder(logger.Discard(), filepath.Join(dir, "out"))

	appCtx := &app.Context{
		Config:   &config.Config{},
		Logger:   logger.Discard(),
		Indexer:  emptyIndexer{},
		NZBStore: s,
		Jobs:     mgr,
		Events:   bus,
		Builder:  builder,
	}

	e := echo.New()
	RegisterRoutes(e, appCtx)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv
}

func TestRegisterRoutes_JobsListIsReachable(t *testing.T) {
	t.Parallel()

	srv := newRoutedServer(t)
	resp, err := http.Get(srv.URL + "/jobs")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from GET /jobs, got %d", resp.StatusCode)
	}
}

func TestRegisterRoutes_UnknownJobReturnsNotFound(t *testing.T) {
	t.Parallel()

	srv := newRoutedServer(t)
	resp, err := http.Get(srv.URL + "/jobs/does-not-exist")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 from GET /jobs/:id for an unknown id, got %d", resp.StatusCode)
	}
}

func TestRegisterRoutes_NewznabAPIIsReachable(t *testing.T) {
	t.Parallel()

	srv := newRoutedServer(t)
	resp, err := http.Get(srv.URL + "/api?t=caps")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from GET /api?t=caps, got %d", resp.StatusCode)
	}
}

func TestRegisterRoutes_NZBDownloadRoutesToIndexer(t *testing.T) {
	t.Parallel()

	srv := newRoutedServer(t)
	resp, err := http.Get(srv.URL + "/nzb/missing-id")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown nzb id, got %d", resp.StatusCode)
	}
}
