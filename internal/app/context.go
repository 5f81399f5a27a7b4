package app

import (
	"context"
	"io"

	"github.com/datallboy/gonzb/internal/config"
	"github.com/datallboy/gonzb/internal/events"
	"github.com/datallboy/gonzb/internal/indexer"
	"github.com/datallboy/gonzb/internal/indexer/newsnab"
	"github.com/datallboy/gonzb/internal/job"
	"github.com/datallboy/gonzb/internal/logger"
	"github.com/datallboy/gonzb/internal/processor"
	"github.com/labstack/echo/v5"
)

// IndexerManager defines the contract for NZB search across configured
// Newznab-compatible indexers.
type IndexerManager interface {
	SearchAll(ctx context.Context, query string) ([]indexer.SearchResult, error)
	FetchNZB(ctx context.Context, id string, c *echo.Context) error
	GetResultByID(ctx context.Context, id string) (indexer.SearchResult, error)
}

// Store defines the contract for NZB storage.
// Implemented by store.PersistentStore (SQLite) and store.PostgresStore.
type Store interface {
	// Metadata: SQLLite
	SaveReleases(ctx context.Context, results []indexer.SearchResult) error
	GetRelease(ctx context.Context, id string) (indexer.SearchResult, error)

	// Blobs: File System
	GetNZBReader(key string) (io.ReadCloser, error)
	CreateNZBWriter(key string) (io.WriteCloser, error)
	Exists(key string) bool

	// Job history: the durable record of every job's last known state,
	// addressed by job ID. SaveJob is called on every status transition;
	// GetActiveJobs/ResetStuckJobs let the daemon reconcile jobs that were
	// still in flight the last time it ran.
	SaveJob(ctx context.Context, j *job.Job) error
	GetJobs(ctx context.Context) ([]*job.Job, error)
	GetActiveJobs(ctx context.Context) ([]*job.Job, error)
	ResetStuckJobs(ctx context.Context, newStatus job.Status, oldStatuses ...job.Status) error

	Close() error
}

// Context hold the core environment and shared resources for GoNZB.
// It acts as the "Single Source of Truth" for the application state.
type Context struct {
	Config *config.Config
	Logger *logger.Logger

	// High-level interfaces for services to use
	Indexer IndexerManager
	NZBStore Store

	// Jobs drives every active download through its state machine; Events
	// fans out progress/status updates to the API's SSE endpoint. Builder
	// turns a parsed NZB into a submittable Job.
	Jobs    *job.Manager
	Events  *events.Bus
	Builder *processor.Builder

	ExtractionEnabled bool
}

// NewContext initializes the base environment. store must be constructed by
// the caller (sqlite or postgres, per cfg.Store.Driver) since it depends on
// the chosen driver's connection setup.
func NewContext(cfg *config.Config, log *logger.Logger, nzbStore Store, jobs *job.Manager, bus *events.Bus, builder *processor.Builder) (*Context, error) {
	idxManager := indexer.NewManager(nzbStore)

	for _, idxCfg := range cfg.Indexers {
		client := newsnab.New(idxCfg.ID, idxCfg.BaseUrl, idxCfg.ApiKey, idxCfg.Redirect)
		idxManager.AddIndexer(client)
	}

	return &Context{
		Config:            cfg,
		Logger:            log,
		ExtractionEnabled: cfg.Extraction.Enabled,
		Indexer:           idxManager,
		NZBStore:          nzbStore,
		Jobs:              jobs,
		Events:            bus,
		Builder:           builder,
	}, nil
}

func (ctx *Context) Close() {
	ctx.Logger.Info("Shutting down store...")
	if err := ctx.NZBStore.Close(); err != nil {
		ctx.Logger.Error("Error closing store: %v", err)
	}
}
