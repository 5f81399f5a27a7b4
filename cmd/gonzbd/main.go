package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/datallboy/gonzb/internal/api"
	"github.com/datallboy/gonzb/internal/app"
	"github.com/datallboy/gonzb/internal/assembler"
	"github.com/datallboy/gonzb/internal/config"
	"github.com/datallboy/gonzb/internal/events"
	"github.com/datallboy/gonzb/internal/extraction"
	"github.com/datallboy/gonzb/internal/fallback"
	"github.com/datallboy/gonzb/internal/job"
	"github.com/datallboy/gonzb/internal/logger"
	"github.com/datallboy/gonzb/internal/nntp"
	"github.com/datallboy/gonzb/internal/nzb"
	"github.com/datallboy/gonzb/internal/processor"
	"github.com/datallboy/gonzb/internal/repair"
	"github.com/datallboy/gonzb/internal/segment"
	"github.com/datallboy/gonzb/internal/store"
	"github.com/labstack/echo/v5"
	"github.com/segmentio/ksuid"
	"github.com/spf13/cobra"
)

var (
	nzbPath    string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "gonzbd",
	Short: "gonzbd is a concurrent NNTP download daemon",
	Long:  "A concurrent NNTP download engine: connection pooling, provider fallback, yEnc decoding, and positional file assembly, served over HTTP.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().StringVarP(&nzbPath, "file", "f", "", "optional: submit this NZB file on startup")
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config.yaml")
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\ninterrupt received, shutting down")
		cancel()
	}()

	rootCmd.SetContext(ctx)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildPools opens one nntp.Pool per configured server and pre-warms each.
func buildPools(ctx context.Context, cfg *config.Config, log *logger.Logger) map[string]*nntp.Pool {
	pools := make(map[string]*nntp.Pool, len(cfg.Servers))
	for _, s := range cfg.Servers {
		providerCfg := nntp.ProviderConfig{
			ID:             s.ID,
			Host:           s.Host,
			Port:           s.Port,
			UseSSL:         s.TLS,
			Username:       s.Username,
			Password:       s.Password,
			MaxConnections: s.MaxConnection,
			ArticleTimeout: time.Duration(s.ArticleTimeoutMs) * time.Millisecond,
			RetryAttempts:  s.RetryAttempts,
			RetryBackoff:   time.Duration(s.RetryBackoffMs) * time.Millisecond,
			FallbackIDs:    s.FallbackIDs,
		}
		pool := nntp.NewPool(providerCfg, nntp.NewNetTransport(s.Host, s.Port, s.TLS), log)
		pool.Initialize(ctx)
		pools[s.ID] = pool
	}
	return pools
}

// providerOrder returns the ordered [primary, ...fallback] provider ID list
// to try for any segment, sorted by configured priority with each server's
// own FallbackIDs appended after it.
func providerOrder(cfg *config.Config) fallback.ProviderOrder {
	byPriority := append([]config.ServerConfig(nil), cfg.Servers...)
	for i := 0; i < len(byPriority); i++ {
		for j := i + 1; j < len(byPriority); j++ {
			if byPriority[j].Priority < byPriority[i].Priority {
				byPriority[i], byPriority[j] = byPriority[j], byPriority[i]
			}
		}
	}

	seen := make(map[string]bool)
	var order fallback.ProviderOrder
	for _, s := range byPriority {
		if !seen[s.ID] {
			order = append(order, s.ID)
			seen[s.ID] = true
		}
		for _, fb := range s.FallbackIDs {
			if !seen[fb] {
				order = append(order, fb)
				seen[fb] = true
			}
		}
	}
	return order
}

// buildStore opens the history/search-cache backend named by cfg.Store.Driver.
func buildStore(ctx context.Context, cfg *config.Config) (app.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgresStore(ctx, cfg.Store.PostgresDSN, cfg.Store.BlobDir)
	case "", "sqlite":
		return store.NewPersistentStore(cfg.Store.SQLitePath, cfg.Store.BlobDir)
	default:
		return nil, fmt.Errorf("unknown store.driver %q", cfg.Store.Driver)
	}
}

func runDaemon(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log, err := logger.New(cfg.Log.Path, logger.ParseLevel(cfg.Log.Level), cfg.Log.IncludeStdout)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}

	pools := buildPools(ctx, cfg, log)
	order := providerOrder(cfg)

	retryAttempts := make(map[string]int, len(cfg.Servers))
	retryBackoff := make(map[string]time.Duration, len(cfg.Servers))
	for _, s := range cfg.Servers {
		retryAttempts[s.ID] = s.RetryAttempts
		retryBackoff[s.ID] = time.Duration(s.RetryBackoffMs) * time.Millisecond
	}
	policy := fallback.NewPolicy(
		func(id string) int { return retryAttempts[id] },
		func(id string) time.Duration { return retryBackoff[id] },
	)
	stats := fallback.NewStatsRegistry()

	downloader := segment.New(pools, order, policy, stats, log, cfg.Download.StrictCRC)
	asm := assembler.New(cfg.Download.TempDir)
	bus := events.NewBus()

	repairer := repair.NewCLIPar2()
	var extractors []extraction.Extractor
	if cfg.Extraction.Enabled {
		extractors = extraction.NewAvailable(cfg.Extraction.RarPassword)
	}
	post := processor.NewProcessor(log, repairer, extractors, cfg.Download.OutDir)
	builder := processor.NewBuilder(log, cfg.Download.OutDir)

	nzbStore, err := buildStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}

	// Anything still non-terminal in the history store was mid-flight when
	// gonzbd last stopped; its in-memory progress is gone, so it can't be
	// resumed in place. Mark it Failed so it surfaces in job history instead
	// of looking permanently stuck.
	if err := nzbStore.ResetStuckJobs(ctx, job.StatusFailed,
		job.StatusQueued, job.StatusDownloading, job.StatusPaused,
		job.StatusAssembling, job.StatusChecking, job.StatusRepairing, job.StatusExtracting,
	); err != nil {
		log.Error("reconciling job history: %v", err)
	}

	mgr := job.New(downloader, asm, post, nzbStore, bus, log)

	appCtx, err := app.NewContext(cfg, log, nzbStore, mgr, bus, builder)
	if err != nil {
		return fmt.Errorf("building app context: %w", err)
	}
	defer appCtx.Close()

	if nzbPath != "" {
		if err := submitFile(ctx, appCtx, nzbPath); err != nil {
			log.Error("submitting %s: %v", nzbPath, err)
		}
	}

	e := echo.New()
	api.RegisterRoutes(e, appCtx)

	addr := ":" + cfg.Port
	go func() {
		log.Info("listening on %s", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Error("http server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// submitFile parses and queues a single NZB file on startup, for one-shot
// CLI-style invocations (`gonzbd -f foo.nzb`) alongside the daemon.
func submitFile(ctx context.Context, appCtx *app.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	model, err := nzb.NewParser().Parse(f)
	if err != nil {
		return fmt.Errorf("parsing nzb: %w", err)
	}

	j, err := appCtx.Builder.BuildJob(ksuid.New().String(), path, "", model)
	if err != nil {
		return err
	}
	return appCtx.Jobs.Submit(ctx, j)
}
