package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/datallboy/gonzb/internal/indexer"
	"github.com/datallboy/gonzb/internal/job"
)

// PostgresStore is the shared-deployment counterpart to PersistentStore:
// release/search-cache metadata lives in Postgres (so multiple gonzbd
// instances can share one history), while NZB blobs still land on the local
// filesystem under blobDir, same as the sqlite backend.
type PostgresStore struct {
	pool    *pgxpool.Pool
	blobDir string
}

// NewPostgresStore connects to dsn and ensures the releases table exists.
func NewPostgresStore(ctx context.Context, dsn, blobDir string) (*PostgresStore, error) {
	if err := os.MkdirAll(blobDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connecting: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	s := &PostgresStore{pool: pool, blobDir: blobDir}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("postgres: migrating: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS releases (
			id               TEXT PRIMARY KEY,
			title            TEXT NOT NULL,
			source           TEXT,
			download_url     TEXT,
			size             BIGINT NOT NULL DEFAULT 0,
			category         TEXT,
			redirect_allowed BOOLEAN NOT NULL DEFAULT false,
			publish_date     TIMESTAMPTZ,
			created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS jobs (
			id         TEXT PRIMARY KEY,
			status     TEXT NOT NULL,
			name       TEXT NOT NULL DEFAULT '',
			data       JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	return err
}

// SaveJob upserts j's full snapshot as a JSONB document, the same
// history-document shape PersistentStore writes, so the daemon can move
// between sqlite and Postgres without changing job.Manager wiring.
func (s *PostgresStore) SaveJob(ctx context.Context, j *job.Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("marshaling job %s: %w", j.ID, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO jobs (id, status, name, data)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			name   = excluded.name,
			data   = excluded.data`,
		j.ID, string(j.Status), j.Name, data)
	return err
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*job.Job, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM jobs WHERE id = $1`, id).Scan(&data)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching job %s: %w", id, err)
	}
	return pgDecodeJob(data)
}

func (s *PostgresStore) GetJobs(ctx context.Context) ([]*job.Job, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM jobs ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying jobs: %w", err)
	}
	return pgScanJobs(rows)
}

func (s *PostgresStore) GetActiveJobs(ctx context.Context) ([]*job.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT data FROM jobs
		WHERE status NOT IN ('completed', 'failed', 'deleted')
		ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying active jobs: %w", err)
	}
	return pgScanJobs(rows)
}

func (s *PostgresStore) ResetStuckJobs(ctx context.Context, newStatus job.Status, oldStatuses ...job.Status) error {
	if len(oldStatuses) == 0 {
		return nil
	}

	placeholders := make([]string, len(oldStatuses))
	args := make([]interface{}, len(oldStatuses))
	for i, st := range oldStatuses {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = string(st)
	}

	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT data FROM jobs WHERE status IN (%s)`, strings.Join(placeholders, ",")),
		args...)
	if err != nil {
		return fmt.Errorf("querying stuck jobs: %w", err)
	}
	stuck, err := pgScanJobs(rows)
	if err != nil {
		return err
	}

	for _, j := range stuck {
		j.Status = newStatus
		j.ErrorMsg = "unexpected shutdown"
		if err := s.SaveJob(ctx, j); err != nil {
			return fmt.Errorf("resetting job %s: %w", j.ID, err)
		}
	}
	return nil
}

func pgScanJobs(rows pgx.Rows) ([]*job.Job, error) {
	defer rows.Close()
	var out []*job.Job
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning job row: %w", err)
		}
		j, err := pgDecodeJob(data)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func pgDecodeJob(data []byte) (*job.Job, error) {
	var j job.Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("decoding job snapshot: %w", err)
	}
	return &j, nil
}

func (s *PostgresStore) SaveReleases(ctx context.Context, results []indexer.SearchResult) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, r := range results {
		_, err := tx.Exec(ctx, `
			INSERT INTO releases (id, title, source, download_url, size, category, redirect_allowed, publish_date)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				title = excluded.title,
				size = excluded.size,
				category = excluded.category`,
			r.ID, r.Title, r.Source, r.DownloadURL, r.Size, r.Category, r.RedirectAllowed, r.PublishDate)
		if err != nil {
			return fmt.Errorf("postgres: upserting release %s: %w", r.ID, err)
		}
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) GetRelease(ctx context.Context, id string) (indexer.SearchResult, error) {
	var r indexer.SearchResult
	err := s.pool.QueryRow(ctx, `
		SELECT id, title, source, download_url, size, category, redirect_allowed, publish_date
		FROM releases WHERE id = $1`, id).
		Scan(&r.ID, &r.Title, &r.Source, &r.DownloadURL, &r.Size, &r.Category, &r.RedirectAllowed, &r.PublishDate)
	return r, err
}

func (s *PostgresStore) GetNZBReader(id string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(s.blobDir, id+".nzb"))
}

func (s *PostgresStore) CreateNZBWriter(id string) (io.WriteCloser, error) {
	return os.Create(filepath.Join(s.blobDir, id+".nzb"))
}

func (s *PostgresStore) Exists(id string) bool {
	_, err := os.Stat(filepath.Join(s.blobDir, id+".nzb"))
	return err == nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
