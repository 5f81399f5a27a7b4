package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/datallboy/gonzb/internal/job"
)

// SaveJob upserts j's full snapshot as a JSON document, spec.md's durable
// "history document" requirement. Grounded on the teacher's SaveQueueItem,
// re-keyed from domain.QueueItem/domain.Release to job.Job: one row per
// job, the status column kept alongside the blob purely for indexed
// querying (GetActiveJobs, ResetStuckJobs).
func (s *PersistentStore) SaveJob(ctx context.Context, j *job.Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("marshaling job %s: %w", j.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, status, name, data)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			name   = excluded.name,
			data   = excluded.data`,
		j.ID, string(j.Status), j.Name, data)
	return err
}

func (s *PersistentStore) GetJob(ctx context.Context, id string) (*job.Job, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM jobs WHERE id = ?`, id).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching job %s: %w", id, err)
	}
	return decodeJob(data)
}

// GetJobs returns every job ever submitted, oldest first.
func (s *PersistentStore) GetJobs(ctx context.Context) ([]*job.Job, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM jobs ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying jobs: %w", err)
	}
	return scanJobs(rows)
}

// GetActiveJobs returns jobs not yet in a terminal state, for reconciliation
// on daemon startup.
func (s *PersistentStore) GetActiveJobs(ctx context.Context) ([]*job.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM jobs
		WHERE status NOT IN ('completed', 'failed', 'deleted')
		ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying active jobs: %w", err)
	}
	return scanJobs(rows)
}

// ResetStuckJobs marks every job in one of oldStatuses as newStatus, with an
// "unexpected shutdown" note, and persists the updated snapshot. Called once
// at daemon startup: anything still Downloading/Paused/etc. in the history
// store was mid-flight when the process last stopped and its in-memory
// progress is gone, so it cannot simply resume.
func (s *PersistentStore) ResetStuckJobs(ctx context.Context, newStatus job.Status, oldStatuses ...job.Status) error {
	if len(oldStatuses) == 0 {
		return nil
	}

	placeholders := make([]string, len(oldStatuses))
	args := make([]interface{}, len(oldStatuses))
	for i, st := range oldStatuses {
		placeholders[i] = "?"
		args[i] = string(st)
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT data FROM jobs WHERE status IN (%s)`, strings.Join(placeholders, ",")),
		args...)
	if err != nil {
		return fmt.Errorf("querying stuck jobs: %w", err)
	}
	stuck, err := scanJobs(rows)
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

func scanJobs(rows *sql.Rows) ([]*job.Job, error) {
	defer rows.Close()
	var out []*job.Job
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning job row: %w", err)
		}
		j, err := decodeJob(data)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func decodeJob(data []byte) (*job.Job, error) {
	var j job.Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("decoding job snapshot: %w", err)
	}
	return &j, nil
}
