package postgresql

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Abishekvarshan/youtube-downloader/internal/entity"
)

const writeTimeout = 5 * time.Second

func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// JobArchive keeps a durable copy of finished jobs. It is write-only from the
// service's point of view: status reads are always served from memory.
type JobArchive struct {
	pool *pgxpool.Pool
}

func NewJobArchive(pool *pgxpool.Pool) *JobArchive {
	return &JobArchive{pool: pool}
}

func (a *JobArchive) EnsureSchema(ctx context.Context) error {
	const q = `
CREATE TABLE IF NOT EXISTS download_jobs (
    id          TEXT PRIMARY KEY,
    url         TEXT NOT NULL,
    status      TEXT NOT NULL,
    progress    DOUBLE PRECISION NOT NULL DEFAULT 0,
    output      TEXT,
    error_kind  TEXT,
    error       TEXT,
    log         JSONB NOT NULL DEFAULT '[]',
    created_at  TIMESTAMPTZ NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL
);
`
	_, err := a.pool.Exec(ctx, q)
	return err
}

// Save upserts the snapshot of job.
func (a *JobArchive) Save(ctx context.Context, job entity.Job) error {
	logJSON, err := json.Marshal(job.Log)
	if err != nil {
		return fmt.Errorf("marshal log: %w", err)
	}

	var output, errKind, errText *string
	if job.Output != "" {
		output = &job.Output
	}
	if job.Error != nil {
		k := string(job.Error.Kind)
		errKind = &k
		errText = &job.Error.Message
	}

	const q = `
INSERT INTO download_jobs (id, url, status, progress, output, error_kind, error, log, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE SET
    status     = EXCLUDED.status,
    progress   = EXCLUDED.progress,
    output     = EXCLUDED.output,
    error_kind = EXCLUDED.error_kind,
    error      = EXCLUDED.error,
    log        = EXCLUDED.log,
    updated_at = EXCLUDED.updated_at;
`
	_, err = a.pool.Exec(ctx, q,
		job.ID, job.URL, string(job.Status), job.Progress,
		output, errKind, errText, logJSON,
		job.CreatedAt, job.UpdatedAt,
	)
	return err
}

// Observe archives terminal snapshots and ignores the rest.
func (a *JobArchive) Observe(ctx context.Context, job entity.Job) {
	if !job.Status.IsTerminal() {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if err := a.Save(ctx, job); err != nil {
		log.Printf("[archive] job_id=%s status=%s save error=%v", job.ID, job.Status, err)
	}
}
